package store

// DedupRepo remembers provider message ids so redelivered webhooks and
// replayed WhatsApp events are handled once.
type DedupRepo interface {
	// RecordInbound returns true the first time messageID is seen and false
	// for every later delivery of it.
	RecordInbound(messageID, userID string) (bool, error)
}
