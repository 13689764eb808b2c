package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	"github.com/BTreeMap/SleepAdvisor/internal/whatsapp"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
// Choices are rendered as numbered lines and removed by revoking the message.
type WhatsAppService struct {
	*eventSink
	client    whatsapp.Sender
	waClient  *whatsapp.Client // set only for a real client, used for event handling
	handlerMu sync.Mutex
	handlerID uint32
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		eventSink: newEventSink(),
		client:    client,
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient reduces a phone number or JID user part to digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the inbound event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.handlerMu.Lock()
	s.handlerID = s.waClient.GetClient().AddEventHandler(s.handleEvent)
	s.handlerMu.Unlock()
	slog.Info("WhatsAppService event handler registered")
	return nil
}

// Stop unregisters the event handler and closes the events channel.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.handlerMu.Lock()
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
		s.handlerMu.Unlock()
		s.waClient.Disconnect()
	}
	s.close()
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends plain text and returns the WhatsApp message id as handle.
func (s *WhatsAppService) SendMessage(ctx context.Context, to, body string) (models.MessageHandle, error) {
	if s.isStopped() {
		return "", ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return "", err
	}
	id, err := s.client.SendMessage(ctx, canonicalTo, body)
	if err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return "", err
	}
	return models.MessageHandle(id), nil
}

// SendChoices sends body followed by numbered options.
func (s *WhatsAppService) SendChoices(ctx context.Context, to, body string, choices []models.Choice) (models.MessageHandle, error) {
	return s.SendMessage(ctx, to, FormatChoices(body, choices))
}

// DeleteMessage revokes a message sent earlier.
func (s *WhatsAppService) DeleteMessage(ctx context.Context, to string, handle models.MessageHandle) error {
	if handle == "" {
		return nil
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.RevokeMessage(ctx, canonicalTo, string(handle))
}

// AnswerCallback sends text as a regular message; WhatsApp has no callback acknowledgements.
func (s *WhatsAppService) AnswerCallback(ctx context.Context, to, callbackID, text string) error {
	if text == "" {
		return nil
	}
	_, err := s.SendMessage(ctx, to, text)
	return err
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Connected:
		slog.Info("WhatsAppService connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService disconnected")
	}
}

// handleIncomingMessage turns a private text message into a text event.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	sender := evt.Info.Sender
	if sender.Server == types.HiddenUserServer && !evt.Info.SenderAlt.IsEmpty() {
		sender = evt.Info.SenderAlt
	}
	userID, err := s.ValidateAndCanonicalizeRecipient(sender.User)
	if err != nil {
		slog.Warn("WhatsAppService ignoring message from invalid sender", "sender", sender.String(), "error", err)
		return
	}

	event := models.Event{
		Kind:      models.EventText,
		UserID:    userID,
		MessageID: evt.Info.ID,
		Text:      text,
		Time:      evt.Info.Timestamp.Unix(),
	}
	if s.emit(event) {
		slog.Debug("WhatsAppService incoming message forwarded", "user_id", userID, "body_length", len(text))
	}
}
