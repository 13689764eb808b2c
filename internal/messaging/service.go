package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/flow"
	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size of the inbound event channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound event waits for buffer space.
	DefaultChannelTimeout = 1 * time.Second
	// ChoiceLineFormat renders one option of a text-only choice list.
	ChoiceLineFormat = "\n%d. %s"
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable chat transport.
// It delivers engine output and provides a channel of inbound user events.
type Service interface {
	flow.Messenger

	// ValidateAndCanonicalizeRecipient validates a user identifier and returns
	// the canonical form used as session key.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// Start begins background processing (e.g., event subscriptions).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the events channel.
	Stop() error

	// Events returns a channel of inbound user events.
	Events() <-chan models.Event
}

// canonicalizePhone strips everything but digits and requires at least six of them.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// FormatChoices appends numbered options to body for transports without buttons.
func FormatChoices(body string, choices []models.Choice) string {
	var b strings.Builder
	b.WriteString(body)
	for i, c := range choices {
		fmt.Fprintf(&b, ChoiceLineFormat, i+1, c.Label)
	}
	return b.String()
}

// eventSink owns the inbound events channel of a service.
// Emitters hold the read lock so close never races a send.
type eventSink struct {
	events  chan models.Event
	mu      sync.RWMutex
	stopped bool
}

func newEventSink() *eventSink {
	return &eventSink{events: make(chan models.Event, DefaultChannelBufferSize)}
}

func (s *eventSink) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// emit forwards evt, dropping it when the service is stopped or the buffer stays full.
func (s *eventSink) emit(evt models.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("Messaging dropping inbound event (service stopped)", "user_id", evt.UserID)
		return false
	}
	select {
	case s.events <- evt:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("Messaging events channel blocked, dropping event", "user_id", evt.UserID, "timeout", DefaultChannelTimeout)
		return false
	}
}

// close marks the sink stopped and closes the channel once.
func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.events)
}

// Events returns the inbound event channel.
func (s *eventSink) Events() <-chan models.Event {
	return s.events
}
