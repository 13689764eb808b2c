package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// MockSent is a message recorded by MockService.
type MockSent struct {
	To      string
	Body    string
	Choices []models.Choice
	Handle  models.MessageHandle
}

// MockService is an in-memory Service for tests. Emit injects inbound events.
type MockService struct {
	*eventSink
	mu        sync.Mutex
	Sent      []MockSent
	Deleted   []models.MessageHandle
	Callbacks []string
}

// NewMockService creates a MockService.
func NewMockService() *MockService {
	return &MockService{eventSink: newEventSink()}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	m.close()
	return nil
}

func (m *MockService) SendMessage(ctx context.Context, to, body string) (models.MessageHandle, error) {
	return m.SendChoices(ctx, to, body, nil)
}

func (m *MockService) SendChoices(ctx context.Context, to, body string, choices []models.Choice) (models.MessageHandle, error) {
	if m.isStopped() {
		return "", ErrServiceStopped
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := models.MessageHandle(fmt.Sprintf("mock-%d", len(m.Sent)+1))
	m.Sent = append(m.Sent, MockSent{To: to, Body: body, Choices: choices, Handle: h})
	return h, nil
}

func (m *MockService) DeleteMessage(ctx context.Context, to string, handle models.MessageHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, handle)
	return nil
}

func (m *MockService) AnswerCallback(ctx context.Context, to, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Callbacks = append(m.Callbacks, text)
	return nil
}

// Emit injects an inbound event as if it came from the transport.
func (m *MockService) Emit(evt models.Event) bool {
	return m.emit(evt)
}

// SentTo returns the bodies sent to a user, in order.
func (m *MockService) SentTo(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.Sent {
		if s.To == userID {
			out = append(out, s.Body)
		}
	}
	return out
}
