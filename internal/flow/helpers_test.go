package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

type sentMessage struct {
	To      string
	Body    string
	Choices []models.Choice
	Handle  models.MessageHandle
}

// mockMessenger records everything the engine sends.
type mockMessenger struct {
	mu        sync.Mutex
	sent      []sentMessage
	deleted   []models.MessageHandle
	callbacks []string
	sendErr   error
}

func (m *mockMessenger) record(to, body string, choices []models.Choice) (models.MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	h := models.MessageHandle(fmt.Sprintf("msg-%d", len(m.sent)+1))
	m.sent = append(m.sent, sentMessage{To: to, Body: body, Choices: choices, Handle: h})
	return h, nil
}

func (m *mockMessenger) SendMessage(_ context.Context, to, body string) (models.MessageHandle, error) {
	return m.record(to, body, nil)
}

func (m *mockMessenger) SendChoices(_ context.Context, to, body string, choices []models.Choice) (models.MessageHandle, error) {
	return m.record(to, body, choices)
}

func (m *mockMessenger) DeleteMessage(_ context.Context, _ string, h models.MessageHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, h)
	return nil
}

func (m *mockMessenger) AnswerCallback(_ context.Context, _, _, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, text)
	return nil
}

func (m *mockMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMessage{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockMessenger) bodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Body
	}
	return out
}

type mockPredictor struct {
	mu    sync.Mutex
	calls []models.PredictionRequest
	label *int
	err   error
}

func (p *mockPredictor) Predict(_ context.Context, req models.PredictionRequest) (models.PredictionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return models.PredictionResponse{}, p.err
	}
	return models.PredictionResponse{Label: p.label}, nil
}

func (p *mockPredictor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type mockEnhancer struct {
	text string
	err  error
}

func (e mockEnhancer) Enhance(context.Context, models.Answers, int, string) (string, error) {
	return e.text, e.err
}

func intPtr(v int) *int { return &v }
