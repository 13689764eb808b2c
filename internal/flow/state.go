// Package flow defines the collaborator interfaces of the conversation engine.
package flow

import (
	"context"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// ConversationState is the externally visible state of a user's conversation.
type ConversationState string

const (
	StateNoSession            ConversationState = "NO_SESSION"
	StateAwaitingAnswer       ConversationState = "AWAITING_ANSWER"
	StateAwaitingConfirmation ConversationState = "AWAITING_CONFIRMATION"
)

// Messenger delivers bot output to a chat user.
type Messenger interface {
	// SendMessage sends plain text and returns a handle to the sent message.
	SendMessage(ctx context.Context, to, body string) (models.MessageHandle, error)
	// SendChoices sends text with selectable options.
	SendChoices(ctx context.Context, to, body string, choices []models.Choice) (models.MessageHandle, error)
	// DeleteMessage removes a previously sent message and its controls.
	DeleteMessage(ctx context.Context, to string, handle models.MessageHandle) error
	// AnswerCallback acknowledges a button press so the client stops waiting.
	AnswerCallback(ctx context.Context, to, callbackID, text string) error
}

// Predictor classifies a feature vector.
type Predictor interface {
	Predict(ctx context.Context, req models.PredictionRequest) (models.PredictionResponse, error)
}

// AdviceEnhancer optionally extends the deterministic advice text.
type AdviceEnhancer interface {
	Enhance(ctx context.Context, answers models.Answers, label int, advice string) (string, error)
}
