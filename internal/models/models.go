// Package models defines the core data structures for SleepAdvisor.
//
// It includes the questionnaire session, inbound chat events, predictor
// contracts and the API envelope shared across modules.
package models

import "time"

// EventKind classifies an inbound chat event.
type EventKind string

const (
	// EventCommand is a bot command such as /check or /help.
	EventCommand EventKind = "command"
	// EventText is a free-text message.
	EventText EventKind = "text"
	// EventChoice is a button selection carrying callback data.
	EventChoice EventKind = "choice"
)

// Bot commands understood by the dispatcher.
const (
	CommandStart = "start"
	CommandCheck = "check"
	CommandHelp  = "help"
)

// Event is a single inbound interaction from a chat user.
type Event struct {
	Kind       EventKind `json:"kind"`
	UserID     string    `json:"user_id"`
	MessageID  string    `json:"message_id,omitempty"`  // provider message id, used for dedup
	Text       string    `json:"text,omitempty"`        // message text or command name
	Data       string    `json:"data,omitempty"`        // callback data for choice events
	CallbackID string    `json:"callback_id,omitempty"` // provider callback id, acknowledged after handling
	Time       int64     `json:"time"`
}

// Choice is a single selectable option rendered as a button or numbered line.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// MessageHandle references a message previously sent by the bot.
type MessageHandle string

// Result is the final outcome of a completed questionnaire.
type Result struct {
	Label     int       `json:"label"`
	LabelName string    `json:"label_name"`
	Advice    string    `json:"advice"`
	CreatedAt time.Time `json:"created_at"`
}

// APIStatus represents the status field of API responses.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
