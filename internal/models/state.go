// Package models defines questionnaire session state for SleepAdvisor.
package models

import "time"

// FieldKey identifies one feature collected by the questionnaire.
type FieldKey string

const (
	FieldAge                 FieldKey = "Age"
	FieldGender              FieldKey = "Gender"
	FieldSleepDuration       FieldKey = "Sleep_duration"
	FieldAwakenings          FieldKey = "Awakenings"
	FieldCaffeineConsumption FieldKey = "Caffeine_consumption"
	FieldAlcoholConsumption  FieldKey = "Alcohol_consumption"
	FieldSmokingStatus       FieldKey = "Smoking_status"
	FieldExerciseFrequency   FieldKey = "Exercise_frequency"
	FieldBedHour             FieldKey = "bed_hour"
	FieldWakeHour            FieldKey = "wake_hour"
)

// IsHourField reports whether the field holds a clock hour.
func (k FieldKey) IsHourField() bool {
	return k == FieldBedHour || k == FieldWakeHour
}

// InputKind tells how a question is answered.
type InputKind string

const (
	InputNumericText  InputKind = "numeric_text"
	InputSingleChoice InputKind = "single_choice"
)

// Question is an immutable catalog entry.
type Question struct {
	Key    FieldKey
	Prompt string
	Kind   InputKind
}

// Answers maps field keys to parsed values. Choice answers are stored as whole numbers.
type Answers map[FieldKey]float64

// Get returns the value for key or def when absent.
func (a Answers) Get(key FieldKey, def float64) float64 {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// PendingConfirmation holds a value awaiting a yes/no answer.
type PendingConfirmation struct {
	Field FieldKey `json:"field"`
	Value float64  `json:"value"`
}

// Session is the in-progress questionnaire of one user.
type Session struct {
	UserID  string               `json:"user_id"`
	Step    int                  `json:"step"`
	Answers Answers              `json:"answers"`
	Pending *PendingConfirmation `json:"pending,omitempty"`
	// Retries counts consecutive rejected submissions per field.
	Retries map[FieldKey]int `json:"retries,omitempty"`
	// LastMessage is the latest bot message carrying interactive controls.
	LastMessage MessageHandle `json:"last_message,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// NewSession creates a fresh session positioned at the first question.
func NewSession(userID string) *Session {
	return &Session{
		UserID:    userID,
		Answers:   make(Answers),
		Retries:   make(map[FieldKey]int),
		CreatedAt: time.Now(),
	}
}

