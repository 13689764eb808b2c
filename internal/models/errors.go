package models

import (
	"errors"
	"fmt"
)

// Error taxonomy of the conversation engine and its collaborators.
var (
	ErrParse             = errors.New("malformed input")
	ErrValidation        = errors.New("value outside acceptable range")
	ErrSessionExpired    = errors.New("session not found")
	ErrUpstreamTimeout   = errors.New("predictor timed out")
	ErrUpstreamStatus    = errors.New("predictor returned non-success status")
	ErrUpstreamMalformed = errors.New("predictor returned malformed response")
	ErrUpstream          = errors.New("predictor request failed")
)

// UpstreamStatusError carries the HTTP status of a failed predictor call.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("predictor returned status %d", e.StatusCode)
}

// Unwrap lets errors.Is match ErrUpstreamStatus.
func (e *UpstreamStatusError) Unwrap() error {
	return ErrUpstreamStatus
}

// FieldError describes a rejected value for a specific field.
type FieldError struct {
	Field FieldKey
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
