package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies a pipeline failure for the retry policy.
type ErrorKind string

const (
	ErrorKindAPI        ErrorKind = "api_error"
	ErrorKindNetwork    ErrorKind = "network_error"
	ErrorKindParsing    ErrorKind = "parsing_error"
	ErrorKindValidation ErrorKind = "validation_error"
)

// StepError captures a failed step attempt.
type StepError struct {
	Step      Step      `json:"step"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"` // 1-based attempt that produced this error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (attempt %d, %s): %s", e.Step, e.Attempt, e.Kind, e.Message)
}

// ValidationError marks invalid caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
