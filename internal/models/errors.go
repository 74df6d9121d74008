package models

import (
	"fmt"

	"github.com/google/uuid"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// InsufficientContentError means the source text is too thin for a full
// question set. Callers fall back to a low-confidence set.
type InsufficientContentError struct {
	Found    int
	Required int
}

func (e *InsufficientContentError) Error() string {
	return fmt.Sprintf("source text has %d usable key sentences, %d required", e.Found, e.Required)
}

type NotAvailableError struct{ Message string }

func (e *NotAvailableError) Error() string { return e.Message }

type AttemptBlockedError struct {
	QuizID    uuid.UUID
	LearnerID uuid.UUID
}

func (e *AttemptBlockedError) Error() string {
	return "A graded attempt for this quiz has already been recorded"
}

// StaleSessionError rejects a submission that does not target the session's
// current question, or that overlaps another in-flight submission.
type StaleSessionError struct {
	SessionID uuid.UUID
	Message   string
}

func (e *StaleSessionError) Error() string { return e.Message }

// PersistenceError is the only class that callers are expected to retry.
type PersistenceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
