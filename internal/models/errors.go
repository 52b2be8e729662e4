package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across modules. Structured error types below wrap
// these so callers can classify failures with errors.Is.
var (
	// ErrDefinition marks definition-time failures: duplicate ids, dangling
	// branch targets, ambiguous start questions, queue appends after finish.
	ErrDefinition = errors.New("questionnaire definition error")
	// ErrSessionState marks operations requested in a session state that does
	// not support them. The session is left unchanged.
	ErrSessionState = errors.New("operation not allowed in current session state")
	// ErrQuestionnaireNotFound is returned when a questionnaire name has no
	// compiled cache in the registry.
	ErrQuestionnaireNotFound = errors.New("questionnaire not found")
	// ErrSessionNotFound is returned when no session exists for a session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuestionNotFound is returned when a cache has no question for an id.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoRoute is returned when a question has neither an exact nor a
	// wildcard rule for the submitted answer. On a valid cache this is a
	// programmer error, never a user-facing one.
	ErrNoRoute = errors.New("no branch rule for answer")
	// ErrSlotUnavailable is returned when booking a slot that is taken.
	ErrSlotUnavailable = errors.New("time slot unavailable")
)

// DefinitionError reports an invalid questionnaire definition. It is fatal at
// build or chain time; no partial cache is ever installed.
type DefinitionError struct {
	Questionnaire string
	Detail        string
}

func (e *DefinitionError) Error() string {
	if e.Questionnaire == "" {
		return fmt.Sprintf("definition error: %s", e.Detail)
	}
	return fmt.Sprintf("definition error in questionnaire %q: %s", e.Questionnaire, e.Detail)
}

// Unwrap lets errors.Is(err, ErrDefinition) classify the error.
func (e *DefinitionError) Unwrap() error { return ErrDefinition }

// SessionStateError reports an operation rejected because of the session's
// current state, e.g. toggling a multi option on a single-choice question.
type SessionStateError struct {
	SessionID string
	Op        string
	Detail    string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("session %s: %s rejected: %s", e.SessionID, e.Op, e.Detail)
}

// Unwrap lets errors.Is(err, ErrSessionState) classify the error.
func (e *SessionStateError) Unwrap() error { return ErrSessionState }
