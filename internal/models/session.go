// Package models defines session traversal state for questionnaire flows.
package models

import "time"

// SessionStatus represents the flow controller state for a session.
type SessionStatus string

const (
	// SessionStatusNotStarted means no questionnaire has been started yet.
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	// SessionStatusAwaitingAnswer means a question is shown and unanswered.
	SessionStatusAwaitingAnswer SessionStatus = "AWAITING_ANSWER"
	// SessionStatusFinished means the active questionnaire has completed.
	SessionStatusFinished SessionStatus = "FINISHED"
)

// SessionState is the per-user, per-attempt mutable traversal state. It is
// owned by the session store; the engine reads, mutates, and writes it back
// under a per-session lock. Caches are referenced by name only.
type SessionState struct {
	SessionID           string                     `json:"session_id"`
	ActiveQuestionnaire string                     `json:"active_questionnaire,omitempty"`
	Status              SessionStatus              `json:"status"`
	CurrentQuestionID   QuestionID                 `json:"current_question_id,omitempty"`
	History             []QuestionID               `json:"history,omitempty"`
	Answers             map[QuestionID]AnswerValue `json:"answers,omitempty"`
	// PendingMulti is scratch state for multi-choice questions, cleared when
	// the question is submitted. Toggle order is preserved.
	PendingMulti map[QuestionID][]string `json:"pending_multi,omitempty"`
	// PendingQueue holds questionnaires still owed to this user, consumed
	// front to back.
	PendingQueue []string `json:"pending_queue,omitempty"`
	// Completed lists questionnaires already finished in this attempt, used
	// to keep queue appends idempotent.
	Completed []string `json:"completed,omitempty"`
	// AnsweredRoles maps a question role to the question id that recorded an
	// answer for it, so internal questions can look up historical answers.
	AnsweredRoles map[QuestionRole]QuestionID `json:"answered_roles,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// NewSessionState returns a fresh session in the NotStarted state.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now()
	return &SessionState{
		SessionID: sessionID,
		Status:    SessionStatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so stores can hand out isolated values.
func (s *SessionState) Clone() *SessionState {
	out := *s
	if s.History != nil {
		out.History = make([]QuestionID, len(s.History))
		copy(out.History, s.History)
	}
	if s.Answers != nil {
		out.Answers = make(map[QuestionID]AnswerValue, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = MultiOrSingleCopy(v)
		}
	}
	if s.PendingMulti != nil {
		out.PendingMulti = make(map[QuestionID][]string, len(s.PendingMulti))
		for k, v := range s.PendingMulti {
			c := make([]string, len(v))
			copy(c, v)
			out.PendingMulti[k] = c
		}
	}
	if s.PendingQueue != nil {
		out.PendingQueue = make([]string, len(s.PendingQueue))
		copy(out.PendingQueue, s.PendingQueue)
	}
	if s.Completed != nil {
		out.Completed = make([]string, len(s.Completed))
		copy(out.Completed, s.Completed)
	}
	if s.AnsweredRoles != nil {
		out.AnsweredRoles = make(map[QuestionRole]QuestionID, len(s.AnsweredRoles))
		for k, v := range s.AnsweredRoles {
			out.AnsweredRoles[k] = v
		}
	}
	return &out
}

// MultiOrSingleCopy copies an AnswerValue, duplicating any selection slice.
func MultiOrSingleCopy(v AnswerValue) AnswerValue {
	if v.Selections == nil {
		return v
	}
	return MultiAnswer(v.Selections)
}

// HasCompleted reports whether a questionnaire already finished this attempt.
func (s *SessionState) HasCompleted(name string) bool {
	for _, n := range s.Completed {
		if n == name {
			return true
		}
	}
	return false
}

// IsQueued reports whether a questionnaire is already in the pending queue.
func (s *SessionState) IsQueued(name string) bool {
	for _, n := range s.PendingQueue {
		if n == name {
			return true
		}
	}
	return false
}
