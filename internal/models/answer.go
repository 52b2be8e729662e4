package models

import "time"

// AnswerValue holds one recorded answer: either a single string (single
// choice, free text, photo file id) or an ordered set of selected options for
// multi-choice questions.
type AnswerValue struct {
	Text       string   `json:"text,omitempty"`
	Selections []string `json:"selections,omitempty"`
}

// SingleAnswer wraps a single-valued answer.
func SingleAnswer(text string) AnswerValue {
	return AnswerValue{Text: text}
}

// MultiAnswer wraps a multi-choice selection, preserving toggle order.
func MultiAnswer(selections []string) AnswerValue {
	out := make([]string, len(selections))
	copy(out, selections)
	return AnswerValue{Selections: out}
}

// IsMulti reports whether the value carries a multi-choice selection.
func (v AnswerValue) IsMulti() bool { return v.Selections != nil }

// Contains reports whether a multi-choice selection includes the option.
func (v AnswerValue) Contains(option string) bool {
	for _, s := range v.Selections {
		if s == option {
			return true
		}
	}
	return false
}

// Answer is the durable record of one submitted answer, persisted in addition
// to the copy living in session state.
type Answer struct {
	SessionID     string      `json:"session_id"`
	Questionnaire string      `json:"questionnaire"`
	QuestionID    QuestionID  `json:"question_id"`
	Value         AnswerValue `json:"value"`
	CreatedAt     time.Time   `json:"created_at"`
}
