// Package models defines the core data structures for the ConsultOS bot.
//
// It includes questionnaire definitions, session traversal state, render
// specifications, and the shared error taxonomy used across modules.
package models

import "fmt"

// QuestionID identifies a question. IDs are assigned by the definition store
// and are unique within a questionnaire; the store keeps them globally unique
// so collected answers stay addressable across chained questionnaires.
type QuestionID int64

// QuestionKind defines how a question is answered and rendered.
type QuestionKind string

const (
	// QuestionKindSingle is a single-choice question answered by one option.
	QuestionKindSingle QuestionKind = "single"
	// QuestionKindMulti is a multi-choice question answered by a set of options.
	QuestionKindMulti QuestionKind = "multi"
	// QuestionKindText is a free-text question.
	QuestionKindText QuestionKind = "text"
	// QuestionKindPhoto is answered by a photo attachment.
	QuestionKindPhoto QuestionKind = "photo"
	// QuestionKindTerminal ends the questionnaire; it has no outgoing branches.
	QuestionKindTerminal QuestionKind = "terminal"
	// QuestionKindInternal is never rendered; it re-routes flow based on a
	// historical answer identified by DependsOnRole.
	QuestionKindInternal QuestionKind = "internal"
)

// QuestionRole tags a question so later internal questions can reference its
// answer explicitly instead of guessing from question text.
type QuestionRole string

// RoleGender marks the question that collects the participant's gender.
const RoleGender QuestionRole = "gender"

// AnswerAny is the wildcard branch key applied when no exact-answer rule
// matches. Multi-choice questions branch only through this key.
const AnswerAny = "ANY"

// IsValidQuestionKind checks if the given question kind is supported.
func IsValidQuestionKind(k QuestionKind) bool {
	switch k {
	case QuestionKindSingle, QuestionKindMulti, QuestionKindText,
		QuestionKindPhoto, QuestionKindTerminal, QuestionKindInternal:
		return true
	default:
		return false
	}
}

// QuestionDefinition describes one question as delivered by the definition
// store. It is immutable once compiled into a questionnaire cache.
type QuestionDefinition struct {
	ID            QuestionID   `json:"id" yaml:"id"`
	Text          string       `json:"text" yaml:"text"`
	Kind          QuestionKind `json:"kind" yaml:"kind"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Role          QuestionRole `json:"role,omitempty" yaml:"role,omitempty"`
	DependsOnRole QuestionRole `json:"depends_on_role,omitempty" yaml:"depends_on_role,omitempty"`
}

// BranchRuleDefinition maps (question, answer-or-wildcard) to the next
// question. A nil NextQuestionID means "end of questionnaire".
type BranchRuleDefinition struct {
	QuestionID     QuestionID  `json:"question_id" yaml:"question_id"`
	Answer         string      `json:"answer" yaml:"answer"`
	NextQuestionID *QuestionID `json:"next_question_id,omitempty" yaml:"next_question_id,omitempty"`
}

// QuestionnaireDefinition is the raw form of one questionnaire as read from
// the definition store, before compilation into a cache.
type QuestionnaireDefinition struct {
	Name string `json:"name" yaml:"name"`
	// StartQuestionID optionally designates the entry question. When nil the
	// entry point is inferred as the unique question no rule targets.
	StartQuestionID *QuestionID          `json:"start_question_id,omitempty" yaml:"start_question_id,omitempty"`
	Questions       []QuestionDefinition `json:"questions" yaml:"questions"`
	Rules           []BranchRuleDefinition `json:"rules" yaml:"rules"`
}

// Validate performs shape validation on a questionnaire definition. Structural
// checks that need the compiled branch table (dangling targets, ambiguous
// start, termination) are done at cache build time.
func (d *QuestionnaireDefinition) Validate() error {
	if d.Name == "" {
		return &DefinitionError{Questionnaire: d.Name, Detail: "questionnaire name is empty"}
	}
	if len(d.Questions) == 0 {
		return &DefinitionError{Questionnaire: d.Name, Detail: "questionnaire has no questions"}
	}
	for _, q := range d.Questions {
		if q.Text == "" && q.Kind != QuestionKindInternal {
			return &DefinitionError{Questionnaire: d.Name, Detail: fmt.Sprintf("question %d has empty text", q.ID)}
		}
		if !IsValidQuestionKind(q.Kind) {
			return &DefinitionError{Questionnaire: d.Name, Detail: fmt.Sprintf("question %d has unknown kind %q", q.ID, q.Kind)}
		}
		switch q.Kind {
		case QuestionKindSingle, QuestionKindMulti:
			if len(q.Options) == 0 {
				return &DefinitionError{Questionnaire: d.Name, Detail: fmt.Sprintf("choice question %d has no options", q.ID)}
			}
		default:
			if len(q.Options) != 0 {
				return &DefinitionError{Questionnaire: d.Name, Detail: fmt.Sprintf("question %d of kind %q must not carry options", q.ID, q.Kind)}
			}
		}
		if q.Kind == QuestionKindInternal && q.DependsOnRole == "" {
			return &DefinitionError{Questionnaire: d.Name, Detail: fmt.Sprintf("internal question %d does not declare depends_on_role", q.ID)}
		}
		if q.Kind != QuestionKindInternal && q.DependsOnRole != "" {
			return &DefinitionError{Questionnaire: d.Name, Detail: fmt.Sprintf("question %d declares depends_on_role but is not internal", q.ID)}
		}
	}
	return nil
}
