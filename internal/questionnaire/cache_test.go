package questionnaire

import (
	"errors"
	"testing"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

func qid(n int64) *models.QuestionID {
	id := models.QuestionID(n)
	return &id
}

// linearDef is a minimal valid questionnaire: one single-choice question
// leading to a terminal.
func linearDef() models.QuestionnaireDefinition {
	return models.QuestionnaireDefinition{
		Name: "intake",
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "Do you smoke?", Kind: models.QuestionKindSingle, Options: []string{"Yes", "No"}},
			{ID: 2, Text: "Thanks, all done.", Kind: models.QuestionKindTerminal},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: qid(2)},
		},
	}
}

func TestBuildCache_InfersStart(t *testing.T) {
	c, err := BuildCache(linearDef())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.StartQuestionID() != 1 {
		t.Errorf("expected inferred start 1, got %d", c.StartQuestionID())
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 compiled questions, got %d", c.Len())
	}
}

func TestBuildCache_ExplicitStart(t *testing.T) {
	def := linearDef()
	def.StartQuestionID = qid(1)
	c, err := BuildCache(def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.StartQuestionID() != 1 {
		t.Errorf("expected start 1, got %d", c.StartQuestionID())
	}
}

func TestBuildCache_ExplicitStartMissing(t *testing.T) {
	def := linearDef()
	def.StartQuestionID = qid(99)
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for missing start, got %v", err)
	}
}

func TestBuildCache_DuplicateQuestionID(t *testing.T) {
	def := linearDef()
	def.Questions = append(def.Questions, models.QuestionDefinition{
		ID: 1, Text: "Duplicate", Kind: models.QuestionKindText,
	})
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for duplicate id, got %v", err)
	}
}

func TestBuildCache_RuleOnUnknownQuestion(t *testing.T) {
	def := linearDef()
	def.Rules = append(def.Rules, models.BranchRuleDefinition{
		QuestionID: 42, Answer: models.AnswerAny, NextQuestionID: qid(2),
	})
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for rule on unknown question, got %v", err)
	}
}

func TestBuildCache_DanglingRuleTarget(t *testing.T) {
	def := linearDef()
	def.Rules[0].NextQuestionID = qid(42)
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for dangling target, got %v", err)
	}
}

func TestBuildCache_TerminalWithOutgoingRule(t *testing.T) {
	def := linearDef()
	def.Rules = append(def.Rules, models.BranchRuleDefinition{
		QuestionID: 2, Answer: models.AnswerAny, NextQuestionID: qid(1),
	})
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for terminal with rules, got %v", err)
	}
}

func TestBuildCache_MultiNonWildcardRule(t *testing.T) {
	def := models.QuestionnaireDefinition{
		Name: "intake",
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "Pick symptoms", Kind: models.QuestionKindMulti, Options: []string{"A", "B"}},
			{ID: 2, Text: "Done.", Kind: models.QuestionKindTerminal},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: "A", NextQuestionID: qid(2)},
		},
	}
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for non-wildcard multi rule, got %v", err)
	}
}

func TestBuildCache_DuplicateRule(t *testing.T) {
	def := linearDef()
	def.Rules = append(def.Rules, models.BranchRuleDefinition{
		QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: qid(2),
	})
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for duplicate rule, got %v", err)
	}
}

func TestBuildCache_AmbiguousStart(t *testing.T) {
	def := models.QuestionnaireDefinition{
		Name: "intake",
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "First?", Kind: models.QuestionKindText},
			{ID: 2, Text: "Also first?", Kind: models.QuestionKindText},
			{ID: 3, Text: "Done.", Kind: models.QuestionKindTerminal},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: qid(3)},
			{QuestionID: 2, Answer: models.AnswerAny, NextQuestionID: qid(3)},
		},
	}
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for ambiguous start, got %v", err)
	}
}

func TestBuildCache_ReachableDeadEnd(t *testing.T) {
	def := models.QuestionnaireDefinition{
		Name: "intake",
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "First?", Kind: models.QuestionKindText},
			{ID: 2, Text: "No way out", Kind: models.QuestionKindText},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: qid(2)},
		},
	}
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for dead-end question, got %v", err)
	}
}

func TestBuildCache_InescapableCycle(t *testing.T) {
	def := models.QuestionnaireDefinition{
		Name:            "intake",
		StartQuestionID: qid(1),
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "Ping", Kind: models.QuestionKindText},
			{ID: 2, Text: "Pong", Kind: models.QuestionKindText},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: qid(2)},
			{QuestionID: 2, Answer: models.AnswerAny, NextQuestionID: qid(1)},
		},
	}
	if _, err := BuildCache(def); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for inescapable cycle, got %v", err)
	}
}

func TestBuildCache_CycleWithExitAllowed(t *testing.T) {
	// Going back and forth is fine as long as an exit exists.
	def := models.QuestionnaireDefinition{
		Name:            "intake",
		StartQuestionID: qid(1),
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "Continue?", Kind: models.QuestionKindSingle, Options: []string{"Again", "Stop"}},
			{ID: 2, Text: "Looping back", Kind: models.QuestionKindText},
			{ID: 3, Text: "Done.", Kind: models.QuestionKindTerminal},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: "Again", NextQuestionID: qid(2)},
			{QuestionID: 1, Answer: "Stop", NextQuestionID: qid(3)},
			{QuestionID: 2, Answer: models.AnswerAny, NextQuestionID: qid(1)},
		},
	}
	if _, err := BuildCache(def); err != nil {
		t.Errorf("cycle with exit should build, got %v", err)
	}
}

func TestBuildCache_NullTargetCountsAsExit(t *testing.T) {
	def := models.QuestionnaireDefinition{
		Name: "intake",
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "Anything else?", Kind: models.QuestionKindText},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: nil},
		},
	}
	if _, err := BuildCache(def); err != nil {
		t.Errorf("null branch target should count as an exit, got %v", err)
	}
}
