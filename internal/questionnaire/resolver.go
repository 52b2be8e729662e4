package questionnaire

import (
	"fmt"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// Resolve maps (current question, submitted answer) to the next question id
// using the compiled branch table. An exact answer match always wins over the
// ANY wildcard. A nil result with nil error means "end of questionnaire".
//
// Multi-choice questions are resolved with the wildcard key, never with the
// literal selection; the selection contents stay in session answers for later
// conditional branching but do not themselves pick the branch.
func Resolve(c *Cache, id models.QuestionID, answer string) (*models.QuestionID, error) {
	rules, ok := c.branches[id]
	if !ok {
		return nil, fmt.Errorf("question %d in questionnaire %q has no branch table: %w", id, c.name, models.ErrNoRoute)
	}
	if next, ok := rules[answer]; ok {
		return copyID(next), nil
	}
	if next, ok := rules[models.AnswerAny]; ok {
		return copyID(next), nil
	}
	return nil, fmt.Errorf("question %d in questionnaire %q has no rule for answer %q: %w", id, c.name, answer, models.ErrNoRoute)
}

// copyID keeps callers from aliasing the cache's interned pointers.
func copyID(id *models.QuestionID) *models.QuestionID {
	if id == nil {
		return nil
	}
	out := *id
	return &out
}
