// Package questionnaire implements the branching questionnaire engine: the
// compiled questionnaire cache, the cache registry, the branch resolver, and
// the per-session flow controller.
package questionnaire

import (
	"fmt"
	"log/slog"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// Cache is the immutable, compiled in-memory form of one questionnaire. It is
// built once from a definition, shared lock-free across all sessions, and
// replaced wholesale on reload, never mutated in place.
type Cache struct {
	name      string
	questions map[models.QuestionID]models.QuestionDefinition
	branches  map[models.QuestionID]map[string]*models.QuestionID
	startID   models.QuestionID
}

// Name returns the questionnaire name the cache was built for.
func (c *Cache) Name() string { return c.name }

// StartQuestionID returns the entry question of the questionnaire.
func (c *Cache) StartQuestionID() models.QuestionID { return c.startID }

// Question returns the question for an id, if present.
func (c *Cache) Question(id models.QuestionID) (models.QuestionDefinition, bool) {
	q, ok := c.questions[id]
	return q, ok
}

// Len returns the number of compiled questions.
func (c *Cache) Len() int { return len(c.questions) }

// BuildCache compiles a questionnaire definition into an immutable cache.
// It fails with a DefinitionError when a question id is duplicated, a branch
// rule references a missing question, a multi-choice question defines a
// non-wildcard rule, no unambiguous start question can be determined, or a
// reachable question cannot reach the end of the questionnaire.
func BuildCache(def models.QuestionnaireDefinition) (*Cache, error) {
	slog.Debug("BuildCache invoked", "questionnaire", def.Name, "questions", len(def.Questions), "rules", len(def.Rules))
	if err := def.Validate(); err != nil {
		slog.Error("BuildCache definition invalid", "questionnaire", def.Name, "error", err)
		return nil, err
	}

	c := &Cache{
		name:      def.Name,
		questions: make(map[models.QuestionID]models.QuestionDefinition, len(def.Questions)),
		branches:  make(map[models.QuestionID]map[string]*models.QuestionID),
	}

	for _, q := range def.Questions {
		if _, dup := c.questions[q.ID]; dup {
			return nil, defErr(def.Name, fmt.Sprintf("duplicate question id %d", q.ID))
		}
		c.questions[q.ID] = q
	}

	targeted := make(map[models.QuestionID]bool)
	for _, r := range def.Rules {
		src, ok := c.questions[r.QuestionID]
		if !ok {
			return nil, defErr(def.Name, fmt.Sprintf("branch rule on unknown question %d", r.QuestionID))
		}
		if src.Kind == models.QuestionKindTerminal {
			return nil, defErr(def.Name, fmt.Sprintf("terminal question %d must not have outgoing rules", r.QuestionID))
		}
		if src.Kind == models.QuestionKindMulti && r.Answer != models.AnswerAny {
			return nil, defErr(def.Name, fmt.Sprintf("multi-choice question %d defines non-wildcard rule %q", r.QuestionID, r.Answer))
		}
		if r.NextQuestionID != nil {
			if _, ok := c.questions[*r.NextQuestionID]; !ok {
				return nil, defErr(def.Name, fmt.Sprintf("branch rule on question %d targets missing question %d", r.QuestionID, *r.NextQuestionID))
			}
			targeted[*r.NextQuestionID] = true
		}
		rules := c.branches[r.QuestionID]
		if rules == nil {
			rules = make(map[string]*models.QuestionID)
			c.branches[r.QuestionID] = rules
		}
		if _, dup := rules[r.Answer]; dup {
			return nil, defErr(def.Name, fmt.Sprintf("duplicate branch rule (%d, %q)", r.QuestionID, r.Answer))
		}
		if r.NextQuestionID != nil {
			next := *r.NextQuestionID
			rules[r.Answer] = &next
		} else {
			rules[r.Answer] = nil
		}
	}

	startID, err := resolveStart(def, c, targeted)
	if err != nil {
		return nil, err
	}
	c.startID = startID

	if err := c.checkTermination(); err != nil {
		return nil, err
	}

	slog.Debug("BuildCache succeeded", "questionnaire", def.Name, "start", c.startID, "questions", len(c.questions))
	return c, nil
}

// resolveStart returns the designated start question, or infers it as the
// unique question no branch rule targets.
func resolveStart(def models.QuestionnaireDefinition, c *Cache, targeted map[models.QuestionID]bool) (models.QuestionID, error) {
	if def.StartQuestionID != nil {
		if _, ok := c.questions[*def.StartQuestionID]; !ok {
			return 0, defErr(def.Name, fmt.Sprintf("designated start question %d does not exist", *def.StartQuestionID))
		}
		return *def.StartQuestionID, nil
	}
	var candidates []models.QuestionID
	for id := range c.questions {
		if !targeted[id] {
			candidates = append(candidates, id)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return 0, defErr(def.Name, "no start question: every question is a branch target")
	default:
		return 0, defErr(def.Name, fmt.Sprintf("ambiguous start question: %d candidates with no incoming rule", len(candidates)))
	}
}

// checkTermination verifies that every question reachable from the start can
// reach a terminal question or a null branch target, and that every reachable
// non-terminal question has at least one outgoing rule.
func (c *Cache) checkTermination() error {
	reachable := map[models.QuestionID]bool{c.startID: true}
	queue := []models.QuestionID{c.startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		q := c.questions[id]
		if q.Kind == models.QuestionKindTerminal {
			continue
		}
		rules, ok := c.branches[id]
		if !ok || len(rules) == 0 {
			return defErr(c.name, fmt.Sprintf("reachable question %d has no branch rules and is not terminal", id))
		}
		for _, next := range rules {
			if next == nil || reachable[*next] {
				continue
			}
			reachable[*next] = true
			queue = append(queue, *next)
		}
	}

	// Fixpoint over the reachable subgraph: a question can finish when it is
	// terminal, has a null target, or branches to a question that can finish.
	canFinish := make(map[models.QuestionID]bool)
	for changed := true; changed; {
		changed = false
		for id := range reachable {
			if canFinish[id] {
				continue
			}
			q := c.questions[id]
			if q.Kind == models.QuestionKindTerminal {
				canFinish[id] = true
				changed = true
				continue
			}
			for _, next := range c.branches[id] {
				if next == nil || canFinish[*next] {
					canFinish[id] = true
					changed = true
					break
				}
			}
		}
	}
	for id := range reachable {
		if !canFinish[id] {
			return defErr(c.name, fmt.Sprintf("question %d cannot reach the end of the questionnaire", id))
		}
	}
	return nil
}

func defErr(name, detail string) error {
	return &models.DefinitionError{Questionnaire: name, Detail: detail}
}
