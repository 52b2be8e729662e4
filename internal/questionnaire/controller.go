package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// Controller orchestrates questionnaire traversal per session: showing
// questions, recording answers, backward navigation, multi-select scratch
// state, and chaining to the next pending questionnaire on completion.
//
// Every public operation takes the per-session lock, so duplicate events for
// one session (double-tap submissions) are processed serially. Caches are
// immutable and read lock-free.
type Controller struct {
	registry *Registry
	sessions SessionStore
	answers  AnswerRecorder
	locks    *keyedMutex
}

// ControllerOption configures optional controller collaborators.
type ControllerOption func(*Controller)

// WithAnswerRecorder attaches a durable sink for submitted answers.
func WithAnswerRecorder(r AnswerRecorder) ControllerOption {
	return func(c *Controller) { c.answers = r }
}

// NewController creates a flow controller over a cache registry and a session
// store.
func NewController(registry *Registry, sessions SessionStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		registry: registry,
		sessions: sessions,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a questionnaire for a session, creating the session if it does
// not exist yet. History and answers start empty; the pending queue survives
// so callers can seed it before starting the first questionnaire.
func (c *Controller) Start(ctx context.Context, sessionID, name string) (*models.RenderSpec, error) {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller Start", "sessionID", sessionID, "questionnaire", name)

	sess, err := c.sessions.LoadSession(ctx, sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		sess = models.NewSessionState(sessionID)
	} else if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	spec, err := c.startQuestionnaire(ctx, sess, name, false)
	if err != nil {
		return nil, err
	}
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return spec, nil
}

// SubmitAnswer records the answer to the current question and advances the
// session. For multi-choice questions the submitted value is the frozen
// pending selection and the value argument is ignored. A terminal or null
// branch target finishes the questionnaire and triggers chaining.
func (c *Controller) SubmitAnswer(ctx context.Context, sessionID, value string) (*models.RenderSpec, error) {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller SubmitAnswer", "sessionID", sessionID)

	sess, err := c.loadAwaiting(ctx, sessionID, "SubmitAnswer")
	if err != nil {
		return nil, err
	}
	cache, err := c.registry.Lookup(sess.ActiveQuestionnaire)
	if err != nil {
		return nil, c.safeFinish(ctx, sess, err)
	}
	q, ok := cache.Question(sess.CurrentQuestionID)
	if !ok {
		return nil, c.safeFinish(ctx, sess, fmt.Errorf("current question %d in questionnaire %q: %w",
			sess.CurrentQuestionID, cache.Name(), models.ErrQuestionNotFound))
	}

	var answer models.AnswerValue
	logicKey := value
	switch q.Kind {
	case models.QuestionKindSingle:
		if !optionOf(q, value) {
			return nil, &models.SessionStateError{SessionID: sessionID, Op: "SubmitAnswer",
				Detail: fmt.Sprintf("%q is not an option of question %d", value, q.ID)}
		}
		answer = models.SingleAnswer(value)
	case models.QuestionKindMulti:
		answer = models.MultiAnswer(sess.PendingMulti[q.ID])
		delete(sess.PendingMulti, q.ID)
		logicKey = models.AnswerAny
	case models.QuestionKindText, models.QuestionKindPhoto:
		if value == "" {
			return nil, &models.SessionStateError{SessionID: sessionID, Op: "SubmitAnswer",
				Detail: fmt.Sprintf("question %d expects a non-empty answer", q.ID)}
		}
		answer = models.SingleAnswer(value)
	default:
		return nil, &models.SessionStateError{SessionID: sessionID, Op: "SubmitAnswer",
			Detail: fmt.Sprintf("question %d of kind %q cannot be answered", q.ID, q.Kind)}
	}

	c.recordAnswer(ctx, sess, q, answer)

	next, err := Resolve(cache, q.ID, logicKey)
	if err != nil {
		return nil, c.safeFinish(ctx, sess, err)
	}
	spec, err := c.advance(ctx, sess, cache, next)
	if err != nil {
		return nil, err
	}
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return spec, nil
}

// ToggleMultiOption flips membership of an option in the pending selection of
// the current multi-choice question. The session stays on the same question;
// the presentation layer re-renders it with updated checkmarks.
func (c *Controller) ToggleMultiOption(ctx context.Context, sessionID, option string) (*models.RenderSpec, error) {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller ToggleMultiOption", "sessionID", sessionID, "option", option)

	sess, err := c.loadAwaiting(ctx, sessionID, "ToggleMultiOption")
	if err != nil {
		return nil, err
	}
	cache, err := c.registry.Lookup(sess.ActiveQuestionnaire)
	if err != nil {
		return nil, c.safeFinish(ctx, sess, err)
	}
	q, ok := cache.Question(sess.CurrentQuestionID)
	if !ok {
		return nil, c.safeFinish(ctx, sess, fmt.Errorf("current question %d: %w", sess.CurrentQuestionID, models.ErrQuestionNotFound))
	}
	if q.Kind != models.QuestionKindMulti {
		return nil, &models.SessionStateError{SessionID: sessionID, Op: "ToggleMultiOption",
			Detail: fmt.Sprintf("question %d is %q, not multi-choice", q.ID, q.Kind)}
	}
	if !optionOf(q, option) {
		return nil, &models.SessionStateError{SessionID: sessionID, Op: "ToggleMultiOption",
			Detail: fmt.Sprintf("%q is not an option of question %d", option, q.ID)}
	}

	if sess.PendingMulti == nil {
		sess.PendingMulti = make(map[models.QuestionID][]string)
	}
	sess.PendingMulti[q.ID] = toggle(sess.PendingMulti[q.ID], option)
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return c.render(sess, q), nil
}

// GoBack returns the session to the most recently answered question,
// discarding its recorded answer so re-answering it updates later conditional
// branches. At the start of history this is a reported no-op, not an error.
func (c *Controller) GoBack(ctx context.Context, sessionID string) (*models.RenderSpec, error) {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller GoBack", "sessionID", sessionID)

	sess, err := c.loadAwaiting(ctx, sessionID, "GoBack")
	if err != nil {
		return nil, err
	}
	cache, err := c.registry.Lookup(sess.ActiveQuestionnaire)
	if err != nil {
		return nil, c.safeFinish(ctx, sess, err)
	}

	if len(sess.History) == 0 {
		q, ok := cache.Question(sess.CurrentQuestionID)
		if !ok {
			return nil, c.safeFinish(ctx, sess, fmt.Errorf("current question %d: %w", sess.CurrentQuestionID, models.ErrQuestionNotFound))
		}
		spec := c.render(sess, q)
		spec.CannotGoBack = true
		return spec, nil
	}

	prev := sess.History[len(sess.History)-1]
	sess.History = sess.History[:len(sess.History)-1]
	delete(sess.Answers, prev)
	delete(sess.PendingMulti, prev)
	for role, id := range sess.AnsweredRoles {
		if id == prev {
			delete(sess.AnsweredRoles, role)
		}
	}
	sess.CurrentQuestionID = prev

	q, ok := cache.Question(prev)
	if !ok {
		return nil, c.safeFinish(ctx, sess, fmt.Errorf("previous question %d: %w", prev, models.ErrQuestionNotFound))
	}
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return c.render(sess, q), nil
}

// Finish consumes the pending queue after the active questionnaire completed:
// it starts the next pending questionnaire, or signals that all questionnaires
// are complete and the caller should hand off to booking.
func (c *Controller) Finish(ctx context.Context, sessionID string) (*models.RenderSpec, error) {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller Finish", "sessionID", sessionID)

	sess, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusFinished {
		return nil, &models.SessionStateError{SessionID: sessionID, Op: "Finish",
			Detail: fmt.Sprintf("questionnaire %q is still active", sess.ActiveQuestionnaire)}
	}
	spec, err := c.chainNext(ctx, sess, "")
	if err != nil {
		return nil, err
	}
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return spec, nil
}

// EnqueueQuestionnaire appends a questionnaire to the session's pending queue.
// Appends are only permitted while a questionnaire is active; an append after
// the session finished is a definition error. Re-enqueueing a questionnaire
// already queued, active, or completed is a logged no-op.
func (c *Controller) EnqueueQuestionnaire(ctx context.Context, sessionID, name string) error {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller EnqueueQuestionnaire", "sessionID", sessionID, "questionnaire", name)

	sess, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case models.SessionStatusFinished:
		return &models.DefinitionError{Questionnaire: name,
			Detail: fmt.Sprintf("queue append after session %s finished", sessionID)}
	case models.SessionStatusNotStarted:
		return &models.SessionStateError{SessionID: sessionID, Op: "EnqueueQuestionnaire",
			Detail: "no questionnaire is active"}
	}
	if _, err := c.registry.Lookup(name); err != nil {
		return err
	}
	if sess.ActiveQuestionnaire == name || sess.IsQueued(name) || sess.HasCompleted(name) {
		slog.Debug("EnqueueQuestionnaire no-op", "sessionID", sessionID, "questionnaire", name)
		return nil
	}
	sess.PendingQueue = append(sess.PendingQueue, name)
	return c.save(ctx, sess)
}

// SeedQueue replaces the pending queue of a not-yet-started session, used to
// translate a paid tariff into the questionnaires owed to the user.
func (c *Controller) SeedQueue(ctx context.Context, sessionID string, names []string) error {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller SeedQueue", "sessionID", sessionID, "queue", names)

	sess, err := c.sessions.LoadSession(ctx, sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		sess = models.NewSessionState(sessionID)
	} else if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	for _, name := range names {
		if _, err := c.registry.Lookup(name); err != nil {
			return err
		}
	}
	sess.PendingQueue = append([]string(nil), names...)
	return c.save(ctx, sess)
}

// AnswerByRole returns the recorded answer for a role-tagged question, e.g.
// the gender answer used to pick a gender-specific questionnaire.
func (c *Controller) AnswerByRole(ctx context.Context, sessionID string, role models.QuestionRole) (models.AnswerValue, bool, error) {
	unlock := c.lock(sessionID)
	defer unlock()

	sess, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return models.AnswerValue{}, false, err
	}
	id, ok := sess.AnsweredRoles[role]
	if !ok {
		return models.AnswerValue{}, false, nil
	}
	answer, ok := sess.Answers[id]
	return answer, ok, nil
}

// Current re-renders the question the session is waiting on without changing
// any state. The presentation layer uses it to redraw after a restart or to
// resolve an option index from a tapped button.
func (c *Controller) Current(ctx context.Context, sessionID string) (*models.RenderSpec, error) {
	unlock := c.lock(sessionID)
	defer unlock()

	sess, err := c.loadAwaiting(ctx, sessionID, "Current")
	if err != nil {
		return nil, err
	}
	cache, err := c.registry.Lookup(sess.ActiveQuestionnaire)
	if err != nil {
		return nil, c.safeFinish(ctx, sess, err)
	}
	q, ok := cache.Question(sess.CurrentQuestionID)
	if !ok {
		return nil, c.safeFinish(ctx, sess, fmt.Errorf("current question %d: %w", sess.CurrentQuestionID, models.ErrQuestionNotFound))
	}
	return c.render(sess, q), nil
}

// Reset abandons the session, clearing all traversal state.
func (c *Controller) Reset(ctx context.Context, sessionID string) error {
	unlock := c.lock(sessionID)
	defer unlock()
	slog.Debug("Controller Reset", "sessionID", sessionID)
	return c.sessions.DeleteSession(ctx, sessionID)
}

// startQuestionnaire switches the session onto a questionnaire. keepAnswers
// carries collected answers forward across a chained questionnaire; a fresh
// Start wipes them.
func (c *Controller) startQuestionnaire(ctx context.Context, sess *models.SessionState, name string, keepAnswers bool) (*models.RenderSpec, error) {
	cache, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	sess.ActiveQuestionnaire = name
	sess.Status = models.SessionStatusAwaitingAnswer
	sess.History = nil
	sess.PendingMulti = make(map[models.QuestionID][]string)
	if !keepAnswers || sess.Answers == nil {
		sess.Answers = make(map[models.QuestionID]models.AnswerValue)
		sess.AnsweredRoles = make(map[models.QuestionRole]models.QuestionID)
	}

	start := cache.StartQuestionID()
	return c.advance(ctx, sess, cache, &start)
}

// advance lands the session on the next question: it resolves internal
// questions against historical answers without rendering them, finishes the
// questionnaire on a terminal or null target, and otherwise awaits the answer.
func (c *Controller) advance(ctx context.Context, sess *models.SessionState, cache *Cache, next *models.QuestionID) (*models.RenderSpec, error) {
	next, err := c.skipInternal(sess, cache, next)
	if err != nil {
		return nil, c.safeFinish(ctx, sess, err)
	}
	if next == nil {
		return c.finishActive(ctx, sess, "")
	}
	q, ok := cache.Question(*next)
	if !ok {
		return nil, c.safeFinish(ctx, sess, fmt.Errorf("branch target %d: %w", *next, models.ErrQuestionNotFound))
	}
	if q.Kind == models.QuestionKindTerminal {
		return c.finishActive(ctx, sess, q.Text)
	}
	sess.CurrentQuestionID = q.ID
	return c.render(sess, q), nil
}

// skipInternal re-resolves internal questions against the stored historical
// answer for their declared role until a renderable question (or the end of
// the questionnaire) is reached. Internal questions are never shown and never
// enter history.
func (c *Controller) skipInternal(sess *models.SessionState, cache *Cache, next *models.QuestionID) (*models.QuestionID, error) {
	for steps := 0; next != nil; steps++ {
		if steps > cache.Len() {
			return nil, defErr(cache.Name(), "internal question cycle detected")
		}
		q, ok := cache.Question(*next)
		if !ok {
			return nil, fmt.Errorf("branch target %d: %w", *next, models.ErrQuestionNotFound)
		}
		if q.Kind != models.QuestionKindInternal {
			return next, nil
		}
		sourceID, ok := sess.AnsweredRoles[q.DependsOnRole]
		if !ok {
			return nil, defErr(cache.Name(), fmt.Sprintf(
				"internal question %d depends on role %q but no answer recorded it", q.ID, q.DependsOnRole))
		}
		historical, ok := sess.Answers[sourceID]
		if !ok {
			return nil, defErr(cache.Name(), fmt.Sprintf(
				"internal question %d: role %q points at question %d with no stored answer", q.ID, q.DependsOnRole, sourceID))
		}
		resolved, err := Resolve(cache, q.ID, historical.Text)
		if err != nil {
			return nil, err
		}
		slog.Debug("Internal question resolved", "questionnaire", cache.Name(),
			"question", q.ID, "role", q.DependsOnRole)
		next = resolved
	}
	return nil, nil
}

// finishActive marks the active questionnaire complete and chains to the next
// pending one.
func (c *Controller) finishActive(ctx context.Context, sess *models.SessionState, terminalText string) (*models.RenderSpec, error) {
	sess.Status = models.SessionStatusFinished
	if sess.ActiveQuestionnaire != "" && !sess.HasCompleted(sess.ActiveQuestionnaire) {
		sess.Completed = append(sess.Completed, sess.ActiveQuestionnaire)
	}
	slog.Info("Questionnaire finished", "sessionID", sess.SessionID,
		"questionnaire", sess.ActiveQuestionnaire, "pending", len(sess.PendingQueue))
	return c.chainNext(ctx, sess, terminalText)
}

// chainNext pops the pending queue: starts the next questionnaire if one is
// owed, otherwise signals that all questionnaires are complete.
func (c *Controller) chainNext(ctx context.Context, sess *models.SessionState, terminalText string) (*models.RenderSpec, error) {
	if len(sess.PendingQueue) > 0 {
		name := sess.PendingQueue[0]
		sess.PendingQueue = sess.PendingQueue[1:]
		slog.Info("Chaining to next questionnaire", "sessionID", sess.SessionID, "questionnaire", name)
		spec, err := c.startQuestionnaire(ctx, sess, name, true)
		if errors.Is(err, models.ErrQuestionnaireNotFound) {
			// The queued questionnaire vanished, e.g. a hot reload dropped
			// it. Park the session so the recorded answers survive.
			return nil, c.safeFinish(ctx, sess, err)
		}
		return spec, err
	}
	return &models.RenderSpec{
		SessionID:     sess.SessionID,
		Questionnaire: sess.ActiveQuestionnaire,
		Text:          terminalText,
		Done:          true,
		AllComplete:   true,
	}, nil
}

// recordAnswer stores the answer in session state, tags its role, appends to
// history idempotently, and forwards to the durable recorder when configured.
// Durable write failures are logged, not fatal: the session copy is the
// source of truth for traversal.
func (c *Controller) recordAnswer(ctx context.Context, sess *models.SessionState, q models.QuestionDefinition, answer models.AnswerValue) {
	if sess.Answers == nil {
		sess.Answers = make(map[models.QuestionID]models.AnswerValue)
	}
	sess.Answers[q.ID] = answer
	if q.Role != "" {
		if sess.AnsweredRoles == nil {
			sess.AnsweredRoles = make(map[models.QuestionRole]models.QuestionID)
		}
		sess.AnsweredRoles[q.Role] = q.ID
	}
	if n := len(sess.History); n == 0 || sess.History[n-1] != q.ID {
		sess.History = append(sess.History, q.ID)
	}
	if c.answers != nil {
		record := models.Answer{
			SessionID:     sess.SessionID,
			Questionnaire: sess.ActiveQuestionnaire,
			QuestionID:    q.ID,
			Value:         answer,
			CreatedAt:     time.Now(),
		}
		if err := c.answers.RecordAnswer(ctx, record); err != nil {
			slog.Warn("Durable answer write failed", "sessionID", sess.SessionID, "questionID", q.ID, "error", err)
		}
	}
}

// safeFinish parks the session in a recoverable Finished state after a lookup
// or definition failure, so the surrounding session can be reset instead of
// the process crashing mid-traversal.
func (c *Controller) safeFinish(ctx context.Context, sess *models.SessionState, cause error) error {
	sess.Status = models.SessionStatusFinished
	if err := c.sessions.SaveSession(ctx, sess); err != nil {
		slog.Error("safeFinish save failed", "sessionID", sess.SessionID, "error", err)
	}
	slog.Error("Flow moved to safe finished state", "sessionID", sess.SessionID, "error", cause)
	return fmt.Errorf("session %s moved to finished state: %w", sess.SessionID, cause)
}

func (c *Controller) render(sess *models.SessionState, q models.QuestionDefinition) *models.RenderSpec {
	spec := &models.RenderSpec{
		SessionID:     sess.SessionID,
		Questionnaire: sess.ActiveQuestionnaire,
		QuestionID:    q.ID,
		Text:          q.Text,
		Multi:         q.Kind == models.QuestionKindMulti,
		AwaitText:     q.Kind == models.QuestionKindText,
		AwaitPhoto:    q.Kind == models.QuestionKindPhoto,
		CanGoBack:     len(sess.History) > 0,
	}
	if len(q.Options) > 0 {
		spec.Options = append([]string(nil), q.Options...)
	}
	if selected := sess.PendingMulti[q.ID]; len(selected) > 0 {
		spec.Selected = append([]string(nil), selected...)
	}
	return spec
}

func (c *Controller) loadSession(ctx context.Context, sessionID string) (*models.SessionState, error) {
	sess, err := c.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return sess, nil
}

// loadAwaiting loads a session and rejects operations outside AwaitingAnswer,
// leaving the session unchanged.
func (c *Controller) loadAwaiting(ctx context.Context, sessionID, op string) (*models.SessionState, error) {
	sess, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusAwaitingAnswer {
		return nil, &models.SessionStateError{SessionID: sessionID, Op: op,
			Detail: fmt.Sprintf("session is %s, not awaiting an answer", sess.Status)}
	}
	return sess, nil
}

func (c *Controller) save(ctx context.Context, sess *models.SessionState) error {
	sess.UpdatedAt = time.Now()
	if err := c.sessions.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (c *Controller) lock(sessionID string) func() {
	return c.locks.acquire(sessionID)
}

func optionOf(q models.QuestionDefinition, value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// toggle flips membership of option in the selection, preserving the order of
// the remaining entries. Toggling twice restores the original contents.
func toggle(selection []string, option string) []string {
	for i, s := range selection {
		if s == option {
			return append(selection[:i], selection[i+1:]...)
		}
	}
	return append(selection, option)
}
