package questionnaire

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/session"
)

// healthDef exercises every question kind: a role-tagged gender question, an
// exact-answer branch, a multi-choice question, and an internal question that
// routes by the historical gender answer.
func healthDef() models.QuestionnaireDefinition {
	return models.QuestionnaireDefinition{
		Name:            "health",
		StartQuestionID: qid(1),
		Questions: []models.QuestionDefinition{
			{ID: 1, Text: "Your gender?", Kind: models.QuestionKindSingle, Options: []string{"Male", "Female"}, Role: models.RoleGender},
			{ID: 2, Text: "Chronic conditions?", Kind: models.QuestionKindSingle, Options: []string{"Yes", "No"}},
			{ID: 3, Text: "Describe them.", Kind: models.QuestionKindText},
			{ID: 4, Text: "Current complaints?", Kind: models.QuestionKindMulti, Options: []string{"Sleep", "Digestion", "Headaches"}},
			{ID: 5, Kind: models.QuestionKindInternal, DependsOnRole: models.RoleGender},
			{ID: 6, Text: "How often do you exercise?", Kind: models.QuestionKindSingle, Options: []string{"Often", "Rarely"}},
			{ID: 7, Text: "Is your cycle regular?", Kind: models.QuestionKindSingle, Options: []string{"Yes", "No"}},
			{ID: 8, Text: "All done, thank you!", Kind: models.QuestionKindTerminal},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 1, Answer: models.AnswerAny, NextQuestionID: qid(2)},
			{QuestionID: 2, Answer: "Yes", NextQuestionID: qid(3)},
			{QuestionID: 2, Answer: "No", NextQuestionID: qid(4)},
			{QuestionID: 3, Answer: models.AnswerAny, NextQuestionID: qid(4)},
			{QuestionID: 4, Answer: models.AnswerAny, NextQuestionID: qid(5)},
			{QuestionID: 5, Answer: "Male", NextQuestionID: qid(6)},
			{QuestionID: 5, Answer: "Female", NextQuestionID: qid(7)},
			{QuestionID: 6, Answer: models.AnswerAny, NextQuestionID: qid(8)},
			{QuestionID: 7, Answer: models.AnswerAny, NextQuestionID: qid(8)},
		},
	}
}

func extraDef() models.QuestionnaireDefinition {
	return models.QuestionnaireDefinition{
		Name:            "extra",
		StartQuestionID: qid(10),
		Questions: []models.QuestionDefinition{
			{ID: 10, Text: "Cold hands and feet?", Kind: models.QuestionKindSingle, Options: []string{"Yes", "No"}},
			{ID: 11, Text: "Extra questionnaire complete.", Kind: models.QuestionKindTerminal},
		},
		Rules: []models.BranchRuleDefinition{
			{QuestionID: 10, Answer: models.AnswerAny, NextQuestionID: qid(11)},
		},
	}
}

func newTestController(t *testing.T, opts ...ControllerOption) (*Controller, *Registry, *session.InMemoryStore) {
	t.Helper()
	r := NewRegistry()
	src := &stubSource{defs: []models.QuestionnaireDefinition{healthDef(), extraDef()}}
	if err := r.Load(context.Background(), src); err != nil {
		t.Fatalf("loading registry: %v", err)
	}
	sessions := session.NewInMemoryStore()
	return NewController(r, sessions, opts...), r, sessions
}

func mustSubmit(t *testing.T, c *Controller, sessionID, value string) *models.RenderSpec {
	t.Helper()
	spec, err := c.SubmitAnswer(context.Background(), sessionID, value)
	if err != nil {
		t.Fatalf("SubmitAnswer(%q): %v", value, err)
	}
	return spec
}

func TestStart_RendersFirstQuestion(t *testing.T) {
	c, _, _ := newTestController(t)
	spec, err := c.Start(context.Background(), "s1", "health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.QuestionID != 1 {
		t.Errorf("expected question 1, got %d", spec.QuestionID)
	}
	if spec.CanGoBack {
		t.Error("first question must not offer back navigation")
	}
	if !reflect.DeepEqual(spec.Options, []string{"Male", "Female"}) {
		t.Errorf("unexpected options: %v", spec.Options)
	}
}

func TestStart_UnknownQuestionnaire(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.Start(context.Background(), "s1", "missing"); !errors.Is(err, models.ErrQuestionnaireNotFound) {
		t.Errorf("expected ErrQuestionnaireNotFound, got %v", err)
	}
}

func TestSubmitAnswer_ExactBranchTaken(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.Start(context.Background(), "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	spec := mustSubmit(t, c, "s1", "Yes")
	if spec.QuestionID != 3 {
		t.Errorf("expected exact branch to question 3, got %d", spec.QuestionID)
	}
	if !spec.AwaitText {
		t.Error("question 3 should await free text")
	}
}

func TestSubmitAnswer_InvalidOptionRejected(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.Start(context.Background(), "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := c.SubmitAnswer(context.Background(), "s1", "Other")
	if !errors.Is(err, models.ErrSessionState) {
		t.Fatalf("expected session state error, got %v", err)
	}
	// The rejection must leave the session answerable.
	spec := mustSubmit(t, c, "s1", "Female")
	if spec.QuestionID != 2 {
		t.Errorf("session did not survive invalid submission, at question %d", spec.QuestionID)
	}
}

func TestSubmitAnswer_WithoutSession(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.SubmitAnswer(context.Background(), "ghost", "Yes"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestToggleMultiOption_ToggleAndSubmit(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	mustSubmit(t, c, "s1", "No")

	spec, err := c.ToggleMultiOption(ctx, "s1", "Sleep")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !reflect.DeepEqual(spec.Selected, []string{"Sleep"}) {
		t.Errorf("expected [Sleep], got %v", spec.Selected)
	}
	if spec.QuestionID != 4 {
		t.Errorf("toggling must not advance, got question %d", spec.QuestionID)
	}

	if _, err := c.ToggleMultiOption(ctx, "s1", "Digestion"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// Toggling twice removes the option and preserves the rest.
	spec, err = c.ToggleMultiOption(ctx, "s1", "Sleep")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !reflect.DeepEqual(spec.Selected, []string{"Digestion"}) {
		t.Errorf("expected [Digestion] after re-toggle, got %v", spec.Selected)
	}

	mustSubmit(t, c, "s1", "")
	sess, err := sessions.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	answer := sess.Answers[4]
	if !reflect.DeepEqual(answer.Selections, []string{"Digestion"}) {
		t.Errorf("expected frozen selection [Digestion], got %v", answer.Selections)
	}
	if _, pending := sess.PendingMulti[4]; pending {
		t.Error("pending selection must be cleared on submit")
	}
}

func TestToggleMultiOption_OnSingleChoiceRejected(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.Start(context.Background(), "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.ToggleMultiOption(context.Background(), "s1", "Male"); !errors.Is(err, models.ErrSessionState) {
		t.Errorf("expected session state error, got %v", err)
	}
}

func TestSubmitAnswer_EmptyMultiSelectionAllowed(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	mustSubmit(t, c, "s1", "No")
	spec := mustSubmit(t, c, "s1", "")
	if spec.QuestionID != 6 {
		t.Errorf("expected advance past multi question, got %d", spec.QuestionID)
	}
	sess, _ := sessions.LoadSession(ctx, "s1")
	if got := sess.Answers[4]; len(got.Selections) != 0 {
		t.Errorf("expected empty selection, got %v", got.Selections)
	}
}

func TestInternalQuestion_RoutesByHistoricalAnswer(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	// Male path lands on the exercise question.
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	mustSubmit(t, c, "s1", "No")
	spec := mustSubmit(t, c, "s1", "")
	if spec.QuestionID != 6 {
		t.Errorf("male path: expected question 6, got %d", spec.QuestionID)
	}

	// Female path lands on the cycle question.
	if _, err := c.Start(ctx, "s2", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s2", "Female")
	mustSubmit(t, c, "s2", "No")
	spec = mustSubmit(t, c, "s2", "")
	if spec.QuestionID != 7 {
		t.Errorf("female path: expected question 7, got %d", spec.QuestionID)
	}
}

func TestGoBack_DiscardsAnswerAndReroutes(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	mustSubmit(t, c, "s1", "Yes")

	spec, err := c.GoBack(ctx, "s1")
	if err != nil {
		t.Fatalf("go back: %v", err)
	}
	if spec.QuestionID != 2 {
		t.Errorf("expected to return to question 2, got %d", spec.QuestionID)
	}
	sess, _ := sessions.LoadSession(ctx, "s1")
	if _, kept := sess.Answers[2]; kept {
		t.Error("discarded answer still recorded")
	}

	// Re-answering differently must take the other branch.
	spec = mustSubmit(t, c, "s1", "No")
	if spec.QuestionID != 4 {
		t.Errorf("expected re-answer to route to question 4, got %d", spec.QuestionID)
	}
}

func TestGoBack_AtStartOfHistory(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	before, _ := sessions.LoadSession(ctx, "s1")

	spec, err := c.GoBack(ctx, "s1")
	if err != nil {
		t.Fatalf("go back at start must not error: %v", err)
	}
	if !spec.CannotGoBack {
		t.Error("expected CannotGoBack to be reported")
	}
	if spec.QuestionID != 1 {
		t.Errorf("expected to stay on question 1, got %d", spec.QuestionID)
	}
	after, _ := sessions.LoadSession(ctx, "s1")
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("refused GoBack must not modify the session")
	}
}

func TestGoBack_RemovesRoleTag(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	if _, err := c.GoBack(ctx, "s1"); err != nil {
		t.Fatalf("go back: %v", err)
	}
	sess, _ := sessions.LoadSession(ctx, "s1")
	if _, tagged := sess.AnsweredRoles[models.RoleGender]; tagged {
		t.Error("role tag must be removed with the discarded answer")
	}
}

func TestChaining_CarriesAnswersAcrossQueue(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()

	if err := c.SeedQueue(ctx, "s1", []string{"extra"}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	mustSubmit(t, c, "s1", "No")
	mustSubmit(t, c, "s1", "")
	spec := mustSubmit(t, c, "s1", "Often")

	// The terminal of health chains straight into extra.
	if spec.Done {
		t.Fatal("expected chained questionnaire, got completion")
	}
	if spec.Questionnaire != "extra" || spec.QuestionID != 10 {
		t.Errorf("expected extra question 10, got %s/%d", spec.Questionnaire, spec.QuestionID)
	}

	sess, _ := sessions.LoadSession(ctx, "s1")
	if got := sess.Answers[1].Text; got != "Male" {
		t.Errorf("answers must survive chaining, gender answer = %q", got)
	}
	if !sess.HasCompleted("health") {
		t.Error("health not marked completed")
	}

	spec = mustSubmit(t, c, "s1", "Yes")
	if !spec.Done || !spec.AllComplete {
		t.Errorf("expected all-complete after draining queue, got %+v", spec)
	}
}

func TestEnqueue_AfterFinishIsDefinitionError(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "extra"); err != nil {
		t.Fatalf("start: %v", err)
	}
	spec := mustSubmit(t, c, "s1", "Yes")
	if !spec.Done {
		t.Fatalf("expected completion, got question %d", spec.QuestionID)
	}
	if err := c.EnqueueQuestionnaire(ctx, "s1", "health"); !errors.Is(err, models.ErrDefinition) {
		t.Errorf("expected definition error for append after finish, got %v", err)
	}
}

func TestEnqueue_BeforeStartIsStateError(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	if err := c.SeedQueue(ctx, "s1", []string{"extra"}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if err := c.EnqueueQuestionnaire(ctx, "s1", "health"); !errors.Is(err, models.ErrSessionState) {
		t.Errorf("expected session state error before start, got %v", err)
	}
}

func TestEnqueue_DuplicateIsNoOp(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.EnqueueQuestionnaire(ctx, "s1", "extra"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := c.EnqueueQuestionnaire(ctx, "s1", "extra"); err != nil {
		t.Fatalf("duplicate enqueue must be a no-op: %v", err)
	}
	if err := c.EnqueueQuestionnaire(ctx, "s1", "health"); err != nil {
		t.Fatalf("enqueueing the active questionnaire must be a no-op: %v", err)
	}
	sess, _ := sessions.LoadSession(ctx, "s1")
	if !reflect.DeepEqual(sess.PendingQueue, []string{"extra"}) {
		t.Errorf("expected queue [extra], got %v", sess.PendingQueue)
	}
}

func TestStart_WipesPreviousAnswers(t *testing.T) {
	c, _, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")

	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	sess, _ := sessions.LoadSession(ctx, "s1")
	if len(sess.Answers) != 0 {
		t.Errorf("fresh start must wipe answers, got %v", sess.Answers)
	}
}

func TestSubmitAnswer_ReloadRemovedQuestionnaire(t *testing.T) {
	c, r, sessions := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// A reload drops the active questionnaire out from under the session.
	src := &stubSource{defs: []models.QuestionnaireDefinition{extraDef()}}
	if err := r.Load(ctx, src); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, err := c.SubmitAnswer(ctx, "s1", "Male"); !errors.Is(err, models.ErrQuestionnaireNotFound) {
		t.Fatalf("expected wrapped not-found error, got %v", err)
	}
	sess, _ := sessions.LoadSession(ctx, "s1")
	if sess.Status != models.SessionStatusFinished {
		t.Errorf("session must be parked in finished state, got %s", sess.Status)
	}
}

func TestChaining_ReloadRemovedQueuedQuestionnaire(t *testing.T) {
	c, r, sessions := newTestController(t)
	ctx := context.Background()

	if err := c.SeedQueue(ctx, "s1", []string{"extra"}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")
	mustSubmit(t, c, "s1", "No")
	mustSubmit(t, c, "s1", "")

	// A reload drops the queued questionnaire before health finishes, so
	// the final answer triggers a chain onto a missing cache.
	src := &stubSource{defs: []models.QuestionnaireDefinition{healthDef()}}
	if err := r.Load(ctx, src); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, err := c.SubmitAnswer(ctx, "s1", "Often"); !errors.Is(err, models.ErrQuestionnaireNotFound) {
		t.Fatalf("expected wrapped not-found error, got %v", err)
	}
	sess, err := sessions.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if sess.Status != models.SessionStatusFinished {
		t.Errorf("session must be parked in finished state, got %s", sess.Status)
	}
	if got := sess.Answers[6].Text; got != "Often" {
		t.Errorf("answer submitted before the failed chain must survive, got %q", got)
	}
}

type recorderStub struct {
	records []models.Answer
	err     error
}

func (r *recorderStub) RecordAnswer(_ context.Context, a models.Answer) error {
	r.records = append(r.records, a)
	return r.err
}

func TestSubmitAnswer_ForwardsToRecorder(t *testing.T) {
	rec := &recorderStub{}
	c, _, _ := newTestController(t, WithAnswerRecorder(rec))
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustSubmit(t, c, "s1", "Male")

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 recorded answer, got %d", len(rec.records))
	}
	got := rec.records[0]
	if got.SessionID != "s1" || got.QuestionID != 1 || got.Value.Text != "Male" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestSubmitAnswer_RecorderFailureIsNonFatal(t *testing.T) {
	rec := &recorderStub{err: errors.New("disk full")}
	c, _, _ := newTestController(t, WithAnswerRecorder(rec))
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	spec := mustSubmit(t, c, "s1", "Male")
	if spec.QuestionID != 2 {
		t.Errorf("recorder failure must not block traversal, got question %d", spec.QuestionID)
	}
}

func TestCurrent_RendersWithoutAdvancing(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	spec, err := c.Current(ctx, "s1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if spec.QuestionID != 1 {
		t.Errorf("expected question 1, got %d", spec.QuestionID)
	}
	again, err := c.Current(ctx, "s1")
	if err != nil || again.QuestionID != 1 {
		t.Errorf("Current must not advance: (%v, %v)", again, err)
	}
}

func TestReset_DropsSession(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	if _, err := c.Start(ctx, "s1", "health"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Reset(ctx, "s1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := c.Current(ctx, "s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after reset, got %v", err)
	}
}
