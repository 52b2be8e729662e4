package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/booking"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/questionnaire"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/store"
)

const testSeed = `
questionnaires:
  - name: intake
    start_question_id: 1
    questions:
      - id: 1
        text: "Anything else?"
        kind: text
      - id: 2
        text: "Done."
        kind: terminal
    rules:
      - { question_id: 1, answer: ANY, next_question_id: 2 }
tariffs:
  - name: "Basic"
    price: 2900
    questionnaires: [intake]
`

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	seed, err := store.ParseSeed([]byte(testSeed))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	st, err := store.NewInMemoryStoreFromSeed(seed)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	registry := questionnaire.NewRegistry()
	if err := registry.Load(context.Background(), st); err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return NewServer(registry, st, st, booking.NewService(st)), st
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("unexpected status %q", resp.Status)
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestReloadHandler_Succeeds(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.reloadHandler(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if _, err := s.registry.Lookup("intake"); err != nil {
		t.Errorf("intake missing after reload: %v", err)
	}
}

func TestReloadHandler_BrokenDefinitionKeepsOldCaches(t *testing.T) {
	s, st := newTestServer(t)

	// Corrupt the stored definitions with a dangling branch target. The shape
	// is still valid, so parsing succeeds and only the cache build fails.
	broken, err := store.ParseSeed([]byte(strings.Replace(testSeed, "next_question_id: 2", "next_question_id: 42", 1)))
	if err != nil {
		t.Fatalf("parse broken seed: %v", err)
	}
	if err := st.ImportSeed(context.Background(), broken); err != nil {
		t.Fatalf("import broken seed: %v", err)
	}

	rec := httptest.NewRecorder()
	s.reloadHandler(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for definition error, got %d: %s", rec.Code, rec.Body)
	}
	if _, err := s.registry.Lookup("intake"); err != nil {
		t.Errorf("failed reload evicted the previous cache: %v", err)
	}
}

func TestSlotsHandler_AddAndList(t *testing.T) {
	s, _ := newTestServer(t)

	startsAt := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	body := strings.NewReader(`{"starts_at": "` + startsAt + `"}`)
	rec := httptest.NewRecorder()
	s.slotsHandler(rec, httptest.NewRequest(http.MethodPost, "/slots", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	s.slotsHandler(rec, httptest.NewRequest(http.MethodGet, "/slots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	slots, ok := resp.Result.([]interface{})
	if !ok || len(slots) != 1 {
		t.Errorf("expected 1 listed slot, got %v", resp.Result)
	}
}

func TestSlotsHandler_RejectsInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.slotsHandler(rec, httptest.NewRequest(http.MethodPost, "/slots", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.slotsHandler(rec, httptest.NewRequest(http.MethodPost, "/slots", strings.NewReader("{}")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing starts_at, got %d", rec.Code)
	}
}

func TestAnswersHandler(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	if err := st.RecordAnswer(ctx, models.Answer{
		SessionID: "s1", Questionnaire: "intake", QuestionID: 1,
		Value: models.SingleAnswer("nothing"),
	}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	rec := httptest.NewRecorder()
	s.answersHandler(rec, httptest.NewRequest(http.MethodGet, "/answers?session=s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	answers, ok := resp.Result.([]interface{})
	if !ok || len(answers) != 1 {
		t.Errorf("expected 1 answer, got %v", resp.Result)
	}
}

func TestAnswersHandler_RequiresSession(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.answersHandler(rec, httptest.NewRequest(http.MethodGet, "/answers", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without session parameter, got %d", rec.Code)
	}
}
