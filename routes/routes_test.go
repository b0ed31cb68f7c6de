package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hlsworker/auth"
	"hlsworker/events"
	"hlsworker/failures"
	"hlsworker/pipeline"
	"hlsworker/runs"
	"hlsworker/success"
)

type stubRunner struct {
	events []events.TriggerEvent
	out    pipeline.Outcome
}

func (s *stubRunner) Run(ctx context.Context, ev events.TriggerEvent) pipeline.Outcome {
	s.events = append(s.events, ev)
	out := s.out
	out.Object = ev.Name
	return out
}

const objectBody = `{"bucket":"media","name":"Revoland/PropertyVideos/xyz_9.mp4","size":"1024"}`

func postEvent(h http.Handler, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEventsHandlerRunsPipeline(t *testing.T) {
	runner := &stubRunner{out: pipeline.Outcome{RunID: "r1", State: pipeline.StateDone, Variants: []string{"720p", "1080p"}}}
	h := EventsHandler(runs.NewDispatcher(runner, nil, 1), nil)

	rec := postEvent(h, objectBody, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp EventResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "completed" || resp.RunID != "r1" || len(resp.Variants) != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(runner.events) != 1 || runner.events[0].Size != 1024 || !runner.events[0].Exists {
		t.Errorf("unexpected events %+v", runner.events)
	}
}

func TestEventsHandlerAbortedIsStillOK(t *testing.T) {
	runner := &stubRunner{out: pipeline.Outcome{RunID: "r1", State: pipeline.StateAborted, Reason: pipeline.ReasonNoVariants}}
	h := EventsHandler(runs.NewDispatcher(runner, nil, 1), nil)

	rec := postEvent(h, objectBody, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for aborted run, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"reason":"no-variants"`) {
		t.Errorf("expected reason in body, got %s", rec.Body.String())
	}
}

func TestEventsHandlerRejects(t *testing.T) {
	runner := &stubRunner{}
	d := runs.NewDispatcher(runner, nil, 1)

	if rec := postEvent(EventsHandler(d, nil), "{not json", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	EventsHandler(d, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", rec.Code)
	}

	secured := EventsHandler(d, auth.NewVerifier("shared-secret-for-events-at-least-32-bytes", ""))
	if rec := postEvent(secured, objectBody, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}
	if rec := postEvent(secured, objectBody, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", rec.Code)
	}
	token, err := auth.Sign("shared-secret-for-events-at-least-32-bytes", "", "events", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if rec := postEvent(secured, objectBody, token); rec.Code != http.StatusOK {
		t.Errorf("valid token: expected 200, got %d", rec.Code)
	}

	if len(runner.events) != 1 {
		t.Errorf("expected exactly one dispatched event, got %d", len(runner.events))
	}
}

func TestHealthHandler(t *testing.T) {
	ok := HealthCheck{Name: "store", Check: func() error { return nil }}
	bad := HealthCheck{Name: "encoder", Check: func() error { return errors.New("ffmpeg not found") }}

	rec := httptest.NewRecorder()
	HealthHandler(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthHandler(ok, bad).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || resp.Checks["encoder"] != "ffmpeg not found" || resp.Checks["store"] != "ok" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var resp VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version != version || resp.GoVersion == "" {
		t.Errorf("unexpected version response %+v", resp)
	}
}

func TestStatusHandler(t *testing.T) {
	tracker := runs.NewTracker(10)
	d := runs.NewDispatcher(&stubRunner{}, tracker, 3)
	tracker.Observe("r1", "a.mp4", pipeline.StateTranscoding)
	h := StatusHandler(tracker, d)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status?run=r1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"state":"transcoding"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status?run=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var list struct {
		Active int `json:"active"`
		Limit  int `json:"limit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Active != 1 || list.Limit != 3 {
		t.Errorf("unexpected summary %+v", list)
	}
}

func TestRecordHandlers(t *testing.T) {
	dir := t.TempDir()
	if err := failures.Init(filepath.Join(dir, "failures.db")); err != nil {
		t.Fatal(err)
	}
	defer failures.Close()
	if err := success.Init(filepath.Join(dir, "success.db")); err != nil {
		t.Fatal(err)
	}
	defer success.Close()

	failures.StoreFailure(failures.FailureRecord{Key: "bad_1", Reason: "no-variants"})
	success.StoreSuccess(success.SuccessRecord{VideoID: "good_1", Variants: []string{"720p"}})

	tests := []struct {
		handler http.HandlerFunc
		target  string
		code    int
		want    string
	}{
		{FailureQueryHandler, "/failures?video=bad_1", http.StatusOK, `"status":"failed"`},
		{FailureQueryHandler, "/failures?video=good_1", http.StatusOK, `"status":"not_found"`},
		{FailureQueryHandler, "/failures", http.StatusBadRequest, "video parameter required"},
		{FailureListHandler, "/failures/list", http.StatusOK, `"count":1`},
		{SuccessQueryHandler, "/success?video=good_1", http.StatusOK, `"status":"success"`},
		{SuccessQueryHandler, "/success?video=bad_1", http.StatusOK, `"status":"not_found"`},
		{SuccessListHandler, "/success/list", http.StatusOK, `"count":1`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.handler(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.want) {
			t.Errorf("%s: got %d %q, want %d containing %q", tt.target, rec.Code, rec.Body.String(), tt.code, tt.want)
		}
	}
}

func TestSuccessDelete(t *testing.T) {
	if err := success.Init(filepath.Join(t.TempDir(), "success.db")); err != nil {
		t.Fatal(err)
	}
	defer success.Close()
	if err := success.StoreSuccess(success.SuccessRecord{VideoID: "good_1"}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	SuccessQueryHandler(rec, httptest.NewRequest(http.MethodDelete, "/success?video=good_1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got, err := success.GetSuccess("good_1"); err != nil || got != nil {
		t.Errorf("expected record removed, got %+v, %v", got, err)
	}

	rec = httptest.NewRecorder()
	SuccessQueryHandler(rec, httptest.NewRequest(http.MethodPost, "/success?video=good_1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rec.Code)
	}
}
