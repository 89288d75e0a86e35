package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ironwill-app/ironwill/internal/engine"
	"github.com/ironwill-app/ironwill/internal/proofstore"
	"github.com/ironwill-app/ironwill/internal/storage/sqlite"
)

type fixture struct {
	handler http.Handler
	engine  *engine.Service
	now     time.Time
	mu      sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setClock(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	var counter int
	var counterMu sync.Mutex
	newID := func() (string, error) {
		counterMu.Lock()
		defer counterMu.Unlock()
		counter++
		return fmt.Sprintf("id-%d", counter), nil
	}
	f.engine = engine.NewService(store, proofstore.NewMemory(), nil, engine.Config{}, f.clock, newID)
	f.handler = NewHandler(f.engine).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, owner, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, bytes.NewReader(body))
	if owner != "" {
		request.Header.Set("X-Owner-ID", owner)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f *fixture) commit(t *testing.T, owner string) commitResponse {
	t.Helper()
	payload := []byte(`{"title":"evening run","frequency":"daily","due_time":"22:00","grace_period":"30m"}`)
	recorder := f.do(t, http.MethodPost, "/api/protocols", owner, "application/json", payload)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("commit status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var response commitResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode commit response: %v", err)
	}
	return response
}

func TestCommitProtocol(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	response := f.commit(t, "owner-1")

	if response.Protocol.Title != "evening run" || response.Protocol.Status != "scheduled" {
		t.Fatalf("protocol = %+v", response.Protocol)
	}
	if response.Cycle.DueAt != "2026-03-01T22:00:00Z" {
		t.Fatalf("due at = %s, want 2026-03-01T22:00:00Z", response.Cycle.DueAt)
	}
	if response.Cycle.Deadline != "2026-03-01T22:30:00Z" {
		t.Fatalf("deadline = %s, want 2026-03-01T22:30:00Z", response.Cycle.Deadline)
	}
}

func TestCommitRequiresOwnerHeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	payload := []byte(`{"title":"evening run","frequency":"daily","due_time":"22:00"}`)
	recorder := f.do(t, http.MethodPost, "/api/protocols", "", "application/json", payload)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["code"] != "OWNER_ID_EMPTY" {
		t.Fatalf("code = %s, want OWNER_ID_EMPTY", body["code"])
	}
}

func TestCommitRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	payload := []byte(`{"title":"evening run","frequency":"hourly","due_time":"22:00"}`)
	recorder := f.do(t, http.MethodPost, "/api/protocols", "owner-1", "application/json", payload)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestSubmitProof(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	committed := f.commit(t, "owner-1")

	f.setClock(time.Date(2026, 3, 1, 21, 50, 0, 0, time.UTC))
	recorder := f.do(t, http.MethodPost, "/api/cycles/"+committed.Cycle.ID+"/proof", "owner-1", "image/jpeg", []byte("jpeg-bytes"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var response submitResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if response.Cycle.Outcome != "on_time" {
		t.Fatalf("outcome = %s, want on_time", response.Cycle.Outcome)
	}
	if response.Score.Value != 5.5 {
		t.Fatalf("score = %v, want 5.5", response.Score.Value)
	}
	if response.Cycle.ProofRef == "" {
		t.Fatal("proof ref missing")
	}
}

func TestSubmitAfterGraceConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	committed := f.commit(t, "owner-1")

	f.setClock(time.Date(2026, 3, 1, 22, 31, 0, 0, time.UTC))
	recorder := f.do(t, http.MethodPost, "/api/cycles/"+committed.Cycle.ID+"/proof", "owner-1", "image/jpeg", []byte("jpeg-bytes"))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
}

func TestSubmitWhileLockedReturnsLocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.commit(t, "owner-1")

	// Miss the cycle so the score drops below the lockout threshold.
	tick := time.Date(2026, 3, 1, 22, 31, 0, 0, time.UTC)
	f.setClock(tick)
	f.engine.Tick(context.Background(), tick)

	f.setClock(time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC))
	status := f.do(t, http.MethodGet, "/api/status", "owner-1", "", nil)
	var snapshot statusResponse
	if err := json.Unmarshal(status.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snapshot.Lock.Status != "locked" {
		t.Fatalf("lock status = %s, want locked", snapshot.Lock.Status)
	}
	if len(snapshot.ActiveCycles) != 1 {
		t.Fatalf("active cycles = %d, want 1", len(snapshot.ActiveCycles))
	}

	recorder := f.do(t, http.MethodPost, "/api/cycles/"+snapshot.ActiveCycles[0].ID+"/proof", "owner-1", "image/jpeg", []byte("jpeg-bytes"))
	if recorder.Code != http.StatusLocked {
		t.Fatalf("status = %d, want 423", recorder.Code)
	}
}

func TestStatusAndScoreEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	committed := f.commit(t, "owner-1")

	f.setClock(time.Date(2026, 3, 1, 22, 10, 0, 0, time.UTC))
	recorder := f.do(t, http.MethodPost, "/api/cycles/"+committed.Cycle.ID+"/proof", "owner-1", "image/png", []byte("png-bytes"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("submit status = %d", recorder.Code)
	}

	status := f.do(t, http.MethodGet, "/api/status", "owner-1", "", nil)
	if status.Code != http.StatusOK {
		t.Fatalf("status = %d", status.Code)
	}
	var snapshot statusResponse
	if err := json.Unmarshal(status.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snapshot.Score.Value != 4.0 {
		t.Fatalf("score = %v, want 4.0 after late proof", snapshot.Score.Value)
	}

	events := f.do(t, http.MethodGet, "/api/score-events?limit=10", "owner-1", "", nil)
	if events.Code != http.StatusOK {
		t.Fatalf("score events status = %d", events.Code)
	}
	var views []scoreEventView
	if err := json.Unmarshal(events.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode score events: %v", err)
	}
	if len(views) != 1 || views[0].Cause != "late" {
		t.Fatalf("events = %+v, want one late event", views)
	}
}

func TestArchiveProtocol(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	committed := f.commit(t, "owner-1")

	recorder := f.do(t, http.MethodPost, "/api/protocols/"+committed.Protocol.ID+"/archive", "owner-1", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var view protocolView
	if err := json.Unmarshal(recorder.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode archive response: %v", err)
	}
	if view.Status != "archived" || view.ArchivedAt == "" {
		t.Fatalf("archived view = %+v", view)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	recorder := f.do(t, http.MethodGet, "/healthz", "", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	recorder := f.do(t, http.MethodDelete, "/api/protocols", "owner-1", "", nil)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
}
