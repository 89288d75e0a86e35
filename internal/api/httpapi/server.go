// Package httpapi exposes the accountability engine over a JSON HTTP API.
// Callers identify themselves with the X-Owner-ID header; there is no
// authentication layer in front of the engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ironwill-app/ironwill/internal/engine"
	apperrors "github.com/ironwill-app/ironwill/internal/errors"
	"github.com/ironwill-app/ironwill/internal/proofstore"
	"github.com/ironwill-app/ironwill/internal/protocol"
)

const ownerHeader = "X-Owner-ID"

// Handler serves the engine's JSON API.
type Handler struct {
	engine *engine.Service
}

// NewHandler builds the API handler around one engine service.
func NewHandler(service *engine.Service) *Handler {
	return &Handler{engine: service}
}

// Routes registers every API route on a fresh mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/protocols", h.handleProtocols)
	mux.HandleFunc("/api/protocols/", h.handleProtocolDetail)
	mux.HandleFunc("/api/cycles/", h.handleCycleDetail)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/score-events", h.handleScoreEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func ownerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ownerHeader))
}

type commitRequest struct {
	Title       string `json:"title"`
	Frequency   string `json:"frequency"`
	DueTime     string `json:"due_time"`
	Weekday     int    `json:"weekday"`
	GracePeriod string `json:"grace_period"`
}

type protocolView struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Title          string `json:"title"`
	Frequency      string `json:"frequency"`
	DueTime        string `json:"due_time"`
	Weekday        int    `json:"weekday,omitempty"`
	GracePeriod    string `json:"grace_period"`
	Status         string `json:"status"`
	CurrentCycleID string `json:"current_cycle_id"`
	ArchivedAt     string `json:"archived_at,omitempty"`
}

type cycleView struct {
	ID          string `json:"id"`
	ProtocolID  string `json:"protocol_id"`
	DueAt       string `json:"due_at"`
	Deadline    string `json:"deadline,omitempty"`
	Outcome     string `json:"outcome"`
	ProofRef    string `json:"proof_ref,omitempty"`
	SubmittedAt string `json:"submitted_at,omitempty"`
}

type scoreView struct {
	Value         float64 `json:"value"`
	LastUpdatedAt string  `json:"last_updated_at"`
}

type lockView struct {
	Status        string `json:"status"`
	LockedAt      string `json:"locked_at,omitempty"`
	UnlockAt      string `json:"unlock_at,omitempty"`
	TriggerReason string `json:"trigger_reason,omitempty"`
}

type commitResponse struct {
	Protocol protocolView `json:"protocol"`
	Cycle    cycleView    `json:"cycle"`
}

type submitResponse struct {
	Cycle cycleView `json:"cycle"`
	Score scoreView `json:"score"`
	Lock  lockView  `json:"lock"`
}

type statusResponse struct {
	OwnerID      string      `json:"owner_id"`
	Score        scoreView   `json:"score"`
	Lock         lockView    `json:"lock"`
	ActiveCycles []cycleView `json:"active_cycles"`
}

type scoreEventView struct {
	ID         string  `json:"id"`
	Delta      float64 `json:"delta"`
	Value      float64 `json:"value"`
	Cause      string  `json:"cause"`
	CycleID    string  `json:"cycle_id,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

func (h *Handler) handleProtocols(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request commitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(apperrors.CodeUnknown), "request body is not valid JSON")
		return
	}
	grace := time.Duration(0)
	if strings.TrimSpace(request.GracePeriod) != "" {
		parsed, err := time.ParseDuration(request.GracePeriod)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, string(apperrors.CodeGracePeriodInvalid), "grace period is not a valid duration")
			return
		}
		grace = parsed
	}

	result, err := h.engine.Commit(r.Context(), engine.CommitInput{
		OwnerID: ownerID(r),
		Title:   request.Title,
		Schedule: protocol.Schedule{
			Frequency: protocol.Frequency(request.Frequency),
			DueTime:   request.DueTime,
			Weekday:   time.Weekday(request.Weekday),
		},
		GracePeriod: grace,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commitResponse{
		Protocol: viewProtocol(result.Protocol),
		Cycle:    viewCycle(result.Cycle, result.Protocol.GracePeriod),
	})
}

// handleProtocolDetail serves /api/protocols/{id}/archive.
func (h *Handler) handleProtocolDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/protocols/")
	protocolID, action, _ := strings.Cut(rest, "/")
	if protocolID == "" || action != "archive" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	archived, err := h.engine.Archive(r.Context(), ownerID(r), protocolID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProtocol(archived))
}

// handleCycleDetail serves /api/cycles/{id}/proof. The request body is the
// raw proof artifact; its Content-Type header declares the format.
func (h *Handler) handleCycleDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cycles/")
	cycleID, action, _ := strings.Cut(rest, "/")
	if cycleID == "" || action != "proof" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, proofstore.MaxProofBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, string(apperrors.CodeUnknown), "read proof content")
		return
	}

	result, err := h.engine.Submit(r.Context(), engine.SubmitInput{
		OwnerID:     ownerID(r),
		CycleID:     cycleID,
		Proof:       body,
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Cycle: viewCycle(result.Cycle, 0),
		Score: viewScore(result.Score),
		Lock:  viewLock(result.Lock),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := h.engine.Status(r.Context(), ownerID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	response := statusResponse{
		OwnerID:      snapshot.OwnerID,
		Score:        viewScore(snapshot.Score),
		Lock:         viewLock(snapshot.Lock),
		ActiveCycles: make([]cycleView, 0, len(snapshot.ActiveCycles)),
	}
	for _, cycle := range snapshot.ActiveCycles {
		response.ActiveCycles = append(response.ActiveCycles, viewCycle(cycle, 0))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleScoreEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, string(apperrors.CodeUnknown), "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.engine.ScoreHistory(r.Context(), ownerID(r), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]scoreEventView, 0, len(events))
	for _, event := range events {
		views = append(views, scoreEventView{
			ID:         event.ID,
			Delta:      event.Delta,
			Value:      event.Value,
			Cause:      event.Cause,
			CycleID:    event.CycleID,
			OccurredAt: event.OccurredAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func viewProtocol(p protocol.Protocol) protocolView {
	view := protocolView{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Title:          p.Title,
		Frequency:      string(p.Schedule.Frequency),
		DueTime:        p.Schedule.DueTime,
		GracePeriod:    p.GracePeriod.String(),
		Status:         string(p.Status),
		CurrentCycleID: p.CurrentCycleID,
	}
	if p.Schedule.Frequency == protocol.FrequencyWeekly {
		view.Weekday = int(p.Schedule.Weekday)
	}
	if p.ArchivedAt != nil {
		view.ArchivedAt = p.ArchivedAt.Format(time.RFC3339)
	}
	return view
}

func viewCycle(c protocol.Cycle, grace time.Duration) cycleView {
	view := cycleView{
		ID:         c.ID,
		ProtocolID: c.ProtocolID,
		DueAt:      c.DueAt.Format(time.RFC3339),
		Outcome:    string(c.Outcome),
		ProofRef:   c.ProofRef,
	}
	if grace > 0 {
		view.Deadline = c.Deadline(grace).Format(time.RFC3339)
	}
	if c.SubmittedAt != nil {
		view.SubmittedAt = c.SubmittedAt.Format(time.RFC3339)
	}
	return view
}

func viewScore(s engine.ScoreView) scoreView {
	return scoreView{
		Value:         s.Value,
		LastUpdatedAt: s.LastUpdatedAt.Format(time.RFC3339),
	}
}

func viewLock(l engine.LockView) lockView {
	view := lockView{
		Status:        string(l.Status),
		TriggerReason: l.TriggerReason,
	}
	if l.LockedAt != nil {
		view.LockedAt = l.LockedAt.Format(time.RFC3339)
	}
	if l.UnlockAt != nil {
		view.UnlockAt = l.UnlockAt.Format(time.RFC3339)
	}
	return view
}

func writeEngineError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.Printf("api error: %v", err)
		message = "internal error"
	}
	writeJSONError(w, status, string(code), message)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
