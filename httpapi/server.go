// Package httpapi exposes the assistant over HTTP: turn submission,
// session state, checkpoint listing and resolution, and an SSE stream
// of checkpoint events.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shivam-kaushik/co-investigator/assistant"
	"github.com/shivam-kaushik/co-investigator/checkpoint"
	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/shivam-kaushik/co-investigator/planner"
	"github.com/shivam-kaushik/co-investigator/session"
)

// maxTurnBodySize limits the size of turn request bodies to prevent DoS.
const maxTurnBodySize = 1 << 20 // 1 MB

// Server handles the HTTP surface of the assistant.
type Server struct {
	assistant   *assistant.Assistant
	checkpoints *checkpoint.Manager
	watcher     CheckpointWatcher
	logger      *slog.Logger
}

// CheckpointWatcher exposes the checkpoint bucket for SSE streaming.
// The NATS-backed checkpoint store implements it; in-memory stores do
// not, in which case the stream endpoint reports unavailability.
type CheckpointWatcher interface {
	Bucket() jetstream.KeyValue
}

// NewServer creates an HTTP server facade over the assistant.
func NewServer(a *assistant.Assistant, manager *checkpoint.Manager, watcher CheckpointWatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		assistant:   a,
		checkpoints: manager,
		watcher:     watcher,
		logger:      logger,
	}
}

// RegisterHTTPHandlers registers the assistant API endpoints.
// The prefix should be "/v1" (without trailing slash).
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = strings.TrimSuffix(prefix, "/")

	// POST /v1/sessions/{id}/turns - Submit one conversational turn
	mux.HandleFunc("POST "+prefix+"/sessions/{id}/turns", s.handleTurn)

	// GET /v1/sessions/{id} - Current session record
	mux.HandleFunc("GET "+prefix+"/sessions/{id}", s.handleGetSession)

	// GET /v1/sessions/{id}/checkpoints - All checkpoints for a session
	mux.HandleFunc("GET "+prefix+"/sessions/{id}/checkpoints", s.handleListCheckpoints)

	// POST /v1/sessions/{id}/checkpoints/{cpid}/resolve - Apply an option
	mux.HandleFunc("POST "+prefix+"/sessions/{id}/checkpoints/{cpid}/resolve", s.handleResolve)

	// GET /v1/checkpoints/stream - SSE stream of checkpoint events
	mux.HandleFunc("GET "+prefix+"/checkpoints/stream", s.handleStream)

	// GET {prefix}/sessions/{id}/checkpoints/watch - per-session SSE stream
	mux.HandleFunc("GET "+prefix+"/sessions/{id}/checkpoints/watch", s.handleStream)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// TurnRequest is the request body for POST /sessions/{id}/turns.
type TurnRequest struct {
	Input string `json:"input"`
}

// ResolveRequest is the request body for POST .../checkpoints/{cpid}/resolve.
type ResolveRequest struct {
	OptionID string `json:"option_id"`
}

// ListCheckpointsResponse is the response for GET /sessions/{id}/checkpoints.
type ListCheckpointsResponse struct {
	Checkpoints []*checkpoint.Checkpoint `json:"checkpoints"`
	Total       int                      `json:"total"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "session ID required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodySize)

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.assistant.HandleTurn(r.Context(), id, req.Input)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "session ID required")
		return
	}

	sess, err := s.assistant.GetSessionState(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("Failed to get session", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "session ID required")
		return
	}

	cps, err := s.checkpoints.ListBySession(r.Context(), id)
	if err != nil {
		s.logger.Error("Failed to list checkpoints", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}
	s.writeJSON(w, http.StatusOK, ListCheckpointsResponse{Checkpoints: cps, Total: len(cps)})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cpID := r.PathValue("cpid")
	if id == "" || cpID == "" {
		s.writeError(w, http.StatusBadRequest, "session and checkpoint IDs required")
		return
	}
	if !strings.HasPrefix(cpID, "cp-") {
		s.writeError(w, http.StatusBadRequest, "invalid checkpoint ID format (must start with 'cp-')")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodySize)

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.assistant.ResolveCheckpoint(r.Context(), id, cpID, req.OptionID)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeHandlerError maps assistant and domain errors onto HTTP status
// codes. Stale and already-resolved checkpoints are conflicts the
// client is expected to recover from by re-reading state.
func (s *Server) writeHandlerError(w http.ResponseWriter, err error) {
	var invalid *assistant.InvalidInputError
	var stale *checkpoint.StaleError
	var planErr *planner.PlanError
	var unavailable *llm.UnavailableError

	switch {
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusBadRequest, invalid.Reason)
	case errors.Is(err, session.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, checkpoint.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "checkpoint not found")
	case errors.Is(err, checkpoint.ErrSessionMismatch):
		s.writeError(w, http.StatusBadRequest, "checkpoint does not belong to this session")
	case errors.Is(err, checkpoint.ErrUnknownOption):
		s.writeError(w, http.StatusBadRequest, "unknown checkpoint option")
	case errors.Is(err, checkpoint.ErrAlreadyResolved):
		s.writeError(w, http.StatusConflict, "checkpoint already resolved with a different option")
	case errors.As(err, &stale):
		s.writeError(w, http.StatusConflict, fmt.Sprintf("checkpoint is stale: %s", stale.Error()))
	case errors.As(err, &planErr):
		s.writeError(w, http.StatusUnprocessableEntity, planErr.Error())
	case errors.As(err, &unavailable):
		s.writeError(w, http.StatusBadGateway, "language model unavailable")
	default:
		s.logger.Error("Turn handling failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
