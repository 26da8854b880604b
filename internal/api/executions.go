package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/cinder/internal/engine"
	"github.com/seantiz/cinder/internal/model"
	"github.com/seantiz/cinder/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// createExecutionRequest is the JSON body for POST /v1/executions.
type createExecutionRequest struct {
	ScriptID string `json:"script_id"`
	Source   string `json:"source"`
	// NoCache skips storing the compiled artifact for reuse.
	NoCache bool `json:"no_cache,omitempty"`
}

// listExecutionsResponse wraps the paginated list response.
type listExecutionsResponse struct {
	Executions []*model.Execution `json:"executions"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

func (s *Server) decodeExecutionRequest(w http.ResponseWriter, r *http.Request) (*model.Execution, bool, bool) {
	var req createExecutionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false, false
	}

	if req.ScriptID == "" {
		s.writeError(w, http.StatusBadRequest, "script_id is required")
		return nil, false, false
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return nil, false, false
	}

	timeoutMS := int(s.engine.Runner().Timeout().Milliseconds())
	return &model.Execution{
		ID:        model.NewID(),
		ScriptID:  req.ScriptID,
		Status:    model.StatusPending,
		Source:    req.Source,
		TimeoutMS: &timeoutMS,
		CreatedAt: time.Now().UTC(),
	}, !req.NoCache, true
}

func (s *Server) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	ex, addToCache, ok := s.decodeExecutionRequest(w, r)
	if !ok {
		return
	}

	final, err := s.engine.ExecuteSync(r.Context(), ex, addToCache)
	if err != nil {
		s.logger.Error("execute script", "script_id", ex.ScriptID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to execute script")
		return
	}

	s.writeJSON(w, http.StatusOK, final)
}

func (s *Server) handleAsyncExecution(w http.ResponseWriter, r *http.Request) {
	ex, addToCache, ok := s.decodeExecutionRequest(w, r)
	if !ok {
		return
	}

	if err := s.engine.Submit(r.Context(), ex, addToCache); err != nil {
		s.logger.Error("submit async execution", "script_id", ex.ScriptID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit execution")
		return
	}

	s.writeJSON(w, http.StatusAccepted, ex)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ex, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	s.writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	executions, total, err := s.store.ListExecutions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	if executions == nil {
		executions = []*model.Execution{}
	}

	s.writeJSON(w, http.StatusOK, listExecutionsResponse{
		Executions: executions,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleKillExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.engine.Kill(id)
	if errors.Is(err, engine.ErrNotRunning) {
		// Distinguish "finished" from "never existed".
		if _, getErr := s.store.GetExecution(r.Context(), id); errors.Is(getErr, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		s.writeError(w, http.StatusConflict, "execution is not running")
		return
	}

	ex, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		s.logger.Error("get killed execution", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve execution")
		return
	}

	s.writeJSON(w, http.StatusOK, ex)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
