package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/cinder/internal/script"
)

// compileScriptRequest is the JSON body for POST /v1/scripts/{scriptID}/compile.
type compileScriptRequest struct {
	Source string `json:"source"`
	// NoCache compiles without storing the artifact.
	NoCache bool `json:"no_cache,omitempty"`
	// CacheExpirationS overrides the default freshness window, in seconds.
	// An explicit zero skips caching.
	CacheExpirationS *int `json:"cache_expiration_s,omitempty"`
}

// compileScriptResponse is the JSON response for a pre-warming compile.
type compileScriptResponse struct {
	ScriptID string `json:"script_id"`
	Cached   bool   `json:"cached"`
	CacheHit bool   `json:"cache_hit"`
}

// cachedScriptResponse is the JSON response for GET /v1/scripts/{scriptID}/cache.
type cachedScriptResponse struct {
	ScriptID  string    `json:"script_id"`
	ExpiresOn time.Time `json:"expires_on"`
	Hits      int64     `json:"hits"`
}

// handleCompileScript compiles a script ahead of execution, pre-warming the
// artifact cache.
func (s *Server) handleCompileScript(w http.ResponseWriter, r *http.Request) {
	scriptID := chi.URLParam(r, "scriptID")

	var req compileScriptRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	var ttlOverride *time.Duration
	if req.CacheExpirationS != nil {
		d := time.Duration(*req.CacheExpirationS) * time.Second
		ttlOverride = &d
	}

	_, hit, err := s.engine.Runner().Compile(scriptID, req.Source, !req.NoCache, ttlOverride)
	if err != nil {
		var ce *script.CompileError
		if errors.As(err, &ce) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("compile script", "script_id", scriptID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compile script")
		return
	}

	_, cached := s.engine.Runner().TryGetCached(scriptID)
	s.writeJSON(w, http.StatusOK, compileScriptResponse{
		ScriptID: scriptID,
		Cached:   cached,
		CacheHit: hit,
	})
}

// handleGetCached reports the cached artifact for a script, purging it when
// stale.
func (s *Server) handleGetCached(w http.ResponseWriter, r *http.Request) {
	scriptID := chi.URLParam(r, "scriptID")

	art, ok := s.engine.Runner().TryGetCached(scriptID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no fresh cached artifact")
		return
	}

	s.writeJSON(w, http.StatusOK, cachedScriptResponse{
		ScriptID:  scriptID,
		ExpiresOn: art.ExpiresOn,
		Hits:      art.Hits(),
	})
}

// handleRemoveCached drops the cached artifact for a script.
func (s *Server) handleRemoveCached(w http.ResponseWriter, r *http.Request) {
	scriptID := chi.URLParam(r, "scriptID")

	if !s.engine.Runner().RemoveCached(scriptID) {
		s.writeError(w, http.StatusNotFound, "no cached artifact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
