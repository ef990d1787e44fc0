// Package api provides the HTTP surface over the AMAS decision engine: an
// endpoint to submit an event, and endpoints to inspect a user's live state,
// model health, and activity segment.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/engine"
	"github.com/tutu-network/tutu/internal/segment"
)

// Server is the AMAS HTTP API.
type Server struct {
	engine         *engine.Engine
	metricsEnabled bool
	live           *liveHub
}

// NewServer creates a new API server over the given engine.
func NewServer(e *engine.Engine) *Server {
	return &Server{engine: e, live: newLiveHub()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handleSubmitEvent)
		r.Get("/users/{userID}/state", s.handleGetUserState)
		r.Get("/users/{userID}/diagnostics", s.handleGetDiagnostics)
		r.Post("/segment", s.handleClassifySegment)
		r.Get("/users/{userID}/live", s.handleLive)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// handleSubmitEvent submits one review outcome to the engine and returns the
// resulting decision. Also broadcasts the result to any open /live stream
// for the same user.
// POST /api/events
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body: "+err.Error())
		return
	}

	result, err := s.engine.Process(r.Context(), event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("X-Decision-Id", uuid.NewString())
	s.live.broadcast(event.UserID, result)
	writeJSON(w, http.StatusOK, result)
}

// handleGetUserState returns a user's current live state.
// GET /api/users/{userID}/state
func (s *Server) handleGetUserState(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state, found, err := s.engine.UserState(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no state for user "+userID)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetDiagnostics runs the combined model-health check for a user.
// GET /api/users/{userID}/diagnostics
func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	report, err := s.engine.Diagnose(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleClassifySegment classifies a user's activity segment from
// caller-supplied, pre-aggregated counts. No event history is queried here —
// segmentation is a pure function over the numbers the caller posts.
// POST /api/segment
func (s *Server) handleClassifySegment(w http.ResponseWriter, r *http.Request) {
	var in domain.SegmentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid segment input: "+err.Error())
		return
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	result := segment.Classify(in)
	writeJSON(w, http.StatusOK, map[string]string{"segment": result.String()})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
		},
	})
}

// corsMiddleware adds permissive CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
