// Package api exposes the assistant fulfillment webhook over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/fulfillment"
	"github.com/dokzlo13/homed/internal/ledger"
)

// Server handles assistant traffic. Everything except the health probe
// sits behind bearer auth; the authenticated username doubles as the
// fulfillment agentUserId.
type Server struct {
	addr       string
	engine     *fulfillment.Engine
	ledger     *ledger.Ledger
	auth       *authenticator
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, auth AuthConfig, engine *fulfillment.Engine, l *ledger.Ledger) *Server {
	return &Server{
		addr:   fmt.Sprintf("%s:%d", host, port),
		engine: engine,
		ledger: l,
		auth:   newAuthenticator(auth),
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)
		r.Post("/fulfillment/google_home", s.handleFulfillment)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFulfillment(w http.ResponseWriter, r *http.Request) {
	var req fulfillment.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed payload")
		return
	}

	user := Username(r.Context())
	resp, err := s.engine.Handle(r.Context(), user, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.audit(user, &req)
	writeJSON(w, http.StatusOK, resp)
}

// audit records EXECUTE requests. Queries are not worth the rows.
func (s *Server) audit(user string, req *fulfillment.Request) {
	for _, input := range req.Inputs {
		if input.Intent != fulfillment.IntentExecute {
			continue
		}
		err := s.ledger.Append(ledger.EventExecute, "", map[string]any{
			"user":       user,
			"request_id": req.RequestID,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to audit execute request")
		}
	}
}

type eventEntry struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := s.ledger.GetRecent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "internal", "failed to read ledger")
		return
	}

	out := make([]eventEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, eventEntry{
			ID:        e.ID,
			Type:      string(e.EventType),
			Timestamp: e.Timestamp,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]eventEntry{"events": out})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

type errorBody struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func writeError(w http.ResponseWriter, code int, status, reason string) {
	writeJSON(w, code, map[string]errorBody{"error": {Code: code, Status: status, Reason: reason}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
