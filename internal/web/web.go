// Package web exposes the read path of the event cache plus the extend and
// manual-sync operations over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jasonhett/digitial-calendar/internal/config"
	appLog "github.com/jasonhett/digitial-calendar/internal/log"
	"github.com/jasonhett/digitial-calendar/internal/store"
	appsync "github.com/jasonhett/digitial-calendar/internal/sync"
)

// Server provides the HTTP API: /health, /api/events, /api/events/extend
// and /api/sync.
type Server struct {
	cfg   *config.Config
	store *store.Store
	orch  *appsync.Orchestrator
	mux   *http.ServeMux
}

// NewServer constructs a Server.
func NewServer(cfg *config.Config, st *store.Store, orch *appsync.Orchestrator) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		orch:  orch,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with Basic Auth
// when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/events/extend", s.handleExtend)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Calendar", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents serves the current cache snapshot. Readers always see the
// previous complete snapshot while a sync is in flight.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Load(r.Context())
	if err != nil {
		appLog.Error("event cache load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type extendRequest struct {
	TimeMax string `json:"timeMax"`
}

// handleExtend widens the sync window to cover the requested timeMax and
// runs one sync. When the subsequent sync finds no sources or no Google
// connection, the widened window sticks: the response is a conflict that
// still reports updated=true.
func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TimeMax == "" {
		writeError(w, http.StatusBadRequest, "timeMax is required")
		return
	}
	target, err := time.Parse(time.RFC3339, req.TimeMax)
	if err != nil {
		writeError(w, http.StatusBadRequest, "timeMax must be a valid ISO date")
		return
	}

	res, err := s.orch.Extend(r.Context(), target)
	if err != nil {
		if msg, ok := conflictMessage(err); ok {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":    msg,
				"updated":  res.Updated,
				"syncDays": res.SyncDays,
			})
			return
		}
		appLog.Error("extend failed", err)
		writeError(w, http.StatusInternalServerError, "failed to extend event window")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleSync runs a manual sync. Unlike the background loop it demands a
// Google connection, so a disconnected account surfaces as a conflict.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orch.Sync(r.Context(), appsync.Options{RequireGoogle: true})
	if err != nil {
		if msg, ok := conflictMessage(err); ok {
			writeError(w, http.StatusConflict, msg)
			return
		}
		appLog.Error("manual sync failed", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// conflictMessage maps the recoverable sync failures onto their API
// messages.
func conflictMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, appsync.ErrNotConnected):
		return "Google account not connected", true
	case errors.Is(err, appsync.ErrNoSources):
		return "No calendar sources configured", true
	default:
		return "", false
	}
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
