// Package server exposes the panel API: the engine snapshot, a manual
// refresh trigger and a health probe.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"bist-sentinel/internal/engine"
	"bist-sentinel/internal/logging"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/performance"
	"bist-sentinel/internal/store"
	"bist-sentinel/internal/stream"
)

// StateSource provides the panel payload. The monitor implements it.
type StateSource interface {
	Snapshot() engine.Snapshot
}

// Refresher kicks an immediate monitor sweep.
type Refresher interface {
	RequestRefresh()
}

// EventSource serves the live event tail the hub accumulates. The
// stream ring implements it.
type EventSource interface {
	Recent(n int) []stream.Event
}

// Config holds what the server needs to run. A nil Store falls back
// to the no-op store so the history endpoints stay serviceable.
type Config struct {
	Listen     string
	RefreshKey string
	Version    string
	Log        zerolog.Logger
	State      StateSource
	Refresher  Refresher
	Store      store.DataStore
	Events     EventSource
}

// Server is the panel HTTP server. It only reads engine state; the
// single mutating endpoint queues a refresh and returns immediately.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	state   StateSource
	refresh Refresher
	store   store.DataStore
	events  EventSource
	key     string
	version string
	started time.Time
}

// New builds the server with routes and middleware installed.
func New(cfg Config) *Server {
	if cfg.Store == nil {
		cfg.Store = store.NewNullStore()
	}
	s := &Server{
		router:  chi.NewRouter(),
		log:     logging.WithComponent(cfg.Log, "server"),
		state:   cfg.State,
		refresh: cfg.Refresher,
		store:   cfg.Store,
		events:  cfg.Events,
		key:     cfg.RefreshKey,
		version: cfg.Version,
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/refresh", s.handleRefresh)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/decisions", s.handleDecisions)
		r.Get("/events", s.handleEvents)
		r.Get("/events/live", s.handleLiveEvents)
		r.Get("/backtests", s.handleBacktests)
		r.Get("/stats", s.handleStats)
	})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("listen", s.server.Addr).Msg("panel server starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("panel server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state.Snapshot())
}

// handleRefresh queues a sweep. With a refresh key configured the
// request must carry it in the key query parameter.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.key != "" && r.URL.Query().Get("key") != s.key {
		s.writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid refresh key"})
		return
	}
	s.refresh.RequestRefresh()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh queued"})
}

// handleDecisions serves persisted decisions, newest first. An
// optional symbol query parameter narrows to one symbol.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	decisions, err := s.store.RecentDecisions(r.Context(), symbol, queryLimit(r, 50))
	if err != nil {
		s.storeError(w, "decisions", err)
		return
	}
	if decisions == nil {
		decisions = []models.Decision{}
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

// handleEvents serves persisted position events, newest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.RecentEvents(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.storeError(w, "events", err)
		return
	}
	if events == nil {
		events = []models.PositionEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleLiveEvents serves the in-memory tail the hub feeds. It works
// even when the engine runs without persistence.
func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	events := []stream.Event{}
	if s.events != nil {
		if recent := s.events.Recent(queryLimit(r, 50)); recent != nil {
			events = recent
		}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleBacktests serves persisted backtest runs, newest first.
func (s *Server) handleBacktests(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	results, err := s.store.RecentBacktests(r.Context(), symbol, queryLimit(r, 20))
	if err != nil {
		s.storeError(w, "backtests", err)
		return
	}
	if results == nil {
		results = []models.BacktestResult{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

// handleStats aggregates closed trades over a trailing window, 30
// days unless a days query parameter says otherwise.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}
	now := time.Now()
	stats, err := s.store.TradeStats(r.Context(), now.AddDate(0, 0, -days), now)
	if err != nil {
		s.storeError(w, "stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) storeError(w http.ResponseWriter, what string, err error) {
	s.log.Error().Err(err).Str("query", what).Msg("store query failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store query failed"})
}

// queryLimit parses the limit query parameter with a default and a
// hard cap of 500 rows.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 500 {
		n = 500
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	mem := performance.MemoryStats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "bist-sentinel",
		"version":    s.version,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"goroutines": mem.Goroutines,
		"heap":       performance.FormatBytes(mem.HeapAlloc),
	})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
