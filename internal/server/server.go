// Package server exposes the coal catalog, blend records and live bunker
// state over HTTP, with a websocket stream for dashboards.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/logging"
	"github.com/shahjoyal/view-bunker/internal/monitor"
	"github.com/shahjoyal/view-bunker/internal/store"
)

// Store is the persistence the API serves from.
type Store interface {
	SaveCoal(c *blend.Coal) error
	GetCoal(id string) (*blend.Coal, error)
	ListCoals() ([]blend.Coal, error)
	DeleteCoal(id string) error
	Catalog() (*blend.Catalog, error)

	GetBlend(id string) (*blend.Blend, error)
	LatestBlend() (*blend.Blend, error)
	ListBlends(limit int) ([]blend.Blend, error)
	Stats() (store.Stats, error)
}

// Config holds listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	ClientBuffer    int
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	store   Store
	monitor *monitor.Monitor
	hub     *Hub
	started time.Time
}

// New creates a server. Call Start to listen.
func New(cfg Config, st Store, mon *monitor.Monitor) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg:     cfg,
		store:   st,
		monitor: mon,
		hub:     NewHub(cfg.ClientBuffer),
		started: time.Now(),
	}
}

// Hub returns the websocket fan-out.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/coals", s.handleListCoals)
	mux.HandleFunc("POST /api/coals", s.handleCreateCoal)
	mux.HandleFunc("GET /api/coals/suggest", s.handleSuggestCoals)
	mux.HandleFunc("GET /api/coals/{id}", s.handleGetCoal)
	mux.HandleFunc("PUT /api/coals/{id}", s.handleUpdateCoal)
	mux.HandleFunc("DELETE /api/coals/{id}", s.handleDeleteCoal)

	mux.HandleFunc("POST /api/blends", s.handleRecordBlend)
	mux.HandleFunc("POST /api/blends/preview", s.handlePreviewBlend)
	mux.HandleFunc("GET /api/blends", s.handleListBlends)
	mux.HandleFunc("GET /api/blends/latest", s.handleLatestBlend)
	mux.HandleFunc("GET /api/blends/{id}", s.handleGetBlend)
	mux.HandleFunc("DELETE /api/blends/{id}", s.handleDeleteBlend)

	mux.HandleFunc("GET /api/bunkers", s.handleBunkers)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /ws", s.handleWS)

	return withCORS(withLogging(mux))
}

// RunHub feeds monitor updates to websocket clients until ctx is done.
func (s *Server) RunHub(ctx context.Context) error {
	updates, cancel := s.monitor.Subscribe()
	defer cancel()
	return s.hub.Run(ctx, updates)
}

// Start listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logging.Get(logging.CategoryServer)
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.RunHub(gctx) })
	g.Go(func() error {
		log.Info("listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed: %v", err)
			return srv.Close()
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"store":   stats,
		"clients": s.hub.Len(),
	})
}

func (s *Server) handleBunkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Summary())
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryServer).Warn("failed to encode response: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, blend.ErrInvalidInput), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Get(logging.CategoryServer).Error("request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
