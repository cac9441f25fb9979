// Package api exposes search, reveal and health over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"quickseek/internal/logging"
	"quickseek/internal/metrics"
	"quickseek/internal/query"
	"quickseek/internal/reveal"
	"quickseek/internal/volume"
)

const maxBodySize = 64 << 10

// StatusSource reports per-volume state and the event backlog for /healthz.
type StatusSource interface {
	Status() []volume.Status
	Pending() int
}

type Server struct {
	engine *query.Engine
	status StatusSource
	// Reveal is called for accepted /open requests.
	Reveal func(path string)
	log    *zap.Logger
}

func NewServer(engine *query.Engine, status StatusSource) *Server {
	return &Server{
		engine: engine,
		status: status,
		Reveal: reveal.Open,
		log:    logging.Named("api"),
	}
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /search", metrics.Instrument("search", http.HandlerFunc(s.handleSearch)))
	mux.Handle("POST /open", metrics.Instrument("open", http.HandlerFunc(s.handleOpen)))
	mux.Handle("GET /healthz", metrics.Instrument("healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())
	return logging.Middleware(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", logging.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	s.sendJSON(w, http.StatusOK, s.engine.SearchLimit(q, limit))
}

type openRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || !filepath.IsAbs(req.Path) {
		s.sendError(w, http.StatusBadRequest, "path must be absolute")
		return
	}
	if s.Reveal != nil {
		s.Reveal(filepath.Clean(req.Path))
	}
	w.WriteHeader(http.StatusAccepted)
}

type healthResponse struct {
	Status        string          `json:"status"`
	Volumes       []volume.Status `json:"volumes"`
	PendingEvents int             `json:"pending_events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Volumes: []volume.Status{}}
	if s.status != nil {
		resp.Volumes = s.status.Status()
		resp.PendingEvents = s.status.Pending()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", logging.Err(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, map[string]string{"error": msg})
}
