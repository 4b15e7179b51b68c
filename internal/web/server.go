// Package web serves the results board over HTTP: the HTML table, the JSON
// snapshot and the live push endpoints.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"equiscore/internal/config"
	"equiscore/internal/logging"
	"equiscore/internal/push"
	"equiscore/internal/store"
	"equiscore/internal/watcher"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// StatsSource reports watcher activity for /healthz. It is optional.
type StatsSource interface {
	Stats() watcher.Stats
}

// Server is the HTTP front of the results board.
type Server struct {
	cfg     config.ServerConfig
	push    config.PushConfig
	results *store.Results
	hub     *push.Hub
	events  *push.SSEServer
	watch   StatsSource
	tmpl    *template.Template
	logger  *zap.Logger

	shutdownTimeout time.Duration

	handler http.Handler
}

// New builds the server and its routes. watch may be nil.
func New(cfg *config.Config, results *store.Results, hub *push.Hub, watch StatsSource) (*Server, error) {
	tmpl, err := loadTemplates(cfg.Server.TemplatePath)
	if err != nil {
		return nil, err
	}

	events, err := push.NewSSEServer(hub, cfg.GetKeepalive())
	if err != nil {
		return nil, fmt.Errorf("start event stream: %w", err)
	}

	s := &Server{
		cfg:             cfg.Server,
		push:            cfg.Push,
		results:         results,
		hub:             hub,
		events:          events,
		watch:           watch,
		tmpl:            tmpl,
		logger:          logging.Base().Named(string(logging.CategoryHTTP)),
		shutdownTimeout: cfg.GetShutdownTimeout(),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	compress := func(h http.Handler) http.Handler {
		if !s.cfg.Gzip {
			return h
		}
		return gzhttp.GzipHandler(h)
	}

	mux.Handle("GET /{$}", compress(http.HandlerFunc(s.handleIndex)))
	mux.Handle("GET /data", compress(http.HandlerFunc(s.handleData)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /events", s.events)
	if s.push.WebSocket {
		mux.Handle("GET /ws", push.WebSocketHandler(s.hub))
	}
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /static/", compress(http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir)))))
	}

	return s.logRequests(s.cors(mux))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully. Open event streams are closed by the caller closing the hub.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.HTTP("listening on http://%s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Streams only end when their subscription does.
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.events.Shutdown(shutdownCtx); err != nil {
		logging.Get(logging.CategoryHTTP).Warn("closing event streams: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Get(logging.CategoryHTTP).Warn("graceful shutdown failed: %v", err)
		server.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.HTTP("server stopped")
	return <-errCh
}
