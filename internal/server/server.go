package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/efebarandurmaz/ragline/internal/observability"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Version         string
}

// Server serves the API, the probes and /metrics, and shuts down on signal.
type Server struct {
	cfg      Config
	http     *http.Server
	handler  http.Handler
	Probes   *Probes
	Shutdown *ShutdownHandler
}

// New assembles the routes and middleware. metrics may be nil.
func New(cfg Config, api *API, metrics *observability.PipelineMetrics) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	probes := NewProbes(cfg.Version)
	shutdown := NewShutdownHandler(&ShutdownConfig{
		Timeout: cfg.ShutdownTimeout,
		Signals: DefaultShutdownConfig().Signals,
	})

	mux := http.NewServeMux()
	api.Register(mux)
	probes.Register(mux)

	var handler http.Handler = mux
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
		handler = metricsMiddleware(metrics)(handler)
	}
	handler = corsMiddleware(requestIDMiddleware(loggingMiddleware(handler)))

	s := &Server{
		cfg:      cfg,
		handler:  handler,
		Probes:   probes,
		Shutdown: shutdown,
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
	shutdown.Add(HTTPServerShutdownHook("http", s.http.Shutdown))
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// RegisterHook adds a shutdown hook.
func (s *Server) RegisterHook(h ShutdownHook) { s.Shutdown.Add(h) }

// Run serves until a shutdown signal arrives or ctx is cancelled, then runs
// the shutdown hooks and returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("Starting HTTP server", "addr", ln.Addr().String())

	s.Shutdown.Start()
	s.Probes.SetReady(true)

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown.Shutdown()
		case <-s.Shutdown.ShutdownCh():
		}
		s.Probes.SetReady(false)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			s.Shutdown.Shutdown()
			s.Shutdown.Wait()
			return fmt.Errorf("http server: %w", err)
		}
		s.Shutdown.Wait()
	case <-s.Shutdown.Done():
	}
	slog.Info("HTTP server stopped")
	return nil
}
