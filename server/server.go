// Package server provides the HTTP and WebSocket ingress.
//
// The server shares one process and one database handle with the worker:
// it validates submissions against the live plugin registry, persists jobs,
// and streams job state over WebSocket. It never executes tools itself.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rogermt/forgesyte-sub004/blob"
	"github.com/rogermt/forgesyte-sub004/config"
	"github.com/rogermt/forgesyte-sub004/health"
	"github.com/rogermt/forgesyte-sub004/job"
	"github.com/rogermt/forgesyte-sub004/plugin"
	"github.com/rogermt/forgesyte-sub004/progress"
)

// Server is the HTTP ingress for job submission and observation.
type Server struct {
	cfg       *config.Config
	jobs      *job.Store
	registry  *plugin.Registry
	blobs     *blob.Store
	bus       *progress.Bus
	heartbeat *health.Heartbeat
	logger    *zap.SugaredLogger

	httpServer *http.Server
}

// New creates the server and mounts its routes.
func New(
	cfg *config.Config,
	jobs *job.Store,
	registry *plugin.Registry,
	blobs *blob.Store,
	bus *progress.Bus,
	heartbeat *health.Heartbeat,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		cfg:       cfg,
		jobs:      jobs,
		registry:  registry,
		blobs:     blobs,
		bus:       bus,
		heartbeat: heartbeat,
		logger:    logger.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/plugins", s.handleListPlugins)
	mux.HandleFunc("GET /v1/plugins/{id}/manifest", s.handlePluginManifest)
	mux.HandleFunc("POST /v1/image/submit", s.handleImageSubmit)
	mux.HandleFunc("POST /v1/video/submit", s.handleVideoSubmit)
	mux.HandleFunc("GET /v1/jobs/{job_id}", s.handleGetJob)
	mux.HandleFunc("GET /v1/ws/jobs/{job_id}", s.handleJobWebSocket)
	mux.HandleFunc("GET /v1/worker/health", s.handleWorkerHealth)

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves HTTP until the listener fails or Shutdown is called.
// Blocks; run it in its own goroutine.
func (s *Server) Start() error {
	s.logger.Infow("HTTP server listening", "addr", s.cfg.HTTPAddr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
