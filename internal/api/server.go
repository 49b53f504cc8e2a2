package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Server wraps the HTTP server and its routed handlers.
type Server struct {
	config config.ServerConfig
	server *http.Server
}

// NewServer creates the API server.
func NewServer(cfg config.ServerConfig, corsCfg config.CORSConfig, h *Handlers) *Server {
	router := SetupRoutes(h, corsCfg.AllowedOrigins)
	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	logger.Info("api server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("api server shutting down")
	return s.server.Shutdown(ctx)
}
