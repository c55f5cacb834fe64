// Package http serves the image upload front end of the classifier.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"petclassifier/config"
)

type Server struct {
	server *http.Server
	logger *zap.Logger
}

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxUploadBytes int64
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           3000,
		Timeout:        30 * time.Second,
		MaxUploadBytes: 10 << 20,
	}
}

// ServerConfigFrom maps the http section of the config file.
func ServerConfigFrom(cfg config.HttpConfig) ServerConfig {
	sc := DefaultServerConfig()
	if cfg.Port > 0 {
		sc.Port = cfg.Port
	}
	if cfg.Timeout > 0 {
		sc.Timeout = cfg.Timeout
	}
	if cfg.MaxUploadMB > 0 {
		sc.MaxUploadBytes = cfg.MaxUploadMB << 20
	}
	return sc
}

func NewServer(cfg ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, logger),
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware wrapped handler.
func NewHandler(cfg ServerConfig, handlers *Handlers, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers.Register(mux)

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		TimeoutMiddleware(cfg.Timeout),
		RequestSizeMiddleware(cfg.MaxUploadBytes),
	)
	return chain(mux)
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
