// Package http serves the speaker-identification API: prediction, enrollment
// training, model inspection and history endpoints, plus a websocket feed of
// training events.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"speakerid/logger"
	"speakerid/registry"
)

// Server is the HTTP front of the service.
type Server struct {
	server *http.Server
	config ServerConfig
	hub    *EventHub
	cancel context.CancelFunc
}

// ServerConfig configures the server and its handlers.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	TrainTimeout   time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string

	// DataDir holds enrolled audio, one subdirectory per speaker.
	DataDir string
	// ModelsDir holds trained models, metadata and speaker labels.
	ModelsDir string
	// CacheSize bounds the feature cache entry count.
	CacheSize int
}

// DefaultServerConfig returns the stock configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8000,
		Timeout:        30 * time.Second,
		TrainTimeout:   10 * time.Minute,
		MaxUploadBytes: 256 << 20,
		AllowedOrigins: []string{"*"},
		DataDir:        "data/raw",
		ModelsDir:      "models",
		CacheSize:      128,
	}
}

// NewServer wires the handlers, middleware chain and websocket hub around the
// given model registry.
func NewServer(config ServerConfig, reg *registry.Registry) (*Server, error) {
	hub := NewEventHub()
	h, err := newHandlers(config, reg, hub)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	h.routes(mux)

	chain := Chain(
		RecoveryMiddleware,
		LoggerMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxUploadBytes),
		TimeoutMiddleware(config.Timeout, "/train"),
		GzipMiddleware,
	)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		hub:    hub,
	}, nil
}

// Start runs the websocket hub and serves until Stop is called. Blocks.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)

	logger.L().Infow("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.L().Info("shutting down http server")
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
