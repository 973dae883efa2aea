package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/memd/pkg/store"
)

// Server is the read API server over the durable store.
type Server struct {
	config Config
	store  store.Store
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The store is injected so it can be
// shared with the worker pool when everything runs in one process.
func NewServer(config Config, st store.Store, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		store:  st,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/memories", s.handleListMemories)
	app.Get("/v1/memories/:id", s.handleGetMemory)
	app.Get("/v1/memories/:id/revisions", s.handleGetRevisions)
	app.Get("/v1/jobs/:id", s.handleGetJob)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
