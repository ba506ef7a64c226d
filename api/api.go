package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/consolidation"
	"github.com/omnii-ai/brainmem/pkg/graph"
	"github.com/omnii-ai/brainmem/pkg/ingest"
	"github.com/omnii-ai/brainmem/pkg/retrieval"
	"github.com/omnii-ai/brainmem/pkg/tools"
)

// Server is the HTTP API server for the brainmem engine.
type Server struct {
	config       Config
	ingestor     *ingest.Service
	engine       *retrieval.Engine
	enhancer     *tools.Enhancer
	consolidator *consolidation.Consolidator
	graph        graph.Driver
	logger       *zap.Logger
	app          *fiber.App
}

// NewServer creates a new API server. The enhancer and consolidator may be
// nil; their endpoints then respond 503.
func NewServer(config Config, ingestor *ingest.Service, engine *retrieval.Engine, enhancer *tools.Enhancer, consolidator *consolidation.Consolidator, g graph.Driver, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		ingestor:     ingestor,
		engine:       engine,
		enhancer:     enhancer,
		consolidator: consolidator,
		graph:        g,
		logger:       logger,
		app:          app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/stats", s.handleStats)
	app.Post("/messages", s.handleIngest)
	app.Patch("/messages/:id", s.handleEdit)
	app.Post("/context", s.handleContext)
	app.Post("/tools/execute", s.handleExecute)
	app.Post("/consolidate", s.handleConsolidate)

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
