package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/ingest"
	"github.com/omnii-ai/brainmem/pkg/retrieval"
	"github.com/omnii-ai/brainmem/pkg/tools"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ContextRequest is the body of POST /context.
type ContextRequest struct {
	UserID            string        `json:"user_id"`
	Query             string        `json:"query"`
	Channel           brain.Channel `json:"channel"`
	SourceIdentifier  string        `json:"source_identifier"`
	WorkingMemorySize int           `json:"working_memory_size,omitempty"`
}

// EditRequest is the body of PATCH /messages/:id.
type EditRequest struct {
	Content string `json:"content"`
}

// ExecuteRequest is the body of POST /tools/execute.
type ExecuteRequest struct {
	UserID           string         `json:"user_id"`
	Channel          brain.Channel  `json:"channel"`
	SourceIdentifier string         `json:"source_identifier"`
	Call             tools.ToolCall `json:"call"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns graph size counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.graph.Stats(c.Context())
	if err != nil {
		s.logger.Error("failed to load graph stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load stats"})
	}

	return c.JSON(stats)
}

// handleIngest persists a new channel message.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var input brain.IngestInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	msg, err := s.ingestor.Ingest(c.Context(), input)

	var validationErr *brain.ValidationError
	var unconfirmedErr *ingest.UnconfirmedError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validationErr.Error()})
	case errors.As(err, &unconfirmedErr):
		// The write finishes in the background; tell the caller so.
		return c.Status(fiber.StatusAccepted).JSON(ErrorResponse{Error: unconfirmedErr.Error()})
	case err != nil:
		s.logger.Error("ingestion failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "ingestion failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// handleEdit updates a message's content and relinks its concepts.
func (s *Server) handleEdit(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "message id required"})
	}

	var req EditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	msg, err := s.ingestor.EditMessage(c.Context(), id, req.Content)

	var validationErr *brain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validationErr.Error()})
	case err != nil:
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "message not found"})
	}

	return c.JSON(msg)
}

// handleContext assembles the three-tier memory context for a user.
func (s *Server) handleContext(c *fiber.Ctx) error {
	var req ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	opts := &retrieval.Options{
		WorkingMemorySize: s.config.WorkingMemorySize,
		CacheTTL:          s.config.CacheTTL,
	}
	if req.WorkingMemorySize > 0 {
		opts.WorkingMemorySize = req.WorkingMemorySize
	}

	mc, err := s.engine.GetContext(c.Context(), req.UserID, req.Query, req.Channel, req.SourceIdentifier, opts)

	var validationErr *brain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validationErr.Error()})
	case err != nil:
		s.logger.Error("context retrieval failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "retrieval failed"})
	}

	return c.JSON(mc)
}

// handleExecute runs a tool call with memory enrichment.
func (s *Server) handleExecute(c *fiber.Ctx) error {
	if s.enhancer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "tool execution not configured"})
	}

	var req ExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.enhancer.ExecuteWithMemory(c.Context(), req.UserID, req.Call, req.Channel, req.SourceIdentifier)

	var validationErr *brain.ValidationError
	var execErr *tools.ExecutionError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validationErr.Error()})
	case errors.As(err, &execErr):
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: execErr.Error()})
	case err != nil:
		s.logger.Error("tool execution failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "tool execution failed"})
	}

	return c.JSON(result)
}

// handleConsolidate triggers one consolidation run.
func (s *Server) handleConsolidate(c *fiber.Ctx) error {
	if s.consolidator == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "consolidation not configured"})
	}

	report, err := s.consolidator.RunOnce(c.Context())
	if err != nil {
		s.logger.Error("consolidation run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "consolidation failed"})
	}

	return c.JSON(report)
}
