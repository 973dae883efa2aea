package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
)

// ErrorResponse is the JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MemoriesResponse wraps a scope listing.
type MemoriesResponse struct {
	ScopeKey string           `json:"scope_key"`
	Count    int              `json:"count"`
	Memories []*memory.Memory `json:"memories"`
}

// RevisionsResponse wraps a memory's revision history.
type RevisionsResponse struct {
	MemoryID  string             `json:"memory_id"`
	Count     int                `json:"count"`
	Revisions []*memory.Revision `json:"revisions"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListMemories returns the memories of one scope. The scope is given
// either as the canonical scope_key query parameter or as individual
// key=value query parameters, which are canonicalized server-side.
func (s *Server) handleListMemories(c *fiber.Ctx) error {
	scopeKey := c.Query("scope_key")
	if scopeKey == "" {
		pairs := map[string]string{}
		for k, vals := range c.Queries() {
			if k == "include_superseded" {
				continue
			}
			pairs[k] = vals
		}
		if len(pairs) > 0 {
			scopeKey = memory.NewScope(pairs).Key()
		}
	}
	if scopeKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "scope_key parameter required"})
	}

	includeSuperseded := c.QueryBool("include_superseded")

	mems, err := s.store.ListMemories(c.Context(), scopeKey, includeSuperseded)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list memories"})
	}

	return c.JSON(MemoriesResponse{
		ScopeKey: scopeKey,
		Count:    len(mems),
		Memories: mems,
	})
}

// handleGetMemory returns a single memory by id.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	m, err := s.store.GetMemory(c.Context(), id)
	if err != nil {
		return notFoundOrInternal(c, err, "memory not found")
	}

	return c.JSON(m)
}

// handleGetRevisions returns the full revision history of a memory.
func (s *Server) handleGetRevisions(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	if _, err := s.store.GetMemory(c.Context(), id); err != nil {
		return notFoundOrInternal(c, err, "memory not found")
	}

	revs, err := s.store.History(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load revisions"})
	}

	return c.JSON(RevisionsResponse{
		MemoryID:  id,
		Count:     len(revs),
		Revisions: revs,
	})
}

// handleGetJob returns the durable record of a consolidation job.
func (s *Server) handleGetJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	rec, err := s.store.GetJob(c.Context(), id)
	if err != nil {
		return notFoundOrInternal(c, err, "job not found")
	}

	return c.JSON(rec)
}

func notFoundOrInternal(c *fiber.Ctx, err error, msg string) error {
	var nf store.NotFoundError
	if errors.As(err, &nf) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: msg})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: msg})
}
