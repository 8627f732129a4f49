package api

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/danielpatrickdp/storyforge/internal/checkpoint"
	"github.com/danielpatrickdp/storyforge/internal/journal"
	"github.com/danielpatrickdp/storyforge/internal/pipeline"
)

// #region handler

// Handler serves read-only job status.
type Handler struct {
	results     *pipeline.ResultStore
	checkpoints *checkpoint.Manager
	journal     *journal.Journal
}

func NewHandler(results *pipeline.ResultStore, checkpoints *checkpoint.Manager, j *journal.Journal) *Handler {
	return &Handler{results: results, checkpoints: checkpoints, journal: j}
}

// NewApp builds the fiber app with every route registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(logger.New())

	app.Get("/healthz", h.Health)
	app.Get("/jobs", h.ListJobs)
	app.Get("/jobs/:id", h.GetJob)
	app.Get("/jobs/:id/checkpoints", h.GetCheckpoints)
	app.Get("/jobs/:id/events", h.GetEvents)
	return app
}

// #endregion handler

// #region routes

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) ListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be in [1,500]"})
	}
	list, err := h.results.List(c.UserContext(), limit)
	if err != nil {
		return internalError(c, err)
	}
	if list == nil {
		list = []pipeline.Summary{}
	}
	return c.JSON(list)
}

func (h *Handler) GetJob(c *fiber.Ctx) error {
	out, err := h.results.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, pipeline.ErrNotFound) {
		return notFound(c)
	}
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(out)
}

type checkpointView struct {
	ID        string    `json:"id"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) GetCheckpoints(c *fiber.Ctx) error {
	id := c.Params("id")
	hist, err := h.checkpoints.History(c.UserContext(), id)
	if err != nil {
		return internalError(c, err)
	}
	if len(hist) == 0 {
		return notFound(c)
	}
	views := make([]checkpointView, len(hist))
	for i, cp := range hist {
		views[i] = checkpointView{ID: cp.ID, Phase: cp.Phase, CreatedAt: cp.CreatedAt}
	}
	return c.JSON(fiber.Map{
		"job_id":    id,
		"resumable": true,
		"phase":     hist[len(hist)-1].Phase,
		"history":   views,
	})
}

func (h *Handler) GetEvents(c *fiber.Ctx) error {
	entries, err := h.journal.ForJob(c.UserContext(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}
	if len(entries) == 0 {
		return notFound(c)
	}
	return c.JSON(entries)
}

// #endregion routes

// #region helpers

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
}

func internalError(c *fiber.Ctx, err error) error {
	log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// #endregion helpers
