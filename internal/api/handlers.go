package api

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v3"

	"featloc/internal/engine"
	"featloc/internal/entity"
	"featloc/internal/indexer"
	"featloc/internal/jobs"
	"featloc/internal/logging"
	"featloc/internal/models"
)

// Service is the part of *engine.Engine the handlers use.
type Service interface {
	Scan(ctx context.Context, root string, progress indexer.ProgressFunc) (*entity.Store, error)
	Query(ctx context.Context, query string) (*engine.QueryResult, error)
	LocateSubtasks(ctx context.Context, descriptors []models.SubtaskDescriptor) ([]models.SubtaskResult, error)
	AnalyzeCollaboration(ctx context.Context, query string, results []models.SubtaskResult) (string, error)
}

// JobRunner is satisfied by *jobs.Runner.
type JobRunner interface {
	Submit(jobType jobs.JobType, scope any, handler jobs.Handler) (*jobs.Job, error)
	GetJob(id string) (*jobs.Job, error)
	Latest() (*jobs.Job, error)
}

type Handler struct {
	svc    Service
	jobs   JobRunner
	logger *slog.Logger
}

func NewHandler(svc Service, runner JobRunner, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, jobs: runner, logger: logging.OrDiscard(logger)}
}

type analyzeInput struct {
	SourceDir string `json:"sourceDir"`
}

type queryInput struct {
	Query string `json:"query"`
}

type subtasksInput struct {
	Subtasks []string `json:"subtasks"`
}

type scanResult struct {
	Entities  int `json:"entities"`
	Functions int `json:"functions"`
}

func (h *Handler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "featloc",
	})
}

// Analyze starts a background scan of sourceDir and answers 202 right away.
func (h *Handler) Analyze(c fiber.Ctx) error {
	var input analyzeInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if input.SourceDir == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sourceDir is required"})
	}
	if info, err := os.Stat(input.SourceDir); err != nil || !info.IsDir() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sourceDir is not a directory"})
	}

	root := input.SourceDir
	job, err := h.jobs.Submit(jobs.JobTypeScan, input, func(ctx context.Context, progress func(int)) (any, error) {
		store, err := h.svc.Scan(ctx, root, func(done, total int) {
			if total > 0 {
				// 100 is reserved for completion
				progress(min(done*100/total, 99))
			}
		})
		if err != nil {
			return nil, err
		}
		return scanResult{Entities: store.Len(), Functions: len(store.Functions())}, nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("scan submitted", "jobId", job.ID, "sourceDir", root)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// legacyStatus maps job states onto the running/done/error vocabulary of the
// single-status progress endpoint.
func legacyStatus(status jobs.JobStatus) string {
	switch status {
	case jobs.JobCompleted:
		return "done"
	case jobs.JobFailed:
		return "error"
	default:
		return "running"
	}
}

func (h *Handler) Progress(c fiber.Ctx) error {
	job, err := h.jobs.Latest()
	if errors.Is(err, jobs.ErrJobNotFound) {
		return c.JSON(fiber.Map{"status": "idle"})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": legacyStatus(job.Status), "job": job})
}

func (h *Handler) JobProgress(c fiber.Ctx) error {
	job, err := h.jobs.GetJob(c.Params("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": legacyStatus(job.Status), "job": job})
}

func (h *Handler) Query(c fiber.Ctx) error {
	var input queryInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if input.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}
	result, err := h.svc.Query(c.Context(), input.Query)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(result)
}

// LocateSubtasks accepts an optional body; without sub-tasks it re-locates
// the last decomposition.
func (h *Handler) LocateSubtasks(c fiber.Ctx) error {
	var input subtasksInput
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	descriptors := make([]models.SubtaskDescriptor, len(input.Subtasks))
	for i, d := range input.Subtasks {
		descriptors[i] = models.SubtaskDescriptor{ClusterID: i, Description: d}
	}
	results, err := h.svc.LocateSubtasks(c.Context(), descriptors)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"results": results})
}

func (h *Handler) AnalyzeCollaboration(c fiber.Ctx) error {
	var input queryInput
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	analysis, err := h.svc.AnalyzeCollaboration(c.Context(), input.Query, nil)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"analysis": analysis})
}

func (h *Handler) fail(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrMalformedInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, models.ErrCollaborator):
		status = fiber.StatusBadGateway
	}
	if status != fiber.StatusBadRequest {
		h.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
