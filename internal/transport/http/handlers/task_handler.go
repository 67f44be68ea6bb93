package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/infrastructure/remote"
	"github.com/scrapedeck/console/internal/transport/http/dto"
)

type TaskHandler struct {
	registry ports.TaskRegistry
	logger   *logger.Logger
}

func NewTaskHandler(registry ports.TaskRegistry, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{registry: registry, logger: logger}
}

// GetTasks serves the registry snapshot. ?refresh=true pulls from the
// backend first; a failed pull still returns the retained list.
func (h *TaskHandler) GetTasks(c *fiber.Ctx) error {
	if c.QueryBool("refresh") {
		if err := h.registry.Refresh(c.UserContext()); err != nil {
			h.logger.Warnw("tasks_refresh_failed", "error", err)
		}
	}

	tasks := h.registry.List()
	return c.JSON(dto.TaskListResponse{
		Tasks:   tasks,
		Loading: h.registry.Loading(),
		Error:   h.registry.Err(),
	})
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if c.QueryBool("refresh") {
		task, err := h.registry.Fetch(c.UserContext(), id)
		if err != nil {
			return h.fail(c, "task_fetch_failed", id, err)
		}
		return c.JSON(task)
	}

	task, ok := h.registry.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}
	return c.JSON(task)
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("task_create_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	h.logger.Infow("task_create_request", "url", req.URL)
	id, err := h.registry.Create(c.UserContext(), req.ToSpec())
	if err != nil {
		return h.fail(c, "task_create_failed", "", err)
	}

	h.logger.Infow("task_create_success", "id", id)
	return c.Status(fiber.StatusCreated).JSON(dto.CreateTaskResponse{TaskID: id})
}

func (h *TaskHandler) ExecuteTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_execute_request", "id", id)

	resp, err := h.registry.Execute(c.UserContext(), id)
	if err != nil {
		return h.fail(c, "task_execute_failed", id, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.PassthroughResponse{TaskID: id, Data: resp})
}

func (h *TaskHandler) RetryTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_retry_request", "id", id)

	if err := h.registry.Retry(c.UserContext(), id); err != nil {
		return h.fail(c, "task_retry_failed", id, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{Message: "task retry requested"})
}

func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_delete_request", "id", id)

	if err := h.registry.Remove(c.UserContext(), id); err != nil {
		return h.fail(c, "task_delete_failed", id, err)
	}
	return c.JSON(dto.SuccessResponse{Message: "task deleted"})
}

func (h *TaskHandler) GetTaskLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	logs, err := h.registry.FetchLogs(c.UserContext(), id)
	if err != nil {
		return h.fail(c, "task_logs_failed", id, err)
	}
	return c.JSON(dto.PassthroughResponse{TaskID: id, Data: logs})
}

func (h *TaskHandler) GetTaskResults(c *fiber.Ctx) error {
	id := c.Params("id")
	results, err := h.registry.FetchResults(c.UserContext(), id)
	if err != nil {
		return h.fail(c, "task_results_failed", id, err)
	}
	return c.JSON(dto.PassthroughResponse{TaskID: id, Data: results})
}

// fail maps registry errors onto console status codes. Backend 4xx answers
// pass through; everything else from the backend is a bad gateway.
func (h *TaskHandler) fail(c *fiber.Ctx, event, id string, err error) error {
	status := fiber.StatusBadGateway
	message := err.Error()

	var statusErr *remote.StatusError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500:
		status = statusErr.Code
		if detail := statusErr.Detail(); detail != "" {
			message = detail
		}
	case errors.As(err, &statusErr):
		message = http.StatusText(statusErr.Code)
		if detail := statusErr.Detail(); detail != "" {
			message = detail
		}
	}

	if status >= 500 {
		h.logger.Errorw(event, "id", id, "error", err)
	} else {
		h.logger.Warnw(event, "id", id, "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: message})
}
