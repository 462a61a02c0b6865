package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"crmapi/internal/model"
	"crmapi/internal/repository"
	"crmapi/internal/task"
)

// TaskService is the task client surface the HTTP layer uses.
type TaskService interface {
	EnqueueIn(ctx context.Context, name string, args any, countdown time.Duration) (*model.TaskRecord, error)
	Status(ctx context.Context, id string) (*model.TaskRecord, error)
	List(ctx context.Context, limit, offset int) (*repository.PageResult[model.TaskRecord], error)
}

// EnqueueTask godoc
// @Summary Enqueue a background task
// @Description The request body, when present, is passed to the task as its JSON arguments.
// @Tags tasks
// @Accept json
// @Produce json
// @Param name path string true "Registered task name"
// @Param countdown query string false "Delay such as 30s"
// @Success 202 {object} map[string]string
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /tasks/{name} [post]
func EnqueueTask(svc TaskService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var args any
		if body := bytes.TrimSpace(c.Body()); len(body) > 0 {
			if !json.Valid(body) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ARGS", "task arguments must be valid JSON")
			}
			args = json.RawMessage(body)
		}

		var countdown time.Duration
		if v := c.Query("countdown"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_COUNTDOWN", "countdown must be a non-negative duration")
			}
			countdown = d
		}

		rec, err := svc.EnqueueIn(c.UserContext(), c.Params("name"), args, countdown)
		if err != nil {
			if errors.Is(err, task.ErrUnknownTask) {
				return writeError(c, fiber.StatusNotFound, "UNKNOWN_TASK", "task is not registered")
			}
			return internal(c)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"id":     rec.ID,
			"task":   rec.Name,
			"queue":  rec.Queue,
			"status": rec.Status,
		})
	}
}

// GetTask godoc
// @Summary Task status
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} model.TaskRecord
// @Failure 404 {object} errorPayload
// @Router /tasks/{id} [get]
func GetTask(svc TaskService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := svc.Status(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, task.ErrTaskNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "task not found")
			}
			return internal(c)
		}
		return c.JSON(rec)
	}
}

// ListTasks godoc
// @Summary Recent tasks
// @Tags tasks
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /tasks [get]
func ListTasks(svc TaskService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return internal(c)
		}
		return c.JSON(fiber.Map{"data": res.Items, "total": res.Total})
	}
}
