package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crmapi/internal/broker"
	"crmapi/internal/events"
	"crmapi/internal/model"
	"crmapi/internal/repository"
)

// ErrTaskNotFound is returned by Status for unknown task IDs.
var ErrTaskNotFound = errors.New("task not found")

// Client enqueues tasks and reads their recorded state.
type Client struct {
	broker   broker.Broker
	tasks    repository.TaskRepository
	registry *Registry
	events   events.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewClient(b broker.Broker, tasks repository.TaskRepository, reg *Registry, pub events.Publisher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		broker:   b,
		tasks:    tasks,
		registry: reg,
		events:   pub,
		logger:   logger.With("component", "task_client"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Enqueue(ctx context.Context, name string, args any) (*model.TaskRecord, error) {
	return c.EnqueueIn(ctx, name, args, 0)
}

// EnqueueIn publishes the task to run no earlier than countdown from now.
func (c *Client) EnqueueIn(ctx context.Context, name string, args any, countdown time.Duration) (*model.TaskRecord, error) {
	def, ok := c.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	raw, err := encodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}

	now := c.now()
	rec := &model.TaskRecord{
		ID:        uuid.NewString(),
		Name:      def.Name,
		Queue:     def.Queue,
		Args:      raw,
		Status:    model.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.tasks.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	msg := &broker.Message{
		ID:         rec.ID,
		Task:       def.Name,
		Queue:      def.Queue,
		Args:       raw,
		MaxRetries: def.MaxRetries,
		SentAt:     now,
	}
	if countdown > 0 {
		err = c.broker.PublishDelayed(ctx, msg, now.Add(countdown))
	} else {
		err = c.broker.Publish(ctx, msg)
	}
	if err != nil {
		if uerr := c.tasks.Update(ctx, rec.ID, repository.TaskUpdate{
			Status: model.TaskFailed,
			Error:  "publish: " + err.Error(),
		}); uerr != nil {
			c.logger.Error("failed to mark unpublished task", "task_id", rec.ID, "error", uerr)
		}
		return nil, fmt.Errorf("publish task: %w", err)
	}

	if c.events != nil {
		if err := c.events.Publish(ctx, events.Event{
			Kind: events.TaskSent, TaskID: rec.ID, Task: rec.Name, Queue: rec.Queue, Timestamp: now,
		}); err != nil {
			c.logger.Warn("task event not delivered", "task_id", rec.ID, "error", err)
		}
	}

	c.logger.Info("task enqueued", "task_id", rec.ID, "task", rec.Name, "queue", rec.Queue, "countdown", countdown.String())
	return rec, nil
}

func (c *Client) Status(ctx context.Context, id string) (*model.TaskRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	rec, err := c.tasks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// List returns the most recently created tasks first.
func (c *Client) List(ctx context.Context, limit, offset int) (*repository.PageResult[model.TaskRecord], error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return c.tasks.ListRecent(ctx, repository.PageQuery{Limit: limit, Offset: offset})
}

// Registered lists the task names this client can enqueue.
func (c *Client) Registered() []string {
	return c.registry.Names()
}

func encodeArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, errors.New("args are not valid JSON")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}
