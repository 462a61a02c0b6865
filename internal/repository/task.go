package repository

import (
	"context"
	"encoding/json"

	"crmapi/internal/model"
)

// TaskUpdate is a status transition for a stored task.
type TaskUpdate struct {
	Status  model.TaskStatus
	Retries int
	Result  json.RawMessage
	Error   string
}

// TaskRepository persists background task state.
type TaskRepository interface {
	Save(ctx context.Context, t *model.TaskRecord) error
	Update(ctx context.Context, id string, u TaskUpdate) error
	FindByID(ctx context.Context, id string) (*model.TaskRecord, error)
	ListRecent(ctx context.Context, pq PageQuery) (*PageResult[model.TaskRecord], error)
}
