package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"crmapi/internal/model"
	"crmapi/internal/repository"
)

const taskColumns = `id, name, queue, args, status, retries, result, error, created_at, updated_at`

// TaskPostgres stores task state in the tasks table.
type TaskPostgres struct {
	db *sql.DB
}

func NewTaskPostgres(db *sql.DB) *TaskPostgres {
	return &TaskPostgres{db: db}
}

var _ repository.TaskRepository = (*TaskPostgres)(nil)

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func scanTask(s scanner) (model.TaskRecord, error) {
	var (
		t      model.TaskRecord
		status string
		args   []byte
		result []byte
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Queue, &args, &status, &t.Retries, &result, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.TaskRecord{}, err
	}
	t.Status = model.TaskStatus(status)
	if len(args) > 0 {
		t.Args = json.RawMessage(args)
	}
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	return t, nil
}

// Save inserts the record, or overwrites its mutable state when the ID exists.
func (r *TaskPostgres) Save(ctx context.Context, t *model.TaskRecord) error {
	const q = `
		INSERT INTO tasks (id, name, queue, args, status, retries, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7::jsonb, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		  status = EXCLUDED.status,
		  retries = EXCLUDED.retries,
		  result = EXCLUDED.result,
		  error = EXCLUDED.error,
		  updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.Name, t.Queue, nullJSON(t.Args), string(t.Status), t.Retries,
		nullJSON(t.Result), t.Error, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *TaskPostgres) Update(ctx context.Context, id string, u repository.TaskUpdate) error {
	const q = `
		UPDATE tasks
		SET status = $2, retries = $3, result = $4::jsonb, error = $5, updated_at = now()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, string(u.Status), u.Retries, nullJSON(u.Result), u.Error)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskPostgres) FindByID(ctx context.Context, id string) (*model.TaskRecord, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func (r *TaskPostgres) ListRecent(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.TaskRecord], error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&total); err != nil {
		return nil, err
	}

	var w where
	q := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id DESC` + w.page(pq)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.TaskRecord, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.TaskRecord]{Items: items, Total: total}, nil
}
