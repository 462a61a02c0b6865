// Package events publishes task lifecycle events for monitoring.
package events

import (
	"context"
	"log/slog"
	"time"

	"crmapi/internal/config"
)

type Kind string

const (
	TaskSent      Kind = "task-sent"
	TaskStarted   Kind = "task-started"
	TaskSucceeded Kind = "task-succeeded"
	TaskFailed    Kind = "task-failed"
	TaskRetried   Kind = "task-retried"
)

type Event struct {
	Kind      Kind      `json:"type"`
	TaskID    string    `json:"task_id"`
	Task      string    `json:"task"`
	Queue     string    `json:"queue"`
	Retries   int       `json:"retries"`
	Runtime   float64   `json:"runtime,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Failures are reported but callers treat them
// as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// log-only publisher otherwise.
func NewPublisher(c config.KafkaConfig, logger *slog.Logger) Publisher {
	if len(c.Brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(c.Brokers, c.Topic)
}

// LogPublisher writes events to a slog logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	attrs := []any{
		"type", string(e.Kind),
		"task_id", e.TaskID,
		"task", e.Task,
		"queue", e.Queue,
		"retries", e.Retries,
	}
	if e.Runtime > 0 {
		attrs = append(attrs, "runtime", e.Runtime)
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}
	p.logger.InfoContext(ctx, "task_event", attrs...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
