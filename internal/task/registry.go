// Package task runs named background tasks over the broker.
//
// A Client records a pending TaskRecord and publishes a message; a Worker
// reserves messages, runs the registered Handler under soft and hard time
// limits, stores the outcome and acknowledges the message.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	QueueDefault = "default"
	QueueReports = "reports"
)

// ErrUnknownTask is returned for names that were never registered.
var ErrUnknownTask = errors.New("unknown task")

// Handler runs one task invocation. The returned value is stored as the JSON
// result. Return Retry(err, countdown) to ask for another attempt.
type Handler func(ctx context.Context, req *Request) (any, error)

// Definition describes a registered task. An empty Queue is filled by Route.
type Definition struct {
	Name       string
	Queue      string
	MaxRetries int
	RetryDelay time.Duration
	Handler    Handler
}

// Route maps a task name to its queue. Only generate_crm_report has a
// dedicated queue; everything else, including its retrying variant, runs on
// the default queue.
func Route(name string) string {
	if name == "generate_crm_report" {
		return QueueReports
	}
	return QueueDefault
}

// Queues lists every queue a Route result can name.
func Queues() []string {
	return []string{QueueDefault, QueueReports}
}

type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return errors.New("task name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("task %s: handler is required", d.Name)
	}
	if d.Queue == "" {
		d.Queue = Route(d.Name)
	}
	if d.MaxRetries < 0 {
		d.MaxRetries = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[d.Name]; dup {
		return fmt.Errorf("task %s already registered", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names returns registered task names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Request is what a Handler sees of the message it is running.
type Request struct {
	ID         string
	Task       string
	Queue      string
	Args       json.RawMessage
	Retries    int
	MaxRetries int
	Logger     *slog.Logger
}

// Bind decodes the task arguments into v. Missing arguments leave v untouched.
func (r *Request) Bind(v any) error {
	if len(r.Args) == 0 || string(r.Args) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("decode args for %s: %w", r.Task, err)
	}
	return nil
}
