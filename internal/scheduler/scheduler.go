// Package scheduler runs the periodic CRM jobs on cron expressions. An entry
// either enqueues a task for the worker or runs a job in-process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crmapi/internal/config"
	"crmapi/internal/model"
)

const (
	KindEnqueue = "enqueue"
	KindInline  = "inline"
)

var (
	ErrUnknownEntry = errors.New("unknown schedule entry")
	ErrUnknownJob   = errors.New("unknown inline job")
)

// Enqueuer publishes a task for the worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any) (*model.TaskRecord, error)
}

// Options tune a Scheduler. Zero values mean UTC and a five minute timeout.
type Options struct {
	Location   *time.Location
	JobTimeout time.Duration
}

// EntryInfo describes a scheduled entry and its next firing.
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Kind string    `json:"kind"`
	Task string    `json:"task"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

type scheduled struct {
	entry config.ScheduleEntry
	id    cron.EntryID
}

type Scheduler struct {
	cron    *cron.Cron
	client  Enqueuer
	jobs    map[string]func(context.Context) error
	timeout time.Duration
	loc     *time.Location
	logger  *slog.Logger

	mu      sync.Mutex
	base    context.Context
	entries map[string]scheduled
}

// Parser accepts standard five-field expressions plus @hourly style
// descriptors.
func Parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func New(client Enqueuer, jobs map[string]func(context.Context) error, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	log := logger.With("component", "scheduler")
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser()),
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		client:  client,
		jobs:    jobs,
		timeout: opts.JobTimeout,
		loc:     opts.Location,
		logger:  log,
		base:    context.Background(),
		entries: make(map[string]scheduled),
	}
}

// Add schedules e. Disabled entries are accepted and skipped.
func (s *Scheduler) Add(e config.ScheduleEntry) error {
	if e.Disabled {
		return nil
	}
	switch e.Kind {
	case KindEnqueue:
		if s.client == nil {
			return fmt.Errorf("entry %s: no task client configured", e.Name)
		}
	case KindInline:
		if _, ok := s.jobs[e.Task]; !ok {
			return fmt.Errorf("entry %s: %w: %s", e.Name, ErrUnknownJob, e.Task)
		}
	default:
		return fmt.Errorf("entry %s: unknown kind %q", e.Name, e.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[e.Name]; dup {
		return fmt.Errorf("entry %s already scheduled", e.Name)
	}

	id, err := s.cron.AddFunc(e.Spec, func() {
		s.mu.Lock()
		ctx := s.base
		s.mu.Unlock()
		_ = s.run(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("entry %s: invalid spec %q: %w", e.Name, e.Spec, err)
	}
	s.entries[e.Name] = scheduled{entry: e, id: id}
	return nil
}

// AddAll schedules every entry, stopping at the first error.
func (s *Scheduler) AddAll(entries []config.ScheduleEntry) error {
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the cron loop in the background. Jobs see ctx (bounded by the
// per-job timeout).
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler_started", "entries", len(s.entries), "timezone", s.loc.String())
}

// Stop halts scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.logger.Info("scheduler_stopped")
	return done
}

// Entries lists scheduled entries ordered by name.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().In(s.loc)
	out := make([]EntryInfo, 0, len(s.entries))
	for _, sc := range s.entries {
		info := EntryInfo{Name: sc.entry.Name, Spec: sc.entry.Spec, Kind: sc.entry.Kind, Task: sc.entry.Task}
		ce := s.cron.Entry(sc.id)
		info.Next, info.Prev = ce.Next, ce.Prev
		if info.Next.IsZero() && ce.Schedule != nil {
			info.Next = ce.Schedule.Next(now)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// RunNow runs the entry named name (or the entry whose task is name) once,
// outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	sc, ok := s.entries[name]
	if !ok {
		for _, cand := range s.entries {
			if cand.entry.Task == name {
				sc, ok = cand, true
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	return s.run(ctx, sc.entry)
}

func (s *Scheduler) run(ctx context.Context, e config.ScheduleEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.logger.With("entry", e.Name, "kind", e.Kind, "task", e.Task)
	start := time.Now()

	var err error
	switch e.Kind {
	case KindEnqueue:
		var rec *model.TaskRecord
		rec, err = s.client.Enqueue(ctx, e.Task, nil)
		if err == nil {
			log = log.With("task_id", rec.ID)
		}
	case KindInline:
		err = s.jobs[e.Task](ctx)
	}

	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("schedule_run_failed", "error", err.Error(), "duration_ms", elapsed)
		return err
	}
	log.Info("schedule_run_completed", "duration_ms", elapsed)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron_"+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
