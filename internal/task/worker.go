package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crmapi/internal/broker"
	"crmapi/internal/config"
	"crmapi/internal/events"
	"crmapi/internal/model"
	"crmapi/internal/repository"
)

var tracer = otel.Tracer("crmapi/internal/task")

// WorkerConfig holds the runtime limits of a Worker.
type WorkerConfig struct {
	Concurrency       int
	Queues            []string
	SoftTimeLimit     time.Duration
	HardTimeLimit     time.Duration
	PollTimeout       time.Duration
	VisibilityTimeout time.Duration
	PromoteInterval   time.Duration
}

// WorkerConfigFrom converts the environment settings, filling defaults.
func WorkerConfigFrom(c config.WorkerConfig) WorkerConfig {
	return WorkerConfig{
		Concurrency:       c.Concurrency,
		Queues:            c.Queues,
		SoftTimeLimit:     c.SoftTimeLimit,
		HardTimeLimit:     c.HardTimeLimit,
		PollTimeout:       c.PollTimeout,
		VisibilityTimeout: c.VisibilityTimeout,
	}.withDefaults()
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if len(c.Queues) == 0 {
		c.Queues = Queues()
	}
	if c.SoftTimeLimit <= 0 {
		c.SoftTimeLimit = 60 * time.Second
	}
	if c.HardTimeLimit < c.SoftTimeLimit {
		c.HardTimeLimit = 2 * c.SoftTimeLimit
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Minute
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = time.Second
	}
	return c
}

// Validate rejects limits under which a message could be redelivered while
// its first run is still allowed to execute.
func (c WorkerConfig) Validate() error {
	if c.VisibilityTimeout <= c.HardTimeLimit {
		return fmt.Errorf("visibility timeout %s must exceed hard time limit %s", c.VisibilityTimeout, c.HardTimeLimit)
	}
	return nil
}

// Worker consumes queues with a fixed pool of goroutines. Each goroutine
// holds at most one reserved message.
type Worker struct {
	broker   broker.Broker
	tasks    repository.TaskRepository
	registry *Registry
	events   events.Publisher
	metrics  *Metrics
	cfg      WorkerConfig
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewWorker(b broker.Broker, tasks repository.TaskRepository, reg *Registry, pub events.Publisher, metrics *Metrics, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NewLogPublisher(logger)
	}
	return &Worker{
		broker:   b,
		tasks:    tasks,
		registry: reg,
		events:   pub,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "worker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled and every in-flight task has finished.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.cfg.Validate(); err != nil {
		return err
	}
	for _, q := range w.cfg.Queues {
		if _, err := w.broker.Len(ctx, q); err != nil {
			return fmt.Errorf("check queue %s: %w", q, err)
		}
	}
	w.requeueStale(ctx)

	w.logger.Info("worker started",
		"concurrency", w.cfg.Concurrency,
		"queues", w.cfg.Queues,
		"tasks", w.registry.Names())

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	w.wg.Add(1)
	go w.maintain(ctx)

	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	w.logger.Debug("starting worker", "worker_id", id)

	for ctx.Err() == nil {
		m := w.reserve(ctx)
		if m == nil {
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.PollTimeout):
			}
			continue
		}
		w.Process(ctx, m, id)
	}
	w.logger.Debug("stopping worker", "worker_id", id)
}

// reserve takes the next message, checking queues in configured order.
func (w *Worker) reserve(ctx context.Context) *broker.Message {
	for _, q := range w.cfg.Queues {
		m, err := w.broker.Reserve(ctx, q, 0)
		switch {
		case err == nil:
			return m
		case errors.Is(err, broker.ErrQueueEmpty):
			continue
		case errors.Is(err, broker.ErrMalformed):
			w.logger.Warn("dropped malformed message", "queue", q, "error", err)
		case ctx.Err() != nil:
			return nil
		default:
			w.logger.Error("failed to reserve message", "queue", q, "error", err)
			return nil
		}
	}
	return nil
}

// maintain promotes due delayed messages and requeues messages whose
// consumer disappeared.
func (w *Worker) maintain(ctx context.Context) {
	defer w.wg.Done()

	promote := time.NewTicker(w.cfg.PromoteInterval)
	defer promote.Stop()
	stale := time.NewTicker(max(w.cfg.VisibilityTimeout/2, time.Second))
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			if n, err := w.broker.PromoteDue(ctx, w.now()); err != nil {
				if ctx.Err() == nil {
					w.logger.Error("failed to promote delayed messages", "error", err)
				}
			} else if n > 0 {
				w.logger.Debug("promoted delayed messages", "count", n)
			}
		case <-stale.C:
			w.requeueStale(ctx)
		}
	}
}

func (w *Worker) requeueStale(ctx context.Context) {
	for _, q := range w.cfg.Queues {
		n, err := w.broker.RequeueStale(ctx, q, w.cfg.VisibilityTimeout)
		if err != nil {
			w.logger.Error("failed to requeue stale messages", "queue", q, "error", err)
			continue
		}
		if n > 0 {
			w.logger.Info("requeued stale messages", "queue", q, "count", n)
		}
	}
}

type outcome struct {
	result any
	err    error
}

// Process runs one reserved message to completion and acknowledges it.
// Bookkeeping survives cancellation of ctx so a shutdown drains cleanly.
func (w *Worker) Process(ctx context.Context, m *broker.Message, workerID int) {
	ctx, span := tracer.Start(ctx, "task "+m.Task,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("task.id", m.ID),
			attribute.String("task.queue", m.Queue),
			attribute.Int("task.retries", m.Retries),
		))
	defer span.End()

	bg := context.WithoutCancel(ctx)
	log := w.logger.With("task_id", m.ID, "task", m.Task, "queue", m.Queue, "worker_id", workerID, "retries", m.Retries)

	defer func() {
		if err := w.broker.Ack(bg, m); err != nil {
			log.Error("failed to ack message", "error", err)
		}
	}()

	def, ok := w.registry.Lookup(m.Task)
	if !ok {
		log.Error("received unregistered task")
		w.update(bg, log, m.ID, repository.TaskUpdate{Status: model.TaskFailed, Retries: m.Retries, Error: ErrUnknownTask.Error()})
		w.metrics.observe(m.Task, string(model.TaskFailed), -1)
		return
	}

	w.update(bg, log, m.ID, repository.TaskUpdate{Status: model.TaskProcessing, Retries: m.Retries})
	w.emit(bg, log, m, events.TaskStarted, 0, "")
	log.Info("processing task")

	start := time.Now()
	res := w.execute(bg, def, m, log)
	elapsed := time.Since(start).Seconds()

	var retry *RetryError
	switch {
	case res.err == nil:
		body, err := json.Marshal(res.result)
		if err != nil {
			body, _ = json.Marshal(fmt.Sprintf("%v", res.result))
		}
		w.update(bg, log, m.ID, repository.TaskUpdate{Status: model.TaskCompleted, Retries: m.Retries, Result: body})
		w.emit(bg, log, m, events.TaskSucceeded, elapsed, "")
		w.metrics.observe(m.Task, string(model.TaskCompleted), elapsed)
		log.Info("task completed successfully", "runtime", elapsed)

	case errors.As(res.err, &retry) && m.Retries < m.MaxRetries:
		countdown := retry.Countdown
		if countdown <= 0 {
			countdown = def.RetryDelay
		}
		next := &broker.Message{
			ID:         m.ID,
			Task:       m.Task,
			Queue:      m.Queue,
			Args:       m.Args,
			Retries:    m.Retries + 1,
			MaxRetries: m.MaxRetries,
			SentAt:     w.now(),
		}
		if err := w.broker.PublishDelayed(bg, next, w.now().Add(countdown)); err != nil {
			log.Error("failed to schedule retry", "error", err)
			w.fail(bg, log, m, fmt.Errorf("schedule retry: %w", err), elapsed)
			return
		}
		w.update(bg, log, m.ID, repository.TaskUpdate{Status: model.TaskRetrying, Retries: next.Retries, Error: res.err.Error()})
		w.emit(bg, log, m, events.TaskRetried, elapsed, res.err.Error())
		w.metrics.observe(m.Task, string(model.TaskRetrying), elapsed)
		log.Warn("task scheduled for retry", "countdown", countdown.String(), "error", res.err)

	default:
		err := res.err
		if retry != nil && retry.Err != nil {
			err = retry.Err
		}
		w.fail(bg, log, m, err, elapsed)
	}
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, m *broker.Message, err error, elapsed float64) {
	log.Error("task execution failed", "error", err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.update(ctx, log, m.ID, repository.TaskUpdate{Status: model.TaskFailed, Retries: m.Retries, Error: err.Error()})
	w.emit(ctx, log, m, events.TaskFailed, elapsed, err.Error())
	w.metrics.observe(m.Task, string(model.TaskFailed), elapsed)
}

// execute runs the handler with the soft limit as its context deadline, so
// the context is always done before the hard limit. At the hard limit the
// handler is abandoned and its logger goes quiet.
func (w *Worker) execute(ctx context.Context, def Definition, m *broker.Message, log *slog.Logger) outcome {
	softCtx, cancel := context.WithTimeoutCause(ctx, w.cfg.SoftTimeLimit, ErrSoftTimeLimit)
	defer cancel()

	quiet := &atomic.Bool{}
	req := &Request{
		ID:         m.ID,
		Task:       m.Task,
		Queue:      m.Queue,
		Args:       m.Args,
		Retries:    m.Retries,
		MaxRetries: m.MaxRetries,
		Logger:     slog.New(quietHandler{Handler: log.Handler(), off: quiet}),
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err := def.Handler(softCtx, req)
		done <- outcome{result: result, err: err}
	}()

	hard := time.NewTimer(w.cfg.HardTimeLimit)
	defer hard.Stop()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && softCtx.Err() != nil {
			o.err = fmt.Errorf("%w: %v", ErrSoftTimeLimit, o.err)
		}
		return o
	case <-hard.C:
		quiet.Store(true)
		return outcome{err: fmt.Errorf("%w after %s", ErrHardTimeLimit, w.cfg.HardTimeLimit)}
	}
}

// quietHandler drops every record once off is set.
type quietHandler struct {
	slog.Handler
	off *atomic.Bool
}

func (h quietHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return !h.off.Load() && h.Handler.Enabled(ctx, l)
}

func (h quietHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.off.Load() {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h quietHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return quietHandler{Handler: h.Handler.WithAttrs(attrs), off: h.off}
}

func (h quietHandler) WithGroup(name string) slog.Handler {
	return quietHandler{Handler: h.Handler.WithGroup(name), off: h.off}
}

func (w *Worker) update(ctx context.Context, log *slog.Logger, id string, u repository.TaskUpdate) {
	if err := w.tasks.Update(ctx, id, u); err != nil {
		log.Error("failed to update task status", "status", string(u.Status), "error", err)
	}
}

func (w *Worker) emit(ctx context.Context, log *slog.Logger, m *broker.Message, kind events.Kind, runtime float64, errMsg string) {
	err := w.events.Publish(ctx, events.Event{
		Kind:      kind,
		TaskID:    m.ID,
		Task:      m.Task,
		Queue:     m.Queue,
		Retries:   m.Retries,
		Runtime:   runtime,
		Error:     errMsg,
		Timestamp: w.now(),
	})
	if err != nil {
		log.Warn("task event not delivered", "type", string(kind), "error", err)
	}
}
