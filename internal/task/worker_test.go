package task

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crmapi/internal/broker"
	"crmapi/internal/events"
	"crmapi/internal/model"
	"crmapi/internal/repository"
	repoMocks "crmapi/internal/repository/mocks"
)

func status(s model.TaskStatus) any {
	return mock.MatchedBy(func(u repository.TaskUpdate) bool { return u.Status == s })
}

type workerFixture struct {
	broker  *memBroker
	repo    *repoMocks.MockTaskRepository
	pub     *recordingPublisher
	metrics *Metrics
	worker  *Worker
	logs    *bytes.Buffer
}

func newWorkerFixture(t *testing.T, cfg WorkerConfig, defs ...Definition) *workerFixture {
	t.Helper()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &workerFixture{
		broker:  newMemBroker(),
		repo:    new(repoMocks.MockTaskRepository),
		pub:     &recordingPublisher{},
		metrics: metrics,
		logs:    &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	f.worker = NewWorker(f.broker, f.repo, testRegistry(t, defs...), f.pub, metrics, cfg, logger)
	return f
}

func (f *workerFixture) kinds() []events.Kind {
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	var out []events.Kind
	for _, e := range f.pub.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestWorker_ProcessSuccess(t *testing.T) {
	f := newWorkerFixture(t, WorkerConfig{}, Definition{
		Name: "test_celery_task",
		Handler: func(_ context.Context, req *Request) (any, error) {
			return map[string]string{"message": "ok " + req.ID}, nil
		},
	})
	f.repo.On("Update", mock.Anything, "t1", status(model.TaskProcessing)).Return(nil).Once()
	f.repo.On("Update", mock.Anything, "t1", mock.MatchedBy(func(u repository.TaskUpdate) bool {
		return u.Status == model.TaskCompleted && string(u.Result) == `{"message":"ok t1"}`
	})).Return(nil).Once()

	f.worker.Process(context.Background(), &broker.Message{ID: "t1", Task: "test_celery_task", Queue: QueueDefault}, 0)

	f.repo.AssertExpectations(t)
	assert.Equal(t, []string{"t1"}, f.broker.ackedIDs())
	assert.Equal(t, []events.Kind{events.TaskStarted, events.TaskSucceeded}, f.kinds())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.tasks.WithLabelValues("test_celery_task", "completed")))
}

func TestWorker_ProcessRetry(t *testing.T) {
	cause := errors.New("graphql unavailable")
	def := Definition{
		Name:       "generate_crm_report_with_retry",
		MaxRetries: 3,
		RetryDelay: time.Minute,
		Handler: func(context.Context, *Request) (any, error) {
			return nil, Retry(cause, 0)
		},
	}

	t.Run("retries left", func(t *testing.T) {
		f := newWorkerFixture(t, WorkerConfig{}, def)
		now := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
		f.worker.now = func() time.Time { return now }

		f.repo.On("Update", mock.Anything, "r1", status(model.TaskProcessing)).Return(nil)
		f.repo.On("Update", mock.Anything, "r1", mock.MatchedBy(func(u repository.TaskUpdate) bool {
			return u.Status == model.TaskRetrying && u.Retries == 2
		})).Return(nil)

		f.worker.Process(context.Background(), &broker.Message{
			ID: "r1", Task: def.Name, Queue: QueueDefault, Retries: 1, MaxRetries: 3,
		}, 0)

		require.Len(t, f.broker.delayed, 1)
		d := f.broker.delayed[0]
		assert.Equal(t, now.Add(time.Minute), d.at, "falls back to RetryDelay")
		assert.Equal(t, 2, d.msg.Retries)
		assert.Equal(t, "r1", d.msg.ID)
		assert.Equal(t, []string{"r1"}, f.broker.ackedIDs())
		assert.Contains(t, f.kinds(), events.TaskRetried)
		f.repo.AssertExpectations(t)
	})

	t.Run("retries exhausted", func(t *testing.T) {
		f := newWorkerFixture(t, WorkerConfig{}, def)
		f.repo.On("Update", mock.Anything, "r2", status(model.TaskProcessing)).Return(nil)
		f.repo.On("Update", mock.Anything, "r2", mock.MatchedBy(func(u repository.TaskUpdate) bool {
			return u.Status == model.TaskFailed && u.Error == "graphql unavailable"
		})).Return(nil)

		f.worker.Process(context.Background(), &broker.Message{
			ID: "r2", Task: def.Name, Queue: QueueDefault, Retries: 3, MaxRetries: 3,
		}, 0)

		assert.Empty(t, f.broker.delayed)
		assert.Contains(t, f.kinds(), events.TaskFailed)
		f.repo.AssertExpectations(t)
	})
}

func TestWorker_ProcessFailures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WorkerConfig
		handler Handler
		wantErr string
	}{
		{
			name: "plain error is not retried",
			handler: func(context.Context, *Request) (any, error) {
				return nil, errors.New("boom")
			},
			wantErr: "boom",
		},
		{
			name: "panic recovered",
			handler: func(context.Context, *Request) (any, error) {
				panic("nil map")
			},
			wantErr: "panic: nil map",
		},
		{
			name: "soft time limit",
			cfg:  WorkerConfig{SoftTimeLimit: 20 * time.Millisecond, HardTimeLimit: time.Second},
			handler: func(ctx context.Context, _ *Request) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantErr: ErrSoftTimeLimit.Error(),
		},
		{
			name: "hard time limit",
			cfg:  WorkerConfig{SoftTimeLimit: 20 * time.Millisecond, HardTimeLimit: 40 * time.Millisecond},
			handler: func(context.Context, *Request) (any, error) {
				time.Sleep(300 * time.Millisecond)
				return "late", nil
			},
			wantErr: ErrHardTimeLimit.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkerFixture(t, tt.cfg, Definition{Name: "debug_task", MaxRetries: 3, Handler: tt.handler})

			var failed repository.TaskUpdate
			f.repo.On("Update", mock.Anything, "d1", status(model.TaskProcessing)).Return(nil)
			f.repo.On("Update", mock.Anything, "d1", status(model.TaskFailed)).
				Run(func(args mock.Arguments) { failed = args.Get(2).(repository.TaskUpdate) }).
				Return(nil)

			f.worker.Process(context.Background(), &broker.Message{ID: "d1", Task: "debug_task", Queue: QueueDefault, MaxRetries: 3}, 0)

			assert.Contains(t, failed.Error, tt.wantErr)
			assert.Empty(t, f.broker.delayed)
			assert.Equal(t, []string{"d1"}, f.broker.ackedIDs())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.tasks.WithLabelValues("debug_task", "failed")))
		})
	}
}

func TestWorker_ProcessUnknownTask(t *testing.T) {
	f := newWorkerFixture(t, WorkerConfig{})
	f.repo.On("Update", mock.Anything, "u1", mock.MatchedBy(func(u repository.TaskUpdate) bool {
		return u.Status == model.TaskFailed && u.Error == ErrUnknownTask.Error()
	})).Return(nil)

	f.worker.Process(context.Background(), &broker.Message{ID: "u1", Task: "crm.tasks.gone", Queue: QueueDefault}, 0)

	f.repo.AssertExpectations(t)
	assert.Equal(t, []string{"u1"}, f.broker.ackedIDs())
	assert.Empty(t, f.pub.events)
}

func TestWorker_Run(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})
	f := newWorkerFixture(t,
		WorkerConfig{Concurrency: 2, PollTimeout: 10 * time.Millisecond, PromoteInterval: 10 * time.Millisecond},
		Definition{
			Name: "generate_crm_report",
			Handler: func(_ context.Context, req *Request) (any, error) {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, req.ID)
				if len(seen) == 3 {
					close(done)
				}
				return nil, nil
			},
		})
	f.repo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ctx := context.Background()
	require.NoError(t, f.broker.Publish(ctx, &broker.Message{ID: "a", Task: "generate_crm_report", Queue: QueueReports}))
	require.NoError(t, f.broker.Publish(ctx, &broker.Message{ID: "b", Task: "generate_crm_report", Queue: QueueReports}))
	require.NoError(t, f.broker.PublishDelayed(ctx, &broker.Message{ID: "c", Task: "generate_crm_report", Queue: QueueReports},
		time.Now().Add(-time.Second)))

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- f.worker.Run(runCtx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks were not processed")
	}
	cancel()
	require.NoError(t, <-errc)

	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
	mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, f.broker.ackedIDs())
	assert.GreaterOrEqual(t, f.broker.staleCalls, 2, "stale messages requeued on start for both queues")
	assert.Contains(t, f.logs.String(), "worker started")
}

func TestWorker_HardLimitAbandonsHandler(t *testing.T) {
	release := make(chan struct{})
	observed := make(chan error, 1)
	f := newWorkerFixture(t,
		WorkerConfig{SoftTimeLimit: 10 * time.Millisecond, HardTimeLimit: 30 * time.Millisecond},
		Definition{
			Name: "debug_task",
			Handler: func(ctx context.Context, req *Request) (any, error) {
				<-release
				req.Logger.Info("written after abandonment")
				observed <- context.Cause(ctx)
				return nil, nil
			},
		})
	f.repo.On("Update", mock.Anything, "h1", mock.Anything).Return(nil)

	f.worker.Process(context.Background(), &broker.Message{ID: "h1", Task: "debug_task", Queue: QueueDefault}, 0)
	assert.Contains(t, f.logs.String(), ErrHardTimeLimit.Error())
	close(release)

	select {
	case cause := <-observed:
		assert.ErrorIs(t, cause, ErrSoftTimeLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never resumed")
	}
	assert.NotContains(t, f.logs.String(), "written after abandonment")
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WorkerConfig
		wantErr bool
	}{
		{name: "defaults", cfg: WorkerConfig{}.withDefaults()},
		{name: "visibility equals hard limit", cfg: WorkerConfig{SoftTimeLimit: time.Minute, HardTimeLimit: 2 * time.Minute, VisibilityTimeout: 2 * time.Minute}, wantErr: true},
		{name: "visibility below hard limit", cfg: WorkerConfig{SoftTimeLimit: time.Minute, HardTimeLimit: 2 * time.Minute, VisibilityTimeout: time.Minute}, wantErr: true},
		{name: "visibility above hard limit", cfg: WorkerConfig{SoftTimeLimit: time.Minute, HardTimeLimit: 2 * time.Minute, VisibilityTimeout: 3 * time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorContains(t, err, "must exceed hard time limit")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWorker_RunRejectsShortVisibility(t *testing.T) {
	f := newWorkerFixture(t, WorkerConfig{SoftTimeLimit: time.Minute, HardTimeLimit: 2 * time.Minute, VisibilityTimeout: time.Minute})
	assert.ErrorContains(t, f.worker.Run(context.Background()), "must exceed hard time limit")
}

func TestWorkerConfigDefaults(t *testing.T) {
	c := WorkerConfig{SoftTimeLimit: time.Minute, HardTimeLimit: time.Second}.withDefaults()
	assert.Equal(t, 1, c.Concurrency)
	assert.Equal(t, Queues(), c.Queues)
	assert.Equal(t, 2*time.Minute, c.HardTimeLimit, "hard limit never below soft limit")
	assert.Equal(t, time.Second, c.PromoteInterval)
}

func TestNewMetrics_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
