package task

import (
	"context"
	"sync"
	"time"

	"crmapi/internal/broker"
)

type delayed struct {
	msg *broker.Message
	at  time.Time
}

// memBroker is an in-memory broker.Broker for worker and client tests.
type memBroker struct {
	mu         sync.Mutex
	queues     map[string][]*broker.Message
	delayed    []delayed
	acked      []string
	publishErr error
	staleCalls int
}

func newMemBroker() *memBroker {
	return &memBroker{queues: map[string][]*broker.Message{}}
}

func (b *memBroker) Publish(_ context.Context, m *broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.queues[m.Queue] = append(b.queues[m.Queue], m)
	return nil
}

func (b *memBroker) PublishDelayed(_ context.Context, m *broker.Message, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.delayed = append(b.delayed, delayed{msg: m, at: at})
	return nil
}

func (b *memBroker) Reserve(_ context.Context, queue string, _ time.Duration) (*broker.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[queue]
	if len(q) == 0 {
		return nil, broker.ErrQueueEmpty
	}
	m := q[0]
	b.queues[queue] = q[1:]
	return m, nil
}

func (b *memBroker) Ack(_ context.Context, m *broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, m.ID)
	return nil
}

func (b *memBroker) PromoteDue(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keep := b.delayed[:0]
	moved := 0
	for _, d := range b.delayed {
		if d.at.After(now) {
			keep = append(keep, d)
			continue
		}
		b.queues[d.msg.Queue] = append(b.queues[d.msg.Queue], d.msg)
		moved++
	}
	b.delayed = keep
	return moved, nil
}

func (b *memBroker) RequeueStale(context.Context, string, time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.staleCalls++
	return 0, nil
}

func (b *memBroker) Len(_ context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[queue])), nil
}

func (b *memBroker) Ping(context.Context) error { return nil }
func (b *memBroker) Close() error               { return nil }

func (b *memBroker) ackedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.acked...)
}
