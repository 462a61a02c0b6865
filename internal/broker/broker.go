// Package broker moves task messages between producers and workers.
//
// Each queue is a Redis list. Producers LPUSH and workers move messages with
// BRPOPLPUSH into a per-queue processing list, acknowledging only after the
// task ran. Messages left unacknowledged past the visibility timeout are put
// back on their queue.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrQueueEmpty is returned by Reserve when nothing arrived before the timeout.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrUnknownQueue is returned when a message names a queue the broker does not serve.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrMalformed is returned for payloads that do not decode into a Message.
	ErrMalformed = errors.New("malformed message")
)

// Message is the envelope stored on a queue.
type Message struct {
	ID         string          `json:"id"`
	Task       string          `json:"task"`
	Queue      string          `json:"queue"`
	Args       json.RawMessage `json:"args,omitempty"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	ETA        *time.Time      `json:"eta,omitempty"`
	SentAt     time.Time       `json:"sent_at"`

	// raw is the exact payload that was reserved; Ack removes by value.
	raw string
}

func (m *Message) encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	m.raw = raw
	return &m, nil
}

// Broker is the queue contract the task client and worker depend on.
type Broker interface {
	Publish(ctx context.Context, m *Message) error
	// PublishDelayed holds m until at, then PromoteDue moves it to its queue.
	PublishDelayed(ctx context.Context, m *Message, at time.Time) error
	// Reserve blocks up to timeout. A non-positive timeout polls once.
	Reserve(ctx context.Context, queue string, timeout time.Duration) (*Message, error)
	Ack(ctx context.Context, m *Message) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// RequeueStale returns messages reserved longer than olderThan to their queue.
	RequeueStale(ctx context.Context, queue string, olderThan time.Duration) (int, error)
	Len(ctx context.Context, queue string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
