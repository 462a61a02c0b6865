package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"crmapi/internal/config"
)

// Redis implements Broker on a go-redis client.
type Redis struct {
	client *redis.Client
	prefix string
	queues map[string]struct{}
	now    func() time.Time
}

var _ Broker = (*Redis)(nil)

// New wraps an existing client. queues lists every queue name Publish accepts.
func New(client *redis.Client, prefix string, queues []string) *Redis {
	qs := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		qs[q] = struct{}{}
	}
	if prefix == "" {
		prefix = "crm"
	}
	return &Redis{client: client, prefix: prefix, queues: qs, now: time.Now}
}

// NewRedis dials Redis and verifies the connection.
func NewRedis(ctx context.Context, c config.RedisConfig, queues []string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	return New(client, c.KeyPrefix, queues), nil
}

func (r *Redis) queueKey(q string) string      { return r.prefix + ":queue:" + q }
func (r *Redis) processingKey(q string) string { return r.prefix + ":processing:" + q }
func (r *Redis) delayedKey() string            { return r.prefix + ":delayed" }
func (r *Redis) reservedKey(q string) string   { return r.prefix + ":reserved:" + q }

func (r *Redis) known(q string) error {
	if _, ok := r.queues[q]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, q)
	}
	return nil
}

func (r *Redis) Publish(ctx context.Context, m *Message) error {
	if err := r.known(m.Queue); err != nil {
		return err
	}
	if m.SentAt.IsZero() {
		m.SentAt = r.now().UTC()
	}
	raw, err := m.encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return r.client.LPush(ctx, r.queueKey(m.Queue), raw).Err()
}

func (r *Redis) PublishDelayed(ctx context.Context, m *Message, at time.Time) error {
	if err := r.known(m.Queue); err != nil {
		return err
	}
	eta := at.UTC()
	m.ETA = &eta
	if m.SentAt.IsZero() {
		m.SentAt = r.now().UTC()
	}
	raw, err := m.encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return r.client.ZAdd(ctx, r.delayedKey(), &redis.Z{
		Score:  float64(at.Unix()),
		Member: raw,
	}).Err()
}

func (r *Redis) Reserve(ctx context.Context, queue string, timeout time.Duration) (*Message, error) {
	if err := r.known(queue); err != nil {
		return nil, err
	}

	var (
		raw string
		err error
	)
	if timeout > 0 {
		raw, err = r.client.BRPopLPush(ctx, r.queueKey(queue), r.processingKey(queue), timeout).Result()
	} else {
		raw, err = r.client.RPopLPush(ctx, r.queueKey(queue), r.processingKey(queue)).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}

	m, err := decode(raw)
	if err != nil {
		// Poison messages would be re-reserved forever.
		_ = r.client.LRem(ctx, r.processingKey(queue), 1, raw).Err()
		return nil, err
	}
	err = r.client.ZAdd(ctx, r.reservedKey(queue), &redis.Z{Score: float64(r.now().Unix()), Member: raw}).Err()
	if err != nil {
		return nil, fmt.Errorf("mark reserved: %w", err)
	}
	return m, nil
}

func (r *Redis) Ack(ctx context.Context, m *Message) error {
	if m.raw == "" {
		return fmt.Errorf("%w: message %s was not reserved", ErrMalformed, m.ID)
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, r.processingKey(m.Queue), 1, m.raw)
		p.ZRem(ctx, r.reservedKey(m.Queue), m.raw)
		return nil
	})
	return err
}

func (r *Redis) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := r.client.ZRangeByScore(ctx, r.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, raw := range due {
		// ZREM decides which promoter owns the message.
		n, err := r.client.ZRem(ctx, r.delayedKey(), raw).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		m, err := decode(raw)
		if err != nil {
			continue
		}
		if err := r.client.LPush(ctx, r.queueKey(m.Queue), raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// RequeueStale moves messages reserved before now-olderThan back onto their
// queue. Reservation times live in a sorted set per queue.
func (r *Redis) RequeueStale(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	if err := r.known(queue); err != nil {
		return 0, err
	}
	if err := r.trackOrphans(ctx, queue); err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-olderThan).Unix()
	stale, err := r.client.ZRangeByScore(ctx, r.reservedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, raw := range stale {
		// A zero LREM means the owner acked in the meantime.
		n, err := r.client.LRem(ctx, r.processingKey(queue), 1, raw).Result()
		if err != nil {
			return requeued, err
		}
		if n == 0 {
			r.client.ZRem(ctx, r.reservedKey(queue), raw)
			continue
		}
		_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.RPush(ctx, r.queueKey(queue), raw)
			p.ZRem(ctx, r.reservedKey(queue), raw)
			return nil
		})
		if err != nil {
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

// trackOrphans starts the clock for messages whose consumer died between
// taking them and recording the reservation.
func (r *Redis) trackOrphans(ctx context.Context, queue string) error {
	pending, err := r.client.LRange(ctx, r.processingKey(queue), 0, -1).Result()
	if err != nil || len(pending) == 0 {
		return err
	}
	now := float64(r.now().Unix())
	members := make([]*redis.Z, 0, len(pending))
	for _, raw := range pending {
		members = append(members, &redis.Z{Score: now, Member: raw})
	}
	return r.client.ZAddNX(ctx, r.reservedKey(queue), members...).Err()
}

func (r *Redis) Len(ctx context.Context, queue string) (int64, error) {
	return r.client.LLen(ctx, r.queueKey(queue)).Result()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
