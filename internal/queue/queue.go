package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is an audit record of a state change, consumed by the worker.
type Event struct {
	Kind   string
	Detail []byte
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, evt Event) error
	Consume(ctx context.Context) (<-chan Event, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Event
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Event, size)}
}

// Publish enqueues an event.
func (q *InMemory) Publish(ctx context.Context, evt Event) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-q.ch:
				// The forward must also honor cancellation or a
				// departed consumer would strand this goroutine.
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "hostel:audit"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues an event.
func (q *RedisQueue) Publish(ctx context.Context, evt Event) error {
	return q.client.LPush(ctx, q.key, serialize(evt)).Err()
}

// Consume streams events using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				if evt, err := deserialize(res[1]); err == nil {
					out <- evt
				}
			}
		}
	}()
	return out, nil
}

// serialize is a tiny helper to store events as Kind|Detail.
func serialize(evt Event) string {
	return evt.Kind + "|" + string(evt.Detail)
}

func deserialize(s string) (Event, error) {
	for i, r := range s {
		if r == '|' {
			return Event{Kind: s[:i], Detail: []byte(s[i+1:])}, nil
		}
	}
	return Event{Detail: []byte(s)}, nil
}
