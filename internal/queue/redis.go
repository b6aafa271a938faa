// Package queue provides named FIFO queue backends for webhook events.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketbridge/internal/domain"
)

// RedisQueue is a list-based FIFO queue on Redis. Producers RPUSH to the
// tail; the consumer BLPOPs from the head. Two connections are kept: one
// reserved exclusively for the blocking pop, one for auxiliary operations,
// so a long-lived BLPOP never starves LLEN or PING.
type RedisQueue struct {
	name   string
	pop    *redis.Client // blocking reads only
	aux    *redis.Client
	logger *slog.Logger
}

var _ domain.EventQueue = (*RedisQueue)(nil)

func NewRedisQueue(url, name string, logger *slog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse queue url: %w", err)
	}

	popOpts := *opts
	popOpts.PoolSize = 1 // single long-lived blocking connection

	q := &RedisQueue{
		name:   name,
		pop:    redis.NewClient(&popOpts),
		aux:    redis.NewClient(opts),
		logger: logger,
	}
	return q, nil
}

func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	if err := q.aux.RPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.pop.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // timeout, queue empty
		}
		return nil, fmt.Errorf("blpop %s: %w", q.name, err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("blpop %s: unexpected reply of %d elements", q.name, len(res))
	}
	return []byte(res[1]), nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.aux.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.name, err)
	}
	return n, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.aux.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	popErr := q.pop.Close()
	auxErr := q.aux.Close()
	if popErr != nil {
		return popErr
	}
	return auxErr
}
