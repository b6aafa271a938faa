package domain

import (
	"context"
	"time"
)

// EventQueue is a named FIFO queue of serialized events. Producers push to
// the tail; the consumer blocks on a pop from the head with a short per-call
// timeout so it can observe a stop request promptly.
type EventQueue interface {
	// Push appends a payload to the tail of the queue.
	Push(ctx context.Context, payload []byte) error

	// Pop blocks up to timeout for the head item. It returns (nil, nil) when
	// the timeout elapses with the queue empty.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Len reports the current queue depth. Diagnostic only.
	Len(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
