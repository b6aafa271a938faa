package queue

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"ticketbridge/internal/domain"
)

// FromDSN builds an event queue from a connection string. The scheme selects
// the backend: redis:// and rediss:// get a Redis list queue, memory:// an
// in-process one.
func FromDSN(dsn, name string, logger *slog.Logger) (domain.EventQueue, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty queue dsn")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse queue dsn: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss":
		return NewRedisQueue(dsn, name, logger)
	case "memory", "mem", "inmem":
		return NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unsupported queue scheme: %q", parsed.Scheme)
	}
}
