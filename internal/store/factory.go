package store

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ticketbridge/internal/domain"
)

// Options carries backend-agnostic store settings. TTLs only apply to
// backends that support expiry (Redis); SQL backends keep records until
// recipient cleanup deletes them.
type Options struct {
	TicketTTL       time.Duration
	AgentMessageTTL time.Duration
}

// FromDSN builds a correlation store from a connection string. A bare file
// path (or sqlite:// / file:// scheme) selects SQLite; redis:// and
// postgres:// select their backends; memory:// keeps everything in process.
func FromDSN(dsn string, opts Options, logger *slog.Logger) (domain.CorrelationStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty store dsn")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse store dsn: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "", "sqlite", "file":
		path := parsed.Path
		if path == "" {
			path = parsed.Opaque
		}
		if path == "" {
			path = dsn
		}
		return NewSQLiteStore(path, logger)
	case "redis", "rediss":
		return NewRedisStore(dsn, opts.TicketTTL, opts.AgentMessageTTL, logger)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn, logger)
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme: %q", parsed.Scheme)
	}
}
