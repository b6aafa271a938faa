package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketbridge/internal/domain"
	"ticketbridge/internal/metrics"
)

const defaultPollTimeout = time.Second

// Handler processes one validated event. Returning an error marks the event
// failed; it is logged and never re-queued.
type Handler func(ctx context.Context, ev *domain.WebhookEvent) error

// handlerKey dispatches on (event type, source platform).
type handlerKey struct {
	Type   domain.EventType
	Source string
}

func (k handlerKey) String() string {
	return string(k.Type) + ":" + k.Source
}

// Consumer drains a single FIFO queue of serialized events and dispatches
// each to exactly one registered handler. Processing is strictly one event
// at a time in queue order; once popped an event is consumed whether or not
// its handler succeeds.
type Consumer struct {
	queue       domain.EventQueue
	queueName   string
	validator   *Validator
	pollTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	handlers map[handlerKey]Handler
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// Status is a point-in-time snapshot for health checks. The core logic
// never reads it.
type Status struct {
	Running        bool
	QueueConnected bool
	QueueName      string
	QueueDepth     int64
	Handlers       []string
}

type ConsumerConfig struct {
	Queue       domain.EventQueue
	QueueName   string
	Validator   *Validator
	PollTimeout time.Duration
	Logger      *slog.Logger
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Consumer{
		queue:       cfg.Queue,
		queueName:   cfg.QueueName,
		validator:   cfg.Validator,
		pollTimeout: cfg.PollTimeout,
		logger:      cfg.Logger,
		handlers:    make(map[handlerKey]Handler),
	}
}

// Subscribe registers a handler for one (event type, source platform) pair.
// The last registration for a pair wins. No handler runs before Start.
func (c *Consumer) Subscribe(eventType domain.EventType, sourcePlatform string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := handlerKey{Type: eventType, Source: sourcePlatform}
	if _, exists := c.handlers[key]; exists {
		c.logger.Warn("replacing webhook handler", "key", key.String())
	}
	c.handlers[key] = h
}

// Start verifies queue connectivity and begins the poll loop. Calling Start
// on a running consumer is a logged no-op.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("webhook consumer already running", "queue", c.queueName)
		return nil
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.queue.Ping(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("queue connectivity check: %w", err)
	}

	c.logger.Info("webhook consumer started",
		"queue", c.queueName,
		"poll_timeout", c.pollTimeout,
	)
	go c.pollLoop(ctx)
	return nil
}

// Stop signals the loop to finish the current poll cycle and waits for it.
// Safe to call on a consumer that never started.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
	c.logger.Info("webhook consumer stopped", "queue", c.queueName)
}

// GetStatus reports the consumer's health. Queue connectivity is probed
// live with a short timeout.
func (c *Consumer) GetStatus(ctx context.Context) Status {
	c.mu.Lock()
	st := Status{
		Running:   c.running,
		QueueName: c.queueName,
	}
	for key := range c.handlers {
		st.Handlers = append(st.Handlers, key.String())
	}
	c.mu.Unlock()
	sort.Strings(st.Handlers)

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.queue.Ping(probeCtx); err == nil {
		st.QueueConnected = true
		if n, err := c.queue.Len(probeCtx); err == nil {
			st.QueueDepth = n
			metrics.QueueDepth().Set(n)
		}
	}
	return st
}

// pollLoop is the only actor: one blocking pop, one handler invocation, then
// the next poll. It never overlaps itself and nothing thrown inside escapes.
func (c *Consumer) pollLoop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		payload, err := c.queue.Pop(ctx, c.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("queue pop failed", "queue", c.queueName, "err", err)
			// Back off for one poll interval so a dead queue doesn't spin.
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(c.pollTimeout):
			}
			continue
		}
		if payload == nil {
			continue // timeout, queue empty
		}

		metrics.EventsConsumed().Inc()
		c.processEvent(ctx, payload)
	}
}

// processEvent runs one event through parse, validate, dispatch. Every
// failure branch drops the event: malformed payloads and invalid events are
// not transient, and a handler failure must not stall the queue.
func (c *Consumer) processEvent(ctx context.Context, payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		metrics.EventsDropped("malformed").Inc()
		c.logger.Error("dropping malformed event payload",
			"queue", c.queueName,
			"payload_len", len(payload),
			"err", err,
		)
		return
	}

	ev, verr := c.validator.Validate(raw)
	if verr != nil {
		metrics.EventsDropped("invalid").Inc()
		// The validator already logged the failing rule.
		return
	}
	ev.CorrelationID = uuid.NewString()

	key := handlerKey{Type: ev.Type, Source: ev.SourcePlatform}
	c.mu.Lock()
	h, ok := c.handlers[key]
	c.mu.Unlock()
	if !ok {
		metrics.EventsDropped("no_handler").Inc()
		c.logger.Warn("no handler registered for event",
			"key", key.String(),
			"correlation_id", ev.CorrelationID,
		)
		return
	}

	if err := c.invoke(ctx, h, ev); err != nil {
		metrics.EventsDropped("handler_error").Inc()
		c.logger.Error("event handler failed",
			"key", key.String(),
			"correlation_id", ev.CorrelationID,
			"conversation_id", ev.Data.ConversationID,
			"err", err,
		)
	}
}

// invoke runs the handler with panic containment so a bad event can never
// take the poll loop down.
func (c *Consumer) invoke(ctx context.Context, h Handler, ev *domain.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, ev)
}
