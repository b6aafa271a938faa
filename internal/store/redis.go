package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketbridge/internal/domain"
)

// RedisStore implements domain.CorrelationStore on Redis. Records are stored
// as JSON values with per-key TTLs; agent messages age out on their own,
// which is the retention model the relay expects.
type RedisStore struct {
	client    *redis.Client
	ticketTTL time.Duration
	agentTTL  time.Duration
	logger    *slog.Logger
}

var _ domain.CorrelationStore = (*RedisStore)(nil)

func NewRedisStore(url string, ticketTTL, agentTTL time.Duration, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	return &RedisStore{
		client:    redis.NewClient(opts),
		ticketTTL: ticketTTL,
		agentTTL:  agentTTL,
		logger:    logger,
	}, nil
}

func ticketKey(conversationID string) string { return "tb:ticket:" + conversationID }
func ticketByMsgKey(messageID int) string    { return "tb:ticket_by_msg:" + strconv.Itoa(messageID) }
func chatTicketsKey(chatID int64) string     { return "tb:chat_tickets:" + strconv.FormatInt(chatID, 10) }
func agentMsgKey(messageID int) string       { return "tb:agent_msg:" + strconv.Itoa(messageID) }
func customerKey(chatID int64) string        { return "tb:customer:" + strconv.FormatInt(chatID, 10) }

func (s *RedisStore) StoreTicket(ctx context.Context, t domain.TicketRecord) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ticketKey(t.ConversationID), data, s.ticketTTL)
	pipe.Set(ctx, ticketByMsgKey(t.TelegramMessageID), t.ConversationID, s.ticketTTL)
	pipe.SAdd(ctx, chatTicketsKey(t.ChatID), t.ConversationID)
	pipe.Expire(ctx, chatTicketsKey(t.ChatID), s.ticketTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) TicketByConversationID(ctx context.Context, conversationID string) (*domain.TicketRecord, error) {
	data, err := s.client.Get(ctx, ticketKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t domain.TicketRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("corrupt ticket record %s: %w", conversationID, err)
	}
	return &t, nil
}

func (s *RedisStore) TicketByTelegramMessageID(ctx context.Context, messageID int) (*domain.TicketRecord, error) {
	conversationID, err := s.client.Get(ctx, ticketByMsgKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.TicketByConversationID(ctx, conversationID)
}

func (s *RedisStore) TicketsForChat(ctx context.Context, chatID int64) ([]domain.TicketRecord, error) {
	ids, err := s.client.SMembers(ctx, chatTicketsKey(chatID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var tickets []domain.TicketRecord
	for _, id := range ids {
		t, err := s.TicketByConversationID(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			// Ticket expired but its set member lingered; heal the index.
			s.client.SRem(ctx, chatTicketsKey(chatID), id)
			continue
		}
		tickets = append(tickets, *t)
	}
	return tickets, nil
}

func (s *RedisStore) DeleteTicket(ctx context.Context, conversationID string) error {
	t, err := s.TicketByConversationID(ctx, conversationID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ticketKey(conversationID))
	pipe.Del(ctx, ticketByMsgKey(t.TelegramMessageID))
	pipe.SRem(ctx, chatTicketsKey(t.ChatID), conversationID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) StoreAgentMessage(ctx context.Context, m domain.AgentMessageRecord) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, agentMsgKey(m.ChatMessageID), data, s.agentTTL).Err()
}

func (s *RedisStore) AgentMessageByTelegramID(ctx context.Context, messageID int) (*domain.AgentMessageRecord, error) {
	data, err := s.client.Get(ctx, agentMsgKey(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m domain.AgentMessageRecord
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt agent message record %d: %w", messageID, err)
	}
	return &m, nil
}

func (s *RedisStore) StoreCustomer(ctx context.Context, c domain.CustomerRecord) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, customerKey(c.ChatID), data, s.ticketTTL).Err()
}

func (s *RedisStore) CustomerByChatID(ctx context.Context, chatID int64) (*domain.CustomerRecord, error) {
	data, err := s.client.Get(ctx, customerKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c domain.CustomerRecord
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("corrupt customer record %d: %w", chatID, err)
	}
	return &c, nil
}

func (s *RedisStore) DeleteCustomer(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, customerKey(chatID)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
