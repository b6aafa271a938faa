package store

import (
	"context"
	"sync"

	"ticketbridge/internal/domain"
)

// MemoryStore is a map-backed correlation store for tests and memory://
// deployments. Everything is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	tickets       map[string]domain.TicketRecord // by conversation ID
	agentMessages map[int]domain.AgentMessageRecord
	customers     map[int64]domain.CustomerRecord
}

var _ domain.CorrelationStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:       make(map[string]domain.TicketRecord),
		agentMessages: make(map[int]domain.AgentMessageRecord),
		customers:     make(map[int64]domain.CustomerRecord),
	}
}

func (s *MemoryStore) StoreTicket(ctx context.Context, t domain.TicketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ConversationID] = t
	return nil
}

func (s *MemoryStore) TicketByConversationID(ctx context.Context, conversationID string) (*domain.TicketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tickets[conversationID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (s *MemoryStore) TicketByTelegramMessageID(ctx context.Context, messageID int) (*domain.TicketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if t.TelegramMessageID == messageID {
			return &t, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) TicketsForChat(ctx context.Context, chatID int64) ([]domain.TicketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tickets []domain.TicketRecord
	for _, t := range s.tickets {
		if t.ChatID == chatID {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

func (s *MemoryStore) DeleteTicket(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, conversationID)
	for id, m := range s.agentMessages {
		if m.ConversationID == conversationID {
			delete(s.agentMessages, id)
		}
	}
	return nil
}

func (s *MemoryStore) StoreAgentMessage(ctx context.Context, m domain.AgentMessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentMessages[m.ChatMessageID] = m
	return nil
}

func (s *MemoryStore) AgentMessageByTelegramID(ctx context.Context, messageID int) (*domain.AgentMessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.agentMessages[messageID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *MemoryStore) StoreCustomer(ctx context.Context, c domain.CustomerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ChatID] = c
	return nil
}

func (s *MemoryStore) CustomerByChatID(ctx context.Context, chatID int64) (*domain.CustomerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.customers[chatID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeleteCustomer(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, chatID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
