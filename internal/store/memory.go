package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearline-ai/support-orchestrator/internal/model"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *conv
	copied.Messages = nil
	s.conversations[conv.ID] = &copied
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := *conv
	out.Messages = s.sortedMessages(id)
	return &out, nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}

	if upd.Status != nil {
		conv.Status = *upd.Status
	}
	if upd.Priority != nil {
		conv.Priority = *upd.Priority
	}
	if upd.HandlingMode != nil {
		conv.HandlingMode = *upd.HandlingMode
	}
	if upd.LastMessage != nil {
		conv.LastMessage = *upd.LastMessage
	}
	if upd.LastMessageAt != nil {
		t := *upd.LastMessageAt
		conv.LastMessageAt = &t
	}
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	return s.sortedMessages(conversationID), nil
}

// sortedMessages returns a copy in ascending creation order. Insertion order
// is deliberately not trusted.
func (s *MemoryStore) sortedMessages(conversationID string) []model.Message {
	msgs := s.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
