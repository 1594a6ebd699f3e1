package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/internal/store"
)

func newConversation(t *testing.T, s store.Store) *model.Conversation {
	t.Helper()

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:           "c1",
		CustomerID:   "cust-1",
		Channel:      "app",
		Priority:     "medium",
		Status:       model.StatusOpen,
		HandlingMode: model.HandlingModeAI,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestMessagesSortedAscendingRegardlessOfInsertOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	newConversation(t, s)

	base := time.Now().UTC()
	customerID := "cust-1"

	// Insert out of chronological order.
	for _, offset := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		msg := &model.Message{
			ID:               "m" + offset.String(),
			ConversationID:   "c1",
			SenderType:       model.SenderCustomer,
			SenderCustomerID: &customerID,
			Content:          "hello",
			CreatedAt:        base.Add(offset),
		}
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	conv, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(conv.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(conv.Messages))
	}
	for i := 1; i < len(conv.Messages); i++ {
		if conv.Messages[i].CreatedAt.Before(conv.Messages[i-1].CreatedAt) {
			t.Fatalf("messages out of order at index %d", i)
		}
	}
}

func TestNotFoundIsDistinct(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateConversation(ctx, "missing", store.ConversationUpdate{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	msg := &model.Message{ID: "m1", ConversationID: "missing", Content: "x", CreatedAt: time.Now()}
	if err := s.InsertMessage(ctx, msg); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateConversationAppliesOnlySetFields(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	newConversation(t, s)

	mode := model.HandlingModeHuman
	status := model.StatusEscalated
	if err := s.UpdateConversation(ctx, "c1", store.ConversationUpdate{
		HandlingMode: &mode,
		Status:       &status,
	}); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}

	conv, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.HandlingMode != model.HandlingModeHuman {
		t.Fatalf("expected handling_mode human, got %s", conv.HandlingMode)
	}
	if conv.Status != model.StatusEscalated {
		t.Fatalf("expected status escalated, got %s", conv.Status)
	}
	if conv.Priority != "medium" {
		t.Fatalf("priority changed unexpectedly: %s", conv.Priority)
	}
}
