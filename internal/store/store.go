// Package store provides the persistence layer for conversations and
// messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/clearline-ai/support-orchestrator/internal/model"
)

// ErrNotFound signals that a row does not exist. Callers must be able to tell
// a missing row apart from a storage failure, so every other error returned
// by a Store means the read or write itself failed.
var ErrNotFound = errors.New("not found")

// ConversationUpdate carries the fields to change on a conversation. Nil
// fields are left untouched. UpdatedAt is bumped on every update.
type ConversationUpdate struct {
	Status        *string
	Priority      *string
	HandlingMode  *model.HandlingMode
	LastMessage   *string
	LastMessageAt *time.Time
}

// Store is the persistence contract consumed by the orchestrator and
// handlers.
type Store interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversation returns the conversation with its messages embedded,
	// sorted ascending by creation time.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error

	InsertMessage(ctx context.Context, msg *model.Message) error

	// ListMessages returns all messages of a conversation sorted ascending by
	// creation time.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}
