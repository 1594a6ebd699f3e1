package model

import (
	"time"
)

// EventType represents the type of conversation event fanned out to the
// agent-desktop realtime surface.
type EventType string

const (
	EventTypeMessageStored EventType = "message_stored"
	EventTypeHandoff       EventType = "handoff"
	EventTypeAIReply       EventType = "ai_reply"
)

// ConversationEvent is the payload published to JetStream after the
// orchestrator finishes handling a message. Delivery is best effort and never
// blocks or fails the originating request.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	CustomerID     string    `json:"customer_id"`
	Type           EventType `json:"type"`
	MessageID      string    `json:"message_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
