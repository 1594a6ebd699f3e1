package model

import (
	"time"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderAI       SenderType = "ai"
	SenderSystem   SenderType = "system"
)

// Message represents a single message within a conversation.
//
// Exactly one of SenderCustomerID / SenderAgentID is set, matching SenderType:
// customer messages carry a customer id, everything else carries an agent or
// bot id.
type Message struct {
	ID               string     `json:"id"`
	ConversationID   string     `json:"conversation_id"`
	SenderType       SenderType `json:"sender_type"`
	SenderCustomerID *string    `json:"sender_customer_id,omitempty"`
	SenderAgentID    *string    `json:"sender_agent_id,omitempty"`
	Content          string     `json:"content"`
	IsInternal       bool       `json:"is_internal"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SendMessageRequest is the request body for the send-message endpoint.
type SendMessageRequest struct {
	ConversationID   string     `json:"conversation_id"`
	SenderType       SenderType `json:"sender_type"`
	SenderCustomerID *string    `json:"sender_customer_id,omitempty"`
	SenderAgentID    *string    `json:"sender_agent_id,omitempty"`
	Content          string     `json:"content"`
	IsInternal       bool       `json:"is_internal"`
}

// SendMessageResponse is returned by the send-message endpoint. Status is
// "handoff" when the conversation is (or just became) human-handled, "ai"
// when an automated reply was produced, and "stored" for non-customer
// messages that are persisted without routing.
type SendMessageResponse struct {
	Status            string  `json:"status"`
	CustomerMessageID string  `json:"customer_message_id"`
	AIReply           *string `json:"ai_reply"`
	AIMessageID       *string `json:"ai_message_id"`
}
