// Package model defines data structures for the support platform.
package model

import (
	"time"
)

// HandlingMode indicates whether automated or human replies are authoritative
// for a conversation. The transition to HandlingModeHuman is one-way: nothing
// in this service ever writes it back to HandlingModeAI.
type HandlingMode string

const (
	HandlingModeAI    HandlingMode = "ai"
	HandlingModeHuman HandlingMode = "human"
)

// Conversation status values.
const (
	StatusOpen      = "open"
	StatusActive    = "active"
	StatusEscalated = "escalated"
)

// Conversation represents a support conversation thread.
type Conversation struct {
	ID              string       `json:"id"`
	CustomerID      string       `json:"customer_id"`
	Subject         string       `json:"subject,omitempty"`
	Channel         string       `json:"channel"`
	Priority        string       `json:"priority"`
	Status          string       `json:"status"`
	HandlingMode    HandlingMode `json:"handling_mode"`
	AssignedAgentID string       `json:"assigned_agent_id,omitempty"`
	LastMessage     string       `json:"last_message,omitempty"`
	LastMessageAt   *time.Time   `json:"last_message_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Messages is populated on full reads, sorted ascending by CreatedAt.
	Messages []Message `json:"messages,omitempty"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	CustomerID string `json:"customer_id"`
	Subject    string `json:"subject,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

// EscalateRequest is the request body for operator-driven escalation. The
// body is optional; reason is recorded when present.
type EscalateRequest struct {
	Reason string `json:"reason,omitempty"`
}
