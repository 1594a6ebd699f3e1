// Package llm provides the inference backend contract and implementations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of an inference request or transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set on tool-result messages and references the call the
	// result belongs to.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Tool describes a callable tool surfaced to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResponse is the model's reply to a tool-bound request: either final
// text, tool-call requests, or both.
type ToolResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Schema constrains a structured-output call.
type Schema struct {
	Name       string
	Definition *jsonschema.Definition
}

// Client is the interface for inference providers.
type Client interface {
	// Complete sends a plain completion request and returns the text.
	Complete(ctx context.Context, msgs []Message) (string, error)

	// CompleteStructured sends a completion request constrained to the given
	// JSON schema and returns the raw conforming JSON.
	CompleteStructured(ctx context.Context, msgs []Message, schema Schema) (json.RawMessage, error)

	// CompleteWithTools sends a completion request with the given tool set
	// bound; the response may carry tool-call requests.
	CompleteWithTools(ctx context.Context, msgs []Message, tools []Tool) (*ToolResponse, error)
}

// Structured issues a structured-output call whose schema is derived from T
// and decodes the response into a T. The classifier and summarizer share this
// path so the schema plumbing exists exactly once.
func Structured[T any](ctx context.Context, c Client, msgs []Message, name string) (T, error) {
	var out T

	def, err := jsonschema.GenerateSchemaForType(out)
	if err != nil {
		return out, fmt.Errorf("generate schema for %s: %w", name, err)
	}

	raw, err := c.CompleteStructured(ctx, msgs, Schema{Name: name, Definition: def})
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", name, err)
	}
	return out, nil
}
