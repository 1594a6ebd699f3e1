package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/clearline-ai/support-orchestrator/pkg/metrics"
)

// OpenAIClient is the OpenAI inference client.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Complete sends a plain completion request.
func (c *OpenAIClient) Complete(ctx context.Context, msgs []Message) (string, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(msgs),
	})
	if err != nil {
		metrics.RecordLLMRequest("complete", "error", time.Since(start).Seconds())
		return "", err
	}
	metrics.RecordLLMRequest("complete", "success", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStructured sends a schema-constrained completion request.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, msgs []Message, schema Schema) (json.RawMessage, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(msgs),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.Name,
				Schema: schema.Definition,
				Strict: true,
			},
		},
	})
	if err != nil {
		metrics.RecordLLMRequest("structured", "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordLLMRequest("structured", "success", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return nil, errors.New("empty structured response")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// CompleteWithTools sends a completion request with the tool set bound.
func (c *OpenAIClient) CompleteWithTools(ctx context.Context, msgs []Message, tools []Tool) (*ToolResponse, error) {
	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(msgs),
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.RecordLLMRequest("tools", "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordLLMRequest("tools", "success", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return nil, errors.New("empty tool completion response")
	}

	choice := resp.Choices[0].Message
	out := &ToolResponse{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		converted := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = converted
	}
	return out
}
