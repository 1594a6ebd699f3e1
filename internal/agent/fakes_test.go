package agent_test

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/clearline-ai/support-orchestrator/internal/llm"
)

// fakeLLM is a scripted inference backend for tests.
type fakeLLM struct {
	structuredResponse json.RawMessage
	structuredErr      error
	structuredMsgs     []llm.Message

	toolResponses []*llm.ToolResponse
	toolErr       error
	toolRequests  [][]llm.Message
	toolsOffered  [][]llm.Tool
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	return "", errors.New("not scripted")
}

func (f *fakeLLM) CompleteStructured(ctx context.Context, msgs []llm.Message, schema llm.Schema) (json.RawMessage, error) {
	f.structuredMsgs = msgs
	if f.structuredErr != nil {
		return nil, f.structuredErr
	}
	return f.structuredResponse, nil
}

func (f *fakeLLM) CompleteWithTools(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (*llm.ToolResponse, error) {
	f.toolRequests = append(f.toolRequests, msgs)
	f.toolsOffered = append(f.toolsOffered, tools)
	if f.toolErr != nil {
		return nil, f.toolErr
	}
	if len(f.toolResponses) == 0 {
		return &llm.ToolResponse{Content: "done"}, nil
	}
	resp := f.toolResponses[0]
	f.toolResponses = f.toolResponses[1:]
	return resp, nil
}
