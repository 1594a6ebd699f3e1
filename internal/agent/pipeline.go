package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/llm"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/internal/toolsession"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

// unavailableReply is returned when no inference backend is configured, so
// the caller always has a displayable reply.
const unavailableReply = "Sorry, the automated assistant is currently unavailable. A support agent will get back to you shortly."

// Pipeline drives one tool-augmented inference turn to answer a customer
// query.
type Pipeline struct {
	client        llm.Client
	tools         *toolsession.Manager
	log           *logger.Logger
	maxToolRounds int
}

// NewPipeline creates an answer pipeline bound to the shared tool session
// manager.
func NewPipeline(client llm.Client, tools *toolsession.Manager, maxToolRounds int, log *logger.Logger) *Pipeline {
	if maxToolRounds < 1 {
		maxToolRounds = 1
	}
	return &Pipeline{
		client:        client,
		tools:         tools,
		log:           log,
		maxToolRounds: maxToolRounds,
	}
}

// Answer produces the final reply for one user query. The reply is always
// non-empty text; turns the model ends without content fall back to the
// unavailability sentinel. The returned message slice is the tool traffic
// (tool-call requests and their results) emitted during the turn.
//
// If the tool backend is unreachable the turn proceeds without tools. Tool
// execution failures are fed back to the model as error-shaped results and
// never abort the turn. Inference failures propagate.
func (p *Pipeline) Answer(
	ctx context.Context,
	customerID, query string,
	summary []model.SummarizedMessage,
	prior []llm.Message,
) (string, []llm.Message, error) {
	if p.client == nil {
		return unavailableReply, nil, nil
	}

	serialized, err := json.Marshal(summary)
	if err != nil {
		return "", nil, fmt.Errorf("serialize summary: %w", err)
	}

	msgs := make([]llm.Message, 0, len(prior)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: answerPrompt})
	msgs = append(msgs, prior...)
	msgs = append(msgs, llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf(
			"User query: %s\nCustomer ID: %s\nSummarized conversation history: %s",
			query, customerID, string(serialized),
		),
	})

	tools, executor := p.acquireTools(ctx)

	var emitted []llm.Message
	lastContent := ""

	for round := 0; ; round++ {
		resp, err := p.client.CompleteWithTools(ctx, msgs, tools)
		if err != nil {
			return "", emitted, fmt.Errorf("answer inference: %w", err)
		}

		if resp.Content != "" {
			lastContent = resp.Content
		}
		if len(resp.ToolCalls) == 0 {
			// A final turn with no text still has to produce a displayable,
			// persistable reply.
			if lastContent == "" {
				lastContent = unavailableReply
			}
			return lastContent, emitted, nil
		}
		if round >= p.maxToolRounds {
			p.log.Warn("tool round limit reached, returning last content",
				zap.Int("rounds", round),
			)
			if lastContent == "" {
				lastContent = unavailableReply
			}
			return lastContent, emitted, nil
		}

		assistant := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		msgs = append(msgs, assistant)
		emitted = append(emitted, assistant)

		for _, tc := range resp.ToolCalls {
			result := p.runTool(ctx, executor, tc)
			msgs = append(msgs, result)
			emitted = append(emitted, result)
		}
	}
}

// acquireTools fetches the filtered tool set and its executor. An unreachable
// backend degrades the turn to tool-less instead of failing it.
func (p *Pipeline) acquireTools(ctx context.Context) ([]llm.Tool, *toolsession.Executor) {
	if p.tools == nil {
		return nil, nil
	}

	catalog, err := p.tools.Tools(ctx)
	if err != nil {
		if errors.Is(err, toolsession.ErrBackendUnavailable) {
			p.log.Warn("tool backend unavailable, answering without tools", zap.Error(err))
		} else {
			p.log.Error("failed to load tool catalog", zap.Error(err))
		}
		return nil, nil
	}

	executor, err := p.tools.Executor(ctx)
	if err != nil {
		p.log.Warn("tool executor unavailable, answering without tools", zap.Error(err))
		return nil, nil
	}

	out := make([]llm.Tool, len(catalog))
	for i, t := range catalog {
		out[i] = llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		}
	}
	return out, executor
}

func (p *Pipeline) runTool(ctx context.Context, executor *toolsession.Executor, tc llm.ToolCall) llm.Message {
	if executor == nil {
		return llm.Message{
			Role:       llm.RoleTool,
			Content:    "tool backend unavailable",
			ToolCallID: tc.ID,
		}
	}

	result := executor.Execute(ctx, toolsession.ToolCall{
		ID:        tc.ID,
		Name:      tc.Name,
		Arguments: tc.Arguments,
	})

	p.log.Debug("tool executed",
		zap.String("tool", tc.Name),
		zap.Bool("is_error", result.IsError),
	)
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    result.Content,
		ToolCallID: result.CallID,
	}
}
