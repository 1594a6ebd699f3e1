package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/llm"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

// summaryEnvelope is the structured-output schema for summarization.
type summaryEnvelope struct {
	Messages []model.SummarizedMessage `json:"messages"`
}

// Summarizer compresses raw conversation history into a bounded structured
// summary for the answer pipeline.
type Summarizer struct {
	client llm.Client
	log    *logger.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(client llm.Client, log *logger.Logger) *Summarizer {
	return &Summarizer{client: client, log: log}
}

// Summarize produces a fresh summary from the full raw history. The output is
// not truncated locally; compression quality is delegated to the model.
// Inference errors propagate; no partial summary is synthesized. A nil client
// yields an empty summary so the caller can still produce a fallback reply.
func (s *Summarizer) Summarize(ctx context.Context, raw []model.Message) ([]model.SummarizedMessage, error) {
	if s.client == nil || len(raw) == 0 {
		return nil, nil
	}

	history, err := encodeHistory(raw)
	if err != nil {
		return nil, err
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: summaryPrompt},
		{Role: llm.RoleUser, Content: history},
	}

	envelope, err := llm.Structured[summaryEnvelope](ctx, s.client, msgs, "summarized_messages")
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}

	s.log.Debug("history summarized",
		zap.Int("raw_count", len(raw)),
		zap.Int("summary_count", len(envelope.Messages)),
	)
	return envelope.Messages, nil
}
