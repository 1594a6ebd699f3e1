// Package agent implements the automated path: handoff classification,
// history summarization and the tool-augmented answer pipeline.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/llm"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

// historyEntry is the wire shape raw messages take inside classifier and
// summarizer prompts.
type historyEntry struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func encodeHistory(msgs []model.Message) (string, error) {
	entries := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.IsInternal {
			continue
		}
		entries = append(entries, historyEntry{
			Sender:  string(m.SenderType),
			Content: m.Content,
		})
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

// Classifier decides whether a human or the automated responder should handle
// the latest customer message.
type Classifier struct {
	client llm.Client
	log    *logger.Logger
}

// NewClassifier creates a classifier. A nil client disables classification:
// every message stays on the automated path.
func NewClassifier(client llm.Client, log *logger.Logger) *Classifier {
	return &Classifier{client: client, log: log}
}

// Classify produces a routing decision for the latest customer message given
// the prior raw history. Inference failures propagate to the caller; no
// default decision is fabricated.
func (c *Classifier) Classify(ctx context.Context, prior []model.Message, latest string) (model.HandoffDecision, error) {
	if c.client == nil {
		// Degrade to the automated path, never silently to a human.
		return model.HandoffDecision{
			Decision: model.DecisionAgent,
			Reason:   "no inference backend configured",
		}, nil
	}

	history, err := encodeHistory(prior)
	if err != nil {
		return model.HandoffDecision{}, err
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: handoffPolicyPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Conversation history: %s\nLatest customer message: %s", history, latest,
		)},
	}

	decision, err := llm.Structured[model.HandoffDecision](ctx, c.client, msgs, "handoff_decision")
	if err != nil {
		return model.HandoffDecision{}, fmt.Errorf("classify handoff: %w", err)
	}

	// Anything that is not an explicit human verdict stays automated.
	if decision.Decision != model.DecisionHuman {
		decision.Decision = model.DecisionAgent
	}

	c.log.Debug("handoff classified",
		zap.String("decision", decision.Decision),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}
