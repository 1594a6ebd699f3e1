package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clearline-ai/support-orchestrator/internal/agent"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

func customerMessage(content string) model.Message {
	id := "cust-1"
	return model.Message{
		ID:               "m1",
		ConversationID:   "c1",
		SenderType:       model.SenderCustomer,
		SenderCustomerID: &id,
		Content:          content,
		CreatedAt:        time.Now(),
	}
}

func TestClassifyWithoutBackendStaysAutomated(t *testing.T) {
	c := agent.NewClassifier(nil, logger.NewNop())

	decision, err := c.Classify(context.Background(), nil, "I want to speak to a human")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if decision.Decision != model.DecisionAgent {
		t.Fatalf("expected agent decision without a backend, got %s", decision.Decision)
	}
}

func TestClassifyReturnsModelDecision(t *testing.T) {
	fake := &fakeLLM{structuredResponse: json.RawMessage(`{"decision":"human","reason":"explicit request for a human"}`)}
	c := agent.NewClassifier(fake, logger.NewNop())

	decision, err := c.Classify(context.Background(),
		[]model.Message{customerMessage("hello")},
		"I want to speak to a human",
	)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if decision.Decision != model.DecisionHuman {
		t.Fatalf("expected human, got %s", decision.Decision)
	}
	if decision.Reason == "" {
		t.Fatalf("expected a reason")
	}

	// The latest message must be part of the prompt.
	found := false
	for _, m := range fake.structuredMsgs {
		if strings.Contains(m.Content, "I want to speak to a human") {
			found = true
		}
	}
	if !found {
		t.Fatalf("latest message missing from classifier prompt")
	}
}

func TestClassifyNormalizesUnknownDecisionToAgent(t *testing.T) {
	fake := &fakeLLM{structuredResponse: json.RawMessage(`{"decision":"maybe","reason":"unsure"}`)}
	c := agent.NewClassifier(fake, logger.NewNop())

	decision, err := c.Classify(context.Background(), nil, "what is my balance?")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if decision.Decision != model.DecisionAgent {
		t.Fatalf("expected agent for unknown verdict, got %s", decision.Decision)
	}
}

func TestClassifyPropagatesInferenceErrors(t *testing.T) {
	fake := &fakeLLM{structuredErr: errors.New("backend down")}
	c := agent.NewClassifier(fake, logger.NewNop())

	if _, err := c.Classify(context.Background(), nil, "hello"); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestClassifyExcludesInternalMessagesFromHistory(t *testing.T) {
	fake := &fakeLLM{structuredResponse: json.RawMessage(`{"decision":"agent","reason":"routine"}`)}
	c := agent.NewClassifier(fake, logger.NewNop())

	agentID := "agent-1"
	internal := model.Message{
		ID:             "m2",
		ConversationID: "c1",
		SenderType:     model.SenderAI,
		SenderAgentID:  &agentID,
		Content:        "internal escalation note",
		IsInternal:     true,
		CreatedAt:      time.Now(),
	}

	if _, err := c.Classify(context.Background(),
		[]model.Message{customerMessage("hi"), internal},
		"what is my balance?",
	); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	for _, m := range fake.structuredMsgs {
		if strings.Contains(m.Content, "internal escalation note") {
			t.Fatalf("internal message leaked into classifier prompt")
		}
	}
}
