// Package orchestrator implements the per-message routing state machine:
// validate, persist, then hand the message to a human or the automated
// responder.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/llm"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/internal/store"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
	"github.com/clearline-ai/support-orchestrator/pkg/metrics"
)

// Result statuses.
const (
	StatusHandoff = "handoff"
	StatusAI      = "ai"
	StatusStored  = "stored"
)

const (
	previewMaxRunes = 240

	handoffAcknowledgment = "Thanks for reaching out. I'm connecting you with a human support agent who will take over this conversation shortly."
)

// ValidationError rejects a request whose sender fields are inconsistent.
// Nothing is persisted for the request beyond what already succeeded.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Classifier decides the routing for the latest customer message.
type Classifier interface {
	Classify(ctx context.Context, prior []model.Message, latest string) (model.HandoffDecision, error)
}

// Summarizer compresses raw history into a bounded structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, raw []model.Message) ([]model.SummarizedMessage, error)
}

// AnswerPipeline produces the automated reply for one customer query. The
// reply must be non-empty displayable text; messages carry a non-empty
// content invariant and an empty reply is never persisted.
type AnswerPipeline interface {
	Answer(ctx context.Context, customerID, query string, summary []model.SummarizedMessage, prior []llm.Message) (string, []llm.Message, error)
}

// EventPublisher fans conversation events out to the realtime surface.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
}

// Orchestrator routes incoming messages between the human and automated
// paths.
//
// Note on concurrency: there is no row lock or version check between loading
// a conversation and updating its handling mode, so two concurrent customer
// messages on the same conversation can both reach the classifier. The
// transition stays monotonic because no path ever writes the mode back to ai.
type Orchestrator struct {
	store      store.Store
	classifier Classifier
	summarizer Summarizer
	pipeline   AnswerPipeline
	events     EventPublisher
	log        *logger.Logger

	botAgentID     string
	handoffContext int
}

// Options configures an Orchestrator.
type Options struct {
	Store      store.Store
	Classifier Classifier
	Summarizer Summarizer
	Pipeline   AnswerPipeline

	// Events may be nil; publishing is best effort.
	Events EventPublisher

	Logger *logger.Logger

	// BotAgentID is the agent identity attributed to AI and system messages.
	BotAgentID string

	// HandoffContext is how many recent messages go into the internal handoff
	// summary.
	HandoffContext int
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.HandoffContext <= 0 {
		opts.HandoffContext = 10
	}
	return &Orchestrator{
		store:          opts.Store,
		classifier:     opts.Classifier,
		summarizer:     opts.Summarizer,
		pipeline:       opts.Pipeline,
		events:         opts.Events,
		log:            opts.Logger,
		botAgentID:     opts.BotAgentID,
		handoffContext: opts.HandoffContext,
	}
}

// HandleMessage runs the full routing sequence for one incoming message:
// validate, persist, then branch on sender type and handling mode.
func (o *Orchestrator) HandleMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Durability precedes orchestration: the message and the conversation
	// preview are written before any routing work.
	msg, err := o.persistIncoming(ctx, req)
	if err != nil {
		return nil, err
	}

	log := o.log.WithConversation(req.ConversationID, stringValue(req.SenderCustomerID))
	log.Info("message stored",
		zap.String("message_id", msg.ID),
		zap.String("sender_type", string(req.SenderType)),
	)

	conv, err := o.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	if req.SenderType != model.SenderCustomer {
		o.publish(ctx, conv.ID, conv.CustomerID, model.EventTypeMessageStored, msg.ID, "")
		return &model.SendMessageResponse{
			Status:            StatusStored,
			CustomerMessageID: msg.ID,
		}, nil
	}

	if conv.HandlingMode == model.HandlingModeHuman {
		log.Info("conversation already human-handled, skipping routing")
		o.publish(ctx, conv.ID, conv.CustomerID, model.EventTypeMessageStored, msg.ID, "")
		return &model.SendMessageResponse{
			Status:            StatusHandoff,
			CustomerMessageID: msg.ID,
		}, nil
	}

	prior := priorHistory(conv.Messages, msg.ID)

	decision, err := o.classifier.Classify(ctx, prior, req.Content)
	if err != nil {
		return nil, err
	}
	metrics.HandoffDecisionsTotal.WithLabelValues(decision.Decision).Inc()

	if decision.Decision == model.DecisionHuman {
		return o.performHandoff(ctx, conv, msg, decision, log)
	}
	return o.answerWithAI(ctx, conv, msg, prior, log)
}

// Escalate flips a conversation to human handling on explicit operator
// request, outside the classifier path. Idempotent: escalating an already
// human-handled conversation is a no-op. The returned conversation reflects
// the escalated state.
func (o *Orchestrator) Escalate(ctx context.Context, conversationID, reason string) (*model.Conversation, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	if conv.HandlingMode == model.HandlingModeHuman {
		return conv, nil
	}

	mode := model.HandlingModeHuman
	status := model.StatusEscalated
	priority := "high"
	if err := o.store.UpdateConversation(ctx, conversationID, store.ConversationUpdate{
		HandlingMode: &mode,
		Status:       &status,
		Priority:     &priority,
	}); err != nil {
		return nil, fmt.Errorf("escalate conversation: %w", err)
	}

	o.log.WithConversation(conv.ID, conv.CustomerID).Info("conversation escalated by operator",
		zap.String("reason", reason),
	)
	o.publish(ctx, conv.ID, conv.CustomerID, model.EventTypeHandoff, "", reason)

	conv.HandlingMode = mode
	conv.Status = status
	conv.Priority = priority
	return conv, nil
}

// performHandoff flips the conversation to human handling and records the
// audit trail: an internal context summary plus a customer-visible
// acknowledgment. The mode flip is monotonic; nothing ever reverts it.
func (o *Orchestrator) performHandoff(
	ctx context.Context,
	conv *model.Conversation,
	msg *model.Message,
	decision model.HandoffDecision,
	log *logger.Logger,
) (*model.SendMessageResponse, error) {
	mode := model.HandlingModeHuman
	status := model.StatusEscalated
	priority := "high"
	if err := o.store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{
		HandlingMode: &mode,
		Status:       &status,
		Priority:     &priority,
	}); err != nil {
		return nil, fmt.Errorf("escalate conversation: %w", err)
	}

	log.Info("conversation handed off",
		zap.String("reason", decision.Reason),
		zap.String("trigger_message_id", msg.ID),
	)

	// Two separate writes: a crash in between leaves the acknowledgment
	// missing, which the log line above makes discoverable.
	summary := o.buildHandoffSummary(conv, msg, decision.Reason)
	internalMsg, err := o.persistBotMessage(ctx, conv.ID, summary, true)
	if err != nil {
		return nil, fmt.Errorf("persist handoff summary: %w", err)
	}

	if _, err := o.persistBotMessage(ctx, conv.ID, handoffAcknowledgment, false); err != nil {
		log.Error("handoff acknowledgment write failed",
			zap.String("internal_message_id", internalMsg.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persist handoff acknowledgment: %w", err)
	}

	o.publish(ctx, conv.ID, conv.CustomerID, model.EventTypeHandoff, msg.ID, decision.Reason)

	return &model.SendMessageResponse{
		Status:            StatusHandoff,
		CustomerMessageID: msg.ID,
	}, nil
}

// answerWithAI runs the summarize-then-answer path and persists the reply.
func (o *Orchestrator) answerWithAI(
	ctx context.Context,
	conv *model.Conversation,
	msg *model.Message,
	prior []model.Message,
	log *logger.Logger,
) (*model.SendMessageResponse, error) {
	summary, err := o.summarizer.Summarize(ctx, prior)
	if err != nil {
		return nil, err
	}

	answer, _, err := o.pipeline.Answer(ctx, conv.CustomerID, msg.Content, summary, nil)
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return nil, fmt.Errorf("answer pipeline returned empty content")
	}

	aiMsg, err := o.persistBotMessage(ctx, conv.ID, answer, false)
	if err != nil {
		return nil, fmt.Errorf("persist AI reply: %w", err)
	}

	log.Info("AI reply stored",
		zap.String("ai_message_id", aiMsg.ID),
		zap.Int("summary_entries", len(summary)),
	)
	o.publish(ctx, conv.ID, conv.CustomerID, model.EventTypeAIReply, aiMsg.ID, "")

	return &model.SendMessageResponse{
		Status:            StatusAI,
		CustomerMessageID: msg.ID,
		AIReply:           &answer,
		AIMessageID:       &aiMsg.ID,
	}, nil
}

// persistIncoming stores the incoming message and unconditionally refreshes
// the conversation preview.
func (o *Orchestrator) persistIncoming(ctx context.Context, req *model.SendMessageRequest) (*model.Message, error) {
	now := time.Now().UTC()
	msg := &model.Message{
		ID:               uuid.Must(uuid.NewV7()).String(),
		ConversationID:   req.ConversationID,
		SenderType:       req.SenderType,
		SenderCustomerID: req.SenderCustomerID,
		SenderAgentID:    req.SenderAgentID,
		Content:          req.Content,
		IsInternal:       req.IsInternal,
		CreatedAt:        now,
	}

	if err := o.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(req.SenderType)).Inc()

	preview := truncatePreview(req.Content)
	if err := o.store.UpdateConversation(ctx, req.ConversationID, store.ConversationUpdate{
		LastMessage:   &preview,
		LastMessageAt: &now,
	}); err != nil {
		return nil, fmt.Errorf("update conversation preview: %w", err)
	}

	return msg, nil
}

// persistBotMessage stores a message attributed to the automated sender and
// refreshes the preview for customer-visible ones.
func (o *Orchestrator) persistBotMessage(ctx context.Context, conversationID, content string, internal bool) (*model.Message, error) {
	now := time.Now().UTC()
	agentID := o.botAgentID
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderType:     model.SenderAI,
		SenderAgentID:  &agentID,
		Content:        content,
		IsInternal:     internal,
		CreatedAt:      now,
	}

	if err := o.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.SenderAI)).Inc()

	if !internal {
		preview := truncatePreview(content)
		if err := o.store.UpdateConversation(ctx, conversationID, store.ConversationUpdate{
			LastMessage:   &preview,
			LastMessageAt: &now,
		}); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// buildHandoffSummary condenses the tail of the conversation for the human
// agent taking over: the last handoffContext messages, collected newest-first
// and reversed for chronological display.
func (o *Orchestrator) buildHandoffSummary(conv *model.Conversation, latest *model.Message, reason string) string {
	var recent []model.Message
	all := append([]model.Message{}, conv.Messages...)
	if !containsMessage(all, latest.ID) {
		all = append(all, *latest)
	}
	for i := len(all) - 1; i >= 0 && len(recent) < o.handoffContext; i-- {
		recent = append(recent, all[i])
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	var b strings.Builder
	b.WriteString("Conversation handed off to a human agent.\n")
	b.WriteString("Reason: " + reason + "\n")
	b.WriteString("Recent context:\n")
	for _, m := range recent {
		fmt.Fprintf(&b, "[%s] %s\n", m.SenderType, m.Content)
	}
	return b.String()
}

// publish emits a conversation event. Best effort: failures are logged and
// never fail the request.
func (o *Orchestrator) publish(ctx context.Context, conversationID, customerID string, eventType model.EventType, messageID, reason string) {
	if o.events == nil {
		return
	}
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		CustomerID:     customerID,
		Type:           eventType,
		MessageID:      messageID,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.log.Warn("event publish failed",
			zap.String("type", string(eventType)),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// validate enforces the sender-field invariants before anything is persisted.
func validate(req *model.SendMessageRequest) error {
	if req.ConversationID == "" {
		return &ValidationError{Reason: "conversation_id is required"}
	}
	if strings.TrimSpace(req.Content) == "" {
		return &ValidationError{Reason: "content must not be empty"}
	}

	switch req.SenderType {
	case model.SenderCustomer:
		if req.SenderCustomerID == nil || *req.SenderCustomerID == "" || req.SenderAgentID != nil {
			return &ValidationError{Reason: "customer message requires sender_customer_id only"}
		}
		if req.IsInternal {
			return &ValidationError{Reason: "customers cannot send internal messages"}
		}
	case model.SenderAgent, model.SenderAI, model.SenderSystem:
		if req.SenderAgentID == nil || *req.SenderAgentID == "" || req.SenderCustomerID != nil {
			return &ValidationError{Reason: fmt.Sprintf("%s message requires sender_agent_id only", req.SenderType)}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown sender_type %q", req.SenderType)}
	}
	return nil
}

// priorHistory returns the messages that precede the just-persisted one.
func priorHistory(msgs []model.Message, latestID string) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == latestID {
			continue
		}
		out = append(out, m)
	}
	return out
}

func containsMessage(msgs []model.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxRunes {
		return content
	}
	return string(runes[:previewMaxRunes])
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
