package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clearline-ai/support-orchestrator/internal/llm"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/internal/orchestrator"
	"github.com/clearline-ai/support-orchestrator/internal/store"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

type stubClassifier struct {
	decision model.HandoffDecision
}

func (s stubClassifier) Classify(ctx context.Context, prior []model.Message, latest string) (model.HandoffDecision, error) {
	return s.decision, nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, raw []model.Message) ([]model.SummarizedMessage, error) {
	return nil, nil
}

type stubPipeline struct {
	reply string
}

func (s stubPipeline) Answer(ctx context.Context, customerID, query string, summary []model.SummarizedMessage, prior []llm.Message) (string, []llm.Message, error) {
	return s.reply, nil, nil
}

func newRouter(t *testing.T, st store.Store, decision model.HandoffDecision) chi.Router {
	t.Helper()

	log := logger.NewNop()
	orch := orchestrator.New(orchestrator.Options{
		Store:      st,
		Classifier: stubClassifier{decision: decision},
		Summarizer: stubSummarizer{},
		Pipeline:   stubPipeline{reply: "automated answer"},
		Logger:     log,
		BotAgentID: "00000000-0000-0000-0000-0000000000a1",
	})

	conversations := NewConversationHandler(st, orch, "e66fa391-28b5-44ec-b3a9-4397c2f2d225", log)
	messages := NewMessageHandler(orch, log)

	r := chi.NewRouter()
	r.Post("/api/conversations", conversations.Create)
	r.Get("/api/conversations/{id}", conversations.Get)
	r.Get("/api/conversations/{id}/messages", conversations.ListMessages)
	r.Post("/api/conversations/{id}/escalate", conversations.Escalate)
	r.Post("/api/messages", messages.Send)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateConversation(t *testing.T) {
	router := newRouter(t, store.NewMemoryStore(), model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{
		CustomerID: "cust-1",
		Subject:    "Billing question",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var conv model.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if conv.HandlingMode != model.HandlingModeAI {
		t.Fatalf("handling mode = %q, want ai", conv.HandlingMode)
	}
	if conv.Status != model.StatusOpen || conv.Priority != "normal" || conv.Channel != "web" {
		t.Fatalf("unexpected defaults: %+v", conv)
	}
	if conv.AssignedAgentID != "e66fa391-28b5-44ec-b3a9-4397c2f2d225" {
		t.Fatalf("assigned agent = %q, want the default agent", conv.AssignedAgentID)
	}
	if _, err := uuid.Parse(conv.ID); err != nil {
		t.Fatalf("conversation id %q is not a uuid", conv.ID)
	}
}

func TestCreateConversationRejectsMissingCustomer(t *testing.T) {
	router := newRouter(t, store.NewMemoryStore(), model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSendMessageReturnsAIReply(t *testing.T) {
	st := store.NewMemoryStore()
	router := newRouter(t, st, model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{CustomerID: "cust-1"})
	var conv model.Conversation
	json.Unmarshal(rec.Body.Bytes(), &conv)

	customerID := "cust-1"
	rec = postJSON(t, router, "/api/messages", model.SendMessageRequest{
		ConversationID:   conv.ID,
		SenderType:       model.SenderCustomer,
		SenderCustomerID: &customerID,
		Content:          "What is my balance?",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res model.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != orchestrator.StatusAI {
		t.Fatalf("status = %q, want ai", res.Status)
	}
	if res.AIReply == nil || *res.AIReply != "automated answer" {
		t.Fatalf("ai reply = %v", res.AIReply)
	}
}

func TestSendMessageHandoff(t *testing.T) {
	st := store.NewMemoryStore()
	router := newRouter(t, st, model.HandoffDecision{Decision: model.DecisionHuman, Reason: "asked for a person"})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{CustomerID: "cust-1"})
	var conv model.Conversation
	json.Unmarshal(rec.Body.Bytes(), &conv)

	customerID := "cust-1"
	rec = postJSON(t, router, "/api/messages", model.SendMessageRequest{
		ConversationID:   conv.ID,
		SenderType:       model.SenderCustomer,
		SenderCustomerID: &customerID,
		Content:          "human please",
	})

	var res model.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != orchestrator.StatusHandoff || res.AIReply != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	stored, err := st.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if stored.HandlingMode != model.HandlingModeHuman || stored.Status != model.StatusEscalated {
		t.Fatalf("conversation not escalated: mode=%s status=%s", stored.HandlingMode, stored.Status)
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	router := newRouter(t, store.NewMemoryStore(), model.HandoffDecision{Decision: model.DecisionAgent})

	customerID := "cust-1"
	rec := postJSON(t, router, "/api/messages", model.SendMessageRequest{
		ConversationID:   uuid.New().String(),
		SenderType:       model.SenderCustomer,
		SenderCustomerID: &customerID,
		Content:          "hello",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSendMessageMalformedSenderIs400(t *testing.T) {
	st := store.NewMemoryStore()
	router := newRouter(t, st, model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{CustomerID: "cust-1"})
	var conv model.Conversation
	json.Unmarshal(rec.Body.Bytes(), &conv)

	// customer sender without a customer id
	rec = postJSON(t, router, "/api/messages", model.SendMessageRequest{
		ConversationID: conv.ID,
		SenderType:     model.SenderCustomer,
		Content:        "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEscalateConversation(t *testing.T) {
	st := store.NewMemoryStore()
	router := newRouter(t, st, model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{CustomerID: "cust-1"})
	var conv model.Conversation
	json.Unmarshal(rec.Body.Bytes(), &conv)

	rec = postJSON(t, router, "/api/conversations/"+conv.ID+"/escalate", model.EscalateRequest{Reason: "operator takeover"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var escalated model.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &escalated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if escalated.HandlingMode != model.HandlingModeHuman || escalated.Status != model.StatusEscalated || escalated.Priority != "high" {
		t.Fatalf("conversation not escalated: %+v", escalated)
	}

	// Subsequent customer messages bypass the automated path.
	customerID := "cust-1"
	rec = postJSON(t, router, "/api/messages", model.SendMessageRequest{
		ConversationID:   conv.ID,
		SenderType:       model.SenderCustomer,
		SenderCustomerID: &customerID,
		Content:          "any update?",
	})
	var res model.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != orchestrator.StatusHandoff {
		t.Fatalf("status = %q, want handoff", res.Status)
	}
}

func TestEscalateUnknownConversation(t *testing.T) {
	router := newRouter(t, store.NewMemoryStore(), model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations/"+uuid.New().String()+"/escalate", model.EscalateRequest{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListMessagesAscending(t *testing.T) {
	st := store.NewMemoryStore()
	router := newRouter(t, st, model.HandoffDecision{Decision: model.DecisionAgent})

	rec := postJSON(t, router, "/api/conversations", model.CreateConversationRequest{CustomerID: "cust-1"})
	var conv model.Conversation
	json.Unmarshal(rec.Body.Bytes(), &conv)

	customerID := "cust-1"
	for i := 0; i < 2; i++ {
		postJSON(t, router, "/api/messages", model.SendMessageRequest{
			ConversationID:   conv.ID,
			SenderType:       model.SenderCustomer,
			SenderCustomerID: &customerID,
			Content:          fmt.Sprintf("question %d", i),
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil)
	recList := httptest.NewRecorder()
	router.ServeHTTP(recList, req)

	if recList.Code != http.StatusOK {
		t.Fatalf("status = %d", recList.Code)
	}
	var body struct {
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(recList.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// two customer messages and two automated replies, oldest first
	if len(body.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(body.Messages))
	}
	for i := 1; i < len(body.Messages); i++ {
		if body.Messages[i].CreatedAt.Before(body.Messages[i-1].CreatedAt) {
			t.Fatal("messages not in ascending order")
		}
	}
	if body.Messages[0].Content != "question 0" {
		t.Fatalf("first message = %q", body.Messages[0].Content)
	}
}
