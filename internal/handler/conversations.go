// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/middleware"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/internal/orchestrator"
	"github.com/clearline-ai/support-orchestrator/internal/store"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
	"github.com/clearline-ai/support-orchestrator/pkg/metrics"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store          store.Store
	orch           *orchestrator.Orchestrator
	defaultAgentID string
	logger         *logger.Logger
}

// NewConversationHandler creates a new conversation handler. New conversations
// are assigned to defaultAgentID until a human takes over.
func NewConversationHandler(st store.Store, orch *orchestrator.Orchestrator, defaultAgentID string, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:          st,
		orch:           orch,
		defaultAgentID: defaultAgentID,
		logger:         log,
	}
}

// Create handles POST /api/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateCustomerID(req.CustomerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateSubject(req.Subject); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:              uuid.Must(uuid.NewV7()).String(),
		CustomerID:      req.CustomerID,
		Subject:         req.Subject,
		Channel:         defaultString(req.Channel, "web"),
		Priority:        defaultString(req.Priority, "normal"),
		Status:          model.StatusOpen,
		HandlingMode:    model.HandlingModeAI,
		AssignedAgentID: h.defaultAgentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.store.CreateConversation(ctx, conv); err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	metrics.ConversationsTotal.Inc()

	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to load conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// ListMessages handles GET /api/conversations/{id}/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.store.ListMessages(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        msgs,
	})
}

// Escalate handles POST /api/conversations/{id}/escalate
func (h *ConversationHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The body is optional.
	var req model.EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.orch.Escalate(ctx, conversationID, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to escalate conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to escalate conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
