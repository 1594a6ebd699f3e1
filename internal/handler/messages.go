package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/middleware"
	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/internal/orchestrator"
	"github.com/clearline-ai/support-orchestrator/internal/store"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

// MessageHandler handles the send-message endpoint.
type MessageHandler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		orch:   orch,
		logger: log,
	}
}

// Send handles POST /api/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.orch.HandleMessage(ctx, &req)
	if err != nil {
		var verr *orchestrator.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Reason)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			h.logger.Error("message handling failed",
				zap.String("conversation_id", req.ConversationID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to process message")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
