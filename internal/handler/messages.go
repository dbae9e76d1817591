package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/middleware"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/service"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

// MessageHandler handles direct message endpoints.
type MessageHandler struct {
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(convSvc *service.ConversationService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		conversationService: convSvc,
		logger:              log.Component("message-handler"),
	}
}

// Send handles POST /api/v1/direct-messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.SendDirectMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.conversationService.SendDirectMessage(ctx, userID, &req)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeInternal || apperror.CodeOf(err) == apperror.CodeConflict {
			h.logger.WithRequest(middleware.GetCorrelationID(ctx), userID).Error("failed to send direct message",
				zap.String("recipient_id", req.RecipientID),
				zap.Error(err),
			)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
