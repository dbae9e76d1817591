package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/middleware"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/service"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

const defaultPageSize = 50

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log.Component("conversation-handler"),
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := middleware.ParseOffset(r.URL.Query().Get("offset"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.String("user_id", userID), zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Messages handles GET /api/v1/conversations/{id}/messages
// Supports ?before=<RFC3339> to page backwards.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, err)
		return
	}

	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, apperror.Validation("before must be an RFC 3339 timestamp"))
			return
		}
		before = &t
	}

	resp, err := h.service.ListMessages(ctx, userID, conversationID, before, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// MarkRead handles POST /api/v1/conversations/{id}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, err)
		return
	}

	var req model.MarkReadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	conv, err := h.service.MarkConversationRead(ctx, userID, conversationID, req.MessageIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
