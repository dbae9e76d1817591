package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/middleware"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/service"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	service *service.NotificationService
	logger  *logger.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(svc *service.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: svc,
		logger:  log.Component("notification-handler"),
	}
}

// Create handles POST /api/v1/notifications
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NotificationParams
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.service.CreateNotification(r.Context(), &req)
	if err != nil {
		h.logFailure(r, "failed to create notification", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

// CreateBulk handles POST /api/v1/notifications/bulk
func (h *NotificationHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req model.BulkNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.service.CreateBulkNotifications(r.Context(), req.Notifications)
	if err != nil {
		h.logFailure(r, "failed to create notifications", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"notifications": created,
		"count":         len(created),
	})
}

// List handles GET /api/v1/notifications
// Supports ?unread=true and ?limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, apperror.Validation("unread must be a boolean"))
			return
		}
		unreadOnly = b
	}

	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		h.logFailure(r, "failed to list notifications", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandler) logFailure(r *http.Request, msg string, err error) {
	if apperror.CodeOf(err) != apperror.CodeInternal {
		return
	}
	ctx := r.Context()
	h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx)).Error(msg, zap.Error(err))
}
