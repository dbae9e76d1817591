package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/middleware"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

// RoomPublisher fans an event out to a room.
type RoomPublisher interface {
	Publish(room, event string, payload any) int
}

// RelayHandler lets the platform's write path push community messages to
// live members.
type RelayHandler struct {
	publisher RoomPublisher
	logger    *logger.Logger
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(publisher RoomPublisher, log *logger.Logger) *RelayHandler {
	return &RelayHandler{
		publisher: publisher,
		logger:    log.Component("relay-handler"),
	}
}

// RelayResponse reports how many connections received the event.
type RelayResponse struct {
	CommunityID string `json:"communityId"`
	Delivered   int    `json:"delivered"`
}

// CommunityMessage handles POST /api/v1/communities/{id}/relay
func (h *RelayHandler) CommunityMessage(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "id")
	if err := middleware.ValidateEntityID("community", communityID); err != nil {
		writeError(w, err)
		return
	}

	var req model.RelayCommunityMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Message == nil {
		writeError(w, apperror.Validation("message is required"))
		return
	}

	delivered := h.publisher.Publish(hub.CommunityRoom(communityID), model.EventNewMessage, model.NewMessageEvent{
		Message:     req.Message,
		CommunityID: communityID,
	})
	if delivered == 0 {
		metrics.RecordDeliveryMiss(model.EventNewMessage, "empty_room")
	}
	h.logger.Debug("community message relayed",
		zap.String("community_id", communityID),
		zap.Int("delivered", delivered),
	)

	writeJSON(w, http.StatusAccepted, RelayResponse{CommunityID: communityID, Delivered: delivered})
}
