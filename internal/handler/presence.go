package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campus-social/realtime-gateway/internal/middleware"
)

// PresenceReader answers online-status queries.
type PresenceReader interface {
	IsOnline(userID string) bool
	OnlineUsers() []string
}

// PresenceHandler handles presence endpoints.
type PresenceHandler struct {
	presence PresenceReader
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(presence PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// PresenceResponse reports one user's online status.
type PresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Online handles GET /api/v1/presence
func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	users := h.presence.OnlineUsers()
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// Get handles GET /api/v1/presence/{userId}
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := middleware.ValidateEntityID("user", userID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PresenceResponse{
		UserID: userID,
		Online: h.presence.IsOnline(userID),
	})
}
