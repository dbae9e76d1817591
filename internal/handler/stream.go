package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/auth"
	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/middleware"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

const defaultHeartbeat = 30 * time.Second

// ConnectionRegistry attaches and releases live connections.
type ConnectionRegistry interface {
	Attach(claims *auth.Claims, transport hub.Transport) *hub.Connection
	Disconnect(c *hub.Connection)
}

// StreamHandler serves the receive-only event stream over SSE. The
// connection sits in the caller's personal room, so it carries presence,
// direct messages and notifications but cannot join other rooms.
type StreamHandler struct {
	registry  ConnectionRegistry
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(registry ConnectionRegistry, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		registry:  registry,
		heartbeat: defaultHeartbeat,
		logger:    log.Component("stream-handler"),
	}
}

// Stream handles GET /api/v1/events/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middleware.GetClaims(ctx)
	if claims == nil {
		writeError(w, apperror.Auth("missing token"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperror.Internal("streaming not supported", nil))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	c := h.registry.Attach(claims, hub.TransportSSE)
	defer h.registry.Disconnect(c)
	log := h.logger.WithConnection(c.ID, c.UserID)

	if err := sendSSEEvent(w, flusher, model.EventConnected, model.ConnectedEvent{
		ConnectionID: c.ID,
		UserID:       c.UserID,
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case <-c.Done():
			log.Debug("SSE connection closed by gateway")
			return

		case frame := <-c.Outbound():
			if err := writeSSEFrame(w, flusher, frame); err != nil {
				log.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, model.EventHeartbeat, &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
		}
	}
}

// writeSSEFrame re-frames an encoded envelope as an SSE event.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, frame []byte) error {
	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	data := []byte(env.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	return writeSSE(w, flusher, env.Event, data)
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeSSE(w, flusher, event, jsonData)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
