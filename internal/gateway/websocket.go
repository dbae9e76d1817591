package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 * 1024
)

// WebSocketHandler serves GET /ws.
type WebSocketHandler struct {
	gateway          *Gateway
	upgrader         websocket.Upgrader
	handshakeTimeout time.Duration
	logger           *logger.Logger
}

// NewWebSocketHandler creates the socket endpoint. An empty allowedOrigins
// accepts any origin.
func NewWebSocketHandler(g *Gateway, allowedOrigins []string, handshakeTimeout time.Duration, log *logger.Logger) *WebSocketHandler {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocketHandler{
		gateway: g,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		handshakeTimeout: handshakeTimeout,
		logger:           log.Component("websocket"),
	}
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it. The token comes from the Authorization header, the token query
// parameter or a first authenticate frame.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	token := requestToken(r)
	if token == "" {
		token, err = h.awaitAuthenticate(ws)
		if err != nil {
			metrics.AuthFailures.WithLabelValues("handshake").Inc()
			h.refuse(ws, err)
			return
		}
	}

	c, err := h.gateway.Connect(token, hub.TransportWebSocket)
	if err != nil {
		h.refuse(ws, err)
		return
	}
	defer h.gateway.Disconnect(c)

	h.gateway.Send(c, model.EventConnected, model.ConnectedEvent{
		ConnectionID: c.ID,
		UserID:       c.UserID,
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, c)
	}()

	h.readPump(r.Context(), ws, c)
	c.Close()
	<-writerDone
}

// awaitAuthenticate reads the first frame within the handshake timeout.
func (h *WebSocketHandler) awaitAuthenticate(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.handshakeTimeout))
	defer ws.SetReadDeadline(time.Time{})

	_, frame, err := ws.ReadMessage()
	if err != nil {
		return "", apperror.Auth("authentication timed out")
	}

	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event != model.EventAuthenticate {
		return "", apperror.Auth("first event must be authenticate")
	}
	var p model.AuthenticatePayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Token == "" {
		return "", apperror.Auth("authenticate requires a token")
	}
	return p.Token, nil
}

// refuse sends an error event followed by a policy-violation close frame.
func (h *WebSocketHandler) refuse(ws *websocket.Conn, err error) {
	h.logger.Debug("websocket handshake refused", zap.Error(err))

	deadline := time.Now().Add(writeWait)
	_ = ws.SetWriteDeadline(deadline)
	if frame, encErr := hub.Encode(model.EventError, model.ErrorEvent{
		Message: apperror.Message(err),
		Code:    string(apperror.CodeOf(err)),
	}); encErr == nil {
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, apperror.Message(err)),
		deadline,
	)
}

func (h *WebSocketHandler) readPump(ctx context.Context, ws *websocket.Conn, c *hub.Connection) {
	log := h.logger.WithConnection(c.ID, c.UserID)

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && !c.Closed() {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		h.gateway.HandleEvent(ctx, c, frame)
	}
}

// writePump is the only writer to ws once the connection is registered.
func (h *WebSocketHandler) writePump(ws *websocket.Conn, c *hub.Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case frame := <-c.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// requestToken extracts a bearer token from the header or the query string.
func requestToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
