// Package gateway authenticates live connections and translates client
// events into room, presence and typing operations. It never persists
// anything; durable writes go through the service package.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/campus-social/realtime-gateway/internal/auth"
	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/typing"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

const (
	maxRoomIDLength  = 128
	maxReadReceiptID = 500
)

// ConversationAccess decides whether a user may join a conversation room.
type ConversationAccess interface {
	IsParticipant(ctx context.Context, userID, conversationID string) (bool, error)
}

// Options tunes per-connection limits.
type Options struct {
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{SendBuffer: 256, EventsPerSecond: 20, EventBurst: 40}
}

// Gateway is the entry point for live connections.
type Gateway struct {
	hub      *hub.Hub
	typing   *typing.Tracker
	verifier *auth.Verifier
	access   ConversationAccess
	opts     Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	logger *logger.Logger
}

// New creates a gateway. access may be nil, in which case any authenticated
// connection may join any conversation room.
func New(h *hub.Hub, tracker *typing.Tracker, verifier *auth.Verifier, access ConversationAccess, opts Options, log *logger.Logger) *Gateway {
	def := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = def.EventsPerSecond
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = def.EventBurst
	}
	return &Gateway{
		hub:      h,
		typing:   tracker,
		verifier: verifier,
		access:   access,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		logger:   log.Component("gateway"),
	}
}

// Connect verifies rawToken and registers a new connection in the caller's
// personal room. A rejected token yields an auth error and no room joins.
func (g *Gateway) Connect(rawToken string, transport hub.Transport) (*hub.Connection, error) {
	claims, err := g.verifier.Verify(rawToken)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(authFailureReason(err)).Inc()
		g.logger.Debug("connection rejected",
			zap.String("transport", string(transport)),
			zap.Error(err),
		)
		return nil, err
	}
	return g.Attach(claims, transport), nil
}

// Attach registers a connection for an identity that was already verified,
// such as a REST-authenticated event stream.
func (g *Gateway) Attach(claims *auth.Claims, transport hub.Transport) *hub.Connection {
	name := claims.Name
	if name == "" {
		name = claims.UserID()
	}
	c := hub.NewConnection(claims.UserID(), name, transport, g.opts.SendBuffer)

	g.mu.Lock()
	g.limiters[c.ID] = rate.NewLimiter(rate.Limit(g.opts.EventsPerSecond), g.opts.EventBurst)
	g.mu.Unlock()

	g.hub.Register(c)
	g.logger.WithConnection(c.ID, c.UserID).Info("connection established",
		zap.String("transport", string(transport)),
	)
	return c
}

// Disconnect releases every room membership of c. When it was the user's
// last connection the user goes offline and their typing entries are cleared.
func (g *Gateway) Disconnect(c *hub.Connection) {
	c.Close()

	g.mu.Lock()
	delete(g.limiters, c.ID)
	g.mu.Unlock()

	if !g.hub.Unregister(c) {
		g.logger.WithConnection(c.ID, c.UserID).Debug("connection closed")
		return
	}
	cleared := g.typing.ClearUser(c.UserID)
	g.logger.WithConnection(c.ID, c.UserID).Info("user went offline",
		zap.Int("typing_cleared", cleared),
	)
}

// Send queues one event for a single connection.
func (g *Gateway) Send(c *hub.Connection, event string, payload any) bool {
	return g.hub.SendTo(c, event, payload)
}

// Publish fans event out to every connection in room.
func (g *Gateway) Publish(room, event string, payload any) int {
	return g.hub.Publish(room, event, payload)
}

// PublishRooms fans event out to the union of rooms, once per connection.
func (g *Gateway) PublishRooms(rooms []string, event string, payload any) int {
	return g.hub.PublishRooms(rooms, event, payload)
}

// IsOnline reports whether userID has at least one live connection.
func (g *Gateway) IsOnline(userID string) bool {
	return g.hub.IsOnline(userID)
}

// OnlineUsers returns the ids of every online user.
func (g *Gateway) OnlineUsers() []string {
	return g.hub.OnlineUsers()
}

// HandleEvent decodes and applies one client frame. Failures are reported
// to c as an error event; the connection stays open.
func (g *Gateway) HandleEvent(ctx context.Context, c *hub.Connection, frame []byte) {
	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		g.reject(c, "invalid", apperror.Protocol("malformed event frame"))
		return
	}

	if !g.allow(c) {
		g.reject(c, env.Event, apperror.Protocol("event rate limit exceeded"))
		return
	}

	var err error
	switch env.Event {
	case model.EventJoinCommunity:
		err = g.joinCommunity(c, env.Data)
	case model.EventLeaveCommunity:
		err = g.leave(c, env.Data, "communityId", hub.CommunityRoom)
	case model.EventJoinConversation:
		err = g.joinConversation(ctx, c, env.Data)
	case model.EventLeaveConversation:
		err = g.leave(c, env.Data, "conversationId", hub.ConversationRoom)
	case model.EventStartTyping:
		err = g.startTyping(c, env.Data)
	case model.EventStopTyping:
		err = g.stopTyping(c, env.Data)
	case model.EventMarkMessagesRead:
		err = g.markMessagesRead(c, env.Data)
	case model.EventAuthenticate:
		err = apperror.Protocol("connection is already authenticated")
	default:
		g.reject(c, "unknown", apperror.Protocol("unknown event: "+env.Event))
		return
	}

	if err != nil {
		g.reject(c, env.Event, err)
	}
}

func (g *Gateway) joinCommunity(c *hub.Connection, data json.RawMessage) error {
	id, err := roomID(data, "communityId")
	if err != nil {
		return err
	}
	g.hub.JoinRoom(c, hub.CommunityRoom(id))
	return nil
}

func (g *Gateway) joinConversation(ctx context.Context, c *hub.Connection, data json.RawMessage) error {
	id, err := roomID(data, "conversationId")
	if err != nil {
		return err
	}
	if g.access != nil {
		ok, err := g.access.IsParticipant(ctx, c.UserID, id)
		if err != nil {
			g.logger.WithConnection(c.ID, c.UserID).Error("participant check failed",
				zap.String("conversation_id", id),
				zap.Error(err),
			)
			return apperror.Internal("could not join conversation", err)
		}
		if !ok {
			return apperror.Forbidden("not a participant of this conversation")
		}
	}
	g.hub.JoinRoom(c, hub.ConversationRoom(id))
	return nil
}

func (g *Gateway) leave(c *hub.Connection, data json.RawMessage, field string, room func(string) string) error {
	id, err := roomID(data, field)
	if err != nil {
		return err
	}
	g.hub.LeaveRoom(c, room(id))
	return nil
}

func (g *Gateway) startTyping(c *hub.Connection, data json.RawMessage) error {
	sel, err := g.typingSelector(c, data, true)
	if err != nil {
		return err
	}
	return g.typing.StartTyping(c.UserID, c.DisplayName, sel)
}

func (g *Gateway) stopTyping(c *hub.Connection, data json.RawMessage) error {
	sel, err := g.typingSelector(c, data, false)
	if err != nil {
		return err
	}
	return g.typing.StopTyping(c.UserID, sel)
}

// typingSelector decodes the selector. Starting to type requires membership
// of the room; stopping does not, so a client that already left can still
// clear its indicator.
func (g *Gateway) typingSelector(c *hub.Connection, data json.RawMessage, requireMember bool) (typing.Selector, error) {
	var sel typing.Selector
	if len(data) == 0 || json.Unmarshal(data, &sel) != nil {
		return sel, apperror.Protocol("typing payload must be {communityId} or {conversationId}")
	}
	if err := sel.Validate(); err != nil {
		return sel, err
	}
	if requireMember && !g.hub.InRoom(c, sel.Room()) {
		return sel, apperror.Forbidden("join the room before typing in it")
	}
	return sel, nil
}

func (g *Gateway) markMessagesRead(c *hub.Connection, data json.RawMessage) error {
	var p model.MarkMessagesReadPayload
	if len(data) == 0 || json.Unmarshal(data, &p) != nil {
		return apperror.Protocol("mark-messages-read payload must be {messageIds, conversationId}")
	}
	if err := validateRoomID(p.ConversationID, "conversationId"); err != nil {
		return err
	}
	if len(p.MessageIDs) > maxReadReceiptID {
		return apperror.Protocol("too many messageIds")
	}
	room := hub.ConversationRoom(p.ConversationID)
	if !g.hub.InRoom(c, room) {
		return apperror.Forbidden("join the conversation before marking messages read")
	}
	if p.MessageIDs == nil {
		p.MessageIDs = []string{}
	}
	g.hub.Publish(room, model.EventMessageRead, model.MessageReadEvent{
		MessageIDs:     p.MessageIDs,
		ConversationID: p.ConversationID,
		ReadBy:         c.UserID,
	})
	return nil
}

func (g *Gateway) allow(c *hub.Connection) bool {
	g.mu.Lock()
	lim := g.limiters[c.ID]
	g.mu.Unlock()
	return lim == nil || lim.Allow()
}

// reject counts a refused client event and tells only c about it.
func (g *Gateway) reject(c *hub.Connection, event string, err error) {
	metrics.ProtocolErrors.WithLabelValues(metricEventLabel(event)).Inc()
	g.logger.WithConnection(c.ID, c.UserID).Debug("client event rejected",
		zap.String("event", event),
		zap.Error(err),
	)
	g.hub.SendTo(c, model.EventError, model.ErrorEvent{
		Message: apperror.Message(err),
		Code:    string(apperror.CodeOf(err)),
	})
}

// roomID accepts either a bare JSON string or an object carrying field.
func roomID(data json.RawMessage, field string) (string, error) {
	if len(data) == 0 {
		return "", apperror.Protocol(field + " is required")
	}

	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) != nil {
			return "", apperror.Protocol("payload must be a " + field + " string")
		}
		raw, ok := obj[field]
		if !ok || json.Unmarshal(raw, &id) != nil {
			return "", apperror.Protocol(field + " is required")
		}
	}
	if err := validateRoomID(id, field); err != nil {
		return "", err
	}
	return id, nil
}

func validateRoomID(id, field string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return apperror.Protocol(field + " is required")
	case len(id) > maxRoomIDLength:
		return apperror.Protocol(field + " is too long")
	case strings.ContainsAny(id, " \t\r\n"):
		return apperror.Protocol(field + " must not contain whitespace")
	}
	return nil
}

func metricEventLabel(event string) string {
	switch event {
	case model.EventJoinCommunity, model.EventLeaveCommunity,
		model.EventJoinConversation, model.EventLeaveConversation,
		model.EventStartTyping, model.EventStopTyping,
		model.EventMarkMessagesRead, model.EventAuthenticate, "invalid":
		return event
	}
	return "unknown"
}

func authFailureReason(err error) string {
	switch err {
	case auth.ErrMissingToken:
		return "missing"
	case auth.ErrExpiredToken:
		return "expired"
	}
	return "invalid"
}
