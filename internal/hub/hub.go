// Package hub implements room membership, presence and fan-out for live
// connections. All state is process-local: a deployment runs one gateway
// process, and scaling out would need a broadcast bus keyed by room.
package hub

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

const (
	userRoomPrefix         = "user:"
	communityRoomPrefix    = "community:"
	conversationRoomPrefix = "conversation:"
)

// UserRoom is the personal room every connection of userID joins.
func UserRoom(userID string) string { return userRoomPrefix + userID }

// CommunityRoom is the room of a community.
func CommunityRoom(communityID string) string { return communityRoomPrefix + communityID }

// ConversationRoom is the room of a two-party conversation.
func ConversationRoom(conversationID string) string { return conversationRoomPrefix + conversationID }

// IsPersonalRoom reports whether room is a user:<id> room.
func IsPersonalRoom(room string) bool { return strings.HasPrefix(room, userRoomPrefix) }

type connSet map[*Connection]struct{}

// Hub owns the connection, room and presence tables. Membership changes and
// broadcasts are serialized by one lock, so a broadcast never misses a
// connection that finished joining nor reaches one that finished leaving.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]connSet
	users map[string]connSet

	logger *logger.Logger
	now    func() time.Time
}

// New creates an empty hub.
func New(log *logger.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]connSet),
		users:  make(map[string]connSet),
		logger: log.Component("hub"),
		now:    time.Now,
	}
}

// Register adds a connection, joins it to its personal room and, if it is the
// user's first connection, announces user-online to every connection of
// other users. It reports whether this was the user's first connection.
func (h *Hub) Register(c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.registered {
		return false
	}
	c.registered = true
	h.conns[c.ID] = c

	set, ok := h.users[c.UserID]
	if !ok {
		set = make(connSet)
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	first := len(set) == 1

	h.joinLocked(c, UserRoom(c.UserID))

	metrics.IncrementConnections(string(c.Transport))
	if first {
		metrics.UsersOnline.Inc()
		h.broadcastPresenceLocked(model.EventUserOnline, c.UserID)
	}

	h.logger.Debug("connection registered",
		zap.String("connection_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.Bool("first", first),
	)
	return first
}

// Unregister removes a connection from every room. If it was the user's last
// connection, user-offline is announced to every connection of other users.
// It reports whether the user went offline.
func (h *Hub) Unregister(c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.registered {
		return false
	}
	c.registered = false
	delete(h.conns, c.ID)

	for room := range c.rooms {
		h.leaveLocked(c, room)
	}

	last := false
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
			last = true
		}
	}

	metrics.DecrementConnections(string(c.Transport))
	if last {
		metrics.UsersOnline.Dec()
		h.broadcastPresenceLocked(model.EventUserOffline, c.UserID)
	}

	h.logger.Debug("connection unregistered",
		zap.String("connection_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.Bool("last", last),
	)
	return last
}

// JoinRoom adds c to room. Joining twice is a no-op; it reports whether
// membership changed.
func (h *Hub) JoinRoom(c *Connection, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.registered {
		return false
	}
	return h.joinLocked(c, room)
}

// LeaveRoom removes c from room. Leaving a room c is not in is a no-op.
func (h *Hub) LeaveRoom(c *Connection, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.registered {
		return false
	}
	return h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Connection, room string) bool {
	if _, ok := c.rooms[room]; ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(connSet)
		h.rooms[room] = members
		metrics.RoomsActive.Inc()
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

func (h *Hub) leaveLocked(c *Connection, room string) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
			metrics.RoomsActive.Dec()
		}
	}
	return true
}

// Publish delivers event to every connection currently in room and returns
// the number of connections it was queued for.
func (h *Hub) Publish(room, event string, payload any) int {
	return h.publish(room, event, payload, nil)
}

// PublishExceptUser delivers event to every connection in room that does not
// belong to userID.
func (h *Hub) PublishExceptUser(room, userID, event string, payload any) int {
	return h.publish(room, event, payload, func(c *Connection) bool { return c.UserID != userID })
}

// PublishRooms delivers event once to every connection that is in at least
// one of rooms.
func (h *Hub) PublishRooms(rooms []string, event string, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(connSet)
	delivered := 0
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			if h.deliverLocked(c, event, frame) {
				delivered++
			}
		}
	}
	metrics.RecordDelivery(event, delivered)
	return delivered
}

// SendTo delivers event to a single connection.
func (h *Hub) SendTo(c *Connection, event string, payload any) bool {
	frame, err := Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deliverLocked(c, event, frame)
}

func (h *Hub) publish(room, event string, payload any, include func(*Connection) bool) int {
	frame, err := Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if include != nil && !include(c) {
			continue
		}
		if h.deliverLocked(c, event, frame) {
			delivered++
		}
	}
	metrics.RecordDelivery(event, delivered)
	return delivered
}

// deliverLocked requires h.mu held (read or write).
func (h *Hub) deliverLocked(c *Connection, event string, frame []byte) bool {
	if c.enqueue(frame) {
		return true
	}
	if !c.Closed() {
		metrics.SlowConsumersDropped.Inc()
		h.logger.Warn("dropping slow connection",
			zap.String("connection_id", c.ID),
			zap.String("user_id", c.UserID),
			zap.String("event", event),
		)
		c.Close()
	}
	return false
}

func (h *Hub) broadcastPresenceLocked(event, userID string) {
	frame, err := Encode(event, model.PresenceEvent{UserID: userID, Timestamp: h.now().UTC()})
	if err != nil {
		h.logger.Error("failed to encode presence", zap.Error(err))
		return
	}
	delivered := 0
	for _, c := range h.conns {
		if c.UserID == userID {
			continue
		}
		if h.deliverLocked(c, event, frame) {
			delivered++
		}
	}
	metrics.RecordDelivery(event, delivered)
}

// IsOnline reports whether userID has a connection in its personal room.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[UserRoom(userID)]) > 0
}

// OnlineUsers returns the sorted ids of users with at least one connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.users))
	for id := range h.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// UserConnectionCount returns the number of live connections of userID.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// InRoom reports whether c is a member of room.
func (h *Hub) InRoom(c *Connection, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// ConnectionCount returns the total number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll asks every connection to terminate.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.Close()
	}
}

// Encode builds the wire frame for an event.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(model.Envelope{Event: event, Data: data})
}
