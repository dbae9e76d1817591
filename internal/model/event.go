package model

import (
	"encoding/json"
	"time"
)

// Client to gateway events.
const (
	EventAuthenticate      = "authenticate"
	EventJoinCommunity     = "join-community"
	EventLeaveCommunity    = "leave-community"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventStartTyping       = "start-typing"
	EventStopTyping        = "stop-typing"
	EventMarkMessagesRead  = "mark-messages-read"
)

// Gateway to client events.
const (
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventNewMessage        = "new-message"
	EventNewDirectMessage  = "new-direct-message"
	EventNotificationNew   = "notification:new"
	EventMessageRead       = "message-read"
	EventError             = "error"
	EventConnected         = "connected"
	EventHeartbeat         = "heartbeat"
)

// Envelope is the JSON frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AuthenticatePayload is the first frame of a socket that did not present a
// token at upgrade time.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// PresenceEvent is the payload of user-online and user-offline.
type PresenceEvent struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingEvent is the payload of user-typing.
type TypingEvent struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	CommunityID    string `json:"communityId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// StoppedTypingEvent is the payload of user-stopped-typing.
type StoppedTypingEvent struct {
	UserID         string `json:"userId"`
	CommunityID    string `json:"communityId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// NewMessageEvent is the payload of new-message.
type NewMessageEvent struct {
	Message     any    `json:"message"`
	CommunityID string `json:"communityId"`
}

// DirectMessageEvent is the payload of new-direct-message.
type DirectMessageEvent struct {
	Message        *DirectMessage `json:"message"`
	ConversationID string         `json:"conversationId"`
}

// NotificationEvent is the payload of notification:new.
type NotificationEvent struct {
	Notification *Notification `json:"notification"`
}

// MarkMessagesReadPayload is the payload of mark-messages-read.
type MarkMessagesReadPayload struct {
	MessageIDs     []string `json:"messageIds"`
	ConversationID string   `json:"conversationId"`
}

// MessageReadEvent is the payload of message-read.
type MessageReadEvent struct {
	MessageIDs     []string `json:"messageIds"`
	ConversationID string   `json:"conversationId"`
	ReadBy         string   `json:"readBy"`
}

// ErrorEvent is the payload of error.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ConnectedEvent confirms a successful handshake.
type ConnectedEvent struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
