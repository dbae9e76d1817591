// Package service implements the conversation coordinator and the
// notification service.
package service

import (
	"context"
	"time"

	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/store"
)

// Publisher is the live fan-out the services deliver through. A nil
// Publisher means no gateway runs in this process; deliveries are skipped.
type Publisher interface {
	Publish(room, event string, payload any) int
	PublishRooms(rooms []string, event string, payload any) int
}

// UserStore resolves user ids.
type UserStore interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// MessageStore persists direct messages.
type MessageStore interface {
	Create(ctx context.Context, msg *model.DirectMessage) error
	Exists(ctx context.Context, id string) (bool, error)
	AttachConversation(ctx context.Context, messageID, conversationID string) error
	ListByConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]model.DirectMessage, error)
}

// ConversationStore persists two-party conversations.
type ConversationStore interface {
	RecordMessage(ctx context.Context, p store.RecordMessageParams) (*model.Conversation, bool, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, error)
	ResetUnread(ctx context.Context, conversationID, userID string) error
}

// NotificationStore persists notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	CreateBatch(ctx context.Context, ns []*model.Notification) error
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

// DirectMessageJournal receives a copy of every sent direct message.
type DirectMessageJournal interface {
	RecordDirectMessage(ctx context.Context, msg *model.DirectMessage) error
}

// NotificationJournal receives a copy of every created notification.
type NotificationJournal interface {
	RecordNotification(ctx context.Context, n *model.Notification) error
}

const (
	journalTimeout = 2 * time.Second

	defaultPageSize = 50
	maxPageSize     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
