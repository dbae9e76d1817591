package model

import (
	"time"
)

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotificationPostLike           NotificationType = "post_like"
	NotificationPostComment        NotificationType = "post_comment"
	NotificationPostShare          NotificationType = "post_share"
	NotificationCommentReply       NotificationType = "comment_reply"
	NotificationFollow             NotificationType = "follow"
	NotificationMessage            NotificationType = "message"
	NotificationCommunityJoin      NotificationType = "community_join"
	NotificationCommunityInvite    NotificationType = "community_invite"
	NotificationCommunityPost      NotificationType = "community_post"
	NotificationAdminWarning       NotificationType = "admin_warning"
	NotificationAdminSuspension    NotificationType = "admin_suspension"
	NotificationSystemAnnouncement NotificationType = "system_announcement"
	NotificationEventReminder      NotificationType = "event_reminder"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationPostLike:           {},
	NotificationPostComment:        {},
	NotificationPostShare:          {},
	NotificationCommentReply:       {},
	NotificationFollow:             {},
	NotificationMessage:            {},
	NotificationCommunityJoin:      {},
	NotificationCommunityInvite:    {},
	NotificationCommunityPost:      {},
	NotificationAdminWarning:       {},
	NotificationAdminSuspension:    {},
	NotificationSystemAnnouncement: {},
	NotificationEventReminder:      {},
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

// Priority orders notifications for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a persisted notice for one recipient.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient"`
	SenderID    *string          `json:"sender,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ActionURL   string           `json:"actionUrl,omitempty"`
	Priority    Priority         `json:"priority"`
	PostID      *string          `json:"relatedPost,omitempty"`
	CommentID   *string          `json:"relatedComment,omitempty"`
	CommunityID *string          `json:"relatedCommunity,omitempty"`
	UserID      *string          `json:"relatedUser,omitempty"`
	IsRead      bool             `json:"isRead"`
	IsArchived  bool             `json:"isArchived"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NotificationParams are the inputs of CreateNotification.
type NotificationParams struct {
	RecipientID string           `json:"recipientId"`
	SenderID    *string          `json:"senderId,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ActionURL   string           `json:"actionUrl,omitempty"`
	Priority    Priority         `json:"priority,omitempty"`
	PostID      *string          `json:"relatedPost,omitempty"`
	CommentID   *string          `json:"relatedComment,omitempty"`
	CommunityID *string          `json:"relatedCommunity,omitempty"`
	UserID      *string          `json:"relatedUser,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// BulkNotificationRequest is the REST body for bulk creation.
type BulkNotificationRequest struct {
	Notifications []NotificationParams `json:"notifications"`
}

// ListNotificationsResponse is the response for the notification pull API.
type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Unread        int64          `json:"unread"`
}
