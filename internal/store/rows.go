package store

import (
	"time"

	"github.com/campus-social/realtime-gateway/internal/model"
)

type userRow struct {
	ID        string    `gorm:"primarykey;size:64"`
	Name      string    `gorm:"size:200;not null"`
	Email     string    `gorm:"size:320;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func (r *userRow) toModel() *model.User {
	return &model.User{ID: r.ID, Name: r.Name, Email: r.Email}
}

// conversationRow stores the canonical pair as two columns so the pair can
// carry a unique index.
type conversationRow struct {
	ID            string     `gorm:"primarykey;size:36"`
	ParticipantA  string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:1"`
	ParticipantB  string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:2;index"`
	LastMessageID *string    `gorm:"size:36"`
	LastMessageAt *time.Time `gorm:"index"`
	UnreadA       int        `gorm:"not null"`
	UnreadB       int        `gorm:"not null"`
	ArchivedA     bool       `gorm:"not null"`
	ArchivedB     bool       `gorm:"not null"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null;index"`
}

func (conversationRow) TableName() string { return "conversations" }

func (r *conversationRow) toModel() *model.Conversation {
	conv := &model.Conversation{
		ID:            r.ID,
		Participants:  [2]string{r.ParticipantA, r.ParticipantB},
		LastMessageAt: r.LastMessageAt,
		UnreadCount: map[string]int{
			r.ParticipantA: r.UnreadA,
			r.ParticipantB: r.UnreadB,
		},
		Archived: map[string]bool{
			r.ParticipantA: r.ArchivedA,
			r.ParticipantB: r.ArchivedB,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LastMessageID != nil {
		conv.LastMessageID = *r.LastMessageID
	}
	return conv
}

type directMessageRow struct {
	ID             string    `gorm:"primarykey;size:36"`
	SenderID       string    `gorm:"size:64;not null;index"`
	RecipientID    string    `gorm:"size:64;not null;index"`
	Content        string    `gorm:"type:text;not null"`
	ReplyToID      *string   `gorm:"size:36"`
	ConversationID *string   `gorm:"size:36;index:idx_message_conversation,priority:1"`
	CreatedAt      time.Time `gorm:"not null;index:idx_message_conversation,priority:2"`
}

func (directMessageRow) TableName() string { return "direct_messages" }

func newDirectMessageRow(m *model.DirectMessage) *directMessageRow {
	row := &directMessageRow{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		ReplyToID:   m.ReplyToID,
		CreatedAt:   m.CreatedAt,
	}
	if m.ConversationID != "" {
		id := m.ConversationID
		row.ConversationID = &id
	}
	return row
}

func (r *directMessageRow) toModel() model.DirectMessage {
	msg := model.DirectMessage{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Content:     r.Content,
		ReplyToID:   r.ReplyToID,
		CreatedAt:   r.CreatedAt,
	}
	if r.ConversationID != nil {
		msg.ConversationID = *r.ConversationID
	}
	return msg
}

type notificationRow struct {
	ID          string         `gorm:"primarykey;size:36"`
	RecipientID string         `gorm:"size:64;not null;index:idx_notification_recipient,priority:1"`
	SenderID    *string        `gorm:"size:64"`
	Type        string         `gorm:"size:32;not null"`
	Title       string         `gorm:"size:200;not null"`
	Message     string         `gorm:"type:text;not null"`
	ActionURL   string         `gorm:"size:500"`
	Priority    string         `gorm:"size:16;not null"`
	PostID      *string        `gorm:"size:64"`
	CommentID   *string        `gorm:"size:64"`
	CommunityID *string        `gorm:"size:64"`
	UserID      *string        `gorm:"size:64"`
	IsRead      bool           `gorm:"not null;index:idx_notification_recipient,priority:2"`
	IsArchived  bool           `gorm:"not null"`
	Metadata    map[string]any `gorm:"serializer:json"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}

func (notificationRow) TableName() string { return "notifications" }

func newNotificationRow(n *model.Notification) *notificationRow {
	return &notificationRow{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		ActionURL:   n.ActionURL,
		Priority:    string(n.Priority),
		PostID:      n.PostID,
		CommentID:   n.CommentID,
		CommunityID: n.CommunityID,
		UserID:      n.UserID,
		IsRead:      n.IsRead,
		IsArchived:  n.IsArchived,
		Metadata:    n.Metadata,
		CreatedAt:   n.CreatedAt,
	}
}

func (r *notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		SenderID:    r.SenderID,
		Type:        model.NotificationType(r.Type),
		Title:       r.Title,
		Message:     r.Message,
		ActionURL:   r.ActionURL,
		Priority:    model.Priority(r.Priority),
		PostID:      r.PostID,
		CommentID:   r.CommentID,
		CommunityID: r.CommunityID,
		UserID:      r.UserID,
		IsRead:      r.IsRead,
		IsArchived:  r.IsArchived,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
	}
}
