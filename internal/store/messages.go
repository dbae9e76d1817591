package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/campus-social/realtime-gateway/internal/model"
)

// MessageRepository provides access to direct messages.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create saves a new direct message.
func (r *MessageRepository) Create(ctx context.Context, msg *model.DirectMessage) error {
	if err := r.db.WithContext(ctx).Create(newDirectMessageRow(msg)).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Exists reports whether a message with id exists.
func (r *MessageRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&directMessageRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up message: %w", err)
	}
	return count > 0, nil
}

// AttachConversation links a message to its conversation.
func (r *MessageRepository) AttachConversation(ctx context.Context, messageID, conversationID string) error {
	result := r.db.WithContext(ctx).
		Model(&directMessageRow{}).
		Where("id = ?", messageID).
		UpdateColumn("conversation_id", conversationID)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to attach conversation: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByConversation returns up to limit messages of a conversation sent
// before the given time (all when before is nil), oldest first.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, before *time.Time, limit int) ([]model.DirectMessage, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		query = query.Where("created_at < ?", before.UTC())
	}

	var rows []directMessageRow
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]model.DirectMessage, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].toModel()
	}
	return out, nil
}
