package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campus-social/realtime-gateway/internal/model"
)

// ConversationRepository provides access to two-party conversations.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// RecordMessageParams describes one message landing in a conversation.
type RecordMessageParams struct {
	SenderID    string
	RecipientID string
	MessageID   string
	SentAt      time.Time
}

// pointerIsStale is true when the stored last-message pointer is not newer
// than the bound send time. SET expressions all read the pre-update row.
const pointerIsStale = "(conversations.last_message_at IS NULL OR conversations.last_message_at <= ?)"

// RecordMessage finds or creates the conversation of the sender/recipient
// pair and applies the message to it in one statement: the recipient's
// unread count is incremented, the sender's is reset and the last-message
// pointer moves forward. A message older than the current pointer, whose
// upsert lost a race with a newer one, leaves the pointer in place. The unique index on the canonical pair makes concurrent
// first messages converge on one row. It reports whether the row was created.
func (r *ConversationRepository) RecordMessage(ctx context.Context, p RecordMessageParams) (*model.Conversation, bool, error) {
	pair := model.CanonicalPair(p.SenderID, p.RecipientID)
	sentAt := p.SentAt.UTC()
	messageID := p.MessageID

	row := &conversationRow{
		ID:            uuid.Must(uuid.NewV7()).String(),
		ParticipantA:  pair[0],
		ParticipantB:  pair[1],
		LastMessageID: &messageID,
		LastMessageAt: &sentAt,
		CreatedAt:     sentAt,
		UpdatedAt:     sentAt,
	}
	if pair[0] == p.RecipientID {
		row.UnreadA = 1
	} else {
		row.UnreadB = 1
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "participant_a"}, {Name: "participant_b"}},
			DoUpdates: clause.Assignments(map[string]any{
				"unread_a":        gorm.Expr("CASE WHEN conversations.participant_a = ? THEN conversations.unread_a + 1 ELSE 0 END", p.RecipientID),
				"unread_b":        gorm.Expr("CASE WHEN conversations.participant_b = ? THEN conversations.unread_b + 1 ELSE 0 END", p.RecipientID),
				"last_message_id": gorm.Expr("CASE WHEN "+pointerIsStale+" THEN ? ELSE conversations.last_message_id END", sentAt, messageID),
				"last_message_at": gorm.Expr("CASE WHEN "+pointerIsStale+" THEN ? ELSE conversations.last_message_at END", sentAt, sentAt),
				"updated_at":      gorm.Expr("CASE WHEN "+pointerIsStale+" THEN ? ELSE conversations.updated_at END", sentAt, sentAt),
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	// Reload to capture the id and counters of whichever row won.
	persisted, err := r.FindByPair(ctx, pair[0], pair[1])
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload conversation: %w", err)
	}
	return persisted, persisted.ID == row.ID, nil
}

// FindByPair returns the conversation between two users, in either order.
func (r *ConversationRepository) FindByPair(ctx context.Context, a, b string) (*model.Conversation, error) {
	pair := model.CanonicalPair(a, b)

	var row conversationRow
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", pair[0], pair[1]).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return row.toModel(), nil
}

// Get retrieves a conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var row conversationRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return row.toModel(), nil
}

// IsParticipant reports whether userID is one of the conversation's two
// participants. A missing conversation reports false.
func (r *ConversationRepository) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&conversationRow{}).
		Where("id = ? AND (participant_a = ? OR participant_b = ?)", conversationID, userID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check conversation participant: %w", err)
	}
	return count > 0, nil
}

// ListForUser returns the conversations userID takes part in, most recently
// active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, error) {
	var rows []conversationRow
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]model.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

// ResetUnread sets userID's unread count in the conversation to zero.
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&conversationRow{}).
		Where("id = ? AND (participant_a = ? OR participant_b = ?)", conversationID, userID, userID).
		UpdateColumns(map[string]any{
			"unread_a": gorm.Expr("CASE WHEN participant_a = ? THEN 0 ELSE unread_a END", userID),
			"unread_b": gorm.Expr("CASE WHEN participant_b = ? THEN 0 ELSE unread_b END", userID),
		})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to reset unread count: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
