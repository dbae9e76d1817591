package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campus-social/realtime-gateway/internal/model"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Options{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func newMessageID() string { return uuid.Must(uuid.NewV7()).String() }

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, Ping(context.Background(), db))
}

func TestUserRepository_UpsertAndExists(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	ok, err := repo.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Upsert(ctx, &model.User{ID: "alice", Name: "Alice", Email: "alice@campus.edu"}))
	require.NoError(t, repo.Upsert(ctx, &model.User{ID: "alice", Name: "Alice L.", Email: "al@campus.edu"}))

	ok, err = repo.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", user.Name)
	assert.Equal(t, "al@campus.edu", user.Email)

	_, err = repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRepository_RecordMessage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m1 := newMessageID()
	conv, created, err := repo.RecordMessage(ctx, RecordMessageParams{
		SenderID: "zed", RecipientID: "amy", MessageID: m1, SentAt: first,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, [2]string{"amy", "zed"}, conv.Participants)
	assert.Equal(t, map[string]int{"amy": 1, "zed": 0}, conv.UnreadCount)
	assert.Equal(t, m1, conv.LastMessageID)
	require.NotNil(t, conv.LastMessageAt)
	assert.True(t, first.Equal(*conv.LastMessageAt))

	m2 := newMessageID()
	again, created, err := repo.RecordMessage(ctx, RecordMessageParams{
		SenderID: "zed", RecipientID: "amy", MessageID: m2, SentAt: first.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, map[string]int{"amy": 2, "zed": 0}, again.UnreadCount)

	reply := newMessageID()
	replied, _, err := repo.RecordMessage(ctx, RecordMessageParams{
		SenderID: "amy", RecipientID: "zed", MessageID: reply, SentAt: first.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, replied.ID)
	assert.Equal(t, map[string]int{"amy": 0, "zed": 1}, replied.UnreadCount)
	assert.Equal(t, reply, replied.LastMessageID)

	// An older message whose upsert lands late still counts as unread but
	// does not move the pointer back.
	late, _, err := repo.RecordMessage(ctx, RecordMessageParams{
		SenderID: "zed", RecipientID: "amy", MessageID: newMessageID(), SentAt: first.Add(90 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"amy": 1, "zed": 0}, late.UnreadCount)
	assert.Equal(t, reply, late.LastMessageID)
	require.NotNil(t, late.LastMessageAt)
	assert.True(t, first.Add(2*time.Minute).Equal(*late.LastMessageAt))
	assert.True(t, replied.UpdatedAt.Equal(late.UpdatedAt))

	// Equal timestamps advance the pointer.
	tie := newMessageID()
	tied, _, err := repo.RecordMessage(ctx, RecordMessageParams{
		SenderID: "amy", RecipientID: "zed", MessageID: tie, SentAt: first.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, tie, tied.LastMessageID)

	var count int64
	require.NoError(t, db.Model(&conversationRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConversationRepository_UniquePair(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Create(&conversationRow{
		ID: newMessageID(), ParticipantA: "a", ParticipantB: "b", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)
	err := db.Create(&conversationRow{
		ID: newMessageID(), ParticipantA: "a", ParticipantB: "b", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error
	require.Error(t, err)
	assert.True(t, IsTransient(err), "a duplicate pair is reported as a retryable conflict")
}

func TestConversationRepository_ConcurrentFirstMessages(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan string, 2*n)
	for i := 0; i < n; i++ {
		for _, dir := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
			wg.Add(1)
			go func(sender, recipient string) {
				defer wg.Done()
				conv, _, err := repo.RecordMessage(ctx, RecordMessageParams{
					SenderID: sender, RecipientID: recipient, MessageID: newMessageID(), SentAt: time.Now(),
				})
				if assert.NoError(t, err) {
					ids <- conv.ID
				}
			}(dir[0], dir[1])
		}
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)

	conv, err := repo.FindByPair(ctx, "bob", "alice")
	require.NoError(t, err)
	a, b := conv.UnreadCount["alice"], conv.UnreadCount["bob"]
	assert.True(t, (a == 0) != (b == 0), "exactly one side was reset by the last send: %v", conv.UnreadCount)
	assert.LessOrEqual(t, a+b, n)
}

func TestConversationRepository_ListAndReset(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	older, _, err := repo.RecordMessage(ctx, RecordMessageParams{SenderID: "bob", RecipientID: "alice", MessageID: newMessageID(), SentAt: base})
	require.NoError(t, err)
	newer, _, err := repo.RecordMessage(ctx, RecordMessageParams{SenderID: "carol", RecipientID: "alice", MessageID: newMessageID(), SentAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, _, err = repo.RecordMessage(ctx, RecordMessageParams{SenderID: "bob", RecipientID: "carol", MessageID: newMessageID(), SentAt: base})
	require.NoError(t, err)

	list, err := repo.ListForUser(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	require.NoError(t, repo.ResetUnread(ctx, older.ID, "alice"))
	got, err := repo.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount["alice"])

	assert.ErrorIs(t, repo.ResetUnread(ctx, older.ID, "carol"), ErrNotFound)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := repo.IsParticipant(ctx, "alice", older.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsParticipant(ctx, "carol", older.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.IsParticipant(ctx, "alice", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		msg := &model.DirectMessage{
			ID:          newMessageID(),
			SenderID:    "alice",
			RecipientID: "bob",
			Content:     fmt.Sprintf("message %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Create(ctx, msg))
		require.NoError(t, repo.AttachConversation(ctx, msg.ID, "conv-1"))
		ids = append(ids, msg.ID)
	}

	ok, err := repo.Exists(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.AttachConversation(ctx, "missing", "conv-1"), ErrNotFound)

	all, err := repo.ListByConversation(ctx, "conv-1", nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "conv-1", all[0].ConversationID)

	before := base.Add(2 * time.Second)
	page, err := repo.ListByConversation(ctx, "conv-1", &before, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestNotificationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	single := &model.Notification{
		ID:          newMessageID(),
		RecipientID: "alice",
		Type:        model.NotificationFollow,
		Title:       "New follower",
		Message:     "bob followed you",
		Priority:    model.PriorityLow,
		Metadata:    map[string]any{"source": "profile"},
		CreatedAt:   base,
	}
	require.NoError(t, repo.Create(ctx, single))

	batch := []*model.Notification{
		{ID: newMessageID(), RecipientID: "alice", Type: model.NotificationSystemAnnouncement, Title: "t", Message: "m", Priority: model.PriorityHigh, CreatedAt: base.Add(time.Minute)},
		{ID: newMessageID(), RecipientID: "bob", Type: model.NotificationSystemAnnouncement, Title: "t", Message: "m", Priority: model.PriorityHigh, IsRead: true, CreatedAt: base.Add(time.Minute)},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))
	require.NoError(t, repo.CreateBatch(ctx, nil))

	list, err := repo.ListForRecipient(ctx, "alice", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, batch[0].ID, list[0].ID)
	assert.Equal(t, "profile", list[1].Metadata["source"])

	unread, err := repo.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	bobUnread, err := repo.ListForRecipient(ctx, "bob", true, 10)
	require.NoError(t, err)
	assert.Empty(t, bobUnread)
}

func TestNotificationRepository_BatchIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	dup := newMessageID()
	err := repo.CreateBatch(ctx, []*model.Notification{
		{ID: dup, RecipientID: "alice", Type: model.NotificationFollow, Title: "t", Message: "m", Priority: model.PriorityLow, CreatedAt: time.Now()},
		{ID: dup, RecipientID: "bob", Type: model.NotificationFollow, Title: "t", Message: "m", Priority: model.PriorityLow, CreatedAt: time.Now()},
	})
	require.Error(t, err)

	count, err := repo.CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrConstraint}))
}
