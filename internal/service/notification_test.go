package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/store"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

func validParams(recipient string) *model.NotificationParams {
	return &model.NotificationParams{
		RecipientID: recipient,
		Type:        model.NotificationFollow,
		Title:       "New follower",
		Message:     "bob started following you",
	}
}

func TestCreateNotification_OfflineRecipientIsPersisted(t *testing.T) {
	db := setupTestDB(t)
	h := hub.New(logger.NewNop())
	svc := NewNotificationService(store.NewNotificationRepository(db), h, nil, logger.NewNop())
	ctx := context.Background()

	n, err := svc.CreateNotification(ctx, validParams("alice"))
	require.NoError(t, err)
	require.NotEmpty(t, n.ID)
	assert.Equal(t, model.PriorityMedium, n.Priority)
	assert.False(t, n.CreatedAt.IsZero())

	list, err := svc.ListNotifications(ctx, "alice", false, 10)
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, n.ID, list.Notifications[0].ID)
	assert.Equal(t, int64(1), list.Unread)
}

func TestCreateNotification_WithoutGateway(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(store.NewNotificationRepository(db), nil, nil, logger.NewNop())

	n, err := svc.CreateNotification(context.Background(), validParams("alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
}

func TestCreateNotification_LivePush(t *testing.T) {
	db := setupTestDB(t)
	h := hub.New(logger.NewNop())
	svc := NewNotificationService(store.NewNotificationRepository(db), h, nil, logger.NewNop())

	tab1 := connectUser(t, h, "alice")
	tab2 := connectUser(t, h, "alice")
	other := connectUser(t, h, "bob")
	drainEvents(t, tab1)
	drainEvents(t, tab2)

	n, err := svc.CreateNotification(context.Background(), validParams("alice"))
	require.NoError(t, err)

	for _, c := range []*hub.Connection{tab1, tab2} {
		events := onlyEvent(drainEvents(t, c), model.EventNotificationNew)
		require.Len(t, events, 1)
		var payload model.NotificationEvent
		require.NoError(t, json.Unmarshal(events[0].Data, &payload))
		assert.Equal(t, n.ID, payload.Notification.ID)
	}
	assert.Empty(t, onlyEvent(drainEvents(t, other), model.EventNotificationNew))
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(string, string, any) int        { panic("gateway exploded") }
func (panickingPublisher) PublishRooms([]string, string, any) int { panic("gateway exploded") }

func TestCreateNotification_DeliveryPanicIsSwallowed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(store.NewNotificationRepository(db), panickingPublisher{}, nil, logger.NewNop())

	var n *model.Notification
	var err error
	require.NotPanics(t, func() {
		n, err = svc.CreateNotification(context.Background(), validParams("alice"))
	})
	require.NoError(t, err)

	count, err := store.NewNotificationRepository(db).CountUnread(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.NotEmpty(t, n.ID)
}

func TestCreateNotification_Validation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(store.NewNotificationRepository(db), nil, nil, logger.NewNop())

	tests := []struct {
		name   string
		mutate func(p *model.NotificationParams)
	}{
		{"missing recipient", func(p *model.NotificationParams) { p.RecipientID = "" }},
		{"missing type", func(p *model.NotificationParams) { p.Type = "" }},
		{"unknown type", func(p *model.NotificationParams) { p.Type = "poke" }},
		{"missing title", func(p *model.NotificationParams) { p.Title = " " }},
		{"long title", func(p *model.NotificationParams) { p.Title = strings.Repeat("t", maxTitleLength+1) }},
		{"missing message", func(p *model.NotificationParams) { p.Message = "" }},
		{"unknown priority", func(p *model.NotificationParams) { p.Priority = "critical" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams("alice")
			tt.mutate(p)
			n, err := svc.CreateNotification(context.Background(), p)
			assert.Nil(t, n)
			assert.True(t, apperror.Is(err, apperror.CodeValidation), "got %v", err)
		})
	}

	count, err := store.NewNotificationRepository(db).CountUnread(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateBulkNotifications(t *testing.T) {
	db := setupTestDB(t)
	h := hub.New(logger.NewNop())
	journal := &recordingJournal{}
	svc := NewNotificationService(store.NewNotificationRepository(db), h, journal, logger.NewNop())
	ctx := context.Background()

	bob := connectUser(t, h, "bob")

	params := []model.NotificationParams{
		SystemAnnouncementNotification("alice", "Library hours", "Open until midnight during finals", "/news/1"),
		SystemAnnouncementNotification("bob", "Library hours", "Open until midnight during finals", "/news/1"),
		SystemAnnouncementNotification("carol", "Library hours", "Open until midnight during finals", "/news/1"),
	}
	created, err := svc.CreateBulkNotifications(ctx, params)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Len(t, journal.nots, 3)
	assert.Len(t, onlyEvent(drainEvents(t, bob), model.EventNotificationNew), 1)

	for _, recipient := range []string{"alice", "bob", "carol"} {
		list, err := svc.ListNotifications(ctx, recipient, true, 10)
		require.NoError(t, err)
		assert.Len(t, list.Notifications, 1, recipient)
	}
}

func TestCreateBulkNotifications_RejectsWholeBatch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(store.NewNotificationRepository(db), nil, nil, logger.NewNop())
	ctx := context.Background()

	bad := FollowNotification("bob", "carol", "Carol")
	bad.Title = ""
	_, err := svc.CreateBulkNotifications(ctx, []model.NotificationParams{
		FollowNotification("alice", "carol", "Carol"),
		bad,
	})
	require.True(t, apperror.Is(err, apperror.CodeValidation))
	assert.Contains(t, apperror.Message(err), "notifications[1]")

	count, err := store.NewNotificationRepository(db).CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)

	created, err := svc.CreateBulkNotifications(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestCreateNotification_JournalFailureIsSwallowed(t *testing.T) {
	db := setupTestDB(t)
	journal := &recordingJournal{err: errors.New("nats down")}
	svc := NewNotificationService(store.NewNotificationRepository(db), nil, journal, logger.NewNop())

	n, err := svc.CreateNotification(context.Background(), validParams("alice"))
	require.NoError(t, err)
	require.Len(t, journal.nots, 1)
	assert.Equal(t, n.ID, journal.nots[0].ID)
}

func TestNotificationTemplates(t *testing.T) {
	until := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		params   model.NotificationParams
		wantType model.NotificationType
	}{
		{PostLikeNotification("alice", "bob", "Bob", "p1"), model.NotificationPostLike},
		{PostCommentNotification("alice", "bob", "Bob", "p1", "c1"), model.NotificationPostComment},
		{PostShareNotification("alice", "bob", "Bob", "p1"), model.NotificationPostShare},
		{CommentReplyNotification("alice", "bob", "Bob", "p1", "c1"), model.NotificationCommentReply},
		{FollowNotification("alice", "bob", "Bob"), model.NotificationFollow},
		{MessageNotification("alice", "bob", "Bob", "conv-1"), model.NotificationMessage},
		{CommunityJoinNotification("alice", "bob", "Bob", "chess", "Chess Club"), model.NotificationCommunityJoin},
		{CommunityInviteNotification("alice", "bob", "Bob", "chess", "Chess Club"), model.NotificationCommunityInvite},
		{CommunityPostNotification("alice", "bob", "Bob", "chess", "Chess Club", "p1"), model.NotificationCommunityPost},
		{AdminWarningNotification("alice", "spam"), model.NotificationAdminWarning},
		{AdminSuspensionNotification("alice", "spam", until), model.NotificationAdminSuspension},
		{SystemAnnouncementNotification("alice", "Snow day", "Campus closed", ""), model.NotificationSystemAnnouncement},
		{EventReminderNotification("alice", "e1", "Career fair", until), model.NotificationEventReminder},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.params.Type)
			assert.Equal(t, "alice", tt.params.RecipientID)
			assert.NoError(t, validateNotification(&tt.params))
		})
	}

	like := PostLikeNotification("alice", "bob", "", "p1")
	assert.Equal(t, "Someone liked your post", like.Message)
	assert.Equal(t, "/posts/p1", like.ActionURL)
	require.NotNil(t, like.PostID)
	assert.Equal(t, "p1", *like.PostID)

	assert.Equal(t, model.PriorityUrgent, AdminSuspensionNotification("alice", "spam", until).Priority)
}
