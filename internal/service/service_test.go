package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/store"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

// setupTestDB creates an in-memory SQLite database with alice, bob and carol.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := store.Open(store.Options{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { _ = store.Close(db) })

	users := store.NewUserRepository(db)
	for _, u := range []model.User{
		{ID: "alice", Name: "Alice", Email: "alice@campus.edu"},
		{ID: "bob", Name: "Bob", Email: "bob@campus.edu"},
		{ID: "carol", Name: "Carol", Email: "carol@campus.edu"},
	} {
		u := u
		require.NoError(t, users.Upsert(context.Background(), &u))
	}
	return db
}

func newConversationService(db *gorm.DB, pub Publisher) *ConversationService {
	svc := NewConversationService(ConversationDeps{
		Users:         store.NewUserRepository(db),
		Messages:      store.NewMessageRepository(db),
		Conversations: store.NewConversationRepository(db),
		Publisher:     pub,
	}, logger.NewNop())
	svc.backoff = 0
	return svc
}

func connectUser(t *testing.T, h *hub.Hub, userID string) *hub.Connection {
	t.Helper()
	c := hub.NewConnection(userID, userID, hub.TransportWebSocket, 512)
	h.Register(c)
	return c
}

func drainEvents(t *testing.T, c *hub.Connection) []model.Envelope {
	t.Helper()
	var out []model.Envelope
	for {
		select {
		case frame := <-c.Outbound():
			var env model.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func onlyEvent(envs []model.Envelope, name string) []model.Envelope {
	var out []model.Envelope
	for _, env := range envs {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}
