package typing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

type published struct {
	room    string
	except  string
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingBroadcaster) PublishExceptUser(room, userID, event string, payload any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{room: room, except: userID, event: event, payload: payload})
	return 1
}

func (r *recordingBroadcaster) named(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, p := range r.events {
		if p.event == event {
			out = append(out, p)
		}
	}
	return out
}

func TestSelector_Validate(t *testing.T) {
	assert.NoError(t, Selector{CommunityID: "c1"}.Validate())
	assert.NoError(t, Selector{ConversationID: "v1"}.Validate())

	err := Selector{}.Validate()
	assert.True(t, apperror.Is(err, apperror.CodeProtocol))

	err = Selector{CommunityID: "c1", ConversationID: "v1"}.Validate()
	assert.True(t, apperror.Is(err, apperror.CodeProtocol))

	assert.Equal(t, hub.CommunityRoom("c1"), Selector{CommunityID: "c1"}.Room())
	assert.Equal(t, hub.ConversationRoom("v1"), Selector{ConversationID: "v1"}.Room())
}

func TestTracker_StartAndStop(t *testing.T) {
	rec := &recordingBroadcaster{}
	tr := NewTracker(rec, time.Minute, time.Second, logger.NewNop())
	sel := Selector{ConversationID: "conv-1"}

	require.NoError(t, tr.StartTyping("alice", "Alice", sel))
	require.NoError(t, tr.StartTyping("alice", "Alice", sel))
	assert.Equal(t, 1, tr.Len(), "refresh does not duplicate the entry")

	active := tr.Active(sel)
	require.Len(t, active, 1)
	assert.Equal(t, "Alice", active[0].UserName)

	starts := rec.named(model.EventUserTyping)
	require.Len(t, starts, 2)
	assert.Equal(t, hub.ConversationRoom("conv-1"), starts[0].room)
	assert.Equal(t, "alice", starts[0].except)
	assert.Equal(t, model.TypingEvent{UserID: "alice", UserName: "Alice", ConversationID: "conv-1"}, starts[0].payload)

	require.NoError(t, tr.StopTyping("alice", sel))
	assert.Equal(t, 0, tr.Len())
	stops := rec.named(model.EventUserStoppedTyping)
	require.Len(t, stops, 1)
	assert.Equal(t, model.StoppedTypingEvent{UserID: "alice", ConversationID: "conv-1"}, stops[0].payload)
}

func TestTracker_StopWithoutEntryStillPublishes(t *testing.T) {
	rec := &recordingBroadcaster{}
	tr := NewTracker(rec, time.Minute, time.Second, logger.NewNop())

	require.NoError(t, tr.StopTyping("alice", Selector{CommunityID: "chess"}))
	assert.Len(t, rec.named(model.EventUserStoppedTyping), 1)
}

func TestTracker_RejectsBadSelector(t *testing.T) {
	rec := &recordingBroadcaster{}
	tr := NewTracker(rec, time.Minute, time.Second, logger.NewNop())

	err := tr.StartTyping("alice", "Alice", Selector{})
	assert.True(t, apperror.Is(err, apperror.CodeProtocol))
	err = tr.StopTyping("alice", Selector{CommunityID: "a", ConversationID: "b"})
	assert.True(t, apperror.Is(err, apperror.CodeProtocol))
	assert.Empty(t, rec.named(model.EventUserTyping))
	assert.Empty(t, rec.named(model.EventUserStoppedTyping))
}

func TestTracker_SweepExpiresOnlyStaleEntries(t *testing.T) {
	rec := &recordingBroadcaster{}
	tr := NewTracker(rec, 3*time.Second, time.Second, logger.NewNop())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	require.NoError(t, tr.StartTyping("alice", "Alice", Selector{CommunityID: "chess"}))
	now = now.Add(2 * time.Second)
	require.NoError(t, tr.StartTyping("bob", "Bob", Selector{CommunityID: "chess"}))

	now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, 1, tr.sweep())

	active := tr.Active(Selector{CommunityID: "chess"})
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].UserID)

	stops := rec.named(model.EventUserStoppedTyping)
	require.Len(t, stops, 1)
	assert.Equal(t, "alice", stops[0].except)
}

func TestTracker_ActiveHidesExpiredBeforeSweep(t *testing.T) {
	tr := NewTracker(&recordingBroadcaster{}, 3*time.Second, time.Second, logger.NewNop())
	now := time.Now()
	tr.now = func() time.Time { return now }

	require.NoError(t, tr.StartTyping("alice", "Alice", Selector{CommunityID: "chess"}))
	now = now.Add(4 * time.Second)

	assert.Empty(t, tr.Active(Selector{CommunityID: "chess"}))
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_ClearUser(t *testing.T) {
	rec := &recordingBroadcaster{}
	tr := NewTracker(rec, time.Minute, time.Second, logger.NewNop())

	require.NoError(t, tr.StartTyping("alice", "Alice", Selector{CommunityID: "chess"}))
	require.NoError(t, tr.StartTyping("alice", "Alice", Selector{ConversationID: "conv-1"}))
	require.NoError(t, tr.StartTyping("bob", "Bob", Selector{CommunityID: "chess"}))

	assert.Equal(t, 2, tr.ClearUser("alice"))
	assert.Equal(t, 1, tr.Len())
	assert.Len(t, rec.named(model.EventUserStoppedTyping), 2)
}

// An observer in the room receives user-stopped-typing within TTL plus one
// sweep interval of the last start.
func TestTracker_DecayDeliversStoppedEvent(t *testing.T) {
	h := hub.New(logger.NewNop())
	typist := hub.NewConnection("alice", "Alice", hub.TransportWebSocket, 16)
	observer := hub.NewConnection("bob", "Bob", hub.TransportWebSocket, 16)
	h.Register(typist)
	h.Register(observer)

	sel := Selector{ConversationID: "conv-1"}
	h.JoinRoom(typist, sel.Room())
	h.JoinRoom(observer, sel.Room())
	drainFrames(typist)
	drainFrames(observer)

	ttl, interval := 60*time.Millisecond, 20*time.Millisecond
	tr := NewTracker(h, ttl, interval, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	defer tr.Stop()

	started := time.Now()
	require.NoError(t, tr.StartTyping("alice", "Alice", sel))

	var events []string
	deadline := time.After(2 * time.Second)
	for len(events) < 2 {
		select {
		case frame := <-observer.Outbound():
			var env model.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			events = append(events, env.Event)
		case <-deadline:
			t.Fatalf("no stop event received, got %v", events)
		}
	}

	assert.Equal(t, []string{model.EventUserTyping, model.EventUserStoppedTyping}, events)
	assert.GreaterOrEqual(t, time.Since(started), ttl)
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, drainFrames(typist), "the typist never sees its own indicator")
}

func TestTracker_StartStopIdempotent(t *testing.T) {
	tr := NewTracker(&recordingBroadcaster{}, time.Minute, 10*time.Millisecond, logger.NewNop())
	ctx := context.Background()
	tr.Start(ctx)
	tr.Start(ctx)
	tr.Stop()
	tr.Stop()
}

func drainFrames(c *hub.Connection) [][]byte {
	var out [][]byte
	for {
		select {
		case frame := <-c.Outbound():
			out = append(out, frame)
		default:
			return out
		}
	}
}
