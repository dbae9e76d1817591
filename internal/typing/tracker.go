// Package typing tracks ephemeral "is typing" state per room and expires it.
package typing

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

const (
	// DefaultTTL is how long an entry lives without a refresh.
	DefaultTTL = 3 * time.Second
	// DefaultSweepInterval is how often expired entries are removed.
	DefaultSweepInterval = time.Second
)

// Broadcaster delivers typing events to a room, skipping the typist.
type Broadcaster interface {
	PublishExceptUser(room, userID, event string, payload any) int
}

// Selector names the room a typing indicator belongs to. Exactly one of the
// fields is set.
type Selector struct {
	CommunityID    string `json:"communityId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Validate rejects selectors naming both or neither room kind.
func (s Selector) Validate() error {
	switch {
	case s.CommunityID != "" && s.ConversationID != "":
		return apperror.Protocol("typing selector must name a community or a conversation, not both")
	case s.CommunityID == "" && s.ConversationID == "":
		return apperror.Protocol("typing selector requires communityId or conversationId")
	}
	return nil
}

// Room returns the room key the selector resolves to.
func (s Selector) Room() string {
	if s.CommunityID != "" {
		return hub.CommunityRoom(s.CommunityID)
	}
	return hub.ConversationRoom(s.ConversationID)
}

// Entry is one live typing indicator.
type Entry struct {
	UserID     string
	UserName   string
	Selector   Selector
	LastSeenAt time.Time
}

type entryKey struct {
	room   string
	userID string
}

// Tracker holds typing entries and runs the expiry sweep. Events are
// published while the tracker lock is held so a start and its stop reach
// observers in order.
type Tracker struct {
	mu       sync.Mutex
	entries  map[entryKey]*Entry
	ttl      time.Duration
	interval time.Duration

	publisher Broadcaster
	logger    *logger.Logger
	now       func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewTracker creates a tracker. Non-positive durations fall back to the defaults.
func NewTracker(publisher Broadcaster, ttl, interval time.Duration, log *logger.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Tracker{
		entries:   make(map[entryKey]*Entry),
		ttl:       ttl,
		interval:  interval,
		publisher: publisher,
		logger:    log.Component("typing-tracker"),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// StartTyping upserts the entry for userID and tells the rest of the room.
func (t *Tracker) StartTyping(userID, userName string, sel Selector) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := entryKey{room: sel.Room(), userID: userID}
	if _, ok := t.entries[key]; !ok {
		metrics.TypingEntries.Inc()
	}
	t.entries[key] = &Entry{
		UserID:     userID,
		UserName:   userName,
		Selector:   sel,
		LastSeenAt: t.now(),
	}

	t.publisher.PublishExceptUser(key.room, userID, model.EventUserTyping, model.TypingEvent{
		UserID:         userID,
		UserName:       userName,
		CommunityID:    sel.CommunityID,
		ConversationID: sel.ConversationID,
	})
	return nil
}

// StopTyping removes the entry and publishes user-stopped-typing. The stop is
// published even when no entry exists so a client that missed the expiry
// still clears its indicator.
func (t *Tracker) StopTyping(userID string, sel Selector) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := entryKey{room: sel.Room(), userID: userID}
	if _, ok := t.entries[key]; ok {
		delete(t.entries, key)
		metrics.TypingEntries.Dec()
	}
	t.publishStoppedLocked(key.room, userID, sel)
	return nil
}

// ClearUser drops every entry of userID, publishing a stop for each. It
// returns the number of entries removed.
func (t *Tracker) ClearUser(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		delete(t.entries, key)
		metrics.TypingEntries.Dec()
		t.publishStoppedLocked(key.room, userID, entry.Selector)
		removed++
	}
	return removed
}

// Active returns the unexpired entries for a room, ordered by user id.
func (t *Tracker) Active(sel Selector) []Entry {
	room := sel.Room()
	cutoff := t.now().Add(-t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for key, entry := range t.entries {
		if key.room == room && entry.LastSeenAt.After(cutoff) {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of stored entries, expired or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Start begins the sweep loop in background.
// Safe to call multiple times - only the first call starts the sweeper.
func (t *Tracker) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.run(ctx)
		t.logger.Info("typing sweeper started",
			zap.Duration("ttl", t.ttl),
			zap.Duration("interval", t.interval),
		)
	})
}

// Stop shuts down the sweeper and waits for it to exit.
// Safe to call multiple times - only the first call stops the sweeper.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		t.logger.Info("typing sweeper stopped")
	})
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("context cancelled, shutting down sweeper")
			return
		case <-t.done:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep removes entries older than the TTL and publishes their stop events.
func (t *Tracker) sweep() int {
	cutoff := t.now().Add(-t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	expired := 0
	for key, entry := range t.entries {
		if entry.LastSeenAt.After(cutoff) {
			continue
		}
		delete(t.entries, key)
		metrics.TypingEntries.Dec()
		metrics.TypingExpired.Inc()
		t.publishStoppedLocked(key.room, key.userID, entry.Selector)
		expired++
	}

	if expired > 0 {
		t.logger.Debug("expired typing entries", zap.Int("count", expired))
	}
	return expired
}

func (t *Tracker) publishStoppedLocked(room, userID string, sel Selector) {
	t.publisher.PublishExceptUser(room, userID, model.EventUserStoppedTyping, model.StoppedTypingEvent{
		UserID:         userID,
		CommunityID:    sel.CommunityID,
		ConversationID: sel.ConversationID,
	})
}
