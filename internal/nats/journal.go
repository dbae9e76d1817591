package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
)

const (
	// StreamName is the name of the campus events stream.
	StreamName = "CAMPUS_EVENTS"

	// SubjectPrefix is the prefix for all journal subjects.
	SubjectPrefix = "campus"

	KindDirectMessage = "dm"
	KindNotification  = "notification"
)

// Entry is the envelope appended to the journal.
type Entry struct {
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Journal appends persisted domain events to JetStream for downstream
// consumers. It never replaces the database as the source of truth.
type Journal struct {
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewJournal creates a journal on an established client.
func NewJournal(client *Client, log *logger.Logger) *Journal {
	return &Journal{
		js:     client.JetStream(),
		logger: log.Component("journal"),
	}
}

// EnsureStream ensures the events stream exists with proper configuration.
func (j *Journal) EnsureStream(ctx context.Context) error {
	// Check if stream exists
	if _, err := j.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := j.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Persisted direct messages and notifications",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	j.logger.Info("created stream", zap.String("stream", StreamName))
	return nil
}

// DirectMessageSubject returns the subject for a direct message.
func DirectMessageSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, KindDirectMessage, subjectToken(conversationID))
}

// NotificationSubject returns the subject for a notification.
func NotificationSubject(recipientID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, KindNotification, subjectToken(recipientID))
}

// subjectToken makes an id safe to use as a single subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

// RecordDirectMessage appends a sent direct message.
func (j *Journal) RecordDirectMessage(ctx context.Context, msg *model.DirectMessage) error {
	return j.append(ctx, DirectMessageSubject(msg.ConversationID), Entry{
		Kind:       KindDirectMessage,
		ID:         msg.ID,
		OccurredAt: msg.CreatedAt,
		Data:       msg,
	})
}

// RecordNotification appends a created notification.
func (j *Journal) RecordNotification(ctx context.Context, n *model.Notification) error {
	return j.append(ctx, NotificationSubject(n.RecipientID), Entry{
		Kind:       KindNotification,
		ID:         n.ID,
		OccurredAt: n.CreatedAt,
		Data:       n,
	})
}

func (j *Journal) append(ctx context.Context, subject string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry: %w", entry.Kind, err)
	}

	ack, err := j.js.Publish(ctx, subject, data, jetstream.WithMsgID(entry.Kind+":"+entry.ID))
	if err != nil {
		metrics.JournalFailures.WithLabelValues(entry.Kind).Inc()
		return fmt.Errorf("failed to publish %s entry: %w", entry.Kind, err)
	}

	j.logger.Debug("journal entry appended",
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}
