package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/campus-social/realtime-gateway/internal/hub"
	"github.com/campus-social/realtime-gateway/internal/model"
	"github.com/campus-social/realtime-gateway/internal/store"
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
	"github.com/campus-social/realtime-gateway/pkg/tracing"
)

// DefaultUpsertAttempts bounds retries of a conversation upsert that hit a
// transient store conflict.
const DefaultUpsertAttempts = 3

// ConversationDeps are the collaborators of ConversationService. Publisher
// and Journal may be nil.
type ConversationDeps struct {
	Users         UserStore
	Messages      MessageStore
	Conversations ConversationStore
	Publisher     Publisher
	Journal       DirectMessageJournal
	// MaxAttempts bounds upsert retries; zero means DefaultUpsertAttempts.
	MaxAttempts int
}

// ConversationService sends direct messages and maintains the two-party
// conversation aggregate.
type ConversationService struct {
	users         UserStore
	messages      MessageStore
	conversations ConversationStore
	publisher     Publisher
	journal       DirectMessageJournal
	maxAttempts   int
	backoff       time.Duration

	logger *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewConversationService creates a new conversation service.
func NewConversationService(deps ConversationDeps, log *logger.Logger) *ConversationService {
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultUpsertAttempts
	}
	return &ConversationService{
		users:         deps.Users,
		messages:      deps.Messages,
		conversations: deps.Conversations,
		publisher:     deps.Publisher,
		journal:       deps.Journal,
		maxAttempts:   attempts,
		backoff:       10 * time.Millisecond,
		logger:        log.Component("conversation-service"),
		tracer:        tracing.Tracer(),
		now:           time.Now,
	}
}

// SendDirectMessage persists a message from senderID, applies it to the
// pair's conversation and pushes it to the conversation room and the
// recipient's personal room.
func (s *ConversationService) SendDirectMessage(ctx context.Context, senderID string, req *model.SendDirectMessageRequest) (*model.DirectMessage, error) {
	ctx, span := s.tracer.Start(ctx, "ConversationService.SendDirectMessage",
		trace.WithAttributes(
			attribute.String("sender_id", senderID),
			attribute.String("recipient_id", req.RecipientID),
		),
	)
	defer span.End()

	msg, err := s.sendDirectMessage(ctx, senderID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperror.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation_id", msg.ConversationID))
	return msg, nil
}

func (s *ConversationService) sendDirectMessage(ctx context.Context, senderID string, req *model.SendDirectMessageRequest) (*model.DirectMessage, error) {
	if err := s.validateSend(ctx, senderID, req); err != nil {
		return nil, err
	}

	// Past validation the durable writes run to completion even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	msg := &model.DirectMessage{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		ReplyToID:   req.ReplyTo,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperror.Internal("failed to persist message", err)
	}

	conv, err := s.recordMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := s.messages.AttachConversation(ctx, msg.ID, conv.ID); err != nil {
		return nil, apperror.Internal("failed to attach conversation", err)
	}
	msg.ConversationID = conv.ID
	metrics.DirectMessagesTotal.Inc()

	s.deliver(
		[]string{hub.ConversationRoom(conv.ID), hub.UserRoom(msg.RecipientID)},
		model.EventNewDirectMessage,
		model.DirectMessageEvent{Message: msg, ConversationID: conv.ID},
	)
	s.recordJournal(ctx, msg)

	s.logger.Info("direct message sent",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", conv.ID),
		zap.String("sender_id", senderID),
		zap.String("recipient_id", msg.RecipientID),
	)
	return msg, nil
}

func (s *ConversationService) validateSend(ctx context.Context, senderID string, req *model.SendDirectMessageRequest) error {
	if req.RecipientID == "" {
		return apperror.Validation("recipientId is required")
	}
	if senderID == req.RecipientID {
		return apperror.SelfMessage("cannot send a message to yourself")
	}
	if err := ValidateContent(req.Content); err != nil {
		return err
	}

	ok, err := s.users.Exists(ctx, req.RecipientID)
	if err != nil {
		return apperror.Internal("failed to look up recipient", err)
	}
	if !ok {
		return apperror.NotFound("recipient not found")
	}

	if req.ReplyTo != nil {
		ok, err := s.messages.Exists(ctx, *req.ReplyTo)
		if err != nil {
			return apperror.Internal("failed to look up reply target", err)
		}
		if !ok {
			return apperror.NotFound("reply target not found")
		}
	}
	return nil
}

// ValidateContent checks a message body: valid UTF-8, not blank and at most
// model.MaxMessageLength code points.
func ValidateContent(content string) error {
	if !utf8.ValidString(content) {
		return apperror.Validation("content must be valid UTF-8")
	}
	if strings.TrimSpace(content) == "" {
		return apperror.Validation("content cannot be empty")
	}
	if utf8.RuneCountInString(content) > model.MaxMessageLength {
		return apperror.Validation("content exceeds maximum length")
	}
	return nil
}

// recordMessage applies msg to its conversation, retrying transient
// conflicts up to maxAttempts times.
func (s *ConversationService) recordMessage(ctx context.Context, msg *model.DirectMessage) (*model.Conversation, error) {
	params := store.RecordMessageParams{
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		MessageID:   msg.ID,
		SentAt:      msg.CreatedAt,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		conv, created, err := s.conversations.RecordMessage(ctx, params)
		if err == nil {
			if created {
				metrics.ConversationsCreated.Inc()
				s.logger.Info("conversation created",
					zap.String("conversation_id", conv.ID),
					zap.Strings("participants", conv.Participants[:]),
				)
			}
			return conv, nil
		}
		if !store.IsTransient(err) {
			return nil, apperror.Internal("failed to update conversation", err)
		}

		lastErr = err
		metrics.ConversationUpsertRetries.Inc()
		s.logger.Warn("conversation upsert conflict",
			zap.Int("attempt", attempt),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		if attempt < s.maxAttempts {
			time.Sleep(time.Duration(attempt) * s.backoff)
		}
	}
	return nil, apperror.Conflict("conversation update did not settle", lastErr)
}

// MarkConversationRead resets userID's unread count and tells the
// conversation room which messages were read.
func (s *ConversationService) MarkConversationRead(ctx context.Context, userID, conversationID string, messageIDs []string) (*model.Conversation, error) {
	conv, err := s.participantConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.ResetUnread(ctx, conversationID, userID); err != nil {
		return nil, apperror.Internal("failed to reset unread count", err)
	}
	conv.UnreadCount[userID] = 0

	if messageIDs == nil {
		messageIDs = []string{}
	}
	s.deliver([]string{hub.ConversationRoom(conversationID)}, model.EventMessageRead, model.MessageReadEvent{
		MessageIDs:     messageIDs,
		ConversationID: conversationID,
		ReadBy:         userID,
	})
	return conv, nil
}

// ListConversations returns userID's conversations, most recently active first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string, limit, offset int) (*model.ListConversationsResponse, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	convs, err := s.conversations.ListForUser(ctx, userID, limit+1, offset)
	if err != nil {
		return nil, apperror.Internal("failed to list conversations", err)
	}

	hasMore := len(convs) > limit
	if hasMore {
		convs = convs[:limit]
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
		HasMore:       hasMore,
	}, nil
}

// ListMessages returns a page of a conversation's messages, oldest first.
// Only participants may read them.
func (s *ConversationService) ListMessages(ctx context.Context, userID, conversationID string, before *time.Time, limit int) (*model.ListMessagesResponse, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	limit = clampLimit(limit)
	msgs, err := s.messages.ListByConversation(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, apperror.Internal("failed to list messages", err)
	}

	hasMore := len(msgs) > limit
	if hasMore {
		// Oldest first, so the extra row is the first one.
		msgs = msgs[1:]
	}
	return &model.ListMessagesResponse{Messages: msgs, HasMore: hasMore}, nil
}

func (s *ConversationService) participantConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("conversation not found")
		}
		return nil, apperror.Internal("failed to load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperror.Forbidden("not a participant of this conversation")
	}
	return conv, nil
}

func (s *ConversationService) deliver(rooms []string, event string, payload any) {
	if s.publisher == nil {
		metrics.RecordDeliveryMiss(event, "gateway_unavailable")
		s.logger.Debug("gateway not initialized, skipping live delivery", zap.String("event", event))
		return
	}
	if n := s.publisher.PublishRooms(rooms, event, payload); n == 0 {
		metrics.RecordDeliveryMiss(event, "no_connections")
		s.logger.Debug("no live connections for event",
			zap.String("event", event),
			zap.Strings("rooms", rooms),
		)
	}
}

func (s *ConversationService) recordJournal(ctx context.Context, msg *model.DirectMessage) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	if err := s.journal.RecordDirectMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to journal direct message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}
