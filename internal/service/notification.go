package service

import (
	"context"
	"fmt"
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
	"github.com/campus-social/realtime-gateway/pkg/apperror"
	"github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/metrics"
	"github.com/campus-social/realtime-gateway/pkg/tracing"
)

const (
	maxTitleLength   = 200
	maxMessageLength = 2000
	// MaxBulkNotifications bounds one CreateBulkNotifications call.
	MaxBulkNotifications = 1000
)

// NotificationService persists notifications and pushes them live.
type NotificationService struct {
	notifications NotificationStore
	publisher     Publisher
	journal       NotificationJournal

	logger *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewNotificationService creates a new notification service. publisher and
// journal may be nil.
func NewNotificationService(notifications NotificationStore, publisher Publisher, journal NotificationJournal, log *logger.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		publisher:     publisher,
		journal:       journal,
		logger:        log.Component("notification-service"),
		tracer:        tracing.Tracer(),
		now:           time.Now,
	}
}

// CreateNotification validates and persists a notification, then attempts a
// live push to the recipient. A failed push never fails the call.
func (s *NotificationService) CreateNotification(ctx context.Context, params *model.NotificationParams) (*model.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.CreateNotification",
		trace.WithAttributes(
			attribute.String("recipient_id", params.RecipientID),
			attribute.String("type", string(params.Type)),
		),
	)
	defer span.End()

	if err := validateNotification(params); err != nil {
		span.SetStatus(codes.Error, string(apperror.CodeOf(err)))
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	n := s.build(params)
	if err := s.notifications.Create(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, apperror.Internal("failed to persist notification", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	span.SetAttributes(attribute.String("notification_id", n.ID))

	s.deliver(n)
	s.recordJournal(ctx, n)
	return n, nil
}

// CreateBulkNotifications validates every entry, persists them all in one
// transaction and then pushes each one. Either all are persisted or none.
func (s *NotificationService) CreateBulkNotifications(ctx context.Context, params []model.NotificationParams) ([]*model.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.CreateBulkNotifications",
		trace.WithAttributes(attribute.Int("count", len(params))),
	)
	defer span.End()

	if len(params) == 0 {
		return []*model.Notification{}, nil
	}
	if len(params) > MaxBulkNotifications {
		return nil, apperror.Validation(fmt.Sprintf("at most %d notifications per request", MaxBulkNotifications))
	}

	ns := make([]*model.Notification, len(params))
	for i := range params {
		if err := validateNotification(&params[i]); err != nil {
			return nil, apperror.Validation(fmt.Sprintf("notifications[%d]: %s", i, apperror.Message(err)))
		}
		ns[i] = s.build(&params[i])
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.notifications.CreateBatch(ctx, ns); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, apperror.Internal("failed to persist notifications", err)
	}

	for _, n := range ns {
		metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
		s.deliver(n)
		s.recordJournal(ctx, n)
	}

	s.logger.Info("bulk notifications created", zap.Int("count", len(ns)))
	return ns, nil
}

// ListNotifications returns the recipient's newest notifications with the
// unread total.
func (s *NotificationService) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) (*model.ListNotificationsResponse, error) {
	list, err := s.notifications.ListForRecipient(ctx, recipientID, unreadOnly, clampLimit(limit))
	if err != nil {
		return nil, apperror.Internal("failed to list notifications", err)
	}
	unread, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, apperror.Internal("failed to count notifications", err)
	}
	return &model.ListNotificationsResponse{Notifications: list, Unread: unread}, nil
}

func validateNotification(p *model.NotificationParams) error {
	switch {
	case strings.TrimSpace(p.RecipientID) == "":
		return apperror.Validation("recipientId is required")
	case p.Type == "":
		return apperror.Validation("type is required")
	case !p.Type.Valid():
		return apperror.Validation(fmt.Sprintf("unknown notification type %q", p.Type))
	case strings.TrimSpace(p.Title) == "":
		return apperror.Validation("title is required")
	case utf8.RuneCountInString(p.Title) > maxTitleLength:
		return apperror.Validation("title exceeds maximum length")
	case strings.TrimSpace(p.Message) == "":
		return apperror.Validation("message is required")
	case utf8.RuneCountInString(p.Message) > maxMessageLength:
		return apperror.Validation("message exceeds maximum length")
	case p.Priority != "" && !p.Priority.Valid():
		return apperror.Validation(fmt.Sprintf("unknown priority %q", p.Priority))
	}
	return nil
}

func (s *NotificationService) build(p *model.NotificationParams) *model.Notification {
	priority := p.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	return &model.Notification{
		ID:          uuid.Must(uuid.NewV7()).String(),
		RecipientID: p.RecipientID,
		SenderID:    p.SenderID,
		Type:        p.Type,
		Title:       p.Title,
		Message:     p.Message,
		ActionURL:   p.ActionURL,
		Priority:    priority,
		PostID:      p.PostID,
		CommentID:   p.CommentID,
		CommunityID: p.CommunityID,
		UserID:      p.UserID,
		Metadata:    p.Metadata,
		CreatedAt:   s.now().UTC(),
	}
}

// deliver pushes n to the recipient's personal room. Every failure is logged
// and swallowed.
func (s *NotificationService) deliver(n *model.Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDeliveryMiss(model.EventNotificationNew, "panic")
			s.logger.Error("notification delivery panicked",
				zap.String("notification_id", n.ID),
				zap.Any("panic", r),
			)
		}
	}()

	if s.publisher == nil {
		metrics.RecordDeliveryMiss(model.EventNotificationNew, "gateway_unavailable")
		s.logger.Debug("gateway not initialized, notification stored only",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", n.RecipientID),
		)
		return
	}

	if delivered := s.publisher.Publish(hub.UserRoom(n.RecipientID), model.EventNotificationNew, model.NotificationEvent{Notification: n}); delivered == 0 {
		metrics.RecordDeliveryMiss(model.EventNotificationNew, "offline")
		s.logger.Debug("recipient offline, notification stored only",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", n.RecipientID),
		)
	}
}

func (s *NotificationService) recordJournal(ctx context.Context, n *model.Notification) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	if err := s.journal.RecordNotification(ctx, n); err != nil {
		s.logger.Warn("failed to journal notification",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
	}
}
