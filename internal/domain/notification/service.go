package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/platform/metrics"
	"github.com/edhub/edhub/internal/platform/websocket"
)

const (
	DefaultPageSize  = 50
	DefaultRetention = 30 * 24 * time.Hour
)

type Service struct {
	repo      Repository
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	pageSize  int
	retention time.Duration
	now       func() time.Time
}

// NewService builds the notification service. publisher may be nil, in
// which case notifications are stored but not pushed.
func NewService(repo Repository, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		pageSize:  DefaultPageSize,
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// SetLimits overrides the list page size and the retention period.
// Non-positive values keep the defaults.
func (s *Service) SetLimits(pageSize int, retention time.Duration) {
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	if retention > 0 {
		s.retention = retention
	}
}

// List returns the newest notifications of recipientID and the number of
// unread notifications overall, which may exceed the page.
func (s *Service) List(ctx context.Context, recipientID uuid.UUID) (*Inbox, error) {
	items, err := s.repo.ListByRecipient(ctx, recipientID, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	if items == nil {
		items = []*Notification{}
	}
	return &Inbox{Notifications: items, UnreadCount: unread}, nil
}

func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (*Notification, error) {
	return s.repo.MarkRead(ctx, id, recipientID)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func (s *Service) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.Delete(ctx, id, recipientID)
}

// Notify stores a notification for recipientID and pushes it to the
// recipient's live connections. A failed push is logged; the stored
// notification is still returned.
func (s *Service) Notify(ctx context.Context, recipientID uuid.UUID, d Draft) (*Notification, error) {
	if recipientID == uuid.Nil {
		return nil, fmt.Errorf("recipient is required")
	}
	if d.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	n := d.build(recipientID)
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.IncNotificationCreated(string(n.Type))
	s.push(ctx, n, d.Payload)
	return n, nil
}

// NotifyRoles sends d to every user holding one of roles.
func (s *Service) NotifyRoles(ctx context.Context, roles []string, d Draft) ([]*Notification, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	if d.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	created, err := s.repo.CreateForRoles(ctx, roles, d.build(uuid.Nil))
	if err != nil {
		return nil, fmt.Errorf("create role notifications: %w", err)
	}
	for _, n := range created {
		metrics.IncNotificationCreated(string(n.Type))
		s.push(ctx, n, d.Payload)
	}
	return created, nil
}

// pushMessage builds the realtime payload: the extra fields of the draft
// plus the stored notification under "notification".
func pushMessage(n *Notification, payload map[string]interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	if _, ok := msg["message"]; !ok {
		msg["message"] = n.Message
	}
	msg["notification"] = n
	return msg
}

func (s *Service) push(ctx context.Context, n *Notification, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	topic := websocket.UserTopic(n.RecipientID.String())
	ev, err := websocket.NewEvent(websocket.EventNotification, topic, pushMessage(n, payload))
	if err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to encode notification event")
		return
	}
	ev.EntityType = "Notification"
	ev.EntityID = n.ID.String()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Str("recipient_id", n.RecipientID.String()).
			Msg("failed to publish notification event")
	}
}

// Purge deletes notifications older than the retention period.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	metrics.NotificationsPurged.Add(float64(n))
	return n, nil
}

// RunRetention purges on every tick of interval until ctx is cancelled.
func (s *Service) RunRetention(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				s.logger.Error().Err(err).Msg("notification retention sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int64("deleted", n).Msg("notification retention sweep")
			}
		}
	}
}
