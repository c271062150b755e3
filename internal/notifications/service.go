package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
)

// RecipientSource lists the users a broadcast is delivered to.
type RecipientSource interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// Service creates and manages in-app notifications.
type Service struct {
	repo       Repository
	recipients RecipientSource
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// SetRecipientSource configures where BroadcastAll finds its audience. It is
// set after construction because the users service is built later.
func (s *Service) SetRecipientSource(src RecipientSource) {
	s.recipients = src
}

// Notify delivers one notification.
func (s *Service) Notify(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if err := validate(n); err != nil {
		return nil, err
	}
	out := stamp(n, n.Recipient)
	if err := s.repo.InsertMany(ctx, []*models.Notification{out}); err != nil {
		return nil, err
	}
	return out, nil
}

// NotifyQuietly is Notify for side effects of other operations: a failure is
// logged, never returned.
func (s *Service) NotifyQuietly(ctx context.Context, n models.Notification) {
	if s == nil {
		return
	}
	if _, err := s.Notify(ctx, n); err != nil {
		logger.With("recipient", n.Recipient, "type", n.Type).Warnf("notify: %v", err)
	}
}

// Broadcast delivers a copy of tmpl to each distinct recipient and returns the
// number delivered.
func (s *Service) Broadcast(ctx context.Context, recipients []string, tmpl models.Notification) (int, error) {
	tmpl.Recipient = "broadcast"
	if err := validate(tmpl); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(recipients))
	batch := make([]*models.Notification, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		batch = append(batch, stamp(tmpl, r))
	}
	if err := s.repo.InsertMany(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// BroadcastAll delivers tmpl to every active user.
func (s *Service) BroadcastAll(ctx context.Context, tmpl models.Notification) (int, error) {
	if s.recipients == nil {
		return 0, fmt.Errorf("broadcast: no recipient source: %w", models.ErrUnavailable)
	}
	ids, err := s.recipients.ActiveUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("broadcast recipients: %w", err)
	}
	return s.Broadcast(ctx, ids, tmpl)
}

func (s *Service) List(ctx context.Context, recipient string, unreadOnly bool, p models.Pagination) (models.Page[models.Notification], error) {
	return s.repo.ListByRecipient(ctx, recipient, unreadOnly, p)
}

func (s *Service) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	return s.repo.CountUnread(ctx, recipient)
}

func (s *Service) MarkRead(ctx context.Context, id, recipient string) error {
	return s.repo.MarkRead(ctx, id, recipient, models.Now())
}

func (s *Service) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipient, models.Now())
}

func (s *Service) Delete(ctx context.Context, id, recipient string) error {
	return s.repo.Delete(ctx, id, recipient)
}

var validTypes = map[string]bool{
	models.NotificationAnnouncement: true,
	models.NotificationEvent:        true,
	models.NotificationPayment:      true,
	models.NotificationJob:          true,
	models.NotificationSystem:       true,
	models.NotificationMessage:      true,
}

func validate(n models.Notification) error {
	var fields []models.FieldError
	if n.Recipient == "" {
		fields = append(fields, models.FieldError{Field: "recipient", Message: "recipient is required"})
	}
	if strings.TrimSpace(n.Title) == "" {
		fields = append(fields, models.FieldError{Field: "title", Message: "title is required"})
	}
	if !validTypes[n.Type] {
		fields = append(fields, models.FieldError{Field: "type", Message: "unknown notification type"})
	}
	if len(fields) > 0 {
		return models.NewValidationError("invalid notification", fields...)
	}
	return nil
}

func stamp(tmpl models.Notification, recipient string) *models.Notification {
	n := tmpl
	n.ID = models.NewID()
	n.Recipient = recipient
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = models.Now()
	return &n
}
