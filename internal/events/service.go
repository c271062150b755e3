package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

// Notifier delivers in-app notifications as a side effect.
type Notifier interface {
	NotifyQuietly(ctx context.Context, n models.Notification)
}

// Input carries the editable fields of an event. Nil pointers are left
// unchanged on update.
type Input struct {
	Title       *string
	Description *string
	Type        *string
	StartDate   *time.Time
	EndDate     *time.Time
	Location    *models.EventLocation
	Capacity    *int
	Status      *string
	Tags        []string
	IsActive    *bool
}

type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

func NewService(r Repository, n Notifier) *Service {
	return &Service{repo: r, notifier: n, now: models.Now}
}

var validTypes = setOf(models.EventTypes...)

var validStatuses = setOf(models.EventDraft, models.EventPublished, models.EventCancelled, models.EventCompleted)

func setOf(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func (s *Service) Create(ctx context.Context, in Input, organizer string) (*models.Event, error) {
	now := s.now()
	e := &models.Event{
		ID:        models.NewID(),
		Type:      models.EventOther,
		Status:    models.EventDraft,
		Attendees: []models.Attendee{},
		Tags:      []string{},
		Organizer: organizer,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(e, in)
	if err := validate(e); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(e, in)
	if err := validate(e); err != nil {
		return nil, err
	}
	if e.Capacity > 0 && e.Capacity < e.RegisteredCount {
		return nil, models.NewValidationError("capacity below registrations",
			models.FieldError{Field: "capacity", Message: fmt.Sprintf("capacity cannot be lower than the %d current registrations", e.RegisteredCount)})
	}
	e.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func apply(e *models.Event, in Input) {
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Type != nil {
		e.Type = *in.Type
	}
	if in.StartDate != nil {
		e.StartDate = in.StartDate.UTC()
	}
	if in.EndDate != nil {
		e.EndDate = in.EndDate.UTC()
	}
	if in.Location != nil {
		e.Location = *in.Location
	}
	if in.Capacity != nil {
		e.Capacity = *in.Capacity
	}
	if in.Status != nil {
		e.Status = *in.Status
	}
	if in.Tags != nil {
		e.Tags = in.Tags
	}
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
}

func validate(e *models.Event) error {
	var fields []models.FieldError
	if e.Title == "" {
		fields = append(fields, models.FieldError{Field: "title", Message: "title is required"})
	}
	if !validTypes[e.Type] {
		fields = append(fields, models.FieldError{Field: "type", Message: "unknown event type"})
	}
	if !validStatuses[e.Status] {
		fields = append(fields, models.FieldError{Field: "status", Message: "unknown event status"})
	}
	if e.StartDate.IsZero() {
		fields = append(fields, models.FieldError{Field: "startDate", Message: "startDate is required"})
	}
	if e.EndDate.IsZero() {
		e.EndDate = e.StartDate
	}
	if e.EndDate.Before(e.StartDate) {
		fields = append(fields, models.FieldError{Field: "endDate", Message: "endDate must not be before startDate"})
	}
	if e.Capacity < 0 {
		fields = append(fields, models.FieldError{Field: "capacity", Message: "capacity must not be negative"})
	}
	if e.Location.IsVirtual && e.Location.MeetingURL == "" {
		fields = append(fields, models.FieldError{Field: "location.meetingUrl", Message: "meetingUrl is required for virtual events"})
	}
	if len(fields) > 0 {
		return models.NewValidationError("invalid event", fields...)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Event], error) {
	f.Now = s.now()
	return s.repo.List(ctx, f, p)
}

// Delete soft-deletes the event.
func (s *Service) Delete(ctx context.Context, id string) error {
	inactive := false
	_, err := s.Update(ctx, id, Input{IsActive: &inactive})
	return err
}

func (s *Service) SetImage(ctx context.Context, id, url string) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.ImageURL = url
	e.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Register adds userID to the event in one conditional update. When the update
// does not apply, the event is reloaded to report why.
func (s *Service) Register(ctx context.Context, id, userID string) (*models.Event, error) {
	now := s.now()
	ok, err := s.repo.Register(ctx, id, models.Attendee{UserID: userID, Status: models.AttendeeRegistered, RegisteredAt: now}, now)
	if err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registrationRefusal(e, userID, now)
	}
	s.notifier.NotifyQuietly(ctx, models.Notification{
		Recipient: userID,
		Type:      models.NotificationEvent,
		Title:     "Registration confirmed",
		Message:   fmt.Sprintf("You are registered for %s on %s.", e.Title, e.StartDate.Format("Jan 2, 2006 15:04 MST")),
		Link:      "/events/" + e.ID,
		Data:      map[string]string{"eventId": e.ID},
	})
	return e, nil
}

func registrationRefusal(e *models.Event, userID string, now time.Time) error {
	switch {
	case !e.IsActive:
		return fmt.Errorf("event %s: %w", e.ID, models.ErrNotFound)
	case e.Status != models.EventPublished:
		return fmt.Errorf("event is not open for registration: %w", models.ErrConflict)
	case !e.StartDate.After(now):
		return fmt.Errorf("event has already started: %w", models.ErrConflict)
	}
	if a, found := e.Attendee(userID); found && a.Status != models.AttendeeCancelled {
		return fmt.Errorf("already registered for this event: %w", models.ErrConflict)
	}
	if e.IsFull() {
		return fmt.Errorf("event is full: %w", models.ErrConflict)
	}
	return fmt.Errorf("registration did not apply, retry: %w", models.ErrConflict)
}

func (s *Service) CancelRegistration(ctx context.Context, id, userID string) (*models.Event, error) {
	ok, err := s.repo.Cancel(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no active registration for this event: %w", models.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *Service) MarkAttended(ctx context.Context, id, userID string) (*models.Event, error) {
	ok, err := s.repo.MarkAttended(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("user %s has no active registration: %w", userID, models.ErrConflict)
	}
	return s.Get(ctx, id)
}

func (s *Service) CountUpcoming(ctx context.Context) (int64, error) {
	return s.repo.CountUpcoming(ctx, s.now())
}
