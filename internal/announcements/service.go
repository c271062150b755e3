package announcements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
)

// Broadcaster fans a notification out to every active user.
type Broadcaster interface {
	BroadcastAll(ctx context.Context, tmpl models.Notification) (int, error)
}

// Input carries the editable fields. Nil pointers are left unchanged.
type Input struct {
	Title     *string
	Content   *string
	Category  *string
	Priority  *string
	IsPinned  *bool
	ExpiresAt *time.Time
}

type Service struct {
	repo        Repository
	broadcaster Broadcaster
	now         func() time.Time
}

func NewService(r Repository, b Broadcaster) *Service {
	return &Service{repo: r, broadcaster: b, now: models.Now}
}

var (
	validCategories = map[string]bool{
		models.CategoryGeneral: true, models.CategoryNews: true, models.CategoryAchievement: true,
		models.CategoryJob: true, models.CategoryEvent: true, models.CategoryUrgent: true,
	}
	validPriorities = map[string]bool{models.PriorityLow: true, models.PriorityMedium: true, models.PriorityHigh: true}
)

func (s *Service) Create(ctx context.Context, in Input, author string) (*models.Announcement, error) {
	now := s.now()
	a := &models.Announcement{
		ID:        models.NewID(),
		Category:  models.CategoryGeneral,
		Priority:  models.PriorityMedium,
		Author:    author,
		Status:    models.AnnouncementDraft,
		Likes:     []string{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(a, in)
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*models.Announcement, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(a, in)
	if err := validate(a); err != nil {
		return nil, err
	}
	return a, s.save(ctx, a)
}

func (s *Service) save(ctx context.Context, a *models.Announcement) error {
	a.UpdatedAt = s.now()
	return s.repo.Update(ctx, a)
}

func apply(a *models.Announcement, in Input) {
	if in.Title != nil {
		a.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		a.Content = *in.Content
	}
	if in.Category != nil {
		a.Category = *in.Category
	}
	if in.Priority != nil {
		a.Priority = *in.Priority
	}
	if in.IsPinned != nil {
		a.IsPinned = *in.IsPinned
	}
	if in.ExpiresAt != nil {
		t := in.ExpiresAt.UTC()
		a.ExpiresAt = &t
	}
}

func validate(a *models.Announcement) error {
	var fields []models.FieldError
	if a.Title == "" {
		fields = append(fields, models.FieldError{Field: "title", Message: "title is required"})
	}
	if strings.TrimSpace(a.Content) == "" {
		fields = append(fields, models.FieldError{Field: "content", Message: "content is required"})
	}
	if !validCategories[a.Category] {
		fields = append(fields, models.FieldError{Field: "category", Message: "unknown category"})
	}
	if !validPriorities[a.Priority] {
		fields = append(fields, models.FieldError{Field: "priority", Message: "priority must be low, medium or high"})
	}
	if len(fields) > 0 {
		return models.NewValidationError("invalid announcement", fields...)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("announcement %s: %w", id, err)
	}
	return a, nil
}

// View returns an announcement and counts the view. Announcements that are not
// on the public feed are only returned to staff, without counting.
func (s *Service) View(ctx context.Context, id string, staff bool) (*models.Announcement, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Visible(s.now()) {
		if staff {
			return a, nil
		}
		return nil, fmt.Errorf("announcement %s: %w", id, models.ErrNotFound)
	}
	return s.repo.IncrementViews(ctx, id)
}

// List returns the public feed unless staff asked for all announcements.
func (s *Service) List(ctx context.Context, f Filter, p models.Pagination, staff bool) (models.Page[models.Announcement], error) {
	f.Now = s.now()
	if !staff {
		f.Feed = true
		f.Status = ""
	}
	return s.repo.List(ctx, f, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	a.IsActive = false
	return s.save(ctx, a)
}

// Publish makes the announcement visible and notifies every active user.
func (s *Service) Publish(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == models.AnnouncementPublished {
		return nil, fmt.Errorf("announcement is already published: %w", models.ErrInvalidTransition)
	}
	now := s.now()
	a.Status = models.AnnouncementPublished
	a.PublishedAt = &now
	a.IsActive = true
	if err := s.save(ctx, a); err != nil {
		return nil, err
	}

	n, err := s.broadcaster.BroadcastAll(ctx, models.Notification{
		Sender:  a.Author,
		Type:    models.NotificationAnnouncement,
		Title:   a.Title,
		Message: excerpt(a.Content, 140),
		Link:    "/announcements/" + a.ID,
		Data:    map[string]string{"announcementId": a.ID, "priority": a.Priority},
	})
	if err != nil {
		logger.With("announcement", a.ID).Warnf("publish fan-out failed: %v", err)
	} else {
		logger.With("announcement", a.ID, "recipients", n).Infof("announcement published")
	}
	return a, nil
}

func excerpt(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max-1]) + "…"
}

func (s *Service) Archive(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == models.AnnouncementArchived {
		return nil, fmt.Errorf("announcement is already archived: %w", models.ErrInvalidTransition)
	}
	a.Status = models.AnnouncementArchived
	a.IsPinned = false
	return a, s.save(ctx, a)
}

func (s *Service) TogglePin(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.IsPinned = !a.IsPinned
	return a, s.save(ctx, a)
}

func (s *Service) Like(ctx context.Context, id, userID string) (*models.Announcement, error) {
	a, err := s.repo.AddLike(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("announcement %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) Unlike(ctx context.Context, id, userID string) (*models.Announcement, error) {
	a, err := s.repo.RemoveLike(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("announcement %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) CountPublished(ctx context.Context) (int64, error) {
	return s.repo.CountPublished(ctx, s.now())
}
