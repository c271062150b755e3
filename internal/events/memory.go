package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

type MemoryRepository struct {
	mu    sync.Mutex
	store map[string]*models.Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.Event)}
}

func clone(e *models.Event) *models.Event {
	cp := *e
	cp.Attendees = append([]models.Attendee(nil), e.Attendees...)
	cp.Tags = append([]string(nil), e.Tags...)
	return &cp
}

func (m *MemoryRepository) Create(ctx context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[e.ID]; ok {
		return fmt.Errorf("insert event: %w", models.ErrConflict)
	}
	m.store[e.ID] = clone(e)
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[e.ID]
	if !ok {
		return fmt.Errorf("event %s: %w", e.ID, models.ErrNotFound)
	}
	next := clone(e)
	next.Attendees = cur.Attendees
	next.RegisteredCount = cur.RegisteredCount
	m.store[e.ID] = next
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(e), nil
}

func (m *MemoryRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Event], error) {
	m.mu.Lock()
	out := []models.Event{}
	for _, e := range m.store {
		if listed(e, f) {
			out = append(out, *clone(e))
		}
	}
	m.mu.Unlock()
	past := f.Upcoming != nil && !*f.Upcoming
	sort.Slice(out, func(i, j int) bool {
		if past {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return models.Paginate(out, p), nil
}

func listed(e *models.Event, f Filter) bool {
	if !f.IncludeInactive && !e.IsActive {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range e.Tags {
			if t == f.Tag {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		if !strings.Contains(strings.ToLower(e.Title), s) &&
			!strings.Contains(strings.ToLower(e.Description), s) &&
			!strings.Contains(strings.ToLower(e.Location.City), s) {
			return false
		}
	}
	if f.Upcoming != nil && *f.Upcoming == e.StartDate.Before(f.Now) {
		return false
	}
	return true
}

func (m *MemoryRepository) Register(ctx context.Context, id string, a models.Attendee, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok || !e.IsActive || e.Status != models.EventPublished || !e.StartDate.After(now) || e.IsFull() {
		return false, nil
	}
	for i, existing := range e.Attendees {
		if existing.UserID != a.UserID {
			continue
		}
		if existing.Status != models.AttendeeCancelled {
			return false, nil
		}
		e.Attendees[i].Status = models.AttendeeRegistered
		e.Attendees[i].RegisteredAt = a.RegisteredAt
		e.RegisteredCount++
		e.UpdatedAt = now
		return true, nil
	}
	e.Attendees = append(e.Attendees, a)
	e.RegisteredCount++
	e.UpdatedAt = now
	return true, nil
}

func (m *MemoryRepository) setAttendeeStatus(id, userID, to string, delta int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return false
	}
	for i, a := range e.Attendees {
		if a.UserID == userID && a.Status == models.AttendeeRegistered {
			e.Attendees[i].Status = to
			e.RegisteredCount += delta
			e.UpdatedAt = models.Now()
			return true
		}
	}
	return false
}

func (m *MemoryRepository) Cancel(ctx context.Context, id, userID string) (bool, error) {
	return m.setAttendeeStatus(id, userID, models.AttendeeCancelled, -1), nil
}

func (m *MemoryRepository) MarkAttended(ctx context.Context, id, userID string) (bool, error) {
	return m.setAttendeeStatus(id, userID, models.AttendeeAttended, 0), nil
}

func (m *MemoryRepository) CountUpcoming(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.store {
		if e.IsActive && e.Status == models.EventPublished && !e.StartDate.Before(now) {
			n++
		}
	}
	return n, nil
}
