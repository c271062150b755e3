package announcements

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
	store map[string]*models.Announcement
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.Announcement)}
}

func clone(a *models.Announcement) *models.Announcement {
	cp := *a
	cp.Likes = append([]string{}, a.Likes...)
	return &cp
}

func (m *MemoryRepository) Create(ctx context.Context, a *models.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[a.ID] = clone(a)
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, a *models.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[a.ID]
	if !ok {
		return fmt.Errorf("announcement %s: %w", a.ID, models.ErrNotFound)
	}
	next := clone(a)
	next.Likes = cur.Likes
	next.Views = cur.Views
	m.store[a.ID] = next
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(a), nil
}

func (m *MemoryRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Announcement], error) {
	m.mu.Lock()
	out := []models.Announcement{}
	for _, a := range m.store {
		if f.Feed && !a.Visible(f.Now) {
			continue
		}
		if !f.Feed && f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		if f.Priority != "" && a.Priority != f.Priority {
			continue
		}
		if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" &&
			!strings.Contains(strings.ToLower(a.Title), s) && !strings.Contains(strings.ToLower(a.Content), s) {
			continue
		}
		out = append(out, *clone(a))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if f.Feed {
			if out[i].IsPinned != out[j].IsPinned {
				return out[i].IsPinned
			}
			return published(out[i]).After(published(out[j]))
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return models.Paginate(out, p), nil
}

func published(a models.Announcement) time.Time {
	if a.PublishedAt == nil {
		return time.Time{}
	}
	return *a.PublishedAt
}

func (m *MemoryRepository) mutate(id string, activeOnly bool, fn func(*models.Announcement)) (*models.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok || (activeOnly && !a.IsActive) {
		return nil, models.ErrNotFound
	}
	fn(a)
	return clone(a), nil
}

func (m *MemoryRepository) IncrementViews(ctx context.Context, id string) (*models.Announcement, error) {
	return m.mutate(id, false, func(a *models.Announcement) { a.Views++ })
}

func (m *MemoryRepository) AddLike(ctx context.Context, id, userID string) (*models.Announcement, error) {
	return m.mutate(id, true, func(a *models.Announcement) {
		for _, u := range a.Likes {
			if u == userID {
				return
			}
		}
		a.Likes = append(a.Likes, userID)
	})
}

func (m *MemoryRepository) RemoveLike(ctx context.Context, id, userID string) (*models.Announcement, error) {
	return m.mutate(id, true, func(a *models.Announcement) {
		kept := a.Likes[:0]
		for _, u := range a.Likes {
			if u != userID {
				kept = append(kept, u)
			}
		}
		a.Likes = kept
	})
}

func (m *MemoryRepository) CountPublished(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.store {
		if a.Visible(now) {
			n++
		}
	}
	return n, nil
}
