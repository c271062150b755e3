package notifications

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

// MemoryRepository is an in-memory Repository used by tests and local runs
// without MongoDB.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*models.Notification
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.Notification)}
}

func (m *MemoryRepository) InsertMany(ctx context.Context, ns []*models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range ns {
		cp := *n
		m.store[n.ID] = &cp
	}
	return nil
}

func (m *MemoryRepository) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, p models.Pagination) (models.Page[models.Notification], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Notification{}
	for _, n := range m.store {
		if n.Recipient != recipient || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return models.Paginate(out, p), nil
}

func (m *MemoryRepository) CountUnread(ctx context.Context, recipient string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, x := range m.store {
		if x.Recipient == recipient && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) MarkRead(ctx context.Context, id, recipient string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.store[id]
	if !ok || n.Recipient != recipient {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	n.IsRead = true
	n.ReadAt = &at
	return nil
}

func (m *MemoryRepository) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.store {
		if n.Recipient == recipient && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id, recipient string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.store[id]
	if !ok || n.Recipient != recipient {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	delete(m.store, id)
	return nil
}
