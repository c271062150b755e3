package jobs

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
	store map[string]*models.Job
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.Job)}
}

func clone(j *models.Job) *models.Job {
	cp := *j
	cp.Applications = append([]models.Application{}, j.Applications...)
	cp.Requirements = append([]string(nil), j.Requirements...)
	if j.Salary != nil {
		s := *j.Salary
		cp.Salary = &s
	}
	return &cp
}

func (m *MemoryRepository) Create(ctx context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[j.ID] = clone(j)
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[j.ID]
	if !ok {
		return fmt.Errorf("job %s: %w", j.ID, models.ErrNotFound)
	}
	next := clone(j)
	next.Applications = cur.Applications
	m.store[j.ID] = next
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(j), nil
}

func (m *MemoryRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Job], error) {
	m.mu.Lock()
	out := []models.Job{}
	for _, j := range m.store {
		if listed(j, f) {
			out = append(out, *clone(j))
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return models.Paginate(out, p), nil
}

func listed(j *models.Job, f Filter) bool {
	fold := func(s, sub string) bool { return strings.Contains(strings.ToLower(s), strings.ToLower(sub)) }
	switch {
	case !f.IncludeInactive && !j.IsActive,
		f.Type != "" && j.Type != f.Type,
		f.ExperienceLevel != "" && j.ExperienceLevel != f.ExperienceLevel,
		f.Status != "" && j.Status != f.Status,
		f.PostedBy != "" && j.PostedBy != f.PostedBy,
		f.Location != "" && !fold(j.Location, f.Location),
		f.Company != "" && !fold(j.Company, f.Company):
		return false
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		return fold(j.Title, s) || fold(j.Company, s) || fold(j.Description, s)
	}
	return true
}

func (m *MemoryRepository) AddApplication(ctx context.Context, id string, app models.Application, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok || !j.AcceptingApplications(now) || j.HasApplied(app.UserID) {
		return false, nil
	}
	j.Applications = append(j.Applications, app)
	j.UpdatedAt = now
	return true, nil
}

func (m *MemoryRepository) SetApplicationStatus(ctx context.Context, id, userID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return false, nil
	}
	for i := range j.Applications {
		if j.Applications[i].UserID == userID {
			j.Applications[i].Status = status
			j.UpdatedAt = models.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) CountOpen(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.store {
		if j.IsActive && j.Status == models.JobOpen {
			n++
		}
	}
	return n, nil
}
