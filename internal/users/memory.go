package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

// MemoryUserRepository is an in-memory UserRepository for tests and local runs.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	store map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{store: make(map[string]*models.User)}
}

func (m *MemoryUserRepository) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Email == u.Email || (u.Sub != "" && existing.Sub == u.Sub) {
			return fmt.Errorf("insert user: %w", models.ErrConflict)
		}
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *MemoryUserRepository) Update(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, models.ErrNotFound)
	}
	for id, existing := range m.store {
		if id != u.ID && existing.Email == u.Email {
			return fmt.Errorf("update user: %w", models.ErrConflict)
		}
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *MemoryUserRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	u.LastLogin = &at
	return nil
}

func (m *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Sub == sub })
}

func (m *MemoryUserRepository) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := models.Now()
	for _, existing := range m.store {
		if existing.Sub == u.Sub {
			existing.Email = u.Email
			existing.FirstName = u.FirstName
			existing.LastName = u.LastName
			existing.UpdatedAt = now
			cp := *existing
			return &cp, nil
		}
	}
	for _, existing := range m.store {
		if existing.Email == u.Email {
			return nil, fmt.Errorf("upsert user: %w", models.ErrConflict)
		}
	}
	nu := &models.User{
		ID:         models.NewID(),
		Sub:        u.Sub,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       models.RoleAlumni,
		IsActive:   true,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.store[nu.ID] = nu
	cp := *nu
	return &cp, nil
}

func (m *MemoryUserRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.User], error) {
	m.mu.RLock()
	out := []models.User{}
	for _, u := range m.store {
		if matches(u, f) {
			out = append(out, *u)
		}
	}
	m.mu.RUnlock()

	asc := f.Order == "asc"
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch f.SortBy {
		case "graduationYear":
			if a.GraduationYear != b.GraduationYear {
				if asc {
					return a.GraduationYear < b.GraduationYear
				}
				return a.GraduationYear > b.GraduationYear
			}
			return a.LastName < b.LastName
		case "createdAt":
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.LastName == b.LastName {
			return a.FirstName < b.FirstName
		}
		if f.Order == "desc" {
			return a.LastName > b.LastName
		}
		return a.LastName < b.LastName
	})
	return models.Paginate(out, p), nil
}

func matches(u *models.User, f Filter) bool {
	if !f.IncludeInactive && !u.IsActive {
		return false
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		hit := false
		for _, v := range []string{u.FirstName, u.LastName, u.Email, u.Profile.Company, u.Profile.JobTitle} {
			if containsFold(v, s) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.GraduationYear > 0 && u.GraduationYear != f.GraduationYear {
		return false
	}
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	for _, pair := range [][2]string{
		{u.Major, f.Major},
		{u.Profile.Industry, f.Industry},
		{u.Location.City, f.City},
		{u.Location.Country, f.Country},
	} {
		if pair[1] != "" && !containsFold(pair[0], pair[1]) {
			return false
		}
	}
	for _, skill := range f.Skills {
		found := false
		for _, have := range u.Profile.Skills {
			if have == skill {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (m *MemoryUserRepository) ActiveIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []string{}
	for id, u := range m.store {
		if u.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryUserRepository) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{ByRole: map[string]int64{}, ByGraduationYear: []YearCount{}}
	years := map[int]int64{}
	for _, u := range m.store {
		st.Total++
		if u.IsActive {
			st.Active++
		}
		if u.IsVerified {
			st.Verified++
		}
		st.ByRole[u.Role]++
		if u.GraduationYear > 0 {
			years[u.GraduationYear]++
		}
	}
	for y, c := range years {
		st.ByGraduationYear = append(st.ByGraduationYear, YearCount{Year: y, Count: c})
	}
	sort.Slice(st.ByGraduationYear, func(i, j int) bool { return st.ByGraduationYear[i].Year < st.ByGraduationYear[j].Year })
	return st, nil
}
