package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

type MemoryPaymentRepository struct {
	mu    sync.Mutex
	store map[string]*models.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{store: make(map[string]*models.Payment)}
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	cp.ClientSecret = ""
	return &cp
}

func (m *MemoryPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.ID]; ok {
		return fmt.Errorf("insert payment: %w", models.ErrConflict)
	}
	m.store[p.ID] = clonePayment(p)
	return nil
}

func (m *MemoryPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePayment(p), nil
}

func (m *MemoryPaymentRepository) GetByProviderRef(ctx context.Context, method, ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.Method == method && p.ProviderRef == ref {
			return clonePayment(p), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryPaymentRepository) Transition(ctx context.Context, id string, t Transition) (*models.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, false, nil
	}
	allowed := false
	for _, from := range t.From {
		if p.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return nil, false, nil
	}
	p.Status = t.To
	p.UpdatedAt = t.At
	if t.ProviderRef != "" {
		p.ProviderRef = t.ProviderRef
	}
	if t.FailureReason != "" {
		p.FailureReason = t.FailureReason
	}
	at := t.At
	switch t.To {
	case models.PaymentCompleted:
		p.CompletedAt = &at
	case models.PaymentRefunded:
		p.RefundedAt = &at
	}
	return clonePayment(p), true, nil
}

func (m *MemoryPaymentRepository) SetReceipt(ctx context.Context, id, number, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
	}
	p.ReceiptNumber = number
	p.ReceiptKey = key
	return nil
}

func (m *MemoryPaymentRepository) List(ctx context.Context, f Filter, pg models.Pagination) (models.Page[models.Payment], error) {
	m.mu.Lock()
	out := []models.Payment{}
	for _, p := range m.store {
		switch {
		case f.UserID != "" && p.UserID != f.UserID,
			f.CampaignID != "" && p.CampaignID != f.CampaignID,
			f.Status != "" && p.Status != f.Status,
			f.Method != "" && p.Method != f.Method,
			f.Type != "" && p.Type != f.Type,
			f.From != nil && p.CreatedAt.Before(*f.From),
			f.To != nil && p.CreatedAt.After(*f.To):
			continue
		}
		out = append(out, *clonePayment(p))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return models.Paginate(out, pg), nil
}

func (m *MemoryPaymentRepository) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Completed: []CurrencyTotal{}, ByStatus: map[string]int64{}, ByMethod: map[string]int64{}}
	totals := map[string]*CurrencyTotal{}
	for _, p := range m.store {
		st.ByStatus[p.Status]++
		st.ByMethod[p.Method]++
		if p.Status != models.PaymentCompleted {
			continue
		}
		ct, ok := totals[p.Currency]
		if !ok {
			ct = &CurrencyTotal{Currency: p.Currency}
			totals[p.Currency] = ct
		}
		ct.Amount += p.Amount
		ct.Count++
	}
	for _, ct := range totals {
		st.Completed = append(st.Completed, *ct)
	}
	sort.Slice(st.Completed, func(i, j int) bool { return st.Completed[i].Currency < st.Completed[j].Currency })
	return st, nil
}

func (m *MemoryPaymentRepository) CampaignTotals(ctx context.Context) ([]CampaignTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := map[string]*CampaignTotal{}
	for _, p := range m.store {
		if p.Status != models.PaymentCompleted || p.CampaignID == "" {
			continue
		}
		ct, ok := totals[p.CampaignID]
		if !ok {
			ct = &CampaignTotal{CampaignID: p.CampaignID}
			totals[p.CampaignID] = ct
		}
		ct.Amount += p.Amount
		ct.Count++
	}
	out := []CampaignTotal{}
	for _, ct := range totals {
		out = append(out, *ct)
	}
	return out, nil
}

type MemoryCampaignRepository struct {
	mu    sync.Mutex
	store map[string]*models.Campaign
}

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{store: make(map[string]*models.Campaign)}
}

func (m *MemoryCampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *MemoryCampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[c.ID]
	if !ok {
		return fmt.Errorf("campaign %s: %w", c.ID, models.ErrNotFound)
	}
	cp := *c
	cp.CurrentAmount = cur.CurrentAmount
	cp.DonorCount = cur.DonorCount
	m.store[c.ID] = &cp
	return nil
}

func (m *MemoryCampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryCampaignRepository) List(ctx context.Context, status string, includeInactive bool, p models.Pagination) (models.Page[models.Campaign], error) {
	all, _ := m.All(ctx)
	out := []models.Campaign{}
	for _, c := range all {
		if (!includeInactive && !c.IsActive) || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return models.Paginate(out, p), nil
}

func (m *MemoryCampaignRepository) All(ctx context.Context) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Campaign, 0, len(m.store))
	for _, c := range m.store {
		out = append(out, *c)
	}
	return out, nil
}

func (m *MemoryCampaignRepository) Increment(ctx context.Context, id string, amount, donors int64) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}
	c.CurrentAmount += amount
	c.DonorCount += donors
	c.UpdatedAt = models.Now()
	cp := *c
	return &cp, nil
}

func (m *MemoryCampaignRepository) SetTotals(ctx context.Context, id string, amount, donors int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
	}
	c.CurrentAmount = amount
	c.DonorCount = donors
	return nil
}
