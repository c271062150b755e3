package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
)

// CampaignInput carries the editable fields of a campaign. Nil pointers are
// left unchanged.
type CampaignInput struct {
	Title       *string
	Description *string
	GoalAmount  *int64
	Currency    *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// campaignTransitions lists the statuses reachable from each status.
var campaignTransitions = map[string][]string{
	models.CampaignActive: {models.CampaignPaused, models.CampaignCompleted, models.CampaignCancelled},
	models.CampaignPaused: {models.CampaignActive, models.CampaignCompleted, models.CampaignCancelled},
}

func (s *Service) CreateCampaign(ctx context.Context, in CampaignInput, createdBy string) (*models.Campaign, error) {
	now := s.now()
	c := &models.Campaign{
		ID:        models.NewID(),
		Currency:  s.settings.DefaultCurrency,
		StartDate: now,
		Status:    models.CampaignActive,
		CreatedBy: createdBy,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyCampaign(c, in)
	if err := validateCampaign(c); err != nil {
		return nil, err
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Currency != nil && strings.ToLower(*in.Currency) != c.Currency && c.CurrentAmount > 0 {
		return nil, fmt.Errorf("cannot change the currency of a campaign with donations: %w", models.ErrConflict)
	}
	applyCampaign(c, in)
	if err := validateCampaign(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyCampaign(c *models.Campaign, in CampaignInput) {
	if in.Title != nil {
		c.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.GoalAmount != nil {
		c.GoalAmount = *in.GoalAmount
	}
	if in.Currency != nil {
		c.Currency = strings.ToLower(strings.TrimSpace(*in.Currency))
	}
	if in.StartDate != nil {
		c.StartDate = in.StartDate.UTC()
	}
	if in.EndDate != nil {
		c.EndDate = in.EndDate.UTC()
	}
}

func validateCampaign(c *models.Campaign) error {
	var fields []models.FieldError
	if c.Title == "" {
		fields = append(fields, models.FieldError{Field: "title", Message: "title is required"})
	}
	if c.GoalAmount <= 0 {
		fields = append(fields, models.FieldError{Field: "goalAmount", Message: "goalAmount must be greater than zero"})
	}
	if len(c.Currency) != 3 {
		fields = append(fields, models.FieldError{Field: "currency", Message: "currency must be a 3-letter code"})
	}
	if !c.EndDate.After(c.StartDate) {
		fields = append(fields, models.FieldError{Field: "endDate", Message: "endDate must be after startDate"})
	}
	if len(fields) > 0 {
		return models.NewValidationError("invalid campaign", fields...)
	}
	return nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", id, err)
	}
	return c, nil
}

func (s *Service) ListCampaigns(ctx context.Context, status string, includeInactive bool, p models.Pagination) (models.Page[models.Campaign], error) {
	return s.campaigns.List(ctx, status, includeInactive, p)
}

// SetCampaignStatus pauses, resumes, completes or cancels a campaign.
func (s *Service) SetCampaignStatus(ctx context.Context, id, status string) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, next := range campaignTransitions[c.Status] {
		if next == status {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("campaign cannot move from %s to %s: %w", c.Status, status, models.ErrInvalidTransition)
	}
	c.Status = status
	c.UpdatedAt = s.now()
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCampaign soft-deletes a campaign.
func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	c.IsActive = false
	c.UpdatedAt = s.now()
	return s.campaigns.Update(ctx, c)
}

// Drift is a campaign whose stored totals disagreed with its payments.
type Drift struct {
	CampaignID  string `json:"campaignId"`
	StoredTotal int64  `json:"storedTotal"`
	ActualTotal int64  `json:"actualTotal"`
	StoredCount int64  `json:"storedCount"`
	ActualCount int64  `json:"actualCount"`
}

// ReconcileCampaigns recomputes every campaign total from its completed
// payments and returns the campaigns that had to be corrected.
func (s *Service) ReconcileCampaigns(ctx context.Context) ([]Drift, error) {
	totals, err := s.payments.CampaignTotals(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]CampaignTotal, len(totals))
	for _, t := range totals {
		byID[t.CampaignID] = t
	}
	all, err := s.campaigns.All(ctx)
	if err != nil {
		return nil, err
	}
	drifts := []Drift{}
	for _, c := range all {
		t := byID[c.ID]
		if t.Amount == c.CurrentAmount && t.Count == c.DonorCount {
			continue
		}
		if err := s.campaigns.SetTotals(ctx, c.ID, t.Amount, t.Count); err != nil {
			return drifts, err
		}
		d := Drift{CampaignID: c.ID, StoredTotal: c.CurrentAmount, ActualTotal: t.Amount, StoredCount: c.DonorCount, ActualCount: t.Count}
		logger.With("campaign", c.ID).Warnf("campaign total corrected from %d to %d", d.StoredTotal, d.ActualTotal)
		drifts = append(drifts, d)
	}
	return drifts, nil
}
