package models

import "time"

// Payment types
const (
	PaymentDonation   = "donation"
	PaymentMembership = "membership"
	PaymentEvent      = "event"
	PaymentOther      = "other"
)

// Payment methods
const (
	MethodStripe  = "stripe"
	MethodHormuud = "hormuud"
	MethodZaad    = "zaad"
	MethodCash    = "cash"
)

// Payment statuses
const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
	PaymentRefunded   = "refunded"
	PaymentCancelled  = "cancelled"
)

// Campaign statuses
const (
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

// Payment amounts are integer minor units (cents) of Currency.
type Payment struct {
	ID            string            `bson:"_id,omitempty" json:"id"`
	UserID        string            `bson:"userId" json:"userId"`
	Type          string            `bson:"type" json:"type"`
	CampaignID    string            `bson:"campaignId,omitempty" json:"campaignId,omitempty"`
	EventID       string            `bson:"eventId,omitempty" json:"eventId,omitempty"`
	Amount        int64             `bson:"amount" json:"amount"`
	Currency      string            `bson:"currency" json:"currency"`
	Method        string            `bson:"method" json:"method"`
	Status        string            `bson:"status" json:"status"`
	ProviderRef   string            `bson:"providerRef,omitempty" json:"providerRef,omitempty"`
	ClientSecret  string            `bson:"-" json:"clientSecret,omitempty"`
	PhoneNumber   string            `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	FailureReason string            `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	ReceiptNumber string            `bson:"receiptNumber,omitempty" json:"receiptNumber,omitempty"`
	ReceiptKey    string            `bson:"receiptKey,omitempty" json:"-"`
	Anonymous     bool              `bson:"anonymous" json:"anonymous"`
	Note          string            `bson:"note,omitempty" json:"note,omitempty"`
	Metadata      map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CompletedAt   *time.Time        `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	RefundedAt    *time.Time        `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	CreatedAt     time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// Campaign is a donation target with a running total.
type Campaign struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Title         string    `bson:"title" json:"title"`
	Description   string    `bson:"description,omitempty" json:"description,omitempty"`
	GoalAmount    int64     `bson:"goalAmount" json:"goalAmount"`
	CurrentAmount int64     `bson:"currentAmount" json:"currentAmount"`
	DonorCount    int64     `bson:"donorCount" json:"donorCount"`
	Currency      string    `bson:"currency" json:"currency"`
	StartDate     time.Time `bson:"startDate" json:"startDate"`
	EndDate       time.Time `bson:"endDate" json:"endDate"`
	Status        string    `bson:"status" json:"status"`
	CreatedBy     string    `bson:"createdBy" json:"createdBy"`
	IsActive      bool      `bson:"isActive" json:"isActive"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// AcceptingDonations reports whether the campaign takes donations at t.
func (c *Campaign) AcceptingDonations(t time.Time) bool {
	if !c.IsActive || c.Status != CampaignActive {
		return false
	}
	return !t.Before(c.StartDate) && t.Before(c.EndDate)
}

// GoalReached reports whether the running total met the goal.
func (c *Campaign) GoalReached() bool {
	return c.GoalAmount > 0 && c.CurrentAmount >= c.GoalAmount
}

// Progress is the percentage of the goal raised, capped at 100.
func (c *Campaign) Progress() float64 {
	if c.GoalAmount <= 0 {
		return 0
	}
	p := float64(c.CurrentAmount) * 100 / float64(c.GoalAmount)
	if p > 100 {
		return 100
	}
	return p
}
