package payments

import (
	"context"
	"fmt"

	"github.com/alumni-network/alumni-backend-system/internal/models"
)

// ErrInvalidSignature is returned when a webhook signature does not verify.
var ErrInvalidSignature = fmt.Errorf("invalid webhook signature: %w", models.ErrInvalidInput)

// Outcome is the provider-reported result of a payment attempt.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

// Initiation is a provider's answer to a new payment.
type Initiation struct {
	Reference    string
	ClientSecret string
	Outcome      Outcome
	Message      string
}

// Provider starts payments on an external payment rail.
type Provider interface {
	Method() string
	Initiate(ctx context.Context, p *models.Payment, description string) (*Initiation, error)
}

// Refunder is implemented by providers that can return money.
type Refunder interface {
	Refund(ctx context.Context, p *models.Payment) error
}

// WebhookEvent is a verified provider callback.
type WebhookEvent struct {
	Type      string
	PaymentID string // our payment id, when the provider echoes it back
	Reference string // provider reference
	Outcome   Outcome
	Message   string
}

// WebhookVerifier authenticates and decodes provider callbacks.
type WebhookVerifier interface {
	Method() string
	SignatureHeader() string
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// ProviderError is a failure reported by a provider or its transport. Its text
// is stored on the failed payment.
type ProviderError struct {
	Method string
	Msg    string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Msg == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }
