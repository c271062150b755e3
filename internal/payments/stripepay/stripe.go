// Package stripepay takes card payments through Stripe payment intents.
package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const SignatureHeader = "Stripe-Signature"

// Provider implements payments.Provider, payments.Refunder and
// payments.WebhookVerifier for Stripe.
type Provider struct {
	api           *client.API
	webhookSecret string
}

// New creates a Stripe provider. backends may be nil to use Stripe's API.
func New(cfg config.StripeConfig, backends *stripe.Backends) *Provider {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Provider{api: api, webhookSecret: cfg.WebhookSecret}
}

func (p *Provider) Method() string { return models.MethodStripe }

func (p *Provider) SignatureHeader() string { return SignatureHeader }

// Initiate creates a payment intent whose metadata carries our payment id.
func (p *Provider) Initiate(ctx context.Context, pay *models.Payment, description string) (*payments.Initiation, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(pay.Amount),
		Currency:    stripe.String(pay.Currency),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("payment-" + pay.ID)
	params.AddMetadata("paymentId", pay.ID)
	params.AddMetadata("userId", pay.UserID)
	params.AddMetadata("type", pay.Type)
	if pay.CampaignID != "" {
		params.AddMetadata("campaignId", pay.CampaignID)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, providerError(err)
	}
	out := &payments.Initiation{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Outcome:      payments.OutcomePending,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Outcome = payments.OutcomeSucceeded
	case stripe.PaymentIntentStatusCanceled:
		out.Outcome = payments.OutcomeFailed
		out.Message = "payment intent canceled"
	}
	return out, nil
}

// Refund refunds the full amount of the payment's intent.
func (p *Provider) Refund(ctx context.Context, pay *models.Payment) error {
	if pay.ProviderRef == "" {
		return &payments.ProviderError{Method: models.MethodStripe, Msg: "payment has no payment intent"}
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(pay.ProviderRef)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + pay.ID)
	if _, err := p.api.Refunds.New(params); err != nil {
		return providerError(err)
	}
	return nil
}

func providerError(err error) error {
	pe := &payments.ProviderError{Method: models.MethodStripe, Err: err}
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		pe.Msg = se.Msg
	}
	return pe
}

// ParseWebhook verifies the Stripe-Signature header and maps payment intent
// events to outcomes. Other event types are returned as ignored.
func (p *Provider) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, payments.ErrInvalidSignature)
	}

	out := &payments.WebhookEvent{Type: string(event.Type), Outcome: payments.OutcomeIgnored}
	switch out.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed",
		"payment_intent.processing", "payment_intent.canceled":
	default:
		return out, nil
	}
	if event.Data == nil {
		return nil, fmt.Errorf("stripe event %s without data: %w", event.ID, models.ErrInvalidInput)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %v: %w", err, models.ErrInvalidInput)
	}
	out.PaymentID = pi.Metadata["paymentId"]
	out.Reference = pi.ID

	switch out.Type {
	case "payment_intent.succeeded":
		out.Outcome = payments.OutcomeSucceeded
	case "payment_intent.processing":
		out.Outcome = payments.OutcomePending
	case "payment_intent.payment_failed":
		out.Outcome = payments.OutcomeFailed
		out.Message = "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			out.Message = pi.LastPaymentError.Msg
		}
	case "payment_intent.canceled":
		out.Outcome = payments.OutcomeFailed
		out.Message = "payment canceled"
		if pi.CancellationReason != "" {
			out.Message = "payment canceled: " + string(pi.CancellationReason)
		}
	}
	return out, nil
}
