// Package mobilemoney charges Hormuud EVC Plus and Zaad wallets through a
// WaafiPay-style purchase API and verifies their callbacks.
package mobilemoney

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/google/uuid"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	defaultTimeout  = 30 * time.Second

	responseSuccess = "2001"
)

// Callback states
const (
	StateApproved  = "APPROVED"
	StatePending   = "PENDING"
	StateDeclined  = "DECLINED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// Provider implements payments.Provider and payments.WebhookVerifier for one
// mobile money rail.
type Provider struct {
	method string
	cfg    config.MobileMoneyConfig
	client *http.Client
}

func New(method string, cfg config.MobileMoneyConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Provider{method: method, cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (p *Provider) Method() string { return p.method }

func (p *Provider) SignatureHeader() string { return SignatureHeader }

type purchaseRequest struct {
	SchemaVersion string        `json:"schemaVersion"`
	RequestID     string        `json:"requestId"`
	Timestamp     string        `json:"timestamp"`
	ChannelName   string        `json:"channelName"`
	ServiceName   string        `json:"serviceName"`
	ServiceParams serviceParams `json:"serviceParams"`
}

type serviceParams struct {
	MerchantUID     string          `json:"merchantUid"`
	APIUserID       string          `json:"apiUserId"`
	APIKey          string          `json:"apiKey"`
	PaymentMethod   string          `json:"paymentMethod"`
	PayerInfo       payerInfo       `json:"payerInfo"`
	TransactionInfo transactionInfo `json:"transactionInfo"`
}

type payerInfo struct {
	AccountNo string `json:"accountNo"`
}

type transactionInfo struct {
	ReferenceID string `json:"referenceId"`
	InvoiceID   string `json:"invoiceId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type purchaseResponse struct {
	ResponseCode string `json:"responseCode"`
	ErrorCode    string `json:"errorCode"`
	ResponseMsg  string `json:"responseMsg"`
	Params       struct {
		State         string `json:"state"`
		TransactionID string `json:"transactionId"`
		ReferenceID   string `json:"referenceId"`
	} `json:"params"`
}

// Initiate sends a purchase request that prompts the payer's phone.
func (p *Provider) Initiate(ctx context.Context, pay *models.Payment, description string) (*payments.Initiation, error) {
	body, err := json.Marshal(purchaseRequest{
		SchemaVersion: "1.0",
		RequestID:     uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ChannelName:   "WEB",
		ServiceName:   "API_PURCHASE",
		ServiceParams: serviceParams{
			MerchantUID:   p.cfg.MerchantUID,
			APIUserID:     p.cfg.APIUserID,
			APIKey:        p.cfg.APIKey,
			PaymentMethod: "MWALLET_ACCOUNT",
			PayerInfo:     payerInfo{AccountNo: strings.TrimPrefix(pay.PhoneNumber, "+")},
			TransactionInfo: transactionInfo{
				ReferenceID: pay.ID,
				InvoiceID:   pay.ID,
				Amount:      payments.FormatAmount(pay.Amount),
				Currency:    strings.ToUpper(pay.Currency),
				Description: description,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode purchase: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build purchase request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &payments.ProviderError{Method: p.method, Msg: "request failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &payments.ProviderError{Method: p.method, Msg: "reading response failed", Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &payments.ProviderError{Method: p.method, Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	var out purchaseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &payments.ProviderError{Method: p.method, Msg: "malformed response", Err: err}
	}

	ref := out.Params.TransactionID
	if ref == "" {
		ref = pay.ID
	}
	started := &payments.Initiation{Reference: ref, Message: out.ResponseMsg}
	state := strings.ToUpper(out.Params.State)
	switch {
	case out.ResponseCode == responseSuccess && (state == StateApproved || state == ""):
		started.Outcome = payments.OutcomeSucceeded
	case state == StatePending:
		started.Outcome = payments.OutcomePending
	default:
		started.Outcome = payments.OutcomeFailed
		if started.Message == "" {
			started.Message = "payment rejected by " + p.method
		}
	}
	return started, nil
}

// Callback is the body of a provider callback.
type Callback struct {
	ReferenceID   string `json:"referenceId"`
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
	Message       string `json:"message"`
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook verifies the X-Webhook-Signature header against the raw body.
func (p *Provider) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	if p.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%s webhook secret not configured: %w", p.method, payments.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return nil, payments.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(Sign(payload, p.cfg.WebhookSecret))
	if !hmac.Equal(got, want) {
		return nil, payments.ErrInvalidSignature
	}

	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("decode %s callback: %v: %w", p.method, err, models.ErrInvalidInput)
	}
	if cb.ReferenceID == "" && cb.TransactionID == "" {
		return nil, fmt.Errorf("%s callback without reference: %w", p.method, models.ErrInvalidInput)
	}
	evt := &payments.WebhookEvent{
		Type:      strings.ToUpper(cb.State),
		PaymentID: cb.ReferenceID,
		Reference: cb.TransactionID,
		Message:   cb.Message,
	}
	switch evt.Type {
	case StateApproved:
		evt.Outcome = payments.OutcomeSucceeded
	case StatePending:
		evt.Outcome = payments.OutcomePending
	case StateDeclined, StateFailed, StateCancelled:
		evt.Outcome = payments.OutcomeFailed
		if evt.Message == "" {
			evt.Message = "payment " + strings.ToLower(evt.Type)
		}
	default:
		return nil, fmt.Errorf("unknown %s callback state %q: %w", p.method, cb.State, models.ErrInvalidInput)
	}
	return evt, nil
}
