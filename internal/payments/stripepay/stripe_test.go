package stripepay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	backends := &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		}),
	}
	return New(config.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: testSecret}, backends)
}

func TestInitiateCreatesPaymentIntent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "p1", r.PostForm.Get("metadata[paymentId]"))
		assert.Equal(t, "payment-p1", r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","status":"requires_payment_method","amount":2500,"currency":"usd"}`)
	})

	started, err := p.Initiate(context.Background(), &models.Payment{ID: "p1", UserID: "u1", Amount: 2500, Currency: "usd", Type: models.PaymentDonation}, "donation")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", started.Reference)
	assert.Equal(t, "pi_123_secret_abc", started.ClientSecret)
	assert.Equal(t, payments.OutcomePending, started.Outcome)
}

func TestInitiateDeclined(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	})

	_, err := p.Initiate(context.Background(), &models.Payment{ID: "p1", Amount: 2500, Currency: "usd"}, "donation")
	require.Error(t, err)
	var pe *payments.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "stripe: Your card was declined.", err.Error())
}

func TestRefund(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"re_1","object":"refund","status":"succeeded"}`)
	})

	require.NoError(t, p.Refund(context.Background(), &models.Payment{ID: "p1", ProviderRef: "pi_123"}))
	require.Error(t, p.Refund(context.Background(), &models.Payment{ID: "p2"}))
}

func sign(payload []byte) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func event(typ, intent string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, typ, intent))
}

func TestParseWebhook(t *testing.T) {
	p := New(config.StripeConfig{WebhookSecret: testSecret}, nil)

	t.Run("succeeded", func(t *testing.T) {
		payload := event("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent","status":"succeeded","metadata":{"paymentId":"p1"}}`)
		evt, err := p.ParseWebhook(payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, payments.OutcomeSucceeded, evt.Outcome)
		assert.Equal(t, "p1", evt.PaymentID)
		assert.Equal(t, "pi_123", evt.Reference)
	})

	t.Run("failed carries last error", func(t *testing.T) {
		payload := event("payment_intent.payment_failed", `{"id":"pi_123","object":"payment_intent","status":"requires_payment_method","metadata":{"paymentId":"p1"},"last_payment_error":{"message":"Insufficient funds."}}`)
		evt, err := p.ParseWebhook(payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, payments.OutcomeFailed, evt.Outcome)
		assert.Equal(t, "Insufficient funds.", evt.Message)
	})

	t.Run("other events ignored", func(t *testing.T) {
		payload := event("customer.created", `{"id":"cus_1","object":"customer"}`)
		evt, err := p.ParseWebhook(payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, payments.OutcomeIgnored, evt.Outcome)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := event("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent"}`)
		_, err := p.ParseWebhook(payload, "t=1,v1=deadbeef")
		require.ErrorIs(t, err, payments.ErrInvalidSignature)
		require.ErrorIs(t, err, models.ErrInvalidInput)
	})
}
