package mobilemoney

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(models.MethodHormuud, config.MobileMoneyConfig{
		BaseURL:       srv.URL,
		MerchantUID:   "M100",
		APIUserID:     "U200",
		APIKey:        "API-KEY",
		WebhookSecret: "hook-secret",
		Timeout:       2 * time.Second,
	})
}

func reply(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

var testPayment = &models.Payment{ID: "p1", Amount: 1050, Currency: "usd", PhoneNumber: "+252615000000"}

func TestInitiateApproved(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req purchaseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "API_PURCHASE", req.ServiceName)
		assert.NotEmpty(t, req.RequestID)
		assert.Equal(t, "M100", req.ServiceParams.MerchantUID)
		assert.Equal(t, "252615000000", req.ServiceParams.PayerInfo.AccountNo)
		assert.Equal(t, "10.50", req.ServiceParams.TransactionInfo.Amount)
		assert.Equal(t, "USD", req.ServiceParams.TransactionInfo.Currency)
		assert.Equal(t, "p1", req.ServiceParams.TransactionInfo.ReferenceID)
		reply(w, `{"responseCode":"2001","responseMsg":"RCS_SUCCESS","params":{"state":"APPROVED","transactionId":"tx-9"}}`)
	})

	started, err := p.Initiate(context.Background(), testPayment, "donation")
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeSucceeded, started.Outcome)
	assert.Equal(t, "tx-9", started.Reference)
}

func TestInitiatePending(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"responseCode":"2001","params":{"state":"PENDING","transactionId":"tx-1"}}`)
	})

	started, err := p.Initiate(context.Background(), testPayment, "donation")
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomePending, started.Outcome)
}

func TestInitiateRejected(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"responseCode":"5310","errorCode":"E10205","responseMsg":"Payment Failed (Haraaga xisaabtaadu kuguma filna)"}`)
	})

	started, err := p.Initiate(context.Background(), testPayment, "donation")
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeFailed, started.Outcome)
	assert.Contains(t, started.Message, "Payment Failed")
	assert.Equal(t, "p1", started.Reference)
}

func TestInitiateTransportError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Initiate(context.Background(), testPayment, "donation")
	var pe *payments.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "hormuud: unexpected status 502", err.Error())
}

func TestParseWebhook(t *testing.T) {
	p := New(models.MethodZaad, config.MobileMoneyConfig{WebhookSecret: "hook-secret"})

	t.Run("approved", func(t *testing.T) {
		body := []byte(`{"referenceId":"p1","transactionId":"tx-9","state":"APPROVED"}`)
		evt, err := p.ParseWebhook(body, Sign(body, "hook-secret"))
		require.NoError(t, err)
		assert.Equal(t, payments.OutcomeSucceeded, evt.Outcome)
		assert.Equal(t, "p1", evt.PaymentID)
		assert.Equal(t, "tx-9", evt.Reference)
	})

	t.Run("declined", func(t *testing.T) {
		body := []byte(`{"referenceId":"p1","state":"declined"}`)
		evt, err := p.ParseWebhook(body, Sign(body, "hook-secret"))
		require.NoError(t, err)
		assert.Equal(t, payments.OutcomeFailed, evt.Outcome)
		assert.Equal(t, "payment declined", evt.Message)
	})

	t.Run("bad signature", func(t *testing.T) {
		body := []byte(`{"referenceId":"p1","state":"APPROVED"}`)
		_, err := p.ParseWebhook(body, Sign(body, "other"))
		require.ErrorIs(t, err, payments.ErrInvalidSignature)
		_, err = p.ParseWebhook(body, "not-hex")
		require.ErrorIs(t, err, payments.ErrInvalidSignature)
	})

	t.Run("unknown state", func(t *testing.T) {
		body := []byte(`{"referenceId":"p1","state":"WEIRD"}`)
		_, err := p.ParseWebhook(body, Sign(body, "hook-secret"))
		require.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("no secret configured", func(t *testing.T) {
		body := []byte(`{"referenceId":"p1","state":"APPROVED"}`)
		_, err := New(models.MethodZaad, config.MobileMoneyConfig{}).ParseWebhook(body, Sign(body, ""))
		require.ErrorIs(t, err, payments.ErrInvalidSignature)
	})
}
