package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/mailer"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	method   string
	result   Initiation
	err      error
	refunded []string
	// during runs while the provider call is in flight
	during func(p *models.Payment)
}

func (f *fakeProvider) Method() string { return f.method }

func (f *fakeProvider) Initiate(ctx context.Context, p *models.Payment, description string) (*Initiation, error) {
	if f.during != nil {
		f.during(p)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.result
	if out.Reference == "" {
		out.Reference = "ref-" + p.ID
	}
	return &out, nil
}

func (f *fakeProvider) Refund(ctx context.Context, p *models.Payment) error {
	f.refunded = append(f.refunded, p.ID)
	return nil
}

func (f *fakeProvider) SignatureHeader() string { return "X-Test-Signature" }

// ParseWebhook accepts a JSON WebhookEvent signed with "ok".
func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != "ok" {
		return nil, ErrInvalidSignature
	}
	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) NotifyQuietly(ctx context.Context, n models.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, n := range r.sent {
		out = append(out, n.Title)
	}
	return out
}

type staticUsers map[string]*models.User

func (s staticUsers) Get(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

type fixture struct {
	svc       *Service
	stripe    *fakeProvider
	store     *storage.MemoryStore
	mail      *mailer.LogMailer
	notifier  *recordingNotifier
	campaigns *MemoryCampaignRepository
	campaign  *models.Campaign
}

var (
	donor = models.Actor{ID: "u1", Role: models.RoleAlumni}
	admin = models.Actor{ID: "admin", Role: models.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stripe:    &fakeProvider{method: models.MethodStripe, result: Initiation{Outcome: OutcomePending, ClientSecret: "secret"}},
		store:     storage.NewMemoryStore("http://files.test"),
		mail:      mailer.NewLogMailer(),
		notifier:  &recordingNotifier{},
		campaigns: NewMemoryCampaignRepository(),
	}
	f.svc = NewService(Deps{
		Payments:  NewMemoryPaymentRepository(),
		Campaigns: f.campaigns,
		Providers: []Provider{f.stripe},
		Webhooks:  []WebhookVerifier{f.stripe},
		Store:     f.store,
		Mailer:    f.mail,
		Notifier:  f.notifier,
		Users:     staticUsers{"u1": {ID: "u1", FirstName: "Amina", LastName: "Ali", Email: "amina@example.com"}},
	}, Settings{OrgName: "Alumni Network", DefaultCurrency: "usd"})

	c, err := f.svc.CreateCampaign(context.Background(), CampaignInput{
		Title:      ptr("Scholarship fund"),
		GoalAmount: ptr[int64](10000),
		EndDate:    ptr(time.Now().Add(30 * 24 * time.Hour)),
	}, "admin")
	require.NoError(t, err)
	f.campaign = c
	return f
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) webhook(t *testing.T, evt WebhookEvent) error {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	_, err = f.svc.HandleWebhook(context.Background(), models.MethodStripe, body, "ok")
	return err
}

func (f *fixture) total(t *testing.T) (int64, int64) {
	t.Helper()
	c, err := f.campaigns.GetByID(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	return c.CurrentAmount, c.DonorCount
}

func TestCashPaymentCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Initiate(ctx, admin, InitiateInput{CampaignID: f.campaign.ID, Amount: 2500, Method: "CASH"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, models.PaymentDonation, res.Payment.Type)
	assert.Equal(t, "usd", res.Payment.Currency)
	require.NotNil(t, res.Payment.CompletedAt)
	assert.True(t, strings.HasPrefix(res.Payment.ReceiptNumber, "RCP-"))
	require.NotNil(t, res.Campaign)
	assert.Equal(t, int64(2500), res.Campaign.CurrentAmount)
	assert.False(t, res.GoalReached)

	amount, donors := f.total(t)
	assert.Equal(t, int64(2500), amount)
	assert.Equal(t, int64(1), donors)
	assert.Equal(t, "text/plain; charset=utf-8", f.store.ContentType(res.Payment.ReceiptKey))
	assert.Contains(t, f.notifier.titles(), "Payment received")
}

func TestCashRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Initiate(context.Background(), donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 2500, Method: models.MethodCash})
	require.ErrorIs(t, err, models.ErrForbidden)
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, donor, InitiateInput{Amount: 0, Method: "paypal", Type: "gift"})
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 3)

	_, err = f.svc.Initiate(ctx, donor, InitiateInput{Amount: 100, Method: models.MethodStripe})
	require.ErrorIs(t, err, models.ErrInvalidInput, "donation without campaign")

	_, err = f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 100, Method: models.MethodHormuud})
	require.ErrorIs(t, err, models.ErrUnavailable, "unconfigured provider")

	_, err = f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 100, Currency: "eur", Method: models.MethodStripe})
	require.ErrorIs(t, err, models.ErrInvalidInput, "currency mismatch")

	_, err = f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: "missing", Amount: 100, Method: models.MethodStripe})
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.SetCampaignStatus(ctx, f.campaign.ID, models.CampaignPaused)
	require.NoError(t, err)
	_, err = f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 100, Method: models.MethodStripe})
	require.ErrorIs(t, err, models.ErrConflict, "paused campaign")
}

func TestMembershipPaymentWithoutCampaign(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Initiate(context.Background(), donor, InitiateInput{Type: models.PaymentMembership, Amount: 5000, Method: models.MethodStripe})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, res.Payment.Status)
	assert.Equal(t, "secret", res.Payment.ClientSecret)
	assert.Nil(t, res.Campaign)
}

func TestProviderErrorFailsPayment(t *testing.T) {
	f := newFixture(t)
	f.stripe.err = &ProviderError{Method: models.MethodStripe, Msg: "Your card was declined."}

	res, err := f.svc.Initiate(context.Background(), donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 2500, Method: models.MethodStripe})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, res.Payment.Status)
	assert.Equal(t, "stripe: Your card was declined.", res.Payment.FailureReason)
	assert.Contains(t, f.notifier.titles(), "Payment failed")

	amount, _ := f.total(t)
	assert.Zero(t, amount)
}

func TestDuplicateWebhookCountsOnce(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Initiate(context.Background(), donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 4000, Method: models.MethodStripe})
	require.NoError(t, err)
	require.Equal(t, models.PaymentProcessing, res.Payment.Status)

	evt := WebhookEvent{Type: "payment_intent.succeeded", Reference: res.Payment.ProviderRef, Outcome: OutcomeSucceeded}
	require.NoError(t, f.webhook(t, evt))
	require.NoError(t, f.webhook(t, evt))

	amount, donors := f.total(t)
	assert.Equal(t, int64(4000), amount)
	assert.Equal(t, int64(1), donors)

	// a late failure for a completed payment is acknowledged and ignored
	require.NoError(t, f.webhook(t, WebhookEvent{PaymentID: res.Payment.ID, Outcome: OutcomeFailed}))
	p, err := f.svc.Get(context.Background(), res.Payment.ID, donor)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, p.Status)
}

func TestWebhookErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleWebhook(ctx, models.MethodZaad, []byte(`{}`), "ok")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.HandleWebhook(ctx, models.MethodStripe, []byte(`{}`), "forged")
	require.ErrorIs(t, err, ErrInvalidSignature)

	require.ErrorIs(t, f.webhook(t, WebhookEvent{Reference: "nope", Outcome: OutcomeSucceeded}), models.ErrNotFound)
	require.NoError(t, f.webhook(t, WebhookEvent{Type: "charge.updated", Outcome: OutcomeIgnored}))
}

func TestConcurrentCompletionsAreAllCounted(t *testing.T) {
	f := newFixture(t)
	const n = 20
	ids := make([]string, n)
	for i := range ids {
		res, err := f.svc.Initiate(context.Background(), donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 500, Method: models.MethodStripe})
		require.NoError(t, err)
		ids[i] = res.Payment.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				body := []byte(fmt.Sprintf(`{"PaymentID":%q,"Outcome":"succeeded"}`, id))
				_, err := f.svc.HandleWebhook(context.Background(), models.MethodStripe, body, "ok")
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	amount, donors := f.total(t)
	assert.Equal(t, int64(n*500), amount)
	assert.Equal(t, int64(n), donors)

	c, err := f.svc.GetCampaign(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, c.GoalReached())
}

func TestRefundRevertsCampaignTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 3000, Method: models.MethodStripe})
	require.NoError(t, err)
	require.NoError(t, f.webhook(t, WebhookEvent{PaymentID: res.Payment.ID, Outcome: OutcomeSucceeded}))

	_, err = f.svc.Refund(ctx, res.Payment.ID, donor)
	require.ErrorIs(t, err, models.ErrForbidden)

	refunded, err := f.svc.Refund(ctx, res.Payment.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Payment.Status)
	require.NotNil(t, refunded.Payment.RefundedAt)
	assert.Equal(t, []string{res.Payment.ID}, f.stripe.refunded)

	amount, donors := f.total(t)
	assert.Zero(t, amount)
	assert.Zero(t, donors)

	_, err = f.svc.Refund(ctx, res.Payment.ID, admin)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCancelOnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stripe.err = nil
	res, err := f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 1000, Method: models.MethodStripe})
	require.NoError(t, err)

	// handed to the provider already
	_, err = f.svc.Cancel(ctx, res.Payment.ID, donor)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	p := &models.Payment{ID: "pending-1", UserID: "u1", Method: models.MethodStripe, Status: models.PaymentPending, Amount: 100, Currency: "usd"}
	require.NoError(t, f.svc.payments.Create(ctx, p))

	_, err = f.svc.Cancel(ctx, p.ID, models.Actor{ID: "u2", Role: models.RoleAlumni})
	require.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, p.ID, donor)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, cancelled.Status)
}

func TestReceiptURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 1000, Method: models.MethodStripe})
	require.NoError(t, err)

	_, err = f.svc.ReceiptURL(ctx, res.Payment.ID, donor)
	require.ErrorIs(t, err, models.ErrNotFound, "no receipt before completion")

	require.NoError(t, f.webhook(t, WebhookEvent{PaymentID: res.Payment.ID, Outcome: OutcomeSucceeded}))
	url, err := f.svc.ReceiptURL(ctx, res.Payment.ID, donor)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://files.test/receipts/"))
	assert.Contains(t, url, "expires=900")

	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "amina@example.com", sent[0].To.Address)
	assert.Contains(t, sent[0].Subject, "RCP-")
}

func TestReconcileCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Initiate(ctx, admin, InitiateInput{CampaignID: f.campaign.ID, Amount: 700, Method: models.MethodCash})
	require.NoError(t, err)
	require.NoError(t, f.campaigns.SetTotals(ctx, f.campaign.ID, 99, 7))

	drifts, err := f.svc.ReconcileCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, Drift{CampaignID: f.campaign.ID, StoredTotal: 99, ActualTotal: 700, StoredCount: 7, ActualCount: 1}, drifts[0])

	amount, donors := f.total(t)
	assert.Equal(t, int64(700), amount)
	assert.Equal(t, int64(1), donors)

	drifts, err = f.svc.ReconcileCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestCampaignLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCampaign(ctx, CampaignInput{Title: ptr(" "), GoalAmount: ptr[int64](0), Currency: ptr("dollars")}, "admin")
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 4)

	_, err = f.svc.Initiate(ctx, admin, InitiateInput{CampaignID: f.campaign.ID, Amount: 100, Method: models.MethodCash})
	require.NoError(t, err)
	_, err = f.svc.UpdateCampaign(ctx, f.campaign.ID, CampaignInput{Currency: ptr("eur")})
	require.ErrorIs(t, err, models.ErrConflict)

	updated, err := f.svc.UpdateCampaign(ctx, f.campaign.ID, CampaignInput{GoalAmount: ptr[int64](50000)})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), updated.GoalAmount)
	assert.Equal(t, int64(100), updated.CurrentAmount)

	_, err = f.svc.SetCampaignStatus(ctx, f.campaign.ID, models.CampaignCompleted)
	require.NoError(t, err)
	_, err = f.svc.SetCampaignStatus(ctx, f.campaign.ID, models.CampaignActive)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	require.NoError(t, f.svc.DeleteCampaign(ctx, f.campaign.ID))
	page, err := f.svc.ListCampaigns(ctx, "", false, models.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestMethodsListsConfiguredProviders(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{models.MethodCash, models.MethodStripe}, f.svc.Methods())
}

func TestCancelDuringProviderCallIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stripe.result = Initiation{Outcome: OutcomeSucceeded, Reference: "TX-9"}
	var statusAtProvider string
	var cancelErr error
	f.stripe.during = func(p *models.Payment) {
		statusAtProvider = p.Status
		_, cancelErr = f.svc.Cancel(ctx, p.ID, donor)
	}

	res, err := f.svc.Initiate(ctx, donor, InitiateInput{CampaignID: f.campaign.ID, Amount: 2500, Method: models.MethodStripe})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, statusAtProvider)
	require.ErrorIs(t, cancelErr, models.ErrInvalidTransition)
	assert.Equal(t, models.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, "TX-9", res.Payment.ProviderRef)

	c, err := f.campaigns.GetByID(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), c.CurrentAmount)
	assert.Equal(t, int64(1), c.DonorCount)
}
