package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/mailer"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/alumni-network/alumni-backend-system/pkg/metrics"
)

const receiptURLTTL = 15 * time.Minute

// Notifier delivers in-app notifications as a side effect.
type Notifier interface {
	NotifyQuietly(ctx context.Context, n models.Notification)
}

// UserLookup resolves payers for receipts and email.
type UserLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// Settings are the business parameters of the payment flow.
type Settings struct {
	OrgName         string
	DefaultCurrency string
	MinAmount       int64
}

// Deps collects the collaborators of the Service.
type Deps struct {
	Payments  PaymentRepository
	Campaigns CampaignRepository
	Providers []Provider
	Webhooks  []WebhookVerifier
	Store     storage.ObjectStore
	Mailer    mailer.Mailer
	Notifier  Notifier
	Users     UserLookup
}

// Service runs the payment state machine and keeps campaign totals.
type Service struct {
	payments  PaymentRepository
	campaigns CampaignRepository
	providers map[string]Provider
	webhooks  map[string]WebhookVerifier
	store     storage.ObjectStore
	mailer    mailer.Mailer
	notifier  Notifier
	users     UserLookup
	settings  Settings
	now       func() time.Time
}

func NewService(d Deps, s Settings) *Service {
	if s.DefaultCurrency == "" {
		s.DefaultCurrency = "usd"
	}
	if s.MinAmount <= 0 {
		s.MinAmount = 1
	}
	svc := &Service{
		payments:  d.Payments,
		campaigns: d.Campaigns,
		providers: map[string]Provider{},
		webhooks:  map[string]WebhookVerifier{},
		store:     d.Store,
		mailer:    d.Mailer,
		notifier:  d.Notifier,
		users:     d.Users,
		settings:  s,
		now:       models.Now,
	}
	for _, p := range d.Providers {
		svc.providers[p.Method()] = p
	}
	for _, w := range d.Webhooks {
		svc.webhooks[w.Method()] = w
	}
	return svc
}

// Methods lists the payment methods that can currently be used.
func (s *Service) Methods() []string {
	out := []string{models.MethodCash}
	for _, m := range []string{models.MethodStripe, models.MethodHormuud, models.MethodZaad} {
		if _, ok := s.providers[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// InitiateInput is a request to pay.
type InitiateInput struct {
	Type        string
	CampaignID  string
	EventID     string
	Amount      int64
	Currency    string
	Method      string
	PhoneNumber string
	Anonymous   bool
	Note        string
}

// Result is a payment together with its campaign after the operation.
type Result struct {
	Payment     *models.Payment  `json:"payment"`
	Campaign    *models.Campaign `json:"campaign,omitempty"`
	GoalReached bool             `json:"goalReached"`
}

var (
	validTypes = map[string]bool{
		models.PaymentDonation: true, models.PaymentMembership: true,
		models.PaymentEvent: true, models.PaymentOther: true,
	}
	validMethods = map[string]bool{
		models.MethodStripe: true, models.MethodHormuud: true,
		models.MethodZaad: true, models.MethodCash: true,
	}
)

// Initiate validates the request, records a pending payment and hands it to
// the provider. The returned payment may already be completed or failed.
func (s *Service) Initiate(ctx context.Context, actor models.Actor, in InitiateInput) (*Result, error) {
	campaign, err := s.validateInitiate(ctx, actor, &in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Payment{
		ID:          models.NewID(),
		UserID:      actor.ID,
		Type:        in.Type,
		CampaignID:  in.CampaignID,
		EventID:     in.EventID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Method:      in.Method,
		Status:      models.PaymentPending,
		PhoneNumber: in.PhoneNumber,
		Anonymous:   in.Anonymous,
		Note:        in.Note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	log := logger.With("payment", p.ID, "method", p.Method)
	log.Infof("payment initiated amount=%s %s", FormatAmount(p.Amount), p.Currency)
	metrics.PaymentsTotal.WithLabelValues(p.Method, models.PaymentPending).Inc()

	if p.Method == models.MethodCash {
		return s.complete(ctx, p.ID, "")
	}

	// a payment with a provider call in flight can no longer be cancelled
	id := p.ID
	p, ok, err := s.payments.Transition(ctx, id, Transition{
		From: []string{models.PaymentPending},
		To:   models.PaymentProcessing,
		At:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.settled(ctx, id, models.PaymentProcessing)
	}
	metrics.PaymentsTotal.WithLabelValues(p.Method, models.PaymentProcessing).Inc()

	provider := s.providers[p.Method]
	started, err := provider.Initiate(ctx, p, s.describe(p, campaign))
	if err != nil {
		log.Warnf("provider rejected payment: %v", err)
		return s.fail(ctx, p.ID, err.Error())
	}
	switch started.Outcome {
	case OutcomeSucceeded:
		return s.complete(ctx, p.ID, started.Reference)
	case OutcomeFailed:
		reason := started.Message
		if reason == "" {
			reason = "payment declined by provider"
		}
		return s.fail(ctx, p.ID, reason)
	}

	updated, ok, err := s.payments.Transition(ctx, p.ID, Transition{
		From:        []string{models.PaymentProcessing},
		To:          models.PaymentProcessing,
		ProviderRef: started.Reference,
		At:          s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// a webhook settled the payment before the provider answered
		if updated, err = s.payments.GetByID(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	updated.ClientSecret = started.ClientSecret
	return &Result{Payment: updated, Campaign: campaign}, nil
}

func (s *Service) validateInitiate(ctx context.Context, actor models.Actor, in *InitiateInput) (*models.Campaign, error) {
	var fields []models.FieldError
	add := func(field, msg string) { fields = append(fields, models.FieldError{Field: field, Message: msg}) }

	if in.Type == "" {
		in.Type = models.PaymentDonation
	}
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	in.Currency = strings.ToLower(strings.TrimSpace(in.Currency))
	in.PhoneNumber = strings.ReplaceAll(strings.TrimSpace(in.PhoneNumber), " ", "")

	if !validTypes[in.Type] {
		add("type", "type must be donation, membership, event or other")
	}
	switch {
	case in.Amount <= 0:
		add("amount", "amount must be greater than zero")
	case in.Amount < s.settings.MinAmount:
		add("amount", fmt.Sprintf("amount must be at least %s", FormatAmount(s.settings.MinAmount)))
	}
	switch {
	case !validMethods[in.Method]:
		add("method", "method must be stripe, hormuud, zaad or cash")
	case in.Method == models.MethodCash:
		if !actor.IsAdmin() {
			return nil, fmt.Errorf("cash payments are recorded by admins only: %w", models.ErrForbidden)
		}
	case s.providers[in.Method] == nil:
		return nil, fmt.Errorf("payment method %s is not configured: %w", in.Method, models.ErrUnavailable)
	}
	if (in.Method == models.MethodHormuud || in.Method == models.MethodZaad) && in.PhoneNumber == "" {
		add("phoneNumber", "phoneNumber is required for mobile money")
	}
	if in.Type == models.PaymentMembership && in.CampaignID != "" {
		add("campaignId", "membership payments cannot target a campaign")
	}
	if in.Type == models.PaymentDonation && in.CampaignID == "" {
		add("campaignId", "campaignId is required for donations")
	}
	if in.Type == models.PaymentEvent && in.EventID == "" {
		add("eventId", "eventId is required for event payments")
	}
	if len(fields) > 0 {
		return nil, models.NewValidationError("invalid payment", fields...)
	}

	var campaign *models.Campaign
	if in.CampaignID != "" {
		c, err := s.campaigns.GetByID(ctx, in.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("campaign %s: %w", in.CampaignID, err)
		}
		if !c.AcceptingDonations(s.now()) {
			return nil, fmt.Errorf("campaign is not accepting donations: %w", models.ErrConflict)
		}
		if in.Currency != "" && in.Currency != c.Currency {
			return nil, models.NewValidationError("currency mismatch",
				models.FieldError{Field: "currency", Message: "currency must match the campaign currency " + strings.ToUpper(c.Currency)})
		}
		in.Currency = c.Currency
		campaign = c
	}
	if in.Currency == "" {
		in.Currency = s.settings.DefaultCurrency
	}
	return campaign, nil
}

func (s *Service) describe(p *models.Payment, c *models.Campaign) string {
	if c != nil {
		return fmt.Sprintf("%s donation: %s", s.settings.OrgName, c.Title)
	}
	return fmt.Sprintf("%s %s payment", s.settings.OrgName, p.Type)
}

// complete moves a payment to completed. A payment that is already completed
// is returned unchanged so repeated callbacks never count twice.
func (s *Service) complete(ctx context.Context, id, ref string) (*Result, error) {
	p, ok, err := s.payments.Transition(ctx, id, Transition{
		From:        []string{models.PaymentPending, models.PaymentProcessing},
		To:          models.PaymentCompleted,
		ProviderRef: ref,
		At:          s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.settled(ctx, id, models.PaymentCompleted)
	}
	log := logger.With("payment", p.ID, "method", p.Method)
	metrics.PaymentsTotal.WithLabelValues(p.Method, models.PaymentCompleted).Inc()
	metrics.DonationVolume.WithLabelValues(p.Currency).Add(float64(p.Amount))

	res := &Result{Payment: p}
	if p.CampaignID != "" {
		c, err := s.campaigns.Increment(ctx, p.CampaignID, p.Amount, 1)
		if err != nil {
			log.Errorf("campaign %s total not updated: %v", p.CampaignID, err)
		} else {
			res.Campaign = c
			res.GoalReached = c.GoalReached()
			if res.GoalReached && c.CurrentAmount-p.Amount < c.GoalAmount {
				log.Infof("campaign %s reached its goal", c.ID)
			}
		}
	}
	log.Infof("payment completed")

	payer := s.payer(ctx, p.UserID)
	if err := s.issueReceipt(ctx, p, payer, res.Campaign); err != nil {
		log.Warnf("receipt not stored: %v", err)
	}
	s.notifyCompleted(ctx, p, payer)
	return res, nil
}

// settled resolves a transition that did not apply: the payment either already
// has the wanted status, or it is in a state that forbids the change.
func (s *Service) settled(ctx context.Context, id, want string) (*Result, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	if p.Status == want {
		return &Result{Payment: p}, nil
	}
	return nil, fmt.Errorf("payment %s is %s: %w", id, p.Status, models.ErrInvalidTransition)
}

func (s *Service) fail(ctx context.Context, id, reason string) (*Result, error) {
	p, ok, err := s.payments.Transition(ctx, id, Transition{
		From:          []string{models.PaymentPending, models.PaymentProcessing},
		To:            models.PaymentFailed,
		FailureReason: reason,
		At:            s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.settled(ctx, id, models.PaymentFailed)
	}
	metrics.PaymentsTotal.WithLabelValues(p.Method, models.PaymentFailed).Inc()
	logger.With("payment", p.ID, "method", p.Method).Warnf("payment failed: %s", reason)
	s.notifier.NotifyQuietly(ctx, models.Notification{
		Recipient: p.UserID,
		Type:      models.NotificationPayment,
		Title:     "Payment failed",
		Message:   fmt.Sprintf("Your payment of %s %s could not be completed: %s", FormatAmount(p.Amount), strings.ToUpper(p.Currency), reason),
		Link:      "/payments/" + p.ID,
		Data:      map[string]string{"paymentId": p.ID, "status": p.Status},
	})
	return &Result{Payment: p}, nil
}

func (s *Service) payer(ctx context.Context, userID string) *models.User {
	if s.users == nil {
		return nil
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		logger.With("user", userID).Warnf("payer lookup: %v", err)
		return nil
	}
	return u
}

func (s *Service) issueReceipt(ctx context.Context, p *models.Payment, payer *models.User, c *models.Campaign) error {
	if s.store == nil {
		return errors.New("no object store configured")
	}
	if c == nil && p.CampaignID != "" {
		c, _ = s.campaigns.GetByID(ctx, p.CampaignID)
	}
	at := s.now()
	if p.CompletedAt != nil {
		at = *p.CompletedAt
	}
	number := p.ReceiptNumber
	if number == "" {
		number = NewReceiptNumber(at)
	}
	key := ReceiptKey(number, at)
	body := RenderReceipt(s.settings.OrgName, number, p, payer, c)
	if err := s.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	if err := s.payments.SetReceipt(ctx, p.ID, number, key); err != nil {
		return err
	}
	p.ReceiptNumber = number
	p.ReceiptKey = key
	return nil
}

func (s *Service) notifyCompleted(ctx context.Context, p *models.Payment, payer *models.User) {
	amount := FormatAmount(p.Amount) + " " + strings.ToUpper(p.Currency)
	s.notifier.NotifyQuietly(ctx, models.Notification{
		Recipient: p.UserID,
		Type:      models.NotificationPayment,
		Title:     "Payment received",
		Message:   fmt.Sprintf("We received your payment of %s. Receipt %s.", amount, p.ReceiptNumber),
		Link:      "/payments/" + p.ID,
		Data:      map[string]string{"paymentId": p.ID, "status": p.Status, "receiptNumber": p.ReceiptNumber},
	})
	if payer == nil {
		return
	}
	body := fmt.Sprintf("Dear %s,\n\nThank you for your %s of %s.\nReceipt number: %s\nPayment id: %s\n\n%s\n",
		payer.FullName(), p.Type, amount, p.ReceiptNumber, p.ID, s.settings.OrgName)
	mailer.SendQuietly(ctx, s.mailer, mailer.Message{
		To:      mail.Address{Name: payer.FullName(), Address: payer.Email},
		Subject: "Payment receipt " + p.ReceiptNumber,
		Body:    body,
	})
}

// SignatureHeader names the request header carrying method's webhook
// signature. It reports false for methods without webhooks.
func (s *Service) SignatureHeader(method string) (string, bool) {
	v, ok := s.webhooks[method]
	if !ok {
		return "", false
	}
	return v.SignatureHeader(), true
}

// HandleWebhook verifies a provider callback and applies it to its payment.
func (s *Service) HandleWebhook(ctx context.Context, method string, payload []byte, signature string) (*WebhookEvent, error) {
	v, ok := s.webhooks[method]
	if !ok {
		return nil, fmt.Errorf("webhook provider %q: %w", method, models.ErrNotFound)
	}
	log := logger.With("provider", method)
	evt, err := v.ParseWebhook(payload, signature)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(method, "rejected").Inc()
		log.Warnf("webhook rejected: %v", err)
		return nil, err
	}
	if evt.Outcome == OutcomeIgnored {
		metrics.WebhooksTotal.WithLabelValues(method, "ignored").Inc()
		log.Debugf("webhook %s ignored", evt.Type)
		return evt, nil
	}

	p, err := s.findWebhookPayment(ctx, method, evt)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(method, "unknown_payment").Inc()
		return nil, err
	}
	log = log.With("payment", p.ID, "event", evt.Type)

	switch evt.Outcome {
	case OutcomeSucceeded:
		_, err = s.complete(ctx, p.ID, evt.Reference)
	case OutcomeFailed:
		reason := evt.Message
		if reason == "" {
			reason = "payment failed"
		}
		_, err = s.fail(ctx, p.ID, reason)
	case OutcomePending:
		_, _, err = s.payments.Transition(ctx, p.ID, Transition{
			From:        []string{models.PaymentPending, models.PaymentProcessing},
			To:          models.PaymentProcessing,
			ProviderRef: evt.Reference,
			At:          s.now(),
		})
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		// late or conflicting callback for a settled payment
		log.Warnf("webhook ignored: %v", err)
		err = nil
	}
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(method, "error").Inc()
		return nil, err
	}
	metrics.WebhooksTotal.WithLabelValues(method, "applied").Inc()
	log.Infof("webhook applied")
	return evt, nil
}

func (s *Service) findWebhookPayment(ctx context.Context, method string, evt *WebhookEvent) (*models.Payment, error) {
	if evt.PaymentID != "" {
		p, err := s.payments.GetByID(ctx, evt.PaymentID)
		if err == nil && p.Method == method {
			return p, nil
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	if evt.Reference != "" {
		p, err := s.payments.GetByProviderRef(ctx, method, evt.Reference)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("payment for %s callback: %w", method, models.ErrNotFound)
}

// Refund returns a completed payment and takes it out of the campaign total.
func (s *Service) Refund(ctx context.Context, id string, actor models.Actor) (*Result, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins may refund: %w", models.ErrForbidden)
	}
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	if p.Status != models.PaymentCompleted {
		return nil, fmt.Errorf("only completed payments can be refunded, payment is %s: %w", p.Status, models.ErrInvalidTransition)
	}
	if r, ok := s.providers[p.Method].(Refunder); ok {
		if err := r.Refund(ctx, p); err != nil {
			return nil, fmt.Errorf("refund with %s: %w", p.Method, err)
		}
	}
	p, ok, err := s.payments.Transition(ctx, id, Transition{
		From: []string{models.PaymentCompleted},
		To:   models.PaymentRefunded,
		At:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.settled(ctx, id, models.PaymentRefunded)
	}
	metrics.PaymentsTotal.WithLabelValues(p.Method, models.PaymentRefunded).Inc()
	res := &Result{Payment: p}
	if p.CampaignID != "" {
		c, err := s.campaigns.Increment(ctx, p.CampaignID, -p.Amount, -1)
		if err != nil {
			logger.With("payment", p.ID).Errorf("campaign %s total not reverted: %v", p.CampaignID, err)
		} else {
			res.Campaign = c
			res.GoalReached = c.GoalReached()
		}
	}
	logger.With("payment", p.ID, "admin", actor.ID).Infof("payment refunded")
	s.notifier.NotifyQuietly(ctx, models.Notification{
		Recipient: p.UserID,
		Type:      models.NotificationPayment,
		Title:     "Payment refunded",
		Message:   fmt.Sprintf("Your payment of %s %s was refunded.", FormatAmount(p.Amount), strings.ToUpper(p.Currency)),
		Link:      "/payments/" + p.ID,
		Data:      map[string]string{"paymentId": p.ID, "status": p.Status},
	})
	return res, nil
}

// Cancel abandons a payment that has not been handed to a provider yet.
func (s *Service) Cancel(ctx context.Context, id string, actor models.Actor) (*models.Payment, error) {
	p, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	updated, ok, err := s.payments.Transition(ctx, p.ID, Transition{
		From: []string{models.PaymentPending},
		To:   models.PaymentCancelled,
		At:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("only pending payments can be cancelled, payment is %s: %w", p.Status, models.ErrInvalidTransition)
	}
	metrics.PaymentsTotal.WithLabelValues(updated.Method, models.PaymentCancelled).Inc()
	return updated, nil
}

// Get returns a payment visible to actor: its owner or an admin.
func (s *Service) Get(ctx context.Context, id string, actor models.Actor) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	if !actor.CanManage(p.UserID) {
		return nil, fmt.Errorf("payment %s: %w", id, models.ErrForbidden)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Payment], error) {
	return s.payments.List(ctx, f, p)
}

func (s *Service) ListMine(ctx context.Context, userID string, f Filter, p models.Pagination) (models.Page[models.Payment], error) {
	f.UserID = userID
	return s.payments.List(ctx, f, p)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.payments.Stats(ctx)
}

// ReceiptURL returns a short-lived download link for a completed payment's
// receipt, storing the receipt first if it is missing.
func (s *Service) ReceiptURL(ctx context.Context, id string, actor models.Actor) (string, error) {
	p, err := s.Get(ctx, id, actor)
	if err != nil {
		return "", err
	}
	if p.Status != models.PaymentCompleted && p.Status != models.PaymentRefunded {
		return "", fmt.Errorf("payment %s has no receipt: %w", id, models.ErrNotFound)
	}
	if s.store == nil {
		return "", fmt.Errorf("receipt storage: %w", models.ErrUnavailable)
	}
	if p.ReceiptKey == "" {
		if err := s.issueReceipt(ctx, p, s.payer(ctx, p.UserID), nil); err != nil {
			return "", fmt.Errorf("%v: %w", err, models.ErrUnavailable)
		}
	}
	url, err := s.store.PresignedURL(ctx, p.ReceiptKey, receiptURLTTL)
	if errors.Is(err, storage.ErrObjectNotFound) {
		if err := s.issueReceipt(ctx, p, s.payer(ctx, p.UserID), nil); err != nil {
			return "", fmt.Errorf("%v: %w", err, models.ErrUnavailable)
		}
		url, err = s.store.PresignedURL(ctx, p.ReceiptKey, receiptURLTTL)
	}
	if err != nil {
		return "", fmt.Errorf("presign receipt: %w", err)
	}
	return url, nil
}
