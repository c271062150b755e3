package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/alumni-network/alumni-backend-system/internal/announcements"
	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/events"
	"github.com/alumni-network/alumni-backend-system/internal/jobs"
	"github.com/alumni-network/alumni-backend-system/internal/mailer"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/notifications"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/alumni-network/alumni-backend-system/internal/payments/mobilemoney"
	"github.com/alumni-network/alumni-backend-system/internal/sessions"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/alumni-network/alumni-backend-system/internal/tokens"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/alumni-network/alumni-backend-system/pkg/middleware"
	"github.com/alumni-network/alumni-backend-system/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret      = "handlers-test-secret-0123456789abcdef"
	testWebhookKey  = "hormuud-webhook-secret"
	declinedAccount = "252610000000"
)

var userSeq atomic.Int64

// env is the full API wired on in-memory repositories.
type env struct {
	t             *testing.T
	cfg           *config.Config
	router        *gin.Engine
	redis         *mr.Miniredis
	users         *users.Service
	sessions      *sessions.Service
	notifications *notifications.Service
	events        *events.Service
	announcements *announcements.Service
	jobs          *jobs.Service
	payments      *payments.Service
	store         *storage.MemoryStore
	mail          *mailer.LogMailer
	purchases     atomic.Int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	m := mr.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	sessions.SetBlacklistClient(rc)
	t.Cleanup(func() {
		sessions.SetBlacklistClient(nil)
		_ = rc.Close()
	})

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = time.Hour
	cfg.App.Name = "Alumni Network"
	cfg.App.FrontendURL = "http://localhost:3000"

	e := &env{t: t, cfg: cfg, redis: m}
	gateway := httptest.NewServer(http.HandlerFunc(e.purchase))
	t.Cleanup(gateway.Close)
	cfg.Hormuud = config.MobileMoneyConfig{BaseURL: gateway.URL, MerchantUID: "M1", APIUserID: "U1", APIKey: "K1", WebhookSecret: testWebhookKey}
	hormuud := mobilemoney.New(models.MethodHormuud, cfg.Hormuud)

	e.users = users.NewService(users.NewMemoryUserRepository()).WithHashCost(bcrypt.MinCost)
	e.sessions = sessions.NewService(sessions.NewMemoryRepository())
	e.notifications = notifications.NewService(notifications.NewMemoryRepository())
	e.notifications.SetRecipientSource(e.users)
	e.events = events.NewService(events.NewMemoryRepository(), e.notifications)
	e.announcements = announcements.NewService(announcements.NewMemoryRepository(), e.notifications)
	e.jobs = jobs.NewService(jobs.NewMemoryRepository(), e.notifications)
	e.store = storage.NewMemoryStore("http://files.test")
	e.mail = mailer.NewLogMailer()
	e.payments = payments.NewService(payments.Deps{
		Payments:  payments.NewMemoryPaymentRepository(),
		Campaigns: payments.NewMemoryCampaignRepository(),
		Providers: []payments.Provider{hormuud},
		Webhooks:  []payments.WebhookVerifier{hormuud},
		Store:     e.store,
		Mailer:    e.mail,
		Notifier:  e.notifications,
		Users:     e.users,
	}, payments.Settings{OrgName: cfg.App.Name, DefaultCurrency: "usd", MinAmount: 100})

	ver := tokens.NewVerifier(testSecret)
	g := Guards{Auth: middleware.AuthMiddleware(ver), Optional: middleware.OptionalAuth(ver)}
	r := gin.New()
	Mount(r.Group("/api"), g,
		NewAuthHandler(cfg, e.users, e.sessions, e.mail),
		NewUsersHandler(e.users, e.sessions, e.store),
		NewEventsHandler(e.events, e.store),
		NewAnnouncementsHandler(e.announcements),
		NewJobsHandler(e.jobs),
		NewNotificationsHandler(e.notifications),
		NewPaymentsHandler(e.payments, middleware.Idempotency(rc, middleware.IdempotencyConfig{})),
		NewDashboardHandler(e.users, e.events, e.jobs, e.announcements, e.payments),
	)
	e.router = r
	return e
}

// purchase is a fake mobile money gateway: it declines declinedAccount and
// leaves everything else pending.
func (e *env) purchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceParams struct {
			PayerInfo struct {
				AccountNo string `json:"accountNo"`
			} `json:"payerInfo"`
		} `json:"serviceParams"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	n := e.purchases.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if req.ServiceParams.PayerInfo.AccountNo == declinedAccount {
		_, _ = io.WriteString(w, `{"responseCode":"5310","responseMsg":"insufficient balance","params":{"state":"DECLINED"}}`)
		return
	}
	fmt.Fprintf(w, `{"responseCode":"2001","responseMsg":"RCS_SUCCESS","params":{"state":"PENDING","transactionId":"TX-%d"}}`, n)
}

// member creates a user with role and returns it with a valid access token.
func (e *env) member(role string) (*models.User, string) {
	e.t.Helper()
	n := userSeq.Add(1)
	u, err := e.users.Create(context.Background(), users.RegisterInput{
		FirstName:      "Test",
		LastName:       fmt.Sprintf("Member%d", n),
		Email:          fmt.Sprintf("member%d@example.com", n),
		Password:       "password123",
		GraduationYear: 2015,
		Major:          "Economics",
	}, role)
	require.NoError(e.t, err)
	tok, err := tokens.GenerateAccessToken(e.cfg, u, 15*time.Minute)
	require.NoError(e.t, err)
	return u, tok
}

// do sends a request. body is sent as-is when it is a string and JSON encoded
// otherwise. headers are key/value pairs.
func (e *env) do(method, path string, body interface{}, token string, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func ptr[T any](v T) *T { return &v }
