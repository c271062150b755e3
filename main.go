package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alumni-network/alumni-backend-system/handlers"
	"github.com/alumni-network/alumni-backend-system/internal/announcements"
	"github.com/alumni-network/alumni-backend-system/internal/config"
	"github.com/alumni-network/alumni-backend-system/internal/database"
	"github.com/alumni-network/alumni-backend-system/internal/events"
	"github.com/alumni-network/alumni-backend-system/internal/jobs"
	"github.com/alumni-network/alumni-backend-system/internal/mailer"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/internal/notifications"
	"github.com/alumni-network/alumni-backend-system/internal/oidc"
	"github.com/alumni-network/alumni-backend-system/internal/payments"
	"github.com/alumni-network/alumni-backend-system/internal/payments/mobilemoney"
	"github.com/alumni-network/alumni-backend-system/internal/payments/stripepay"
	"github.com/alumni-network/alumni-backend-system/internal/sessions"
	"github.com/alumni-network/alumni-backend-system/internal/storage"
	"github.com/alumni-network/alumni-backend-system/internal/tokens"
	"github.com/alumni-network/alumni-backend-system/internal/users"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/alumni-network/alumni-backend-system/pkg/metrics"
	"github.com/alumni-network/alumni-backend-system/pkg/middleware"
	"github.com/alumni-network/alumni-backend-system/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

const mongoAttempts = 5

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: env=%s redis=%v oidc=%v minio=%v stripe=%v",
		cfg.Server.Environment, cfg.Redis.Host != "", cfg.OIDC.Issuer != "", cfg.MinIO.Endpoint != "", cfg.Stripe.SecretKey != "")
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	validation.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: sessions fall back to Mongo, rate limiting to memory,
	// idempotency and the token blacklist switch off.
	rdb := connectRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		sessions.SetBlacklistClient(rdb)
	}

	client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoAttempts)
	if err != nil {
		logger.Fatalf("could not connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	db := client.Database(cfg.MongoDB.Database)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		logger.Warnf("ensuring indexes: %v", err)
	}

	usersSvc := users.NewService(users.NewMongoUserRepository(db.Collection(database.UsersCollection)))
	var sessionsSvc *sessions.Service
	if rdb != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(rdb, "session:"))
		logger.Infof("using Redis for session storage")
	} else {
		sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection(database.SessionsCollection)))
	}

	notificationsSvc := notifications.NewService(notifications.NewMongoRepository(db.Collection(database.NotificationsCollection)))
	notificationsSvc.SetRecipientSource(usersSvc)
	eventsSvc := events.NewService(events.NewMongoRepository(db.Collection(database.EventsCollection)), notificationsSvc)
	announcementsSvc := announcements.NewService(announcements.NewMongoRepository(db.Collection(database.AnnouncementsCollection)), notificationsSvc)
	jobsSvc := jobs.NewService(jobs.NewMongoRepository(db.Collection(database.JobsCollection)), notificationsSvc)

	store := objectStore(ctx, cfg)
	mail := mailer.New(cfg.Mail, cfg.App.Name)
	deps := payments.Deps{
		Payments:  payments.NewMongoPaymentRepository(db.Collection(database.PaymentsCollection)),
		Campaigns: payments.NewMongoCampaignRepository(db.Collection(database.CampaignsCollection)),
		Store:     store,
		Mailer:    mail,
		Notifier:  notificationsSvc,
		Users:     usersSvc,
	}
	addProviders(&deps, cfg)
	paymentsSvc := payments.NewService(deps, payments.Settings{
		OrgName:         cfg.App.Name,
		DefaultCurrency: cfg.App.DefaultCurrency,
		MinAmount:       cfg.App.MinPaymentCents,
	})

	verifier := authVerifier(ctx, cfg, usersSvc)

	r := gin.New()
	r.Use(middleware.CORS(cfg.App.FrontendURL), gin.Logger(), gin.Recovery(), middleware.RequestMetrics())
	// per-user when authenticated, otherwise per-IP
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readiness(client, rdb))

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guards := handlers.Guards{
		Auth:     middleware.AuthMiddleware(verifier),
		Optional: middleware.OptionalAuth(verifier),
	}
	handlers.Mount(r.Group("/api"), guards,
		handlers.NewAuthHandler(cfg, usersSvc, sessionsSvc, mail),
		handlers.NewUsersHandler(usersSvc, sessionsSvc, store),
		handlers.NewEventsHandler(eventsSvc, store),
		handlers.NewAnnouncementsHandler(announcementsSvc),
		handlers.NewJobsHandler(jobsSvc),
		handlers.NewNotificationsHandler(notificationsSvc),
		handlers.NewPaymentsHandler(paymentsSvc, middleware.Idempotency(rdb, middleware.IdempotencyConfig{})),
		handlers.NewDashboardHandler(usersSvc, eventsSvc, jobsSvc, announcementsSvc, paymentsSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting alumni API on %s (payment methods: %v)", srv.Addr, paymentsSvc.Methods())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Host + ":" + cfg.Port, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Host, cfg.Port, err)
		_ = rdb.Close()
		return nil
	}
	logger.Infof("connected to Redis: %s:%s", cfg.Host, cfg.Port)
	return rdb
}

func objectStore(ctx context.Context, cfg *config.Config) storage.ObjectStore {
	if cfg.MinIO.Endpoint == "" {
		logger.Warnf("MINIO_ENDPOINT not set; uploads and receipts are kept in memory")
		return storage.NewMemoryStore(fmt.Sprintf("http://%s:%s/media", cfg.Server.Host, cfg.Server.Port))
	}
	s, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
	if err != nil {
		logger.Fatalf("object storage: %v", err)
	}
	return s
}

// addProviders enables every payment rail that has credentials.
func addProviders(d *payments.Deps, cfg *config.Config) {
	if cfg.Stripe.SecretKey != "" {
		p := stripepay.New(cfg.Stripe, nil)
		d.Providers = append(d.Providers, p)
		d.Webhooks = append(d.Webhooks, p)
	}
	for method, mm := range map[string]config.MobileMoneyConfig{
		models.MethodHormuud: cfg.Hormuud,
		models.MethodZaad:    cfg.Zaad,
	} {
		if !mm.Enabled() {
			continue
		}
		p := mobilemoney.New(method, mm)
		d.Providers = append(d.Providers, p)
		d.Webhooks = append(d.Webhooks, p)
	}
}

// authVerifier accepts locally issued access tokens and, when an issuer is
// configured, OIDC ID tokens mapped onto local accounts.
func authVerifier(ctx context.Context, cfg *config.Config, usersSvc *users.Service) middleware.Verifier {
	local := tokens.NewVerifier(cfg.JWT.Secret)
	if cfg.OIDC.Issuer == "" || cfg.OIDC.ClientID == "" {
		return local
	}
	upstream, err := oidc.NewVerifier(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID)
	if err != nil {
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
		return local
	}
	logger.Infof("accepting OIDC tokens from %s", cfg.OIDC.Issuer)
	return middleware.Chain{local, oidc.NewBridge(upstream, usersSvc)}
}

// readiness answers 200 only when MongoDB and, if configured, Redis respond.
func readiness(client *mongo.Client, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{"mongo": client.Ping(ctx, nil) == nil}
		if rdb != nil {
			deps["redis"] = rdb.Ping(ctx).Err() == nil
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		status, body := http.StatusOK, "ready"
		if !ready {
			status, body = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{"status": body, "deps": deps, "uptime": time.Since(startTime).String()})
	}
}
