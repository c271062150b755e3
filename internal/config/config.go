package config

import (
	"errors"
	"time"

	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingMongoURI is returned when MONGODB_URI is not set.
var ErrMissingMongoURI = errors.New("environment variable MONGODB_URI is required")

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OIDC      OIDCConfig
	Stripe    StripeConfig
	Hormuud   MobileMoneyConfig
	Zaad      MobileMoneyConfig
	MinIO     MinIOConfig
	Mail      MailConfig
	App       AppConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// OIDCConfig enables federated login. Empty Issuer disables it.
type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// MobileMoneyConfig describes one WaafiPay-style mobile money rail.
type MobileMoneyConfig struct {
	BaseURL       string
	MerchantUID   string
	APIUserID     string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// Enabled reports whether enough credentials are present to call the provider.
func (m MobileMoneyConfig) Enabled() bool {
	return m.BaseURL != "" && m.MerchantUID != "" && m.APIKey != ""
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type MailConfig struct {
	SendgridAPIKey string
	FromName       string
	FromAddress    string
}

type AppConfig struct {
	Name            string
	FrontendURL     string
	DefaultCurrency string
	MinPaymentCents int64
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "alumni")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("HORMUUD_BASE_URL", "https://api.waafipay.net/asm")
	viper.SetDefault("ZAAD_BASE_URL", "https://api.waafipay.net/asm")
	viper.SetDefault("MOBILE_MONEY_TIMEOUT", 30)
	viper.SetDefault("MINIO_BUCKET", "alumni")
	viper.SetDefault("MAIL_FROM_NAME", "Alumni Network")
	viper.SetDefault("MAIL_FROM_ADDRESS", "no-reply@alumni.local")
	viper.SetDefault("APP_NAME", "Alumni Network")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("DEFAULT_CURRENCY", "usd")
	viper.SetDefault("MIN_PAYMENT_CENTS", 100)

	mmTimeout := time.Duration(viper.GetInt("MOBILE_MONEY_TIMEOUT")) * time.Second

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:          viper.GetString("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("OIDC_ISSUER"),
			ClientID: viper.GetString("OIDC_CLIENT_ID"),
		},
		Stripe: StripeConfig{
			SecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Hormuud: MobileMoneyConfig{
			BaseURL:       viper.GetString("HORMUUD_BASE_URL"),
			MerchantUID:   viper.GetString("HORMUUD_MERCHANT_UID"),
			APIUserID:     viper.GetString("HORMUUD_API_USER_ID"),
			APIKey:        viper.GetString("HORMUUD_API_KEY"),
			WebhookSecret: viper.GetString("HORMUUD_WEBHOOK_SECRET"),
			Timeout:       mmTimeout,
		},
		Zaad: MobileMoneyConfig{
			BaseURL:       viper.GetString("ZAAD_BASE_URL"),
			MerchantUID:   viper.GetString("ZAAD_MERCHANT_UID"),
			APIUserID:     viper.GetString("ZAAD_API_USER_ID"),
			APIKey:        viper.GetString("ZAAD_API_KEY"),
			WebhookSecret: viper.GetString("ZAAD_WEBHOOK_SECRET"),
			Timeout:       mmTimeout,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		Mail: MailConfig{
			SendgridAPIKey: viper.GetString("SENDGRID_API_KEY"),
			FromName:       viper.GetString("MAIL_FROM_NAME"),
			FromAddress:    viper.GetString("MAIL_FROM_ADDRESS"),
		},
		App: AppConfig{
			Name:            viper.GetString("APP_NAME"),
			FrontendURL:     viper.GetString("FRONTEND_URL"),
			DefaultCurrency: viper.GetString("DEFAULT_CURRENCY"),
			MinPaymentCents: viper.GetInt64("MIN_PAYMENT_CENTS"),
		},
	}

	if cfg.MongoDB.URI == "" {
		return nil, ErrMissingMongoURI
	}
	if len(cfg.JWT.Secret) < 32 {
		logger.Warnf("JWT_SECRET is unset or shorter than 32 bytes; set a secure value in production")
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with SERVER_ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
