package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Razorpay   RazorpayConfig
	Shiprocket ShiprocketConfig
	AWS        AWSConfig
	Storage    StorageConfig
	Mail       MailConfig
	Returns    ReturnsConfig
	Outbox     OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRISIKHA_APP_ENV" required:"true"`
	Port         string `envconfig:"TRISIKHA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRISIKHA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRISIKHA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TRISIKHA_DB_DSN"`
	Driver string `envconfig:"TRISIKHA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRISIKHA_DB_HOST"`
	LegacyPort     int    `envconfig:"TRISIKHA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRISIKHA_DB_USER"`
	LegacyPassword string `envconfig:"TRISIKHA_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRISIKHA_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRISIKHA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRISIKHA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRISIKHA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRISIKHA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRISIKHA_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"TRISIKHA_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRISIKHA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRISIKHA_REDIS_ADDR"`
	Password     string        `envconfig:"TRISIKHA_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRISIKHA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRISIKHA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRISIKHA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRISIKHA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRISIKHA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRISIKHA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig verifies admin bearer tokens minted by the ops tooling.
type AuthConfig struct {
	JWTSecret            string        `envconfig:"TRISIKHA_AUTH_JWT_SECRET" required:"true"`
	JWTIssuer            string        `envconfig:"TRISIKHA_AUTH_JWT_ISSUER" default:"trisikha-auth"`
	JWTExpirationMinutes int           `envconfig:"TRISIKHA_AUTH_JWT_EXPIRATION_MINUTES" default:"60"`
	OTPTTL               time.Duration `envconfig:"TRISIKHA_AUTH_OTP_TTL" default:"10m"`
}

type RateLimitConfig struct {
	Window        time.Duration `envconfig:"TRISIKHA_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit       int           `envconfig:"TRISIKHA_RATE_LIMIT_IP_LIMIT" default:"60"`
	CheckoutLimit int           `envconfig:"TRISIKHA_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
	OTPLimit      int           `envconfig:"TRISIKHA_RATE_LIMIT_OTP_LIMIT" default:"3"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"TRISIKHA_RAZORPAY_KEY_ID" required:"true"`
	KeySecret     string `envconfig:"TRISIKHA_RAZORPAY_KEY_SECRET" required:"true"`
	WebhookSecret string `envconfig:"TRISIKHA_RAZORPAY_WEBHOOK_SECRET" required:"true"`
}

type ShiprocketConfig struct {
	BaseURL        string        `envconfig:"TRISIKHA_SHIPROCKET_BASE_URL" default:"https://apiv2.shiprocket.in"`
	Email          string        `envconfig:"TRISIKHA_SHIPROCKET_EMAIL" required:"true"`
	Password       string        `envconfig:"TRISIKHA_SHIPROCKET_PASSWORD" required:"true"`
	WebhookSecret  string        `envconfig:"TRISIKHA_SHIPROCKET_WEBHOOK_SECRET" required:"true"`
	PickupLocation string        `envconfig:"TRISIKHA_SHIPROCKET_PICKUP_LOCATION" default:"Primary"`
	PickupPincode  string        `envconfig:"TRISIKHA_SHIPROCKET_PICKUP_PINCODE" required:"true"`
	RequestTimeout time.Duration `envconfig:"TRISIKHA_SHIPROCKET_REQUEST_TIMEOUT" default:"15s"`
	RatePerSecond  float64       `envconfig:"TRISIKHA_SHIPROCKET_RATE_PER_SECOND" default:"5"`
}

type AWSConfig struct {
	Region          string `envconfig:"TRISIKHA_AWS_REGION" default:"ap-south-1"`
	AccessKeyID     string `envconfig:"TRISIKHA_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"TRISIKHA_AWS_SECRET_ACCESS_KEY"`
	Endpoint        string `envconfig:"TRISIKHA_AWS_ENDPOINT"`
}

type StorageConfig struct {
	InspectionBucket  string        `envconfig:"TRISIKHA_STORAGE_INSPECTION_BUCKET" required:"true"`
	SignedURLExpiry   time.Duration `envconfig:"TRISIKHA_STORAGE_SIGNED_URL_EXPIRY" default:"15m"`
	MaxPhotoSizeBytes int64         `envconfig:"TRISIKHA_STORAGE_MAX_PHOTO_SIZE_BYTES" default:"5242880"`
	MaxPhotoCount     int           `envconfig:"TRISIKHA_STORAGE_MAX_PHOTO_COUNT" default:"6"`
}

type MailConfig struct {
	APIBaseURL string `envconfig:"TRISIKHA_MAIL_API_BASE_URL"`
	APIKey     string `envconfig:"TRISIKHA_MAIL_API_KEY"`
	FromEmail  string `envconfig:"TRISIKHA_MAIL_FROM_EMAIL" default:"orders@trisikha.in"`
	FromName   string `envconfig:"TRISIKHA_MAIL_FROM_NAME" default:"Trisikha Organics"`
}

type ReturnsConfig struct {
	WindowDays int `envconfig:"TRISIKHA_RETURNS_WINDOW_DAYS" default:"7"`
}

type OutboxConfig struct {
	FlushBatchSize int           `envconfig:"TRISIKHA_OUTBOX_FLUSH_BATCH_SIZE" default:"20"`
	MaxAttempts    int           `envconfig:"TRISIKHA_OUTBOX_MAX_ATTEMPTS" default:"5"`
	RetryBase      time.Duration `envconfig:"TRISIKHA_OUTBOX_RETRY_BASE" default:"200ms"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
