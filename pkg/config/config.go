package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Payments     PaymentsConfig
	Pi           PiConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = "file:gigmarket.db?cache=shared"
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIGMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"GIGMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIGMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIGMARKET_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"GIGMARKET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GIGMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GIGMARKET_DB_DSN"`
	Driver string `envconfig:"GIGMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GIGMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"GIGMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GIGMARKET_DB_USER"`
	LegacyPassword string `envconfig:"GIGMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"GIGMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"GIGMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIGMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIGMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"GIGMARKET_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIGMARKET_REDIS_URL"`
	Address      string        `envconfig:"GIGMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"GIGMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIGMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIGMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIGMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIGMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GIGMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GIGMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GIGMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"GIGMARKET_AUTO_MIGRATE" default:"false"`
	AllowSelfPurchase bool `envconfig:"GIGMARKET_ALLOW_SELF_PURCHASE" default:"false"`
	UseSQLite         bool `envconfig:"GIGMARKET_USE_SQLITE" default:"false"`
}

type PaymentsConfig struct {
	Provider               string        `envconfig:"GIGMARKET_PAYMENTS_PROVIDER" default:"pi"`
	CallbackIdempotencyTTL time.Duration `envconfig:"GIGMARKET_PAYMENTS_CALLBACK_TTL" default:"24h"`
}

func (p PaymentsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Provider)) {
	case PaymentProviderPi, PaymentProviderSquare:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q", EnvPaymentsProvider, PaymentProviderPi, PaymentProviderSquare)
}

// ProviderName returns the normalized provider key.
func (p PaymentsConfig) ProviderName() string {
	return strings.ToLower(strings.TrimSpace(p.Provider))
}

type PiConfig struct {
	APIURL  string        `envconfig:"GIGMARKET_PI_API_URL" default:"https://api.minepi.com/v2"`
	APIKey  string        `envconfig:"GIGMARKET_PI_API_KEY"`
	Sandbox bool          `envconfig:"GIGMARKET_PI_SANDBOX" default:"true"`
	Timeout time.Duration `envconfig:"GIGMARKET_PI_TIMEOUT" default:"10s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"GIGMARKET_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"GIGMARKET_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"GIGMARKET_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID string `envconfig:"GIGMARKET_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"GIGMARKET_PUBSUB_DOMAIN_TOPIC" default:"gigmarket-domain-events"`
	DomainSubscription string `envconfig:"GIGMARKET_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GIGMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GIGMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GIGMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"GIGMARKET_CRON_INTERVAL" default:"15m"`
	LockTTL           time.Duration `envconfig:"GIGMARKET_CRON_LOCK_TTL" default:"10m"`
	AbandonedOrderAge time.Duration `envconfig:"GIGMARKET_ABANDONED_ORDER_AGE" default:"72h"`

	NotificationRetention time.Duration `envconfig:"GIGMARKET_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"GIGMARKET_OUTBOX_RETENTION" default:"336h"`
}

// RateLimitConfig throttles the payment callback surface per IP and per user.
type RateLimitConfig struct {
	CallbackWindow    time.Duration `envconfig:"GIGMARKET_CALLBACK_RATE_WINDOW" default:"1m"`
	CallbackIPLimit   int           `envconfig:"GIGMARKET_CALLBACK_RATE_IP_LIMIT" default:"120"`
	CallbackUserLimit int           `envconfig:"GIGMARKET_CALLBACK_RATE_USER_LIMIT" default:"30"`
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
