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
	Admin        AdminConfig
	Password     PasswordConfig
	HTTP         HTTPConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Coupons      CouponConfig
	Payments     PaymentsConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Provider     ProviderConfig
	Dispatch     DispatchConfig
	Reconcile    ReconcileConfig
	Cron         CronConfig
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
	Env          string `envconfig:"SMM_APP_ENV" required:"true"`
	Port         string `envconfig:"SMM_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SMM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SMM_LOG_WARN_STACK" default:"false"`
	OrderPrefix  string `envconfig:"SMM_ORDER_PREFIX" default:"SMM"`
	Currency     string `envconfig:"SMM_CURRENCY" default:"usd"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SMM_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SMM_DB_DSN"`
	Driver string `envconfig:"SMM_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SMM_DB_HOST"`
	Port     int    `envconfig:"SMM_DB_PORT" default:"5432"`
	User     string `envconfig:"SMM_DB_USER"`
	Password string `envconfig:"SMM_DB_PASSWORD"`
	Name     string `envconfig:"SMM_DB_NAME"`
	SSLMode  string `envconfig:"SMM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SMM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SMM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SMM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SMM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SMM_REDIS_URL"`
	Address      string        `envconfig:"SMM_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"SMM_REDIS_PASSWORD"`
	DB           int           `envconfig:"SMM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SMM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SMM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SMM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SMM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SMM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig guards the admin surface; tokens are minted outside this service.
type JWTConfig struct {
	Secret string `envconfig:"SMM_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SMM_JWT_ISSUER" default:"smm-storefront"`
}

// AdminConfig holds the single operator account allowed to mint admin
// tokens through the login endpoint. An empty hash disables login.
type AdminConfig struct {
	Email        string        `envconfig:"SMM_ADMIN_EMAIL"`
	PasswordHash string        `envconfig:"SMM_ADMIN_PASSWORD_HASH"`
	TokenTTL     time.Duration `envconfig:"SMM_ADMIN_TOKEN_TTL" default:"12h"`
	LoginWindow  time.Duration `envconfig:"SMM_ADMIN_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit int           `envconfig:"SMM_ADMIN_LOGIN_IP_LIMIT" default:"10"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SMM_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SMM_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SMM_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SMM_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SMM_ARGON_KEY_LEN" default:"32"`
}

type HTTPConfig struct {
	CORSOrigins  []string      `envconfig:"SMM_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout  time.Duration `envconfig:"SMM_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SMM_HTTP_WRITE_TIMEOUT" default:"30s"`
}

// RateLimitConfig throttles the anonymous checkout surface.
type RateLimitConfig struct {
	CheckoutWindow     time.Duration `envconfig:"SMM_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit    int           `envconfig:"SMM_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"30"`
	CheckoutEmailLimit int           `envconfig:"SMM_RATE_LIMIT_CHECKOUT_EMAIL_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SMM_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SMM_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SMM_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookReplayTTL     time.Duration `envconfig:"SMM_WEBHOOK_REPLAY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SMM_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SMM_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"SMM_PUBSUB_ORDERS_TOPIC" default:"smm-order-events"`
	OrdersSubscription    string `envconfig:"SMM_PUBSUB_ORDERS_SUBSCRIPTION" default:"smm-order-dispatch"`
	// AnalyticsSubscription is a second subscription on the orders topic.
	// Empty disables the analytics worker.
	AnalyticsSubscription string `envconfig:"SMM_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

// BigQueryConfig locates the order event warehouse. An empty dataset
// disables the analytics worker and the admin analytics route.
type BigQueryConfig struct {
	Dataset          string `envconfig:"SMM_BIGQUERY_DATASET"`
	OrderEventsTable string `envconfig:"SMM_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SMM_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SMM_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SMM_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CouponConfig bounds how long a replica trusts its coupon bloom snapshot
// for codes it has never seen.
type CouponConfig struct {
	IndexMaxAge time.Duration `envconfig:"SMM_COUPON_INDEX_MAX_AGE" default:"1m"`
}

// PaymentsConfig picks the live backend when more than one is configured.
// Timeout bounds every gateway call, including the HTTP round trip.
type PaymentsConfig struct {
	Provider string        `envconfig:"SMM_PAYMENTS_PROVIDER" default:"stripe"`
	Timeout  time.Duration `envconfig:"SMM_PAYMENTS_TIMEOUT" default:"20s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SMM_STRIPE_API_KEY"`
	Secret string `envconfig:"SMM_STRIPE_SECRET"`
	Env    string `envconfig:"SMM_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken   string `envconfig:"SMM_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"SMM_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"SMM_SQUARE_WEBHOOK_URL"`
	LocationID    string `envconfig:"SMM_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"SMM_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type ProviderConfig struct {
	Timeout time.Duration `envconfig:"SMM_PROVIDER_TIMEOUT" default:"15s"`
}

type DispatchConfig struct {
	LockTTL time.Duration `envconfig:"SMM_DISPATCH_LOCK_TTL" default:"2m"`
}

type ReconcileConfig struct {
	Interval    time.Duration `envconfig:"SMM_RECONCILE_INTERVAL" default:"5m"`
	BatchSize   int           `envconfig:"SMM_RECONCILE_BATCH_SIZE" default:"100"`
	Concurrency int           `envconfig:"SMM_RECONCILE_CONCURRENCY" default:"4"`
	LockTTL     time.Duration `envconfig:"SMM_RECONCILE_LOCK_TTL" default:"4m"`
}

// CronConfig drives the maintenance jobs that share the cron worker with
// reconciliation.
type CronConfig struct {
	MaintenanceInterval time.Duration `envconfig:"SMM_CRON_MAINTENANCE_INTERVAL" default:"1h"`
	PendingOrderTTL     time.Duration `envconfig:"SMM_CRON_PENDING_ORDER_TTL" default:"72h"`
	OutboxRetention     time.Duration `envconfig:"SMM_CRON_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DriverSQLite) {
		db.DSN = "file::memory:?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range fallbackDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
