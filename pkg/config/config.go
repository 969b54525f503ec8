package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config is loaded once at process start and passed explicitly to every
// component. Nothing below the cmd packages reads the environment.
type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Stripe    StripeConfig
	Webhook   WebhookConfig
	Fees      FeesConfig
	Functions FunctionsConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Eventing  EventingConfig
	Reconcile ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	switch c.Stripe.Environment() {
	case "test", "live":
	default:
		return fmt.Errorf("%s must be test or live, got %q", EnvStripeEnv, c.Stripe.Env)
	}
	if c.Fees.DefaultRate.IsNegative() || c.Fees.DefaultRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0, 1], got %s", EnvFeesDefaultRate, c.Fees.DefaultRate)
	}
	if c.Reconcile.MaxRun <= 0 {
		return fmt.Errorf("%s must be positive", EnvReconcileMaxRun)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"HOMEBASE_APP_ENV" required:"true"`
	Port         string `envconfig:"HOMEBASE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"HOMEBASE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"HOMEBASE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"HOMEBASE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"HOMEBASE_AUTO_MIGRATE" default:"false"`
	CORSOrigins  string `envconfig:"HOMEBASE_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"HOMEBASE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"HOMEBASE_DB_DSN"`

	LegacyHost     string `envconfig:"HOMEBASE_DB_HOST"`
	LegacyPort     int    `envconfig:"HOMEBASE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HOMEBASE_DB_USER"`
	LegacyPassword string `envconfig:"HOMEBASE_DB_PASSWORD"`
	LegacyName     string `envconfig:"HOMEBASE_DB_NAME"`
	LegacySSLMode  string `envconfig:"HOMEBASE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOMEBASE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOMEBASE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOMEBASE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOMEBASE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional for the API; without it the webhook relies on the
// durable stripe_events guard alone.
type RedisConfig struct {
	URL          string        `envconfig:"HOMEBASE_REDIS_URL"`
	Address      string        `envconfig:"HOMEBASE_REDIS_ADDR"`
	Password     string        `envconfig:"HOMEBASE_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOMEBASE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOMEBASE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOMEBASE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOMEBASE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOMEBASE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOMEBASE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret string `envconfig:"HOMEBASE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"HOMEBASE_JWT_ISSUER" default:"homebase"`
}

type StripeConfig struct {
	APIKey  string `envconfig:"HOMEBASE_STRIPE_API_KEY"`
	Env     string `envconfig:"HOMEBASE_STRIPE_ENV" default:"test"`
	BaseURL string `envconfig:"HOMEBASE_STRIPE_API_BASE_URL" default:"https://api.stripe.com"`

	WebhookSecret        string        `envconfig:"HOMEBASE_STRIPE_WEBHOOK_SECRET"`
	ConnectWebhookSecret string        `envconfig:"HOMEBASE_STRIPE_CONNECT_WEBHOOK_SECRET"`
	SignatureTolerance   time.Duration `envconfig:"HOMEBASE_STRIPE_SIGNATURE_TOLERANCE" default:"5m"`

	HTTPTimeout        time.Duration `envconfig:"HOMEBASE_STRIPE_HTTP_TIMEOUT" default:"30s"`
	CheckoutSuccessURL string        `envconfig:"HOMEBASE_STRIPE_CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL  string        `envconfig:"HOMEBASE_STRIPE_CHECKOUT_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	MaxBodyBytes int64         `envconfig:"HOMEBASE_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
	InFlightTTL  time.Duration `envconfig:"HOMEBASE_WEBHOOK_IN_FLIGHT_TTL" default:"2m"`
	// Events still unprocessed this long after arrival are reported by the
	// cron worker.
	StalledAfter    time.Duration `envconfig:"HOMEBASE_WEBHOOK_STALLED_AFTER" default:"1h"`
	StalledSchedule string        `envconfig:"HOMEBASE_WEBHOOK_STALLED_SCHEDULE" default:"*/15 * * * *"`
}

type FeesConfig struct {
	DefaultRate decimal.Decimal `envconfig:"HOMEBASE_FEES_DEFAULT_RATE" default:"0.05"`
}

type FunctionsConfig struct {
	BaseURL      string        `envconfig:"HOMEBASE_FUNCTIONS_BASE_URL"`
	ServiceToken string        `envconfig:"HOMEBASE_FUNCTIONS_SERVICE_TOKEN"`
	Timeout      time.Duration `envconfig:"HOMEBASE_FUNCTIONS_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HOMEBASE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HOMEBASE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HOMEBASE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"HOMEBASE_PUBSUB_NOTIFICATION_TOPIC" default:"hb-notification-events"`
	NotificationSubscription string `envconfig:"HOMEBASE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"hb-notification-worker"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"HOMEBASE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"HOMEBASE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"HOMEBASE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int    `envconfig:"HOMEBASE_OUTBOX_RETENTION_DAYS" default:"30"`
	RetentionCron  string `envconfig:"HOMEBASE_OUTBOX_RETENTION_SCHEDULE" default:"30 4 * * *"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"HOMEBASE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type ReconcileConfig struct {
	PaymentsDaysBack     int           `envconfig:"HOMEBASE_RECONCILE_PAYMENTS_DAYS_BACK" default:"90"`
	TransactionsDaysBack int           `envconfig:"HOMEBASE_RECONCILE_TRANSACTIONS_DAYS_BACK" default:"7"`
	BalanceDaysBack      int           `envconfig:"HOMEBASE_RECONCILE_BALANCE_DAYS_BACK" default:"30"`
	MaxRun               time.Duration `envconfig:"HOMEBASE_RECONCILE_MAX_RUN" default:"10m"`
	PaymentsSchedule     string        `envconfig:"HOMEBASE_RECONCILE_PAYMENTS_SCHEDULE" default:"0 3 * * *"`
	TransactionsSchedule string        `envconfig:"HOMEBASE_RECONCILE_TRANSACTIONS_SCHEDULE" default:"*/30 * * * *"`
	BalanceSchedule      string        `envconfig:"HOMEBASE_RECONCILE_BALANCE_SCHEDULE" default:"15 * * * *"`
	LockTTL              time.Duration `envconfig:"HOMEBASE_RECONCILE_LOCK_TTL" default:"15m"`
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
