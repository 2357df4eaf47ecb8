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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Governance   GovernanceConfig
	Webhooks     WebhooksConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Governance.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KOLO_APP_ENV" required:"true"`
	Port         string `envconfig:"KOLO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KOLO_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"KOLO_LOG_FORMAT"`
	LogWarnStack bool   `envconfig:"KOLO_LOG_WARN_STACK" default:"false"`

	LogFile           string `envconfig:"KOLO_LOG_FILE"`
	LogFileMaxSizeMB  int    `envconfig:"KOLO_LOG_FILE_MAX_SIZE_MB" default:"100"`
	LogFileMaxBackups int    `envconfig:"KOLO_LOG_FILE_MAX_BACKUPS" default:"5"`
	LogFileMaxAgeDays int    `envconfig:"KOLO_LOG_FILE_MAX_AGE_DAYS" default:"14"`

	CORSOrigins []string `envconfig:"KOLO_CORS_ALLOWED_ORIGINS"`

	ReadHeaderTimeout time.Duration `envconfig:"KOLO_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `envconfig:"KOLO_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KOLO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KOLO_DB_DSN"`
	Driver string `envconfig:"KOLO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KOLO_DB_HOST"`
	LegacyPort     int    `envconfig:"KOLO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KOLO_DB_USER"`
	LegacyPassword string `envconfig:"KOLO_DB_PASSWORD"`
	LegacyName     string `envconfig:"KOLO_DB_NAME"`
	LegacySSLMode  string `envconfig:"KOLO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KOLO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KOLO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KOLO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KOLO_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"KOLO_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KOLO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KOLO_REDIS_ADDR"`
	Password     string        `envconfig:"KOLO_REDIS_PASSWORD"`
	DB           int           `envconfig:"KOLO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KOLO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KOLO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KOLO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KOLO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KOLO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for access tokens minted by the
// hosted auth provider.
type JWTConfig struct {
	Secret            string `envconfig:"KOLO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KOLO_JWT_ISSUER" required:"true"`
	Audience          string `envconfig:"KOLO_JWT_AUDIENCE" default:"authenticated"`
	ExpirationMinutes int    `envconfig:"KOLO_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	Window         time.Duration `envconfig:"KOLO_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"KOLO_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"300"`
	MoneyUserLimit int           `envconfig:"KOLO_RATE_LIMIT_MONEY_USER_LIMIT" default:"20"`
	MoneyIPLimit   int           `envconfig:"KOLO_RATE_LIMIT_MONEY_IP_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KOLO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KOLO_AUTO_MIGRATE" default:"false"`
}

// GovernanceConfig tunes the withdrawal and refund voting rules.
type GovernanceConfig struct {
	RefundParticipationPct int           `envconfig:"KOLO_REFUND_PARTICIPATION_PCT" default:"70"`
	RefundApprovalPct      int           `envconfig:"KOLO_REFUND_APPROVAL_PCT" default:"60"`
	RefundVotingWindow     time.Duration `envconfig:"KOLO_REFUND_VOTING_WINDOW" default:"168h"`
	WithdrawalVotingWindow time.Duration `envconfig:"KOLO_WITHDRAWAL_VOTING_WINDOW" default:"72h"`
	VoteRetryAttempts      int           `envconfig:"KOLO_VOTE_RETRY_ATTEMPTS" default:"3"`
}

func (g GovernanceConfig) validate() error {
	if g.RefundParticipationPct < 1 || g.RefundParticipationPct > 100 {
		return fmt.Errorf("%s must be between 1 and 100", EnvRefundParticipationPct)
	}
	if g.RefundApprovalPct < 1 || g.RefundApprovalPct > 100 {
		return fmt.Errorf("%s must be between 1 and 100", EnvRefundApprovalPct)
	}
	return nil
}

type WebhooksConfig struct {
	FlutterwaveSecretHash string        `envconfig:"KOLO_FLUTTERWAVE_SECRET_HASH"`
	MonnifySecretKey      string        `envconfig:"KOLO_MONNIFY_SECRET_KEY"`
	IdempotencyTTL        time.Duration `envconfig:"KOLO_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// SignatureVerificationEnabled reports whether any provider secret is configured.
func (w WebhooksConfig) SignatureVerificationEnabled() bool {
	return strings.TrimSpace(w.FlutterwaveSecretHash) != "" || strings.TrimSpace(w.MonnifySecretKey) != ""
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"KOLO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"KOLO_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"KOLO_PUBSUB_DOMAIN_TOPIC" default:"kolo-domain-events"`
	DomainSubscription string `envconfig:"KOLO_PUBSUB_DOMAIN_SUBSCRIPTION" default:"kolo-notifications"`

	AutoCreate     bool          `envconfig:"KOLO_PUBSUB_AUTO_CREATE"`
	AckDeadline    time.Duration `envconfig:"KOLO_PUBSUB_ACK_DEADLINE" default:"30s"`
	MaxOutstanding int           `envconfig:"KOLO_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KOLO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KOLO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KOLO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"KOLO_CRON_INTERVAL" default:"15m"`
	LockTTL    time.Duration `envconfig:"KOLO_CRON_LOCK_TTL" default:"30m"`
	JobTimeout time.Duration `envconfig:"KOLO_CRON_JOB_TIMEOUT" default:"5m"`

	OutboxRetention       time.Duration `envconfig:"KOLO_CRON_OUTBOX_RETENTION" default:"336h"`
	NotificationRetention time.Duration `envconfig:"KOLO_CRON_NOTIFICATION_RETENTION" default:"720h"`

	// ReconcileWorkers bounds how many groups the sweep syncs at once.
	ReconcileWorkers int `envconfig:"KOLO_RECONCILE_WORKERS" default:"4"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
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
