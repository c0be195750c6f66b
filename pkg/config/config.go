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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Frontend     FrontendConfig
	Payments     PaymentsConfig
	Reminders    RemindersConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = defaultSQLiteDSN
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Frontend.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VENUEPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"VENUEPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENUEPAY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VENUEPAY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"VENUEPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"VENUEPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENUEPAY_DB_DSN"`
	Driver string `envconfig:"VENUEPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENUEPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"VENUEPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENUEPAY_DB_USER"`
	LegacyPassword string `envconfig:"VENUEPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENUEPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENUEPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENUEPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENUEPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENUEPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENUEPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"VENUEPAY_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"VENUEPAY_REDIS_URL"`
	Address      string        `envconfig:"VENUEPAY_REDIS_ADDR"`
	Password     string        `envconfig:"VENUEPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENUEPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENUEPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENUEPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENUEPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENUEPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENUEPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"VENUEPAY_REDIS_KEY_PREFIX" default:"venuepay"`
}

// Enabled reports whether a redis endpoint is configured. Without one the
// binaries fall back to in-process locks and skip webhook and request
// idempotency records.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VENUEPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VENUEPAY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"VENUEPAY_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"VENUEPAY_STRIPE_API_KEY"`
	Secret   string `envconfig:"VENUEPAY_STRIPE_SECRET"`
	Env      string `envconfig:"VENUEPAY_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"VENUEPAY_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"VENUEPAY_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"VENUEPAY_SENDGRID_FROM_EMAIL" default:"bookings@venuepay.local"`
	FromName    string `envconfig:"VENUEPAY_SENDGRID_FROM_NAME" default:"Reservations"`
	SandboxMode bool   `envconfig:"VENUEPAY_SENDGRID_SANDBOX" default:"false"`
	// TemplatesDir overrides the compiled-in email templates. Edits there are
	// picked up on SIGHUP.
	TemplatesDir string `envconfig:"VENUEPAY_EMAIL_TEMPLATES_DIR"`
}

// FrontendConfig carries the public URLs embedded in emails and gateway redirects.
type FrontendConfig struct {
	APIBaseURL        string `envconfig:"VENUEPAY_API_BASE_URL" required:"true"`
	DashboardURL      string `envconfig:"VENUEPAY_DASHBOARD_URL"`
	CustomerPortalURL string `envconfig:"VENUEPAY_CUSTOMER_PORTAL_URL"`
}

func (f FrontendConfig) validate() error {
	if _, err := url.ParseRequestURI(f.APIBaseURL); err != nil {
		return fmt.Errorf("%s must be an absolute url: %w", EnvAPIBaseURL, err)
	}
	return nil
}

// APIURL joins path onto the public API base URL.
func (f FrontendConfig) APIURL(path string) string {
	return joinURL(f.APIBaseURL, path)
}

// PortalURL joins path onto the customer portal URL. It returns "" when no
// portal is configured.
func (f FrontendConfig) PortalURL(path string) string {
	if f.CustomerPortalURL == "" {
		return ""
	}
	return joinURL(f.CustomerPortalURL, path)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

type PaymentsConfig struct {
	PrimaryLinkExpiryHours int `envconfig:"VENUEPAY_PAYMENTS_PRIMARY_EXPIRY_HOURS" default:"72"`
	SecondLinkExpiryHours  int `envconfig:"VENUEPAY_PAYMENTS_SECOND_EXPIRY_HOURS" default:"48"`
	SplitDepositPercent    int `envconfig:"VENUEPAY_PAYMENTS_SPLIT_DEPOSIT_PERCENT" default:"50"`
}

// PrimaryLinkTTL returns how long a freshly created primary link stays payable.
func (p PaymentsConfig) PrimaryLinkTTL() time.Duration {
	if p.PrimaryLinkExpiryHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(p.PrimaryLinkExpiryHours) * time.Hour
}

type RemindersConfig struct {
	UpcomingThresholdDays int           `envconfig:"VENUEPAY_REMINDERS_UPCOMING_DAYS" default:"7"`
	DedupWindow           time.Duration `envconfig:"VENUEPAY_REMINDERS_DEDUP_WINDOW" default:"24h"`
	CronInterval          time.Duration `envconfig:"VENUEPAY_REMINDERS_CRON_INTERVAL" default:"1h"`
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
