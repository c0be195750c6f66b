package config

const EnvPrefix = "VENUEPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:venuepay.db?_foreign_keys=on"
)

const (
	EnvAppEnv     = "VENUEPAY_APP_ENV"
	EnvPort       = "VENUEPAY_APP_PORT"
	EnvLogLevel   = "VENUEPAY_LOG_LEVEL"
	EnvDBDSN      = "VENUEPAY_DB_DSN"
	EnvDBHost     = "VENUEPAY_DB_HOST"
	EnvDBUser     = "VENUEPAY_DB_USER"
	EnvDBName     = "VENUEPAY_DB_NAME"
	EnvRedisURL   = "VENUEPAY_REDIS_URL"
	EnvUseSQLite  = "VENUEPAY_USE_SQLITE"
	EnvAPIBaseURL = "VENUEPAY_API_BASE_URL"

	EnvStripeAPIKey         = "VENUEPAY_STRIPE_API_KEY"
	EnvStripeSecret         = "VENUEPAY_STRIPE_SECRET"
	EnvSecondExpiryHours    = "VENUEPAY_PAYMENTS_SECOND_EXPIRY_HOURS"
	EnvRemindersUpcomingDay = "VENUEPAY_REMINDERS_UPCOMING_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
