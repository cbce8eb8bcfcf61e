package config

const EnvPrefix = "GIGMARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	PaymentProviderPi     = "pi"
	PaymentProviderSquare = "square"
)

const (
	EnvAppEnv   = "GIGMARKET_APP_ENV"
	EnvPort     = "GIGMARKET_APP_PORT"
	EnvLogLevel = "GIGMARKET_LOG_LEVEL"

	EnvDBDSN  = "GIGMARKET_DB_DSN"
	EnvDBHost = "GIGMARKET_DB_HOST"
	EnvDBUser = "GIGMARKET_DB_USER"
	EnvDBName = "GIGMARKET_DB_NAME"

	EnvRedisURL = "GIGMARKET_REDIS_URL"

	EnvJWTSecret  = "GIGMARKET_JWT_SECRET"
	EnvJWTIssuer  = "GIGMARKET_JWT_ISSUER"
	EnvJWTExpMins = "GIGMARKET_JWT_EXPIRATION_MINUTES"

	EnvAllowSelfPurchase = "GIGMARKET_ALLOW_SELF_PURCHASE"
	EnvUseSQLite         = "GIGMARKET_USE_SQLITE"
	EnvPaymentsProvider  = "GIGMARKET_PAYMENTS_PROVIDER"
	EnvPiAPIURL          = "GIGMARKET_PI_API_URL"
	EnvPiAPIKey          = "GIGMARKET_PI_API_KEY"
	EnvPiTimeout         = "GIGMARKET_PI_TIMEOUT"
	EnvAbandonedOrderAge = "GIGMARKET_ABANDONED_ORDER_AGE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
