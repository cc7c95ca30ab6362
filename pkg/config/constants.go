package config

const EnvPrefix = "SMARTACCESS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "SMARTACCESS_APP_ENV"
	EnvPort     = "SMARTACCESS_APP_PORT"
	EnvLogLevel = "SMARTACCESS_LOG_LEVEL"

	EnvDBDSN  = "SMARTACCESS_DB_DSN"
	EnvDBHost = "SMARTACCESS_DB_HOST"
	EnvDBUser = "SMARTACCESS_DB_USER"
	EnvDBName = "SMARTACCESS_DB_NAME"

	EnvRedisURL = "SMARTACCESS_REDIS_URL"

	EnvJWTSecret              = "SMARTACCESS_JWT_SECRET"
	EnvJWTIssuer              = "SMARTACCESS_JWT_ISSUER"
	EnvJWTExpMins             = "SMARTACCESS_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SMARTACCESS_REFRESH_TOKEN_TTL_MINUTES"

	EnvUseSQLite   = "SMARTACCESS_USE_SQLITE"
	EnvAutoMigrate = "SMARTACCESS_AUTO_MIGRATE"
	EnvSeedFixture = "SMARTACCESS_SEED_FIXTURES"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
