package config

const (
	EnvPrefix = "THREADLINE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "THREADLINE_APP_ENV"
	EnvPort     = "THREADLINE_APP_PORT"
	EnvDBDSN    = "THREADLINE_DB_DSN"
	EnvDBHost   = "THREADLINE_DB_HOST"
	EnvDBUser   = "THREADLINE_DB_USER"
	EnvDBName   = "THREADLINE_DB_NAME"
	EnvRedisURL = "THREADLINE_REDIS_URL"

	EnvJWTSecret = "THREADLINE_JWT_SECRET"
	EnvJWTIssuer = "THREADLINE_JWT_ISSUER"

	EnvOutboxSink = "THREADLINE_OUTBOX_SINK"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
