package config

const (
	EnvPrefix = "KOLO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "KOLO_APP_ENV"
	EnvPort     = "KOLO_APP_PORT"
	EnvLogLevel = "KOLO_LOG_LEVEL"

	EnvDBDSN  = "KOLO_DB_DSN"
	EnvDBHost = "KOLO_DB_HOST"
	EnvDBUser = "KOLO_DB_USER"
	EnvDBName = "KOLO_DB_NAME"

	EnvRedisURL  = "KOLO_REDIS_URL"
	EnvJWTSecret = "KOLO_JWT_SECRET"
	EnvJWTIssuer = "KOLO_JWT_ISSUER"
	EnvUseSQLite = "KOLO_USE_SQLITE"

	EnvRefundParticipationPct = "KOLO_REFUND_PARTICIPATION_PCT"
	EnvRefundApprovalPct      = "KOLO_REFUND_APPROVAL_PCT"

	EnvFlutterwaveSecretHash = "KOLO_FLUTTERWAVE_SECRET_HASH"
	EnvMonnifySecretKey      = "KOLO_MONNIFY_SECRET_KEY"

	EnvPubSubDomainTopic = "KOLO_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub   = "KOLO_PUBSUB_DOMAIN_SUBSCRIPTION"

	defaultSQLiteDSN = "file:kolo.db?_foreign_keys=on"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
