package config

const (
	EnvPrefix = "HOMEBASE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "HOMEBASE_APP_ENV"
	EnvPort     = "HOMEBASE_APP_PORT"
	EnvLogLevel = "HOMEBASE_LOG_LEVEL"

	EnvDBDSN  = "HOMEBASE_DB_DSN"
	EnvDBHost = "HOMEBASE_DB_HOST"
	EnvDBUser = "HOMEBASE_DB_USER"
	EnvDBName = "HOMEBASE_DB_NAME"

	EnvRedisURL = "HOMEBASE_REDIS_URL"

	EnvJWTSecret = "HOMEBASE_JWT_SECRET"
	EnvJWTIssuer = "HOMEBASE_JWT_ISSUER"

	EnvStripeAPIKey               = "HOMEBASE_STRIPE_API_KEY"
	EnvStripeEnv                  = "HOMEBASE_STRIPE_ENV"
	EnvStripeWebhookSecret        = "HOMEBASE_STRIPE_WEBHOOK_SECRET"
	EnvStripeConnectWebhookSecret = "HOMEBASE_STRIPE_CONNECT_WEBHOOK_SECRET"

	EnvFeesDefaultRate = "HOMEBASE_FEES_DEFAULT_RATE"

	EnvFunctionsBaseURL = "HOMEBASE_FUNCTIONS_BASE_URL"

	EnvGCPProjectID = "HOMEBASE_GCP_PROJECT_ID"

	EnvPubSubNotificationTopic        = "HOMEBASE_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSubscription = "HOMEBASE_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvReconcileMaxRun = "HOMEBASE_RECONCILE_MAX_RUN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
