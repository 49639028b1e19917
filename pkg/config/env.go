package config

const (
	EnvPrefix = "STOREFRONT"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBDSN    = "STOREFRONT_DB_DSN"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvShopifyStoreDomain   = "STOREFRONT_SHOPIFY_STORE_DOMAIN"
	EnvShopifyAdminToken    = "STOREFRONT_SHOPIFY_ADMIN_TOKEN"
	EnvShopifyWebhookSecret = "STOREFRONT_SHOPIFY_WEBHOOK_SECRET"

	EnvCartCacheSize = "STOREFRONT_CART_CACHE_SIZE"
	EnvCORSOrigins   = "STOREFRONT_CORS_ALLOWED_ORIGINS"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultSQLiteDSN = "file:storefront.db?_foreign_keys=on"
)
