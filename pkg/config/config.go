package config

import (
	"fmt"
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
	Session      SessionConfig
	Cart         CartConfig
	RateLimit    RateLimitConfig
	Shopify      ShopifyConfig
	Scheduler    SchedulerConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is sqlite.
func (d DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(d.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type SessionConfig struct {
	CookieName   string        `envconfig:"STOREFRONT_SESSION_COOKIE_NAME" default:"cart-session-id"`
	TTL          time.Duration `envconfig:"STOREFRONT_SESSION_TTL" default:"720h"`
	SecureCookie bool          `envconfig:"STOREFRONT_SESSION_SECURE_COOKIE" default:"false"`
}

type CartConfig struct {
	Expiry           time.Duration `envconfig:"STOREFRONT_CART_EXPIRY" default:"720h"`
	AbandonedAfter   time.Duration `envconfig:"STOREFRONT_CART_ABANDONED_AFTER" default:"168h"`
	ExpiredRetention time.Duration `envconfig:"STOREFRONT_CART_EXPIRED_RETENTION" default:"2160h"`
	CacheSize        int           `envconfig:"STOREFRONT_CART_CACHE_SIZE" default:"1000"`
	CacheTTL         time.Duration `envconfig:"STOREFRONT_CART_CACHE_TTL" default:"5m"`
	RedisCacheTTL    time.Duration `envconfig:"STOREFRONT_CART_REDIS_CACHE_TTL" default:"15m"`
	SlowOperation    time.Duration `envconfig:"STOREFRONT_CART_SLOW_OPERATION" default:"1s"`
}

type RateLimitConfig struct {
	CartWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CART_WINDOW" default:"1m"`
	CartLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_CART_LIMIT" default:"120"`
}

type ShopifyConfig struct {
	StoreDomain       string        `envconfig:"STOREFRONT_SHOPIFY_STORE_DOMAIN"`
	AdminToken        string        `envconfig:"STOREFRONT_SHOPIFY_ADMIN_TOKEN"`
	APIVersion        string        `envconfig:"STOREFRONT_SHOPIFY_API_VERSION" default:"2025-01"`
	WebhookSecret     string        `envconfig:"STOREFRONT_SHOPIFY_WEBHOOK_SECRET"`
	WebhookDedupeTTL  time.Duration `envconfig:"STOREFRONT_SHOPIFY_WEBHOOK_DEDUPE_TTL" default:"24h"`
	RequestTimeout    time.Duration `envconfig:"STOREFRONT_SHOPIFY_REQUEST_TIMEOUT" default:"30s"`
	RequestsPerSecond float64       `envconfig:"STOREFRONT_SHOPIFY_RPS" default:"2"`
	BulkPollInterval  time.Duration `envconfig:"STOREFRONT_SHOPIFY_BULK_POLL_INTERVAL" default:"4s"`
	DeltaPageSize     int           `envconfig:"STOREFRONT_SHOPIFY_DELTA_PAGE_SIZE" default:"50"`
	DeltaOverlap      time.Duration `envconfig:"STOREFRONT_SHOPIFY_DELTA_OVERLAP" default:"5m"`
	TmpDir            string        `envconfig:"STOREFRONT_SHOPIFY_TMP_DIR" default:"tmp"`
}

// Configured reports whether Admin API credentials are present.
func (s ShopifyConfig) Configured() bool {
	return strings.TrimSpace(s.StoreDomain) != "" && strings.TrimSpace(s.AdminToken) != ""
}

type SchedulerConfig struct {
	CartCleanup      string        `envconfig:"STOREFRONT_SCHEDULE_CART_CLEANUP" default:"@every 1h"`
	CartCacheCleanup string        `envconfig:"STOREFRONT_SCHEDULE_CART_CACHE_CLEANUP" default:"@every 5m"`
	CartAnalytics    string        `envconfig:"STOREFRONT_SCHEDULE_CART_ANALYTICS" default:"@every 6h"`
	ErrorAlerts      string        `envconfig:"STOREFRONT_SCHEDULE_ERROR_ALERTS" default:"@every 1m"`
	ShopifyDelta     string        `envconfig:"STOREFRONT_SCHEDULE_SHOPIFY_DELTA" default:"@every 1h"`
	LockTTL          time.Duration `envconfig:"STOREFRONT_SCHEDULE_LOCK_TTL" default:"55m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	RedisCartCache bool `envconfig:"STOREFRONT_CART_REDIS_CACHE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case "", DriverSQLite:
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = DefaultSQLiteDSN
		}
	case DriverPostgres:
		if db.DSN == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, db.Driver)
	}
	return nil
}
