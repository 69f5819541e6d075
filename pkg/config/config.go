package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "almarky"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ALMARKY_DB_DSN"
	EnvDBHost = "ALMARKY_DB_HOST"
	EnvDBUser = "ALMARKY_DB_USER"
	EnvDBName = "ALMARKY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Catalog      CatalogConfig
	Cloudinary   CloudinaryConfig
	SheetLog     SheetLogConfig
	Support      SupportConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Checkout     CheckoutConfig
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
	Env          string `envconfig:"ALMARKY_APP_ENV" required:"true"`
	Port         string `envconfig:"ALMARKY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ALMARKY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ALMARKY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ALMARKY_DB_DSN"`
	Driver string `envconfig:"ALMARKY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ALMARKY_DB_HOST"`
	LegacyPort     int    `envconfig:"ALMARKY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ALMARKY_DB_USER"`
	LegacyPassword string `envconfig:"ALMARKY_DB_PASSWORD"`
	LegacyName     string `envconfig:"ALMARKY_DB_NAME"`
	LegacySSLMode  string `envconfig:"ALMARKY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ALMARKY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ALMARKY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ALMARKY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ALMARKY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ALMARKY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ALMARKY_REDIS_ADDR"`
	Password     string        `envconfig:"ALMARKY_REDIS_PASSWORD"`
	DB           int           `envconfig:"ALMARKY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ALMARKY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ALMARKY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ALMARKY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ALMARKY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ALMARKY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"ALMARKY_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"ALMARKY_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"ALMARKY_JWT_EXPIRATION_MINUTES" default:"30"`
	RefreshTokenTTLMinutes int    `envconfig:"ALMARKY_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"ALMARKY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"ALMARKY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"ALMARKY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"ALMARKY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"ALMARKY_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"ALMARKY_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"ALMARKY_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"ALMARKY_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"ALMARKY_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"ALMARKY_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"ALMARKY_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ALMARKY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ALMARKY_AUTO_MIGRATE" default:"false"`
}

// CatalogConfig points at the GitHub-hosted catalog document.
type CatalogConfig struct {
	Owner      string        `envconfig:"ALMARKY_CATALOG_REPO_OWNER" required:"true"`
	Repo       string        `envconfig:"ALMARKY_CATALOG_REPO_NAME" required:"true"`
	Branch     string        `envconfig:"ALMARKY_CATALOG_REPO_BRANCH" default:"main"`
	Path       string        `envconfig:"ALMARKY_CATALOG_FILE_PATH" default:"data/products.json"`
	Token      string        `envconfig:"ALMARKY_CATALOG_GITHUB_TOKEN" required:"true"`
	APIBaseURL string        `envconfig:"ALMARKY_CATALOG_API_BASE_URL" default:"https://api.github.com"`
	Timeout    time.Duration `envconfig:"ALMARKY_CATALOG_HTTP_TIMEOUT" default:"15s"`
	CacheTTL   time.Duration `envconfig:"ALMARKY_CATALOG_CACHE_TTL" default:"0"`
}

type CloudinaryConfig struct {
	CloudName    string        `envconfig:"ALMARKY_CLOUDINARY_CLOUD_NAME" required:"true"`
	UploadPreset string        `envconfig:"ALMARKY_CLOUDINARY_UPLOAD_PRESET" required:"true"`
	UploadURL    string        `envconfig:"ALMARKY_CLOUDINARY_UPLOAD_URL"`
	Timeout      time.Duration `envconfig:"ALMARKY_CLOUDINARY_HTTP_TIMEOUT" default:"30s"`
	MaxUploadMB  int           `envconfig:"ALMARKY_CLOUDINARY_MAX_UPLOAD_MB" default:"10"`
}

type SheetLogConfig struct {
	WebhookURL string        `envconfig:"ALMARKY_SHEETLOG_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"ALMARKY_SHEETLOG_HTTP_TIMEOUT" default:"5s"`
}

type SupportConfig struct {
	GeminiAPIKey string `envconfig:"ALMARKY_GEMINI_API_KEY"`
	Model        string `envconfig:"ALMARKY_GEMINI_MODEL" default:"gemini-2.0-flash"`
	MaxHistory   int    `envconfig:"ALMARKY_SUPPORT_MAX_HISTORY" default:"20"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ALMARKY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"ALMARKY_PUBSUB_DOMAIN_TOPIC" default:"almarky-domain-events"`
	DomainSubscription string `envconfig:"ALMARKY_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ALMARKY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ALMARKY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ALMARKY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CheckoutConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ALMARKY_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
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
