package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "GIGBRIDGE_DB_DSN"
	EnvDBHost = "GIGBRIDGE_DB_HOST"
	EnvDBUser = "GIGBRIDGE_DB_USER"
	EnvDBName = "GIGBRIDGE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Ledger       LedgerConfig
	Settlement   SettlementConfig
	Invoicing    InvoicingConfig
	Cron         CronConfig
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
	Env          string `envconfig:"GIGBRIDGE_APP_ENV" required:"true"`
	Port         string `envconfig:"GIGBRIDGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIGBRIDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIGBRIDGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GIGBRIDGE_DB_DSN"`
	Driver string `envconfig:"GIGBRIDGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GIGBRIDGE_DB_HOST"`
	LegacyPort     int    `envconfig:"GIGBRIDGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GIGBRIDGE_DB_USER"`
	LegacyPassword string `envconfig:"GIGBRIDGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"GIGBRIDGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"GIGBRIDGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIGBRIDGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIGBRIDGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIGBRIDGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIGBRIDGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIGBRIDGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GIGBRIDGE_REDIS_ADDR"`
	Password     string        `envconfig:"GIGBRIDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIGBRIDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIGBRIDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIGBRIDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIGBRIDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIGBRIDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIGBRIDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GIGBRIDGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GIGBRIDGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GIGBRIDGE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type LedgerConfig struct {
	DefaultCurrency string `envconfig:"GIGBRIDGE_LEDGER_DEFAULT_CURRENCY" default:"usd"`
}

type SettlementConfig struct {
	MaxAttempts    int           `envconfig:"GIGBRIDGE_SETTLEMENT_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"GIGBRIDGE_SETTLEMENT_INITIAL_BACKOFF" default:"100ms"`
	MaxBackoff     time.Duration `envconfig:"GIGBRIDGE_SETTLEMENT_MAX_BACKOFF" default:"2s"`
}

type InvoicingConfig struct {
	TaxRate     string        `envconfig:"GIGBRIDGE_INVOICE_TAX_RATE" default:"0.00"`
	DueIn       time.Duration `envconfig:"GIGBRIDGE_INVOICE_DUE_IN" default:"720h"`
	OverdueScan time.Duration `envconfig:"GIGBRIDGE_INVOICE_OVERDUE_SCAN" default:"1h"`
}

type CronConfig struct {
	LockTTL           time.Duration `envconfig:"GIGBRIDGE_CRON_LOCK_TTL" default:"1h"`
	PaymentPendingTTL time.Duration `envconfig:"GIGBRIDGE_CRON_PAYMENT_PENDING_TTL" default:"72h"`
	MetricsPort       string        `envconfig:"GIGBRIDGE_CRON_METRICS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GIGBRIDGE_AUTO_MIGRATE" default:"false"`
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
