package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix  = ""
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Shipping   ShippingConfig
	Dispatch   DispatchConfig
	Migrations MigrationsConfig
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
	Env          string `envconfig:"RETURNS_APP_ENV" required:"true"`
	Port         string `envconfig:"RETURNS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RETURNS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RETURNS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"RETURNS_DB_DSN"`
	Driver string `envconfig:"RETURNS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"RETURNS_DB_HOST"`
	Port     int    `envconfig:"RETURNS_DB_PORT" default:"5432"`
	User     string `envconfig:"RETURNS_DB_USER"`
	Password string `envconfig:"RETURNS_DB_PASSWORD"`
	Name     string `envconfig:"RETURNS_DB_NAME"`
	SSLMode  string `envconfig:"RETURNS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RETURNS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RETURNS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RETURNS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RETURNS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either RETURNS_DB_DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"RETURNS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RETURNS_REDIS_ADDR"`
	Password     string        `envconfig:"RETURNS_REDIS_PASSWORD"`
	DB           int           `envconfig:"RETURNS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RETURNS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RETURNS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RETURNS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RETURNS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RETURNS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ShippingConfig configures the reverse-logistics partner client.
type ShippingConfig struct {
	BaseURL       string        `envconfig:"RETURNS_SHIPPING_BASE_URL" required:"true"`
	InternalToken string        `envconfig:"RETURNS_SHIPPING_INTERNAL_TOKEN" required:"true"`
	Partner       string        `envconfig:"RETURNS_SHIPPING_PARTNER" default:"default"`
	Timeout       time.Duration `envconfig:"RETURNS_SHIPPING_TIMEOUT" default:"15s"`
	MaxRetries    int           `envconfig:"RETURNS_SHIPPING_MAX_RETRIES" default:"2"`
	WebhookSecret string        `envconfig:"RETURNS_SHIPPING_WEBHOOK_SECRET"`
}

// DispatchConfig configures the optional last-mile dispatch bridge.
type DispatchConfig struct {
	Enabled bool          `envconfig:"RETURNS_DISPATCH_ENABLED" default:"false"`
	BaseURL string        `envconfig:"RETURNS_DISPATCH_BASE_URL"`
	Token   string        `envconfig:"RETURNS_DISPATCH_TOKEN"`
	Timeout time.Duration `envconfig:"RETURNS_DISPATCH_TIMEOUT" default:"10s"`
}

type MigrationsConfig struct {
	AutoRun bool   `envconfig:"RETURNS_MIGRATIONS_AUTO_RUN" default:"false"`
	Dir     string `envconfig:"RETURNS_MIGRATIONS_DIR" default:"migrations"`
}
