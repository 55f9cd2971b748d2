package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Limits         LimitsConfig         `mapstructure:"limits"`
	Funding        FundingConfig        `mapstructure:"funding"`
	Log            LogConfig            `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// ProvidersConfig holds outbound provider endpoints and the shared call timeout.
// A provider call exceeding the timeout is classified indeterminate, never failed.
type ProvidersConfig struct {
	BillPay     ProviderEndpoint `mapstructure:"billpay"`
	Identity    ProviderEndpoint `mapstructure:"identity"`
	CallTimeout time.Duration    `mapstructure:"call_timeout"`
}

type ProviderEndpoint struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ReconciliationConfig drives the background worker that resolves pending
// transactions.
type ReconciliationConfig struct {
	Interval      time.Duration `mapstructure:"interval"`       // how often a pass runs
	GraceWindow   time.Duration `mapstructure:"grace_window"`   // pending younger than this is left alone
	EscalateAfter time.Duration `mapstructure:"escalate_after"` // still indeterminate past this is flagged for review
	BatchSize     int           `mapstructure:"batch_size"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"` // leader lock so one instance runs a pass
}

// LimitsConfig bounds purchase amounts, in whole naira, per category.
// Categories absent from the map fall back to Min/Max.
type LimitsConfig struct {
	Min        int64                  `mapstructure:"min"`
	Max        int64                  `mapstructure:"max"`
	Categories map[string]AmountLimit `mapstructure:"categories"`
}

type AmountLimit struct {
	Min int64 `mapstructure:"min"`
	Max int64 `mapstructure:"max"`
}

// FundingConfig covers the checkout provider's payment-success webhook.
type FundingConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: KOBO.
// Nested keys use underscore: KOBO_DATABASE_HOST, KOBO_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "kobopay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "kobopay")
	v.SetDefault("providers.billpay.base_url", "https://sandbox.vtpass.com/api")
	v.SetDefault("providers.billpay.api_key", "")
	v.SetDefault("providers.identity.base_url", "https://api.prembly.com/identitypass")
	v.SetDefault("providers.identity.api_key", "")
	v.SetDefault("providers.call_timeout", "15s")
	v.SetDefault("reconciliation.interval", "2m")
	v.SetDefault("reconciliation.grace_window", "5m")
	v.SetDefault("reconciliation.escalate_after", "24h")
	v.SetDefault("reconciliation.batch_size", 100)
	v.SetDefault("reconciliation.lock_ttl", "90s")
	v.SetDefault("limits.min", 50)
	v.SetDefault("limits.max", 100000)
	v.SetDefault("funding.webhook_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: KOBO_DATABASE_HOST -> database.host
	v.SetEnvPrefix("KOBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Limit returns the amount bounds for a category.
func (l LimitsConfig) Limit(category string) AmountLimit {
	if lim, ok := l.Categories[category]; ok {
		return lim
	}
	return AmountLimit{Min: l.Min, Max: l.Max}
}
