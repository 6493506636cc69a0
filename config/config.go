package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rail adapter types.
const (
	RailTypeREST     = "rest"
	RailTypeFileDrop = "filedrop"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Redis     RedisConfig           `mapstructure:"redis"`
	JWT       JWTConfig             `mapstructure:"jwt"`
	Log       LogConfig             `mapstructure:"log"`
	Scheduler SchedulerConfig       `mapstructure:"scheduler"`
	Kafka     KafkaConfig           `mapstructure:"kafka"`
	Webhook   WebhookConfig         `mapstructure:"webhook"`
	Rails     map[string]RailConfig `mapstructure:"rails"`
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
	LockTimeout     time.Duration `mapstructure:"lock_timeout"` // batch row lock wait
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

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// SchedulerConfig bounds a single reconciliation tick.
type SchedulerConfig struct {
	CallTimeout time.Duration `mapstructure:"call_timeout"` // per rail call
	RunTimeout  time.Duration `mapstructure:"run_timeout"`  // whole tick
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	BatchLimit  int           `mapstructure:"batch_limit"`
	RelayLimit  int           `mapstructure:"relay_limit"`
	ProgressTTL time.Duration `mapstructure:"progress_ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether outcome events are posted to a webhook.
func (w WebhookConfig) Enabled() bool {
	return w.URL != ""
}

// RailConfig describes one settlement rail and how to reach it.
type RailConfig struct {
	Type                string `mapstructure:"type"` // rest, filedrop
	BaseURL             string `mapstructure:"base_url"`
	APIKey              string `mapstructure:"api_key"`
	Dir                 string `mapstructure:"dir"`
	KeyringPath         string `mapstructure:"keyring_path"`
	Passphrase          string `mapstructure:"passphrase"`
	Rulebook            string `mapstructure:"rulebook"` // built-in name or YAML path; defaults to the rail name
	RemarkLimit         int    `mapstructure:"remark_limit"`
	AmountScopeFallback *bool  `mapstructure:"amount_scope_fallback"`
	MaxQueriesPerMinute int64  `mapstructure:"max_queries_per_minute"` // 0 = unlimited
}

// Fallback reports whether amount verification may widen to the receiver
// scope. It is on unless explicitly disabled.
func (r RailConfig) Fallback() bool {
	return r.AmountScopeFallback == nil || *r.AmountScopeFallback
}

// RulebookName returns the configured rulebook, or name when unset.
func (r RailConfig) RulebookName(name string) string {
	if r.Rulebook != "" {
		return r.Rulebook
	}
	return name
}

// RailNames returns the configured rail names in sorted order.
func (c *Config) RailNames() []string {
	names := make([]string, 0, len(c.Rails))
	for name := range c.Rails {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the rail table.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range c.RailNames() {
		rail := c.Rails[name]
		switch rail.Type {
		case RailTypeREST:
			if rail.BaseURL == "" {
				errs = append(errs, fmt.Errorf("rails.%s: base_url is required", name))
			}
		case RailTypeFileDrop:
			if rail.Dir == "" {
				errs = append(errs, fmt.Errorf("rails.%s: dir is required", name))
			}
		default:
			errs = append(errs, fmt.Errorf("rails.%s: unknown type %q", name, rail.Type))
		}
		if rail.RemarkLimit < 0 {
			errs = append(errs, fmt.Errorf("rails.%s: remark_limit must not be negative", name))
		}
		if rail.MaxQueriesPerMinute < 0 {
			errs = append(errs, fmt.Errorf("rails.%s: max_queries_per_minute must not be negative", name))
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: brokers are required when enabled"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: RECON_.
// Nested keys use underscore: RECON_DATABASE_HOST, RECON_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "settlement")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "10s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "settlement-reconciler")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("scheduler.call_timeout", "30s")
	v.SetDefault("scheduler.run_timeout", "10m")
	v.SetDefault("scheduler.lock_ttl", "15m")
	v.SetDefault("scheduler.batch_limit", 200)
	v.SetDefault("scheduler.relay_limit", 200)
	v.SetDefault("scheduler.progress_ttl", "336h")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "settlement.outcome")
	v.SetDefault("webhook.timeout", "10s")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: RECON_DATABASE_HOST -> database.host
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required; env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
