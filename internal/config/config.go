// Package config loads service configuration.
//
// Sources, lowest precedence first:
//  1. DefaultConfig()
//  2. a YAML file, when a path is given
//  3. environment variables: TEAMTASK_<SECTION>_<KEY>, plus the bare
//     names PORT, JWT_SECRET, REDIS_HOST, REDIS_PORT, REDIS_PASSWORD,
//     REDIS_DB, MONGODB_URI, LOG_LEVEL and NODE_ENV
//
// A .env file, when present, is loaded into the environment first and never
// overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is the development secret. Rejected in production.
const DefaultJWTSecret = "dev-secret-change-me"

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the complete service configuration.
type Config struct {
	Environment string          `mapstructure:"environment" json:"environment"`
	LogLevel    string          `mapstructure:"log_level" json:"log_level"`
	Server      ServerConfig    `mapstructure:"server" json:"server"`
	Database    DatabaseConfig  `mapstructure:"database" json:"database"`
	Redis       RedisConfig     `mapstructure:"redis" json:"redis"`
	Mongo       MongoConfig     `mapstructure:"mongo" json:"mongo"`
	JWT         JWTConfig       `mapstructure:"jwt" json:"jwt"`
	Dispatch    DispatchConfig  `mapstructure:"dispatch" json:"dispatch"`
	Notify      NotifyConfig    `mapstructure:"notify" json:"notify"`
	Analytics   AnalyticsConfig `mapstructure:"analytics" json:"analytics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" json:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// RedisConfig configures the counter cache.
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled" json:"enabled"`
	Host           string        `mapstructure:"host" json:"host"`
	Port           int           `mapstructure:"port" json:"port"`
	Password       string        `mapstructure:"password" json:"-"`
	DB             int           `mapstructure:"db" json:"db"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" json:"command_timeout"`
}

// MongoConfig configures the optional event archive.
type MongoConfig struct {
	Enabled        bool          `mapstructure:"enabled" json:"enabled"`
	URI            string        `mapstructure:"uri" json:"-"`
	Database       string        `mapstructure:"database" json:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
}

// JWTConfig configures bearer tokens.
type JWTConfig struct {
	Secret string        `mapstructure:"secret" json:"-"`
	TTL    time.Duration `mapstructure:"ttl" json:"ttl"`
}

// DispatchConfig sizes the background work pool.
type DispatchConfig struct {
	Workers    int           `mapstructure:"workers" json:"workers"`
	QueueSize  int           `mapstructure:"queue_size" json:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout" json:"job_timeout"`
}

// NotifyConfig sizes the notification hub and per-connection buffers.
type NotifyConfig struct {
	Shards     int `mapstructure:"shards" json:"shards"`
	SendBuffer int `mapstructure:"send_buffer" json:"send_buffer"`
}

// AnalyticsConfig bounds counter calls.
type AnalyticsConfig struct {
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		LogLevel:    "info",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{Path: "teamtask.db"},
		Redis: RedisConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           6379,
			DialTimeout:    5 * time.Second,
			CommandTimeout: 3 * time.Second,
		},
		Mongo: MongoConfig{
			Enabled:        false,
			URI:            "mongodb://localhost:27017",
			Database:       "teamtask",
			ConnectTimeout: 5 * time.Second,
		},
		JWT: JWTConfig{
			Secret: DefaultJWTSecret,
			TTL:    24 * time.Hour,
		},
		Dispatch: DispatchConfig{
			Workers:    4,
			QueueSize:  1024,
			JobTimeout: 10 * time.Second,
		},
		Notify: NotifyConfig{
			Shards:     16,
			SendBuffer: 64,
		},
		Analytics: AnalyticsConfig{Timeout: 3 * time.Second},
	}
}

// bareEnv maps config keys to the unprefixed variable names also accepted.
var bareEnv = map[string]string{
	"environment":    "NODE_ENV",
	"log_level":      "LOG_LEVEL",
	"server.port":    "PORT",
	"jwt.secret":     "JWT_SECRET",
	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",
	"mongo.uri":      "MONGODB_URI",
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	envFile string
}

// WithEnvFile sets the .env file to read. An empty path disables it.
// Defaults to ".env" in the working directory.
func WithEnvFile(path string) LoadOption {
	return func(o *loadOptions) { o.envFile = path }
}

// Load builds a Config from defaults, the optional YAML file at path, and
// the environment, then validates it.
func Load(path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("TEAMTASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range bareEnv {
		envKey := "TEAMTASK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config loaded",
		"path", path,
		"environment", cfg.Environment,
		"db_path", cfg.Database.Path)
	return cfg, nil
}

// setDefaults registers every key so that environment overrides apply
// even when the YAML file omits the key.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("environment", c.Environment)
	v.SetDefault("log_level", c.LogLevel)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", c.Server.AllowedOrigins)

	v.SetDefault("database.path", c.Database.Path)

	v.SetDefault("redis.enabled", c.Redis.Enabled)
	v.SetDefault("redis.host", c.Redis.Host)
	v.SetDefault("redis.port", c.Redis.Port)
	v.SetDefault("redis.password", c.Redis.Password)
	v.SetDefault("redis.db", c.Redis.DB)
	v.SetDefault("redis.dial_timeout", c.Redis.DialTimeout)
	v.SetDefault("redis.command_timeout", c.Redis.CommandTimeout)

	v.SetDefault("mongo.enabled", c.Mongo.Enabled)
	v.SetDefault("mongo.uri", c.Mongo.URI)
	v.SetDefault("mongo.database", c.Mongo.Database)
	v.SetDefault("mongo.connect_timeout", c.Mongo.ConnectTimeout)

	v.SetDefault("jwt.secret", c.JWT.Secret)
	v.SetDefault("jwt.ttl", c.JWT.TTL)

	v.SetDefault("dispatch.workers", c.Dispatch.Workers)
	v.SetDefault("dispatch.queue_size", c.Dispatch.QueueSize)
	v.SetDefault("dispatch.job_timeout", c.Dispatch.JobTimeout)

	v.SetDefault("notify.shards", c.Notify.Shards)
	v.SetDefault("notify.send_buffer", c.Notify.SendBuffer)

	v.SetDefault("analytics.timeout", c.Analytics.Timeout)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("invalid environment %q (want development, production or test)", c.Environment)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Environment == EnvProduction && c.JWT.Secret == DefaultJWTSecret {
		return errors.New("jwt.secret must be changed in production")
	}

	positive := []struct {
		name string
		n    int64
	}{
		{"jwt.ttl", int64(c.JWT.TTL)},
		{"dispatch.workers", int64(c.Dispatch.Workers)},
		{"dispatch.queue_size", int64(c.Dispatch.QueueSize)},
		{"dispatch.job_timeout", int64(c.Dispatch.JobTimeout)},
		{"notify.shards", int64(c.Notify.Shards)},
		{"notify.send_buffer", int64(c.Notify.SendBuffer)},
		{"analytics.timeout", int64(c.Analytics.Timeout)},
		{"server.shutdown_timeout", int64(c.Server.ShutdownTimeout)},
	}
	for _, p := range positive {
		if p.n <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		return fmt.Errorf("invalid redis.port %d", c.Redis.Port)
	}
	if c.Mongo.Enabled && c.Mongo.URI == "" {
		return errors.New("mongo.uri is required when mongo is enabled")
	}
	return nil
}

// ParseLevel converts a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log_level %q", s)
}
