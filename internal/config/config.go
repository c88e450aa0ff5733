// Package config provides configuration management for the eventmq
// scheduler.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfigNotFound indicates no usable config file was found. The
// scheduler runs fine on defaults, so callers usually downgrade this to
// a log line.
var ErrConfigNotFound = errors.New("config not found")

// Config is the full scheduler configuration.
type Config struct {
	// Name is the device-name prefix the scheduler announces itself
	// under.
	Name string `json:"name" mapstructure:"name" validate:"required"`

	// AdminListenAddr is the bind address of the administrative
	// listener.
	AdminListenAddr string `json:"scheduler_administrative_listen_addr" mapstructure:"scheduler_administrative_listen_addr" validate:"required,hostname_port"`

	// ConnectAddr is the broker dial address.
	ConnectAddr string `json:"connect_addr" mapstructure:"connect_addr" validate:"required,uri"`

	// PollTimeoutMs bounds each transport poll.
	PollTimeoutMs int `json:"poll_timeout_ms" mapstructure:"poll_timeout_ms" validate:"gt=0"`

	Redis     RedisConfig     `json:"redis" mapstructure:"redis"`
	Heartbeat HeartbeatConfig `json:"heartbeat" mapstructure:"heartbeat"`
}

// RedisConfig locates the backing store.
type RedisConfig struct {
	Host     string `json:"host" mapstructure:"host" validate:"required"`
	Port     int    `json:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
	DB       int    `json:"db" mapstructure:"db" validate:"gte=0"`
	Password string `json:"password" mapstructure:"password"`
}

// HeartbeatConfig tunes the peer-liveness protocol.
type HeartbeatConfig struct {
	Enabled      bool `json:"enabled" mapstructure:"enabled"`
	IntervalSecs int  `json:"interval_secs" mapstructure:"interval_secs" validate:"gt=0"`
	// Liveness is how many missed beats mean the peer is gone.
	Liveness int `json:"liveness" mapstructure:"liveness" validate:"gt=0"`
}

// StateDir returns the eventmq state directory path.
// Can be overridden via EVENTMQ_STATE_DIR environment variable.
// Default: ~/.eventmq
func StateDir() string {
	if override := strings.TrimSpace(os.Getenv("EVENTMQ_STATE_DIR")); override != "" {
		return expandPath(override)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".eventmq"
	}
	return filepath.Join(home, ".eventmq")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(StateDir(), "eventmq.json")
}

// expandPath expands ~ to home directory and resolves the path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

// LoadViper loads the configuration into a Viper instance.
func LoadViper() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("eventmq")
	v.AddConfigPath(StateDir())

	v.SetEnvPrefix("EVENTMQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, ErrConfigNotFound
		}
		return nil, err
	}
	return v, nil
}

// Load reads the configuration from file or environment variables.
// A missing config file yields the defaults together with
// ErrConfigNotFound.
func Load() (*Config, error) {
	v, err := LoadViper()
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}
	notFound := errors.Is(err, ErrConfigNotFound)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Expand environment variables in sensitive fields
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)

	if notFound {
		return &cfg, ErrConfigNotFound
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "scheduler")
	v.SetDefault("scheduler_administrative_listen_addr", "127.0.0.1:10002")
	v.SetDefault("connect_addr", "ws://127.0.0.1:10001/scheduler")
	v.SetDefault("poll_timeout_ms", 1000)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("heartbeat.enabled", true)
	v.SetDefault("heartbeat.interval_secs", 3)
	v.SetDefault("heartbeat.liveness", 5)
}

// Validate checks for semantic errors in the config.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
