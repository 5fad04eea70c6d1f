// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort                = 8080
	defaultServerHost                = "0.0.0.0"
	defaultReadTimeout               = 30 * time.Second
	defaultWriteTimeout              = 30 * time.Second
	defaultRequestTimeout            = 5 * time.Second
	defaultDatabasePath              = "./data/lecturesfrom.db"
	defaultDatabaseConnectionTimeout = 5 * time.Second
	defaultDatabaseBusyTimeout       = 5 * time.Second
	defaultDatabaseEnableWAL         = true
	defaultMigrationsPath            = "file://./migrations"
	defaultLogLevel                  = "info"
	defaultLogPretty                 = false
	defaultRedisEnabled              = false
	defaultRedisAddr                 = "localhost:6379"
	defaultRedisChannelPrefix        = "lecturesfrom:changes:"
	defaultRateLimitEnabled          = true
	defaultRateLimitRequests         = 10
	defaultRateLimitHostRequests     = 120
	defaultRateLimitWindow           = time.Minute
	defaultNotifierBufferSize        = 64
	defaultNotifierPingInterval      = 30 * time.Second
	defaultNotifierWriteWait         = 10 * time.Second
	defaultQueueLockTimeout          = 3 * time.Second
	defaultAuditBufferSize           = 256
	defaultAuditRetention            = 30 * 24 * time.Hour
	defaultAuditPruneInterval        = time.Hour
	envPrefix                        = "LECTURES"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Notifier  NotifierConfig
	Queue     QueueConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// are honored. Empty means the peer address is always the client.
	TrustedProxies []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path              string
	ConnectionTimeout time.Duration
	BusyTimeout       time.Duration
	EnableWAL         bool
	MigrationsPath    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// RedisConfig holds the optional Redis connection used for cross-instance
// change fan-out and shared rate-limit counters
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// RateLimitConfig holds per-caller request limits for write routes.
// Requests bounds submissions and client log entries, HostRequests bounds
// event management and queue actions.
type RateLimitConfig struct {
	Enabled      bool
	Requests     int
	HostRequests int
	Window       time.Duration
}

// NotifierConfig holds change subscription settings
type NotifierConfig struct {
	BufferSize   int
	PingInterval time.Duration
	WriteWait    time.Duration
}

// QueueConfig holds queue engine settings
type QueueConfig struct {
	LockTimeout time.Duration
}

// AuditConfig holds event log writer settings
type AuditConfig struct {
	BufferSize    int
	Retention     time.Duration
	PruneInterval time.Duration
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lecturesfrom")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)
	v.SetDefault("server.requesttimeout", defaultRequestTimeout)
	v.SetDefault("server.trustedproxies", []string{})

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.connectiontimeout", defaultDatabaseConnectionTimeout)
	v.SetDefault("database.busytimeout", defaultDatabaseBusyTimeout)
	v.SetDefault("database.enablewal", defaultDatabaseEnableWAL)
	v.SetDefault("database.migrationspath", defaultMigrationsPath)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	v.SetDefault("redis.enabled", defaultRedisEnabled)
	v.SetDefault("redis.addr", defaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channelprefix", defaultRedisChannelPrefix)

	v.SetDefault("ratelimit.enabled", defaultRateLimitEnabled)
	v.SetDefault("ratelimit.requests", defaultRateLimitRequests)
	v.SetDefault("ratelimit.hostrequests", defaultRateLimitHostRequests)
	v.SetDefault("ratelimit.window", defaultRateLimitWindow)

	v.SetDefault("notifier.buffersize", defaultNotifierBufferSize)
	v.SetDefault("notifier.pinginterval", defaultNotifierPingInterval)
	v.SetDefault("notifier.writewait", defaultNotifierWriteWait)

	v.SetDefault("queue.locktimeout", defaultQueueLockTimeout)

	v.SetDefault("audit.buffersize", defaultAuditBufferSize)
	v.SetDefault("audit.retention", defaultAuditRetention)
	v.SetDefault("audit.pruneinterval", defaultAuditPruneInterval)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout: %v (must be > 0)", c.Server.RequestTimeout)
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("invalid trusted proxy: %q (must be an IP or CIDR)", proxy)
		}
	}
	if c.Database.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid database connection timeout: %v (must be > 0)", c.Database.ConnectionTimeout)
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("invalid database busy timeout: %v (must be >= 0)", c.Database.BusyTimeout)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis address is required when redis is enabled")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("invalid rate limit requests: %d (must be > 0)", c.RateLimit.Requests)
		}
		if c.RateLimit.HostRequests <= 0 {
			return fmt.Errorf("invalid rate limit host requests: %d (must be > 0)", c.RateLimit.HostRequests)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("invalid rate limit window: %v (must be > 0)", c.RateLimit.Window)
		}
	}

	if c.Notifier.BufferSize <= 0 {
		return fmt.Errorf("invalid notifier buffer size: %d (must be > 0)", c.Notifier.BufferSize)
	}
	if c.Notifier.PingInterval <= 0 || c.Notifier.WriteWait <= 0 {
		return errors.New("notifier ping interval and write wait must be > 0")
	}

	if c.Queue.LockTimeout <= 0 {
		return fmt.Errorf("invalid queue lock timeout: %v (must be > 0)", c.Queue.LockTimeout)
	}

	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("invalid audit buffer size: %d (must be > 0)", c.Audit.BufferSize)
	}

	return nil
}

func validProxy(proxy string) bool {
	if _, _, err := net.ParseCIDR(proxy); err == nil {
		return true
	}
	return net.ParseIP(proxy) != nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
