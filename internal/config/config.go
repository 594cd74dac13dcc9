// Package config provides configuration helpers that define runtime defaults,
// validation, and environment/file loading for the chatsync client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for outbound frame throttling.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the client configuration: endpoints, reconnect policy,
// keepalive timings and observability settings.
type Config struct {
	ServerURL string `yaml:"server_url"`
	APIURL    string `yaml:"api_url"`
	Token     string `yaml:"token"`
	// UserID is the signed-in user, used as the author of optimistic messages.
	UserID int64 `yaml:"user_id"`

	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	PendingTimeout       time.Duration `yaml:"pending_timeout"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	MaxFrameSize     int64         `yaml:"max_frame_size"`

	SendRateLimit RateLimitConfig `yaml:"send_rate_limit"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultConfig() Config {
	return Config{
		ServerURL:            "ws://localhost:8080",
		APIURL:               "http://localhost:8080",
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		PendingTimeout:       30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		PingInterval:         54 * time.Second,
		PongWait:             60 * time.Second,
		MaxFrameSize:         64 * 1024,
		SendRateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Sanitize replaces zero or invalid values with defaults and returns the result.
func (c Config) Sanitize() Config {
	def := defaultConfig()

	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = def.APIURL
	}

	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = max(def.ReconnectMaxDelay, c.ReconnectBaseDelay)
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = def.PendingTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	// pings must go out before the peer's read deadline expires
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.SendRateLimit.Burst <= 0 {
		c.SendRateLimit.Burst = def.SendRateLimit.Burst
	}
	if c.SendRateLimit.RefillInterval <= 0 {
		c.SendRateLimit.RefillInterval = def.SendRateLimit.RefillInterval
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "json" {
		c.LogFormat = "text"
	}
	return c
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	sanitized := cfg.Sanitize()
	return &sanitized
}

// LoadFile reads a YAML configuration file, applies environment overrides on
// top of it and sanitizes the result. An empty path behaves like NewConfigFromEnv.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	sanitized := cfg.Sanitize()
	return &sanitized, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHATSYNC_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("CHATSYNC_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("CHATSYNC_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("CHATSYNC_USER_ID"); v != "" {
		cfg.UserID = parseInt64Value(v, cfg.UserID)
	}
	if v := os.Getenv("CHATSYNC_MAX_RECONNECT_ATTEMPTS"); v != "" {
		cfg.MaxReconnectAttempts = parseIntValue(v, cfg.MaxReconnectAttempts)
	}
	if v := os.Getenv("CHATSYNC_RECONNECT_BASE_DELAY"); v != "" {
		cfg.ReconnectBaseDelay = parseDuration(v, cfg.ReconnectBaseDelay)
	}
	if v := os.Getenv("CHATSYNC_RECONNECT_MAX_DELAY"); v != "" {
		cfg.ReconnectMaxDelay = parseDuration(v, cfg.ReconnectMaxDelay)
	}
	if v := os.Getenv("CHATSYNC_PENDING_TIMEOUT"); v != "" {
		cfg.PendingTimeout = parseDuration(v, cfg.PendingTimeout)
	}
	if v := os.Getenv("CHATSYNC_MAX_FRAME_SIZE"); v != "" {
		cfg.MaxFrameSize = parseInt64Value(v, cfg.MaxFrameSize)
	}
	if v := os.Getenv("CHATSYNC_SEND_RATE_BURST"); v != "" {
		cfg.SendRateLimit.Burst = parseIntValue(v, cfg.SendRateLimit.Burst)
	}
	if v := os.Getenv("CHATSYNC_SEND_RATE_REFILL_INTERVAL"); v != "" {
		cfg.SendRateLimit.RefillInterval = parseDuration(v, cfg.SendRateLimit.RefillInterval)
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHATSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CHATSYNC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("1500ms") or whole seconds ("2").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
