// Package config defines the top-level configuration for the market scanner
// and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketscout/internal/scoring"
)

// Scan interval bounds. Intervals outside them are clamped, not rejected.
const (
	MinScanInterval = time.Minute
	MaxScanInterval = 5 * time.Minute
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETSCOUT_* environment variables.
type Config struct {
	Scan        ScanConfig        `toml:"scan"`
	Thresholds  ThresholdsConfig  `toml:"thresholds"`
	Diversity   DiversityConfig   `toml:"diversity"`
	Suppression SuppressionConfig `toml:"suppression"`
	Fetch       FetchConfig       `toml:"fetch"`
	Polymarket  PolymarketConfig  `toml:"polymarket"`
	Kalshi      KalshiConfig      `toml:"kalshi"`
	Scoring     scoring.Overrides `toml:"scoring"`
	Redis       RedisConfig       `toml:"redis"`
	Postgres    PostgresConfig    `toml:"postgres"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Log         LogConfig         `toml:"log"`

	// ScoringOverridesPath names an optional YAML file whose factor
	// overrides are layered over [scoring].
	ScoringOverridesPath string `toml:"scoring_overrides_path"`
	Mode                 string `toml:"mode"`
	LogLevel             string `toml:"log_level"`
}

// ScanConfig controls the scan loop.
type ScanConfig struct {
	Interval      duration `toml:"interval"`
	SweepInterval duration `toml:"sweep_interval"`
	RunOnStart    bool     `toml:"run_on_start"`
	// CacheTTL is how long a successful source response is reused.
	CacheTTL duration `toml:"cache_ttl"`
	// LockTTL bounds the cross-instance scan lock when Redis is enabled.
	LockTTL     duration `toml:"lock_ttl"`
	SearchLimit int      `toml:"search_limit"`
}

// EffectiveInterval returns Interval clamped to [MinScanInterval,
// MaxScanInterval].
func (s ScanConfig) EffectiveInterval() time.Duration {
	return min(max(s.Interval.Duration, MinScanInterval), MaxScanInterval)
}

// ThresholdsConfig holds the eligibility gates. Zero durations disable the
// corresponding gate.
type ThresholdsConfig struct {
	MinConfidence int      `toml:"min_confidence"`
	MinLiquidity  float64  `toml:"min_liquidity"`
	MaxResolution duration `toml:"max_resolution"`
	MaxMarketAge  duration `toml:"max_market_age"`
}

// DiversityConfig bounds per-category selection.
type DiversityConfig struct {
	Enabled        bool `toml:"enabled"`
	MaxPerCategory int  `toml:"max_per_category"`
	MaxTotal       int  `toml:"max_total"`
}

// SuppressionConfig controls duplicate-alert suppression.
type SuppressionConfig struct {
	Window duration `toml:"window"`
	// Backend is "memory" or "redis".
	Backend string `toml:"backend"`
}

// FetchConfig holds the shared HTTP client and retry policy.
type FetchConfig struct {
	Timeout           duration `toml:"timeout"`
	UserAgent         string   `toml:"user_agent"`
	Retries           int      `toml:"retries"`
	BaseDelay         duration `toml:"base_delay"`
	RateLimitPause    duration `toml:"rate_limit_pause"`
	MaxRateLimitWaits int      `toml:"max_rate_limit_waits"`
	MaxRateLimitPause duration `toml:"max_rate_limit_pause"`
}

// BreakerConfig holds circuit breaker thresholds for one source.
type BreakerConfig struct {
	FailureThreshold int      `toml:"failure_threshold"`
	ResetTimeout     duration `toml:"reset_timeout"`
	MonitoringWindow duration `toml:"monitoring_window"`
}

// PolymarketConfig holds the Polymarket source settings.
type PolymarketConfig struct {
	Enabled           bool          `toml:"enabled"`
	GammaURL          string        `toml:"gamma_url"`
	ScrapeURL         string        `toml:"scrape_url"`
	APIKey            string        `toml:"api_key"`
	PageSize          int           `toml:"page_size"`
	MaxPages          int           `toml:"max_pages"`
	TargetValid       int           `toml:"target_valid"`
	PageInterval      duration      `toml:"page_interval"`
	RateLimitCooldown duration      `toml:"rate_limit_cooldown"`
	ErrorCooldown     duration      `toml:"error_cooldown"`
	Breaker           BreakerConfig `toml:"breaker"`
}

// KalshiConfig holds the Kalshi source settings. Without an API key id and
// RSA key the source only scrapes the public listing.
type KalshiConfig struct {
	Enabled           bool          `toml:"enabled"`
	BaseURL           string        `toml:"base_url"`
	ScrapeURL         string        `toml:"scrape_url"`
	APIKeyID          string        `toml:"api_key_id"`
	RSAPrivateKey     string        `toml:"rsa_private_key"`
	RSAPrivateKeyPath string        `toml:"rsa_private_key_path"`
	PageSize          int           `toml:"page_size"`
	MaxPages          int           `toml:"max_pages"`
	RateLimitCooldown duration      `toml:"rate_limit_cooldown"`
	ErrorCooldown     duration      `toml:"error_cooldown"`
	Breaker           BreakerConfig `toml:"breaker"`
}

// HasCredentials reports whether signed API access is configured.
func (k KalshiConfig) HasCredentials() bool {
	return k.APIKeyID != "" && (k.RSAPrivateKey != "" || k.RSAPrivateKeyPath != "")
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds alert-history database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds scan-report archive parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	PartSizeMB     int    `toml:"part_size_mb"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	APIKey       string   `toml:"api_key"`
	RateLimit    float64  `toml:"rate_limit"`
	RateBurst    int      `toml:"rate_burst"`
	WriteTimeout duration `toml:"write_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	OpsThrottle       duration `toml:"ops_throttle"`
}

// LogConfig holds the optional rotating log file. An empty File logs to
// stdout only.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(d time.Duration) duration { return duration{Duration: d} }

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Scan: ScanConfig{
			Interval:      dur(5 * time.Minute),
			SweepInterval: dur(15 * time.Minute),
			RunOnStart:    true,
			CacheTTL:      dur(5 * time.Minute),
			LockTTL:       dur(4 * time.Minute),
			SearchLimit:   10,
		},
		Thresholds: ThresholdsConfig{
			MinConfidence: 30,
			MinLiquidity:  500,
			MaxResolution: dur(7 * 24 * time.Hour),
			MaxMarketAge:  dur(4 * 24 * time.Hour),
		},
		Diversity: DiversityConfig{
			Enabled:        true,
			MaxPerCategory: 3,
			MaxTotal:       10,
		},
		Suppression: SuppressionConfig{
			Window:  dur(60 * time.Minute),
			Backend: "memory",
		},
		Fetch: FetchConfig{
			Timeout:           dur(10 * time.Second),
			Retries:           3,
			BaseDelay:         dur(750 * time.Millisecond),
			RateLimitPause:    dur(5 * time.Second),
			MaxRateLimitWaits: 2,
			MaxRateLimitPause: dur(30 * time.Second),
		},
		Polymarket: PolymarketConfig{
			Enabled:           true,
			GammaURL:          "https://gamma-api.polymarket.com/markets",
			ScrapeURL:         "https://polymarket.com/markets",
			PageSize:          1000,
			MaxPages:          5,
			TargetValid:       100,
			PageInterval:      dur(500 * time.Millisecond),
			RateLimitCooldown: dur(5 * time.Minute),
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     dur(60 * time.Second),
				MonitoringWindow: dur(60 * time.Second),
			},
		},
		Kalshi: KalshiConfig{
			Enabled:           true,
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			ScrapeURL:         "https://kalshi.com/markets",
			PageSize:          1000,
			MaxPages:          5,
			RateLimitCooldown: dur(30 * time.Minute),
			ErrorCooldown:     dur(5 * time.Minute),
			Breaker: BreakerConfig{
				FailureThreshold: 3,
				ResetTimeout:     dur(120 * time.Second),
				MonitoringWindow: dur(60 * time.Second),
			},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketscout",
			ForcePathStyle: true,
			Prefix:         "reports",
			PartSizeMB:     5,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8080,
			RateLimit:    10,
			RateBurst:    20,
			WriteTimeout: dur(2 * time.Minute),
		},
		Notify: NotifyConfig{
			TelegramAPIURL: "https://api.telegram.org",
			Events:         []string{"market", "operational"},
			OpsThrottle:    dur(30 * time.Minute),
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":  true,
	"once":   true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	"market":      true,
	"operational": true,
}

// Validate checks the Config for obvious errors and returns every problem it
// finds, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: watch, once, server)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Scan
	if c.Scan.Interval.Duration <= 0 {
		add("scan: interval must be > 0")
	}
	if c.Scan.SweepInterval.Duration <= 0 {
		add("scan: sweep_interval must be > 0")
	}
	if c.Scan.CacheTTL.Duration < 0 {
		add("scan: cache_ttl must be >= 0")
	}

	// Thresholds
	if c.Thresholds.MinConfidence < 0 || c.Thresholds.MinConfidence > 100 {
		add("thresholds: min_confidence must be 0-100, got %d", c.Thresholds.MinConfidence)
	}
	if c.Thresholds.MinLiquidity < 0 {
		add("thresholds: min_liquidity must be >= 0")
	}
	if c.Thresholds.MaxResolution.Duration < 0 || c.Thresholds.MaxMarketAge.Duration < 0 {
		add("thresholds: durations must be >= 0")
	}

	// Diversity
	if c.Diversity.MaxTotal < 1 {
		add("diversity: max_total must be >= 1")
	}
	if c.Diversity.Enabled && c.Diversity.MaxPerCategory < 1 {
		add("diversity: max_per_category must be >= 1 when enabled")
	}

	// Suppression
	if c.Suppression.Window.Duration <= 0 {
		add("suppression: window must be > 0")
	}
	switch c.Suppression.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			add("suppression: backend redis requires redis.enabled")
		}
	default:
		add("suppression: unknown backend %q (valid: memory, redis)", c.Suppression.Backend)
	}

	// Fetch
	if c.Fetch.Retries < 0 {
		add("fetch: retries must be >= 0")
	}
	if c.Fetch.MaxRateLimitWaits < 0 {
		add("fetch: max_rate_limit_waits must be >= 0")
	}

	// Sources
	if !c.Polymarket.Enabled && !c.Kalshi.Enabled {
		add("at least one of polymarket or kalshi must be enabled")
	}
	if c.Polymarket.Enabled {
		if c.Polymarket.GammaURL == "" {
			add("polymarket: gamma_url must not be empty")
		}
		errs = append(errs, c.Polymarket.Breaker.validate("polymarket")...)
	}
	if c.Kalshi.Enabled {
		if c.Kalshi.BaseURL == "" {
			add("kalshi: base_url must not be empty")
		}
		if c.Kalshi.APIKeyID != "" && c.Kalshi.RSAPrivateKey == "" && c.Kalshi.RSAPrivateKeyPath == "" {
			add("kalshi: rsa_private_key or rsa_private_key_path is required with api_key_id")
		}
		errs = append(errs, c.Kalshi.Breaker.validate("kalshi")...)
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled || strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
			add("server: rate_limit and rate_burst must be >= 0")
		}
	}

	// Notify
	for _, ev := range c.Notify.Events {
		if !validEvents[strings.ToLower(ev)] {
			add("notify: unknown event %q (valid: market, operational)", ev)
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (b BreakerConfig) validate(section string) []error {
	var errs []error
	if b.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("%s.breaker: failure_threshold must be >= 1", section))
	}
	if b.ResetTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%s.breaker: reset_timeout must be > 0", section))
	}
	if b.MonitoringWindow.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%s.breaker: monitoring_window must be > 0", section))
	}
	return errs
}
