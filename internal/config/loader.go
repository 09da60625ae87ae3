package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/marketscout/internal/scoring"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETSCOUT_* environment variable overrides,
// layers any YAML scoring overrides file over [scoring], and returns the
// final Config. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.ScoringOverridesPath != "" {
		file, err := LoadScoringOverrides(cfg.ScoringOverridesPath)
		if err != nil {
			return nil, err
		}
		cfg.Scoring = cfg.Scoring.Merge(file)
	}

	return &cfg, nil
}

// LoadScoringOverrides reads factor overrides from a YAML file keyed by
// factor name:
//
//	liquidity:
//	  weight: 35
//	  benchmark: 8000
//	time:
//	  near_resolution_ms: 1800000
func LoadScoringOverrides(path string) (scoring.Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read scoring overrides: %w", err)
	}
	var o scoring.Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("config: parse scoring overrides %s: %w", path, err)
	}
	return o, nil
}

// applyEnvOverrides reads well-known MARKETSCOUT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Scan ──
	setDuration(&cfg.Scan.Interval, "MARKETSCOUT_SCAN_INTERVAL")
	setDuration(&cfg.Scan.SweepInterval, "MARKETSCOUT_SCAN_SWEEP_INTERVAL")
	setBool(&cfg.Scan.RunOnStart, "MARKETSCOUT_SCAN_RUN_ON_START")
	setDuration(&cfg.Scan.CacheTTL, "MARKETSCOUT_SCAN_CACHE_TTL")

	// ── Thresholds ──
	setInt(&cfg.Thresholds.MinConfidence, "MARKETSCOUT_THRESHOLDS_MIN_CONFIDENCE")
	setFloat64(&cfg.Thresholds.MinLiquidity, "MARKETSCOUT_THRESHOLDS_MIN_LIQUIDITY")
	setDuration(&cfg.Thresholds.MaxResolution, "MARKETSCOUT_THRESHOLDS_MAX_RESOLUTION")
	setDuration(&cfg.Thresholds.MaxMarketAge, "MARKETSCOUT_THRESHOLDS_MAX_MARKET_AGE")

	// ── Diversity ──
	setBool(&cfg.Diversity.Enabled, "MARKETSCOUT_DIVERSITY_ENABLED")
	setInt(&cfg.Diversity.MaxPerCategory, "MARKETSCOUT_DIVERSITY_MAX_PER_CATEGORY")
	setInt(&cfg.Diversity.MaxTotal, "MARKETSCOUT_DIVERSITY_MAX_TOTAL")

	// ── Suppression ──
	setDuration(&cfg.Suppression.Window, "MARKETSCOUT_SUPPRESSION_WINDOW")
	setStr(&cfg.Suppression.Backend, "MARKETSCOUT_SUPPRESSION_BACKEND")

	// ── Fetch ──
	setDuration(&cfg.Fetch.Timeout, "MARKETSCOUT_FETCH_TIMEOUT")
	setStr(&cfg.Fetch.UserAgent, "MARKETSCOUT_FETCH_USER_AGENT")
	setInt(&cfg.Fetch.Retries, "MARKETSCOUT_FETCH_RETRIES")

	// ── Polymarket ──
	setBool(&cfg.Polymarket.Enabled, "MARKETSCOUT_POLYMARKET_ENABLED")
	setStr(&cfg.Polymarket.GammaURL, "MARKETSCOUT_POLYMARKET_GAMMA_URL")
	setStr(&cfg.Polymarket.APIKey, "MARKETSCOUT_POLYMARKET_API_KEY")

	// ── Kalshi ──
	setBool(&cfg.Kalshi.Enabled, "MARKETSCOUT_KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "MARKETSCOUT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIKeyID, "MARKETSCOUT_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.RSAPrivateKey, "MARKETSCOUT_KALSHI_RSA_PRIVATE_KEY")
	setStr(&cfg.Kalshi.RSAPrivateKeyPath, "MARKETSCOUT_KALSHI_RSA_PRIVATE_KEY_PATH")

	setStr(&cfg.ScoringOverridesPath, "MARKETSCOUT_SCORING_OVERRIDES_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETSCOUT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETSCOUT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETSCOUT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETSCOUT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MARKETSCOUT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MARKETSCOUT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MARKETSCOUT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARKETSCOUT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETSCOUT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETSCOUT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETSCOUT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETSCOUT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETSCOUT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "MARKETSCOUT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MARKETSCOUT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARKETSCOUT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETSCOUT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETSCOUT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETSCOUT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETSCOUT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETSCOUT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETSCOUT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "MARKETSCOUT_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETSCOUT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETSCOUT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETSCOUT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETSCOUT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETSCOUT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETSCOUT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETSCOUT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETSCOUT_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "MARKETSCOUT_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETSCOUT_MODE")
	setStr(&cfg.LogLevel, "MARKETSCOUT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
