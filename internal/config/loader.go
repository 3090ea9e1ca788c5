package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VAULTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Driver, "VAULTBOT_STORE_DRIVER")
	setStr(&cfg.Store.DSN, "VAULTBOT_STORE_DSN")
	setStr(&cfg.Store.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Store.Host, "VAULTBOT_STORE_HOST")
	setInt(&cfg.Store.Port, "VAULTBOT_STORE_PORT")
	setStr(&cfg.Store.Database, "VAULTBOT_STORE_DATABASE")
	setStr(&cfg.Store.User, "VAULTBOT_STORE_USER")
	setStr(&cfg.Store.Password, "VAULTBOT_STORE_PASSWORD")
	setStr(&cfg.Store.SSLMode, "VAULTBOT_STORE_SSLMODE")
	setInt(&cfg.Store.PoolMaxConns, "VAULTBOT_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.PoolMinConns, "VAULTBOT_STORE_POOL_MIN_CONNS")
	setBool(&cfg.Store.RunMigrations, "VAULTBOT_STORE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VAULTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULTBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "VAULTBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "VAULTBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.PriceMaxAge, "VAULTBOT_REDIS_PRICE_MAX_AGE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VAULTBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VAULTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULTBOT_S3_FORCE_PATH_STYLE")

	// ── Admission ──
	setInt(&cfg.Admission.MaxConcurrentPositions, "VAULTBOT_ADMISSION_MAX_CONCURRENT_POSITIONS")
	setInt(&cfg.Admission.MaxPositionsPerToken, "VAULTBOT_ADMISSION_MAX_POSITIONS_PER_TOKEN")
	setFloat64(&cfg.Admission.MaxTotalExposure, "VAULTBOT_ADMISSION_MAX_TOTAL_EXPOSURE")
	setFloat64(&cfg.Admission.MaxTokenExposure, "VAULTBOT_ADMISSION_MAX_TOKEN_EXPOSURE")
	setStr(&cfg.Admission.ConflictPolicy, "VAULTBOT_ADMISSION_CONFLICT_POLICY")
	setStr(&cfg.Admission.MergePolicy, "VAULTBOT_ADMISSION_MERGE_POLICY")

	// ── Exit ──
	setFloat64(&cfg.Exit.TrailPercent, "VAULTBOT_EXIT_TRAIL_PERCENT")
	setFloat64Slice(&cfg.Exit.PartialExitPercentages, "VAULTBOT_EXIT_PARTIAL_EXIT_PERCENTAGES")
	setFloat64(&cfg.Exit.DustThreshold, "VAULTBOT_EXIT_DUST_THRESHOLD")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "VAULTBOT_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "VAULTBOT_MONITOR_FETCH_TIMEOUT")
	setInt(&cfg.Monitor.Concurrency, "VAULTBOT_MONITOR_CONCURRENCY")
	setDuration(&cfg.Monitor.PendingTimeout, "VAULTBOT_MONITOR_PENDING_TIMEOUT")
	setDuration(&cfg.Monitor.ClosedTTL, "VAULTBOT_MONITOR_CLOSED_TTL")
	setDuration(&cfg.Monitor.RetentionInterval, "VAULTBOT_MONITOR_RETENTION_INTERVAL")
	setDuration(&cfg.Monitor.StoreRetention, "VAULTBOT_MONITOR_STORE_RETENTION")

	// ── Executor ──
	setStr(&cfg.Executor.BaseToken, "VAULTBOT_EXECUTOR_BASE_TOKEN")
	setFloat64(&cfg.Executor.EntryPercentage, "VAULTBOT_EXECUTOR_ENTRY_PERCENTAGE")
	setFloat64(&cfg.Executor.MaxSlippage, "VAULTBOT_EXECUTOR_MAX_SLIPPAGE")
	setDuration(&cfg.Executor.SwapTimeout, "VAULTBOT_EXECUTOR_SWAP_TIMEOUT")
	setInt(&cfg.Executor.Workers, "VAULTBOT_EXECUTOR_WORKERS")
	setInt(&cfg.Executor.RateLimitPerMinute, "VAULTBOT_EXECUTOR_RATE_LIMIT_PER_MINUTE")

	// ── Feed ──
	setBool(&cfg.Feed.BusEnabled, "VAULTBOT_FEED_BUS_ENABLED")
	setBool(&cfg.Feed.PricesEnabled, "VAULTBOT_FEED_PRICES_ENABLED")
	setStr(&cfg.Feed.WSURL, "VAULTBOT_FEED_WS_URL")
	setStr(&cfg.Feed.WSToken, "VAULTBOT_FEED_WS_TOKEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VAULTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VAULTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VAULTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VAULTBOT_NOTIFY_EVENTS")

	// ── Server ──
	setStr(&cfg.Server.Addr, "VAULTBOT_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "VAULTBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "VAULTBOT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "VAULTBOT_MODE")
	setStr(&cfg.LogLevel, "VAULTBOT_LOG_LEVEL")
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

func setFloat64Slice(dst *[]float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []float64
	for _, p := range strings.Split(v, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return
		}
		out = append(out, f)
	}
	*dst = out
}
