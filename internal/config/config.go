// Package config defines the top-level configuration for the vault bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VAULTBOT_* environment variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Admission AdmissionConfig `toml:"admission"`
	Exit      ExitConfig      `toml:"exit"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Executor  ExecutorConfig  `toml:"executor"`
	Feed      FeedConfig      `toml:"feed"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig selects and configures the position store.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string   `toml:"driver"`
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"sslmode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
	// PriceMaxAge is how old a cached price may be before it is ignored.
	PriceMaxAge duration `toml:"price_max_age"`
}

// S3Config holds the archive bucket settings.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	CreateBucket   bool   `toml:"create_bucket"`
}

// AdmissionConfig holds the limits applied to incoming signals.
type AdmissionConfig struct {
	MaxConcurrentPositions int     `toml:"max_concurrent_positions"`
	MaxPositionsPerToken   int     `toml:"max_positions_per_token"`
	MaxTotalExposure       float64 `toml:"max_total_exposure"`
	MaxTokenExposure       float64 `toml:"max_token_exposure"`
	ConflictPolicy         string  `toml:"conflict_policy"`
	MergePolicy            string  `toml:"merge_policy"`
	MergePriceTolerance    float64 `toml:"merge_price_tolerance"`
}

// ExitConfig tunes the trailing-stop engine.
type ExitConfig struct {
	TrailPercent           float64            `toml:"trail_percent"`
	PartialExitPercentages []float64          `toml:"partial_exit_percentages"`
	DustThreshold          float64            `toml:"dust_threshold"`
	DustThresholds         map[string]float64 `toml:"dust_thresholds"`
}

// MonitorConfig tunes the monitoring loop and housekeeping.
type MonitorConfig struct {
	Interval          duration `toml:"interval"`
	FetchTimeout      duration `toml:"fetch_timeout"`
	Concurrency       int      `toml:"concurrency"`
	PendingTimeout    duration `toml:"pending_timeout"`
	ClosedTTL         duration `toml:"closed_ttl"`
	RetentionInterval duration `toml:"retention_interval"`
	StoreRetention    duration `toml:"store_retention"`
	RetentionBatch    int      `toml:"retention_batch"`
}

// ExecutorConfig controls signal intake and swap execution.
type ExecutorConfig struct {
	BaseToken       string   `toml:"base_token"`
	EntryPercentage float64  `toml:"entry_percentage"`
	MaxSlippage     float64  `toml:"max_slippage"`
	SwapTimeout     duration `toml:"swap_timeout"`
	LockTTL         duration `toml:"lock_ttl"`
	LockWait        duration `toml:"lock_wait"`
	Workers         int      `toml:"workers"`
	QueueSize       int      `toml:"queue_size"`
	DedupTTL        duration `toml:"dedup_ttl"`
	// RateLimitPerMinute caps signals admitted per user. Zero disables it.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
	// DryRunSlippage is applied by the simulated executor.
	DryRunSlippage float64 `toml:"dry_run_slippage"`
}

// FeedConfig selects the inbound signal sources.
type FeedConfig struct {
	BusEnabled bool   `toml:"bus_enabled"`
	WSURL      string `toml:"ws_url"`
	WSToken    string `toml:"ws_token"`
	// PricesEnabled subscribes the price cache to the prices channel.
	PricesEnabled bool `toml:"prices_enabled"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig configures the operations HTTP server, which also serves
// Prometheus metrics. An empty Addr disables it.
type ServerConfig struct {
	Addr   string `toml:"addr"`
	APIKey string `toml:"api_key"`
	// RateLimitPerMinute caps /api requests per client IP. Zero disables it.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so that BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"run":     true,
	"monitor": true,
	"recover": true,
	"archive": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validConflictPolicies = map[string]bool{
	"first_wins":        true,
	"prioritize_latest": true,
	"risk_based":        true,
	"separate":          true,
}

var validMergePolicies = map[string]bool{
	"merge_similar": true,
	"never":         true,
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Database:        "vaultbot",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{30 * time.Minute},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			KeyPrefix:   "vaultbot:",
			PriceMaxAge: duration{2 * time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "vaultbot-archive",
			ForcePathStyle: true,
		},
		Admission: AdmissionConfig{
			MaxConcurrentPositions: 50,
			MaxPositionsPerToken:   3,
			MaxTotalExposure:       100000,
			MaxTokenExposure:       25000,
			ConflictPolicy:         "first_wins",
			MergePolicy:            "merge_similar",
			MergePriceTolerance:    0.05,
		},
		Exit: ExitConfig{
			TrailPercent:           0.01,
			PartialExitPercentages: []float64{50, 30, 20},
			DustThreshold:          0.01,
		},
		Monitor: MonitorConfig{
			Interval:          duration{30 * time.Second},
			FetchTimeout:      duration{10 * time.Second},
			Concurrency:       8,
			PendingTimeout:    duration{5 * time.Minute},
			ClosedTTL:         duration{time.Hour},
			RetentionInterval: duration{time.Hour},
			StoreRetention:    duration{30 * 24 * time.Hour},
			RetentionBatch:    500,
		},
		Executor: ExecutorConfig{
			BaseToken:       "USDC",
			EntryPercentage: 100,
			MaxSlippage:     0.01,
			SwapTimeout:     duration{60 * time.Second},
			LockTTL:         duration{2 * time.Minute},
			LockWait:        duration{10 * time.Second},
			Workers:         4,
			QueueSize:       64,
			DedupTTL:        duration{10 * time.Minute},
			DryRunSlippage:  0.003,
		},
		Feed: FeedConfig{
			BusEnabled:    true,
			PricesEnabled: true,
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "position_expired", "position_failed"},
		},
		Server: ServerConfig{
			Addr:               ":8080",
			RateLimitPerMinute: 120,
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// Validate checks the configuration for obvious errors and returns a combined
// error describing every problem found, or nil if the config is valid.
func (c *Config) Validate() error {
	var errs []string

	// Top-level
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("mode: invalid value %q (valid: run, monitor, recover, archive)", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("log_level: invalid value %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	switch c.Store.Driver {
	case "memory":
		if c.Mode == "archive" {
			errs = append(errs, "store: archive mode needs the postgres driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			if c.Store.Host == "" {
				errs = append(errs, "store: host must not be empty (or set store.dsn)")
			}
			if c.Store.Port <= 0 || c.Store.Port > 65535 {
				errs = append(errs, fmt.Sprintf("store: port must be 1-65535, got %d", c.Store.Port))
			}
			if c.Store.Database == "" {
				errs = append(errs, "store: database must not be empty")
			}
		}
		if c.Store.PoolMaxConns < 1 {
			errs = append(errs, "store: pool_max_conns must be >= 1")
		}
		if c.Store.PoolMinConns < 0 {
			errs = append(errs, "store: pool_min_conns must be >= 0")
		}
		if c.Store.PoolMinConns > c.Store.PoolMaxConns {
			errs = append(errs, "store: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: driver must be postgres or memory, got %q", c.Store.Driver))
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.PriceMaxAge.Duration < 0 {
		errs = append(errs, "redis: price_max_age must be >= 0")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if c.Mode == "archive" && !c.S3.Enabled {
		errs = append(errs, "s3: archive mode needs s3.enabled")
	}

	// Admission
	if c.Admission.MaxConcurrentPositions < 1 {
		errs = append(errs, "admission: max_concurrent_positions must be >= 1")
	}
	if c.Admission.MaxPositionsPerToken < 1 {
		errs = append(errs, "admission: max_positions_per_token must be >= 1")
	}
	if c.Admission.MaxTotalExposure <= 0 {
		errs = append(errs, "admission: max_total_exposure must be > 0")
	}
	if c.Admission.MaxTokenExposure <= 0 {
		errs = append(errs, "admission: max_token_exposure must be > 0")
	}
	if !validConflictPolicies[c.Admission.ConflictPolicy] {
		errs = append(errs, fmt.Sprintf("admission: invalid conflict_policy %q", c.Admission.ConflictPolicy))
	}
	if !validMergePolicies[c.Admission.MergePolicy] {
		errs = append(errs, fmt.Sprintf("admission: invalid merge_policy %q", c.Admission.MergePolicy))
	}
	if c.Admission.MergePriceTolerance < 0 || c.Admission.MergePriceTolerance >= 1 {
		errs = append(errs, "admission: merge_price_tolerance must be in [0, 1)")
	}

	// Exit
	if c.Exit.TrailPercent <= 0 || c.Exit.TrailPercent > 0.5 {
		errs = append(errs, fmt.Sprintf("exit: trail_percent must be in (0, 0.5], got %v", c.Exit.TrailPercent))
	}
	for i, p := range c.Exit.PartialExitPercentages {
		if p < 0 || p > 100 {
			errs = append(errs, fmt.Sprintf("exit: partial_exit_percentages[%d] must be in [0, 100], got %v", i, p))
		}
	}
	if c.Exit.DustThreshold < 0 {
		errs = append(errs, "exit: dust_threshold must be >= 0")
	}
	for token, v := range c.Exit.DustThresholds {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("exit: dust_thresholds[%s] must be >= 0", token))
		}
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.FetchTimeout.Duration <= 0 {
		errs = append(errs, "monitor: fetch_timeout must be > 0")
	}
	if c.Monitor.Concurrency < 1 {
		errs = append(errs, "monitor: concurrency must be >= 1")
	}
	if c.Monitor.PendingTimeout.Duration > 0 && c.Monitor.PendingTimeout.Duration <= c.Executor.SwapTimeout.Duration {
		errs = append(errs, "monitor: pending_timeout must exceed executor.swap_timeout")
	}
	if c.Monitor.StoreRetention.Duration < 0 {
		errs = append(errs, "monitor: store_retention must be >= 0")
	}

	// Executor
	if c.Executor.BaseToken == "" {
		errs = append(errs, "executor: base_token must not be empty")
	}
	if c.Executor.EntryPercentage <= 0 || c.Executor.EntryPercentage > 100 {
		errs = append(errs, "executor: entry_percentage must be in (0, 100]")
	}
	if c.Executor.MaxSlippage < 0 || c.Executor.MaxSlippage >= 1 {
		errs = append(errs, "executor: max_slippage must be in [0, 1)")
	}
	if c.Executor.SwapTimeout.Duration <= 0 {
		errs = append(errs, "executor: swap_timeout must be > 0")
	}
	if c.Executor.Workers < 1 {
		errs = append(errs, "executor: workers must be >= 1")
	}
	if c.Executor.RateLimitPerMinute < 0 {
		errs = append(errs, "executor: rate_limit_per_minute must be >= 0")
	}

	// Server
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, "server: rate_limit_per_minute must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
