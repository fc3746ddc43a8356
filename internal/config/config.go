// Package config defines all configuration for the flywheel engine.
// Config is loaded from an optional YAML file (default: configs/config.yaml)
// with the documented process environment variables taking precedence:
// FLYWHEEL_INTERVAL_SECONDS, CLAIM_INTERVAL_SECONDS, MAX_TRADES_PER_MINUTE,
// MAX_CONCURRENT_TOKENS, PLATFORM_FEE_PERCENT, SIGNER_AUTH_KEY,
// VENUE_API_KEY, CHAIN_RPC_URL, CHAIN_WS_URL, STORE_URL, INITIAL_ADMIN_ID.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Flywheel FlywheelConfig `mapstructure:"flywheel"`
	Claims   ClaimsConfig   `mapstructure:"claims"`
	Signer   SignerConfig   `mapstructure:"signer"`
	Venue    VenueConfig    `mapstructure:"venue"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Store    StoreConfig    `mapstructure:"store"`
	Reactive ReactiveConfig `mapstructure:"reactive"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// InitialAdminID seeds the bootstrap tenant on first start. Bootstrap only.
	InitialAdminID string `mapstructure:"initial_admin_id"`
}

// FlywheelConfig tunes the periodic trading scheduler.
//
//   - Interval: tick period.
//   - MaxTradesPerMinute: global rate cap across all tokens; attempts over
//     the cap are deferred to the next tick.
//   - MaxConcurrentTokens: how many tokens may be in flight at once (K).
//   - BaseCooldown: unit for the exponential failure pause 2^n * base.
//   - CycleBuys / CycleSells: buys and sells per cycle in simple mode.
//   - FeeReserveSol: native balance kept back for transaction fees.
//   - LeaseTTL: safety window after which a stuck lease is re-acquirable.
type FlywheelConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	MaxTradesPerMinute  int           `mapstructure:"max_trades_per_minute"`
	MaxConcurrentTokens int           `mapstructure:"max_concurrent_tokens"`
	BaseCooldown        time.Duration `mapstructure:"base_cooldown"`
	CycleBuys           int           `mapstructure:"cycle_buys"`
	CycleSells          int           `mapstructure:"cycle_sells"`
	FeeReserveSol       float64       `mapstructure:"fee_reserve_sol"`
	LeaseTTL            time.Duration `mapstructure:"lease_ttl"`
}

// ClaimsConfig tunes the fee-claim scheduler.
// HonorPause is off by default: claims run even while trading is paused.
type ClaimsConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	PlatformFeePercent float64       `mapstructure:"platform_fee_percent"`
	HonorPause         bool          `mapstructure:"honor_pause"`
}

// SignerConfig points at the remote custody signer. An empty AuthKey makes
// every signing call report signer-unavailable without network traffic.
type SignerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	AuthKey string        `mapstructure:"auth_key"`
	ChainID string        `mapstructure:"chain_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VenueConfig holds the two venue endpoints and the shared API key.
type VenueConfig struct {
	BagsBaseURL    string        `mapstructure:"bags_base_url"`
	JupiterBaseURL string        `mapstructure:"jupiter_base_url"`
	APIKey         string        `mapstructure:"api_key"`
	QuoteTimeout   time.Duration `mapstructure:"quote_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	ClaimTimeout   time.Duration `mapstructure:"claim_timeout"`
}

// OracleConfig points at the price API feeding the indicator series.
type OracleConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SeriesLength int           `mapstructure:"series_length"`
	SolMint      string        `mapstructure:"sol_mint"`
}

// ChainConfig holds the JSON-RPC and WebSocket endpoints.
type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
	WSURL  string `mapstructure:"ws_url"`
}

// StoreConfig selects the backing store by DSN: postgres://… uses the
// Postgres driver, any other value is treated as a SQLite file path.
type StoreConfig struct {
	URL string `mapstructure:"url"`
}

// ReactiveConfig gates the reactive subscriber.
//
//   - Enabled: global feature switch for reactive trading.
//   - AllowHeuristicParse: permit the 9-digit lamports fallback parser.
//   - MaxReconnects: cap on WebSocket reconnection attempts.
type ReactiveConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	AllowHeuristicParse bool `mapstructure:"allow_heuristic_parse"`
	MaxReconnects       int  `mapstructure:"max_reconnects"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file (if present) and applies defaults and
// environment overrides. A missing file is not an error: the engine can be
// configured entirely from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("flywheel.interval", "60s")
	v.SetDefault("flywheel.max_trades_per_minute", 30)
	v.SetDefault("flywheel.max_concurrent_tokens", 8)
	v.SetDefault("flywheel.base_cooldown", "60s")
	v.SetDefault("flywheel.cycle_buys", 5)
	v.SetDefault("flywheel.cycle_sells", 5)
	v.SetDefault("flywheel.fee_reserve_sol", 0.01)
	v.SetDefault("flywheel.lease_ttl", "2m")

	v.SetDefault("claims.interval", "60s")
	v.SetDefault("claims.platform_fee_percent", 10.0)
	v.SetDefault("claims.honor_pause", false)

	v.SetDefault("signer.timeout", "30s")
	v.SetDefault("signer.chain_id", "mainnet-beta")

	v.SetDefault("venue.quote_timeout", "5s")
	v.SetDefault("venue.build_timeout", "5s")
	v.SetDefault("venue.claim_timeout", "10s")

	v.SetDefault("oracle.timeout", "5s")
	v.SetDefault("oracle.series_length", 1000)
	v.SetDefault("oracle.sol_mint", "So11111111111111111111111111111111111111112")

	v.SetDefault("reactive.enabled", false)
	v.SetDefault("reactive.allow_heuristic_parse", false)
	v.SetDefault("reactive.max_reconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// applyEnvOverrides maps the documented process environment variables onto
// the config, taking precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if s := os.Getenv("FLYWHEEL_INTERVAL_SECONDS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Flywheel.Interval = time.Duration(n) * time.Second
		}
	}
	if s := os.Getenv("CLAIM_INTERVAL_SECONDS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Claims.Interval = time.Duration(n) * time.Second
		}
	}
	if s := os.Getenv("MAX_TRADES_PER_MINUTE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Flywheel.MaxTradesPerMinute = n
		}
	}
	if s := os.Getenv("MAX_CONCURRENT_TOKENS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Flywheel.MaxConcurrentTokens = n
		}
	}
	if s := os.Getenv("PLATFORM_FEE_PERCENT"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 100 {
			cfg.Claims.PlatformFeePercent = f
		}
	}
	if s := os.Getenv("SIGNER_AUTH_KEY"); s != "" {
		cfg.Signer.AuthKey = s
	}
	if s := os.Getenv("VENUE_API_KEY"); s != "" {
		cfg.Venue.APIKey = s
	}
	if s := os.Getenv("CHAIN_RPC_URL"); s != "" {
		cfg.Chain.RPCURL = s
	}
	if s := os.Getenv("CHAIN_WS_URL"); s != "" {
		cfg.Chain.WSURL = s
	}
	if s := os.Getenv("STORE_URL"); s != "" {
		cfg.Store.URL = s
	}
	if s := os.Getenv("INITIAL_ADMIN_ID"); s != "" {
		cfg.InitialAdminID = s
	}
}

// Validate checks required fields and value ranges. A failure here is a
// fatal initialization error (non-zero exit).
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required (set STORE_URL)")
	}
	if c.Flywheel.Interval <= 0 {
		return fmt.Errorf("flywheel.interval must be > 0")
	}
	if c.Flywheel.MaxTradesPerMinute <= 0 {
		return fmt.Errorf("flywheel.max_trades_per_minute must be > 0")
	}
	if c.Flywheel.MaxConcurrentTokens <= 0 {
		return fmt.Errorf("flywheel.max_concurrent_tokens must be > 0")
	}
	if c.Flywheel.CycleBuys <= 0 || c.Flywheel.CycleSells <= 0 {
		return fmt.Errorf("flywheel cycle sizes must be > 0")
	}
	if c.Flywheel.LeaseTTL <= 0 {
		return fmt.Errorf("flywheel.lease_ttl must be > 0")
	}
	if c.Claims.Interval <= 0 {
		return fmt.Errorf("claims.interval must be > 0")
	}
	if c.Claims.PlatformFeePercent < 0 || c.Claims.PlatformFeePercent > 100 {
		return fmt.Errorf("claims.platform_fee_percent must be in [0, 100]")
	}
	if c.Venue.BagsBaseURL == "" {
		return fmt.Errorf("venue.bags_base_url is required")
	}
	if c.Venue.JupiterBaseURL == "" {
		return fmt.Errorf("venue.jupiter_base_url is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required (set CHAIN_RPC_URL)")
	}
	if c.Reactive.Enabled && c.Chain.WSURL == "" {
		return fmt.Errorf("chain.ws_url is required when reactive is enabled (set CHAIN_WS_URL)")
	}
	return nil
}
