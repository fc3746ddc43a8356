// Flywheel — an autonomous multi-tenant market-making engine for
// bonding-curve tokens and their graduated AMM markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: wires store → signer → venues → oracle → executor
//	engine/flywheel.go   — periodic trading scheduler: per-token lease, decide, execute
//	engine/claims.go     — fee-claim scheduler: harvest creator fees, split, compound into ops
//	engine/reactive.go   — mirrors large external swaps seen on the chain log feed
//	strategy/            — algorithm modes (simple, rebalance, twap_vwap, dynamic, turbo_lite)
//	market/detector.go   — classifies oracle output into pump/dump/ranging/normal/extreme
//	oracle/              — price feed plus rolling EMA/RSI/volatility series per mint
//	venue/               — REST clients for the bonding-curve venue and the AMM aggregator
//	signer/              — remote wallet custody: sign-and-send with a closed error taxonomy
//	chain/               — JSON-RPC balance reads and the WebSocket log subscriber
//	executor/            — quote → build → sign pipeline, claim split, state settlement
//	store/               — SQL persistence (Postgres or embedded SQLite) with per-token leases
//
// How it makes money:
//
//	Each managed token earns creator fees on every swap of its bonding curve.
//	The engine trades the token on a cycle, generating volume that produces
//	fees; the claim scheduler harvests those fees and moves the user's share
//	into the ops wallet, growing the capital the next cycle trades with.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"flywheel-mm/internal/config"
	"flywheel-mm/internal/engine"
)

func main() {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FLYWHEEL_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("flywheel engine started",
		"flywheel_interval", cfg.Flywheel.Interval,
		"claim_interval", cfg.Claims.Interval,
		"max_trades_per_minute", cfg.Flywheel.MaxTradesPerMinute,
		"reactive", cfg.Reactive.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
