// Package engine is the central orchestrator of the flywheel system.
//
// It wires together all subsystems:
//
//  1. The store holds tokens, per-token config, cycle state, the TWAP queue,
//     and the append-only trade and claim logs.
//  2. The flywheel scheduler ticks on an interval, selects eligible tokens,
//     and runs each under an exclusive per-token lease.
//  3. The claim scheduler independently harvests creator fees and compounds
//     the user's share into the ops wallet.
//  4. The reactive loop (optional) consumes the chain's log feed and mirrors
//     large external swaps.
//  5. The global governor caps trade throughput across everything.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"

	"flywheel-mm/internal/chain"
	"flywheel-mm/internal/config"
	"flywheel-mm/internal/executor"
	"flywheel-mm/internal/market"
	"flywheel-mm/internal/oracle"
	"flywheel-mm/internal/risk"
	"flywheel-mm/internal/signer"
	"flywheel-mm/internal/store"
	"flywheel-mm/internal/venue"
)

// Engine orchestrates all components. It owns the lifecycle of every
// background goroutine.
type Engine struct {
	cfg        config.Config
	store      *store.Store
	signer     *signer.Client
	router     *venue.Router
	oracle     *oracle.Oracle
	rpc        *chain.RPC
	subscriber *chain.Subscriber
	exec       *executor.Executor
	governor   *risk.Governor
	thresholds market.Thresholds
	logger     *slog.Logger

	// sem bounds how many tokens are in flight at once.
	sem chan struct{}

	// lastReactiveAt tracks the per-token reactive cooldown.
	reactiveMu     sync.Mutex
	lastReactiveAt map[string]int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all engine components. The store must be reachable;
// an unreachable store is a fatal initialization error.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	st, err := store.Open(cfg.Store.URL, cfg.Flywheel.LeaseTTL)
	if err != nil {
		return nil, err
	}

	bags := venue.NewBagsClient(cfg.Venue, logger)
	jupiter := venue.NewJupiterClient(cfg.Venue, logger)
	router := venue.NewRouter(bags, jupiter)

	sg := signer.New(cfg.Signer, logger)
	orc := oracle.New(cfg.Oracle, logger)
	rpc := chain.NewRPC(cfg.Chain.RPCURL, logger)

	var sub *chain.Subscriber
	if cfg.Reactive.Enabled {
		sub = chain.NewSubscriber(cfg.Chain.WSURL, cfg.Reactive.MaxReconnects, logger)
	}

	exec := executor.New(st, sg, router, rpc,
		cfg.Oracle.SolMint, cfg.Flywheel.BaseCooldown,
		cfg.Flywheel.CycleBuys, cfg.Flywheel.CycleSells, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:            cfg,
		store:          st,
		signer:         sg,
		router:         router,
		oracle:         orc,
		rpc:            rpc,
		subscriber:     sub,
		exec:           exec,
		governor:       risk.NewGovernor(cfg.Flywheel.MaxTradesPerMinute, logger),
		thresholds:     market.DefaultThresholds(),
		logger:         logger.With("component", "engine"),
		sem:            make(chan struct{}, cfg.Flywheel.MaxConcurrentTokens),
		lastReactiveAt: make(map[string]int64),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start launches the schedulers and, when enabled, the reactive feed.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.flywheelLoop()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.claimsLoop()
	}()

	if e.subscriber != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.subscriber.Run(e.ctx); err != nil && e.ctx.Err() == nil {
				e.logger.Error("log feed stopped", "error", err)
			}
		}()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.reactiveLoop()
		}()
	}

	e.logger.Info("engine started",
		"flywheel_interval", e.cfg.Flywheel.Interval,
		"claim_interval", e.cfg.Claims.Interval,
		"max_concurrent", e.cfg.Flywheel.MaxConcurrentTokens,
		"reactive", e.cfg.Reactive.Enabled,
	)
	return nil
}

// Stop gracefully shuts down: cancels all loops, waits for in-flight token
// work to finish (leases are released on the way out), and closes resources.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()
	e.wg.Wait()

	if e.subscriber != nil {
		e.subscriber.Close()
	}
	e.store.Close()

	e.logger.Info("shutdown complete")
}
