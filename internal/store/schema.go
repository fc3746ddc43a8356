package store

// Schema statements are written in the dialect subset shared by Postgres
// and SQLite. Monetary columns are NUMERIC and scan into decimal.Decimal.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		wallet_id  TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		address    TEXT NOT NULL,
		type       TEXT NOT NULL,
		chain_type TEXT NOT NULL,
		UNIQUE (tenant_id, type)
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		token_id      TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		mint_address  TEXT NOT NULL,
		symbol        TEXT NOT NULL,
		decimals      INTEGER NOT NULL,
		dev_wallet_id TEXT NOT NULL REFERENCES wallets(wallet_id),
		ops_wallet_id TEXT NOT NULL REFERENCES wallets(wallet_id),
		active        BOOLEAN NOT NULL,
		graduated     BOOLEAN NOT NULL,
		created_at    TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, mint_address)
	)`,
	`CREATE TABLE IF NOT EXISTS token_config (
		token_id                      TEXT PRIMARY KEY REFERENCES tokens(token_id),
		flywheel_active               BOOLEAN NOT NULL,
		auto_claim_enabled            BOOLEAN NOT NULL,
		market_making_enabled         BOOLEAN NOT NULL,
		fee_threshold_sol             NUMERIC NOT NULL,
		slippage_bps                  INTEGER NOT NULL,
		trading_route                 TEXT NOT NULL,
		algorithm_mode                TEXT NOT NULL,
		buy_percent                   INTEGER NOT NULL,
		sell_percent                  INTEGER NOT NULL,
		min_buy_sol                   NUMERIC NOT NULL,
		max_buy_sol                   NUMERIC NOT NULL,
		target_sol_allocation         INTEGER NOT NULL,
		target_token_allocation       INTEGER NOT NULL,
		rebalance_threshold           INTEGER NOT NULL,
		twap_enabled                  BOOLEAN NOT NULL,
		twap_slices                   INTEGER NOT NULL,
		twap_window_minutes           INTEGER NOT NULL,
		twap_threshold_usd            NUMERIC NOT NULL,
		vwap_enabled                  BOOLEAN NOT NULL,
		vwap_participation_rate       INTEGER NOT NULL,
		vwap_min_volume_usd           NUMERIC NOT NULL,
		dynamic_fee_enabled           BOOLEAN NOT NULL,
		reserve_percent_normal        INTEGER NOT NULL,
		reserve_percent_adverse       INTEGER NOT NULL,
		min_sell_percent              INTEGER NOT NULL,
		max_sell_percent              INTEGER NOT NULL,
		buyback_boost_on_dump         BOOLEAN NOT NULL,
		pause_on_extreme_volatility   BOOLEAN NOT NULL,
		volatility_pause_threshold    REAL NOT NULL,
		reactive_enabled              BOOLEAN NOT NULL,
		reactive_min_trigger_sol      NUMERIC NOT NULL,
		reactive_scale_percent        INTEGER NOT NULL,
		reactive_max_response_percent INTEGER NOT NULL,
		reactive_cooldown_ms          INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS flywheel_state (
		token_id                  TEXT PRIMARY KEY REFERENCES tokens(token_id),
		cycle_phase               TEXT NOT NULL,
		buy_count                 INTEGER NOT NULL,
		sell_count                INTEGER NOT NULL,
		sell_phase_token_snapshot NUMERIC NOT NULL,
		sell_amount_per_tx        NUMERIC NOT NULL,
		last_trade_at             TIMESTAMP,
		consecutive_failures      INTEGER NOT NULL,
		total_failures            INTEGER NOT NULL,
		last_failure_reason       TEXT,
		last_failure_at           TIMESTAMP,
		paused_until              TIMESTAMP,
		last_checked_at           TIMESTAMP,
		last_check_result         TEXT,
		market_condition          TEXT NOT NULL,
		previous_market_condition TEXT NOT NULL,
		last_condition_change_at  TIMESTAMP,
		reserve_balance_sol       NUMERIC NOT NULL,
		lease_owner               TEXT,
		lease_until               TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS twap_queue (
		id               TEXT PRIMARY KEY,
		token_id         TEXT NOT NULL REFERENCES tokens(token_id),
		trade_type       TEXT NOT NULL,
		total_amount     NUMERIC NOT NULL,
		slice_size       NUMERIC NOT NULL,
		slices_remaining INTEGER NOT NULL,
		slices_total     INTEGER NOT NULL,
		next_execute_at  TIMESTAMP NOT NULL,
		interval_minutes INTEGER NOT NULL,
		created_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id            TEXT PRIMARY KEY,
		token_id      TEXT NOT NULL REFERENCES tokens(token_id),
		type          TEXT NOT NULL,
		amount        NUMERIC NOT NULL,
		signature     TEXT,
		status        TEXT NOT NULL,
		message       TEXT,
		trading_route TEXT,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS claim_history (
		id                TEXT PRIMARY KEY,
		token_id          TEXT NOT NULL REFERENCES tokens(token_id),
		amount_sol        NUMERIC NOT NULL,
		platform_fee_sol  NUMERIC NOT NULL,
		user_received_sol NUMERIC NOT NULL,
		signature         TEXT,
		status            TEXT NOT NULL,
		claimed_at        TIMESTAMP NOT NULL,
		completed_at      TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_token_created ON transactions (token_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_token_claimed ON claim_history (token_id, claimed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_twap_token_next ON twap_queue (token_id, next_execute_at)`,
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
