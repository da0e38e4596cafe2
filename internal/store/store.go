// Package store persists strategy configuration, positions, orders,
// fills, and risk events to sqlite via modernc.org/sqlite (pure Go, no
// cgo), the same driver and raw-database/sql style as
// store.StrategyStore, generalized from a single strategies table to
// the engine's broader domain schema.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"quantforge/internal/execution"
	"quantforge/internal/money"
	"quantforge/internal/risk"
	"quantforge/internal/strategy"
)

// Store wraps the engine's sqlite connection. A single *sql.DB is
// shared across tables; sqlite's own locking serializes concurrent
// writers, matching the single-writer-per-source ordering guarantee
// the rest of the engine already assumes for the audit chain.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path and runs
// schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: avoid SQLITE_BUSY under concurrent writers
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS strategy_configs (
			name TEXT PRIMARY KEY,
			config TEXT NOT NULL DEFAULT '{}',
			is_active BOOLEAN DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TRIGGER IF NOT EXISTS trg_strategy_configs_updated_at
			AFTER UPDATE ON strategy_configs
			BEGIN
				UPDATE strategy_configs SET updated_at = CURRENT_TIMESTAMP WHERE name = NEW.name;
			END`,
		`CREATE TABLE IF NOT EXISTS positions (
			account TEXT NOT NULL,
			venue TEXT NOT NULL,
			symbol TEXT NOT NULL,
			qty TEXT NOT NULL,
			avg_entry_px TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			unrealized_pnl TEXT NOT NULL,
			margin_used TEXT NOT NULL,
			liq_px TEXT NOT NULL,
			has_liq_px BOOLEAN DEFAULT 0,
			updated_ts_ms INTEGER NOT NULL,
			PRIMARY KEY (account, venue, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL,
			venue TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			qty TEXT NOT NULL,
			filled_qty TEXT NOT NULL,
			avg_fill_px TEXT NOT NULL,
			status TEXT NOT NULL,
			parent_signal_id TEXT NOT NULL DEFAULT '',
			slice_of TEXT NOT NULL DEFAULT '',
			created_ts_ms INTEGER NOT NULL,
			updated_ts_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE TABLE IF NOT EXISTS fills (
			order_id TEXT NOT NULL,
			qty TEXT NOT NULL,
			px TEXT NOT NULL,
			ts_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_order_id ON fills(order_id)`,
		`CREATE TABLE IF NOT EXISTS risk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module TEXT NOT NULL,
			kind TEXT NOT NULL,
			level TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			account TEXT NOT NULL DEFAULT '',
			ts_ms INTEGER NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_ts ON risk_events(ts_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: schema migration: %w", err)
		}
	}
	return nil
}

// UpsertStrategyConfig stores cfg (marshaled to JSON) under name,
// replacing any prior config for that name.
func (s *Store) UpsertStrategyConfig(name string, cfg interface{}, active bool) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: marshal strategy config: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO strategy_configs (name, config, is_active)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET config = excluded.config, is_active = excluded.is_active
	`, name, string(raw), active)
	if err != nil {
		return fmt.Errorf("store: upsert strategy config %s: %w", name, err)
	}
	return nil
}

// LoadStrategyConfig unmarshals the stored config for name into out
// (a pointer), returning false with a nil error if none exists.
func (s *Store) LoadStrategyConfig(name string, out interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT config FROM strategy_configs WHERE name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: load strategy config %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("store: unmarshal strategy config %s: %w", name, err)
	}
	return true, nil
}

// ListActiveStrategies returns the names of every strategy config
// marked active, for resuming a prior run's running set on restart.
func (s *Store) ListActiveStrategies() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM strategy_configs WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("store: list active strategies: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// UpsertPosition records a position snapshot, keyed on (account, venue,
// symbol).
func (s *Store) UpsertPosition(p risk.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (account, venue, symbol, qty, avg_entry_px, realized_pnl, unrealized_pnl, margin_used, liq_px, has_liq_px, updated_ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, venue, symbol) DO UPDATE SET
			qty = excluded.qty, avg_entry_px = excluded.avg_entry_px,
			realized_pnl = excluded.realized_pnl, unrealized_pnl = excluded.unrealized_pnl,
			margin_used = excluded.margin_used, liq_px = excluded.liq_px,
			has_liq_px = excluded.has_liq_px, updated_ts_ms = excluded.updated_ts_ms
	`, p.Account, p.Venue, p.Symbol, p.Qty.String(), p.AvgEntryPx.String(),
		p.RealizedPnL.String(), p.UnrealizedPnL.String(), p.MarginUsed.String(),
		p.LiqPx.String(), p.HasLiqPx, p.UpdatedTsMs)
	if err != nil {
		return fmt.Errorf("store: upsert position %s/%s: %w", p.Venue, p.Symbol, err)
	}
	return nil
}

// Positions returns every stored position for account, or every
// position across all accounts if account is empty.
func (s *Store) Positions(account string) ([]risk.Position, error) {
	query := `SELECT account, venue, symbol, qty, avg_entry_px, realized_pnl, unrealized_pnl, margin_used, liq_px, has_liq_px, updated_ts_ms FROM positions`
	args := []interface{}{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query positions: %w", err)
	}
	defer rows.Close()

	var out []risk.Position
	for rows.Next() {
		var p risk.Position
		var qty, avgEntry, realized, unrealized, margin, liq string
		if err := rows.Scan(&p.Account, &p.Venue, &p.Symbol, &qty, &avgEntry, &realized, &unrealized, &margin, &liq, &p.HasLiqPx, &p.UpdatedTsMs); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		p.Qty, _ = money.FromString(qty)
		p.AvgEntryPx, _ = money.FromString(avgEntry)
		p.RealizedPnL, _ = money.FromString(realized)
		p.UnrealizedPnL, _ = money.FromString(unrealized)
		p.MarginUsed, _ = money.FromString(margin)
		p.LiqPx, _ = money.FromString(liq)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertOrder records an order's current state, keyed on its
// engine-assigned Order.ID.
func (s *Store) UpsertOrder(o execution.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (id, client_id, symbol, venue, side, type, qty, filled_qty, avg_fill_px, status, parent_signal_id, slice_of, created_ts_ms, updated_ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filled_qty = excluded.filled_qty, avg_fill_px = excluded.avg_fill_px,
			status = excluded.status, updated_ts_ms = excluded.updated_ts_ms
	`, o.ID, o.ClientID, o.Symbol, o.Venue, string(o.Side), string(o.Type),
		o.Qty.String(), o.FilledQty.String(), o.AvgFillPx.String(), string(o.Status),
		o.ParentSignalID, o.SliceOf, o.CreatedTsMs, o.UpdatedTsMs)
	if err != nil {
		return fmt.Errorf("store: upsert order %s: %w", o.ID, err)
	}
	return nil
}

// RecordFill appends a fill row tied to orderID.
func (s *Store) RecordFill(f execution.Fill) error {
	_, err := s.db.Exec(`INSERT INTO fills (order_id, qty, px, ts_ms) VALUES (?, ?, ?, ?)`,
		f.OrderID, f.Qty.String(), f.Px.String(), f.TsMs)
	if err != nil {
		return fmt.Errorf("store: record fill for order %s: %w", f.OrderID, err)
	}
	return nil
}

// OpenOrders returns every order whose status is not terminal
// (filled/cancelled/rejected), for reconciling working orders on
// restart.
func (s *Store) OpenOrders() ([]execution.Order, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, symbol, venue, side, type, qty, filled_qty, avg_fill_px, status, parent_signal_id, slice_of, created_ts_ms, updated_ts_ms
		FROM orders WHERE status IN (?, ?)
	`, execution.StatusNew, execution.StatusPartial)
	if err != nil {
		return nil, fmt.Errorf("store: query open orders: %w", err)
	}
	defer rows.Close()

	var out []execution.Order
	for rows.Next() {
		var o execution.Order
		var side, typ, qty, filled, avgPx, status string
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Symbol, &o.Venue, &side, &typ, &qty, &filled, &avgPx, &status, &o.ParentSignalID, &o.SliceOf, &o.CreatedTsMs, &o.UpdatedTsMs); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		o.Side, o.Type, o.Status = strategy.Side(side), strategy.OrderType(typ), execution.OrderStatus(status)
		o.Qty, _ = money.FromString(qty)
		o.FilledQty, _ = money.FromString(filled)
		o.AvgFillPx, _ = money.FromString(avgPx)
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecordRiskEvent appends an audited risk-pipeline event to the
// relational history (in addition to, not instead of, the audit
// sink's hash-chained log).
func (s *Store) RecordRiskEvent(ev risk.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal risk event payload: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO risk_events (module, kind, level, symbol, account, ts_ms, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Module, ev.Kind, string(ev.Level), ev.Symbol, ev.Account, ev.TsMs, string(payload))
	if err != nil {
		return fmt.Errorf("store: record risk event: %w", err)
	}
	return nil
}

// RecentRiskEvents returns up to limit risk events at or after
// sinceMs, most recent first, for the status/query_account control
// surface.
func (s *Store) RecentRiskEvents(sinceMs int64, limit int) ([]risk.Event, error) {
	rows, err := s.db.Query(`
		SELECT module, kind, level, symbol, account, ts_ms, payload FROM risk_events
		WHERE ts_ms >= ? ORDER BY ts_ms DESC LIMIT ?
	`, sinceMs, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query risk events: %w", err)
	}
	defer rows.Close()

	var out []risk.Event
	for rows.Next() {
		var ev risk.Event
		var level, payload string
		if err := rows.Scan(&ev.Module, &ev.Kind, &level, &ev.Symbol, &ev.Account, &ev.TsMs, &payload); err != nil {
			return nil, fmt.Errorf("store: scan risk event: %w", err)
		}
		ev.Level = risk.Level(level)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("store: unmarshal risk event payload: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
