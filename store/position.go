package store

import (
	"database/sql"
	"fmt"
	"time"

	"tradepulse/types"
)

// PositionStore persists the managed position book. One row per symbol;
// writes are upserts so the tick loop can persist freely.
type PositionStore struct {
	db *sql.DB
}

func (s *PositionStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS managed_positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL UNIQUE,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			amount REAL NOT NULL,
			initial_amount REAL NOT NULL,
			stop_loss REAL NOT NULL,
			initial_stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			leverage INTEGER NOT NULL DEFAULT 1,
			pnl REAL NOT NULL DEFAULT 0,
			pnl_percent REAL NOT NULL DEFAULT 0,
			current_price REAL NOT NULL DEFAULT 0,
			trailing_active INTEGER NOT NULL DEFAULT 0,
			partial_tp_done INTEGER NOT NULL DEFAULT 0,
			bailout_armed INTEGER NOT NULL DEFAULT 0,
			bailout_extremum REAL NOT NULL DEFAULT 0,
			bailout_recovery_target REAL NOT NULL DEFAULT 0,
			bailout_triggered INTEGER NOT NULL DEFAULT 0,
			entry_order_id INTEGER NOT NULL DEFAULT 0,
			sl_order_id INTEGER NOT NULL DEFAULT 0,
			tp_order_id INTEGER NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create managed_positions table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the row for the position's symbol.
func (s *PositionStore) Upsert(pos *types.Position) error {
	pos.UpdatedAt = time.Now().UTC()
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = pos.UpdatedAt
	}

	_, err := s.db.Exec(`
		INSERT INTO managed_positions (
			symbol, side, entry_price, amount, initial_amount,
			stop_loss, initial_stop_loss, take_profit, leverage,
			pnl, pnl_percent, current_price,
			trailing_active, partial_tp_done,
			bailout_armed, bailout_extremum, bailout_recovery_target, bailout_triggered,
			entry_order_id, sl_order_id, tp_order_id,
			opened_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			entry_price = excluded.entry_price,
			amount = excluded.amount,
			initial_amount = excluded.initial_amount,
			stop_loss = excluded.stop_loss,
			initial_stop_loss = excluded.initial_stop_loss,
			take_profit = excluded.take_profit,
			leverage = excluded.leverage,
			pnl = excluded.pnl,
			pnl_percent = excluded.pnl_percent,
			current_price = excluded.current_price,
			trailing_active = excluded.trailing_active,
			partial_tp_done = excluded.partial_tp_done,
			bailout_armed = excluded.bailout_armed,
			bailout_extremum = excluded.bailout_extremum,
			bailout_recovery_target = excluded.bailout_recovery_target,
			bailout_triggered = excluded.bailout_triggered,
			entry_order_id = excluded.entry_order_id,
			sl_order_id = excluded.sl_order_id,
			tp_order_id = excluded.tp_order_id,
			updated_at = excluded.updated_at
	`,
		pos.Symbol, pos.Side, pos.EntryPrice, pos.Amount, pos.InitialAmount,
		pos.StopLoss, pos.InitialStopLoss, pos.TakeProfit, pos.Leverage,
		pos.PnL, pos.PnLPercent, pos.CurrentPrice,
		boolInt(pos.TrailingActive), boolInt(pos.PartialTPDone),
		boolInt(pos.BailoutArmed), pos.BailoutExtremum, pos.BailoutRecoveryTarget, boolInt(pos.BailoutTriggered),
		pos.EntryOrderID, pos.SLOrderID, pos.TPOrderID,
		pos.OpenedAt.Format(time.RFC3339), pos.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.Symbol, err)
	}

	if pos.ID == 0 {
		s.db.QueryRow(`SELECT id FROM managed_positions WHERE symbol = ?`, pos.Symbol).Scan(&pos.ID)
	}
	return nil
}

// Get returns the position for symbol, nil when absent.
func (s *PositionStore) Get(symbol string) (*types.Position, error) {
	row := s.db.QueryRow(selectPosition+` WHERE symbol = ?`, symbol)
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position %s: %w", symbol, err)
	}
	return pos, nil
}

// All returns every managed position, oldest first.
func (s *PositionStore) All() ([]*types.Position, error) {
	rows, err := s.db.Query(selectPosition + ` ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// Delete removes the position for symbol.
func (s *PositionStore) Delete(symbol string) error {
	_, err := s.db.Exec(`DELETE FROM managed_positions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	return nil
}

// Count returns the number of managed positions.
func (s *PositionStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM managed_positions`).Scan(&n)
	return n, err
}

const selectPosition = `
	SELECT id, symbol, side, entry_price, amount, initial_amount,
		stop_loss, initial_stop_loss, take_profit, leverage,
		pnl, pnl_percent, current_price,
		trailing_active, partial_tp_done,
		bailout_armed, bailout_extremum, bailout_recovery_target, bailout_triggered,
		entry_order_id, sl_order_id, tp_order_id,
		opened_at, updated_at
	FROM managed_positions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*types.Position, error) {
	var pos types.Position
	var trailing, partial, armed, triggered int
	var openedAt, updatedAt sql.NullString

	err := row.Scan(
		&pos.ID, &pos.Symbol, &pos.Side, &pos.EntryPrice, &pos.Amount, &pos.InitialAmount,
		&pos.StopLoss, &pos.InitialStopLoss, &pos.TakeProfit, &pos.Leverage,
		&pos.PnL, &pos.PnLPercent, &pos.CurrentPrice,
		&trailing, &partial,
		&armed, &pos.BailoutExtremum, &pos.BailoutRecoveryTarget, &triggered,
		&pos.EntryOrderID, &pos.SLOrderID, &pos.TPOrderID,
		&openedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	pos.TrailingActive = trailing != 0
	pos.PartialTPDone = partial != 0
	pos.BailoutArmed = armed != 0
	pos.BailoutTriggered = triggered != 0
	pos.OpenedAt = parseTime(openedAt)
	pos.UpdatedAt = parseTime(updatedAt)
	return &pos, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
