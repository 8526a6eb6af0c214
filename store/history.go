package store

import (
	"database/sql"
	"fmt"
	"time"

	"tradepulse/types"
)

// HistoryStore is the append-only closed-trade log.
type HistoryStore struct {
	db *sql.DB
}

func (s *HistoryStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			amount REAL NOT NULL,
			pnl REAL NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trade_history table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_closed ON trade_history(closed_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}
	return nil
}

// Append records one closed trade.
func (s *HistoryStore) Append(rec *types.TradeRecord) error {
	if rec.ClosedAt.IsZero() {
		rec.ClosedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO trade_history (symbol, side, entry_price, exit_price, amount, pnl, reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Symbol, rec.Side, rec.EntryPrice, rec.ExitPrice, rec.Amount, rec.PnL, rec.Reason,
		rec.OpenedAt.Format(time.RFC3339), rec.ClosedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade history: %w", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// Recent returns the newest limit trades.
func (s *HistoryStore) Recent(limit int) ([]*types.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, symbol, side, entry_price, exit_price, amount, pnl, reason, opened_at, closed_at
		FROM trade_history ORDER BY closed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	var out []*types.TradeRecord
	for rows.Next() {
		var rec types.TradeRecord
		var openedAt, closedAt sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.Symbol, &rec.Side, &rec.EntryPrice, &rec.ExitPrice,
			&rec.Amount, &rec.PnL, &rec.Reason, &openedAt, &closedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade history: %w", err)
		}
		rec.OpenedAt = parseTime(openedAt)
		rec.ClosedAt = parseTime(closedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// TotalPnL sums realized PnL over all closed trades. The simulated balance
// is VIRTUAL_BALANCE plus this.
func (s *HistoryStore) TotalPnL() (float64, error) {
	var total float64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(pnl), 0) FROM trade_history`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum pnl: %w", err)
	}
	return total, nil
}
