package clickhouse

import (
	"context"
	"fmt"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// EquityHistoryStore implements storage.EquityHistoryStore using ClickHouse.
// equity_history is an append-only archive of per-cycle observations; the
// current-snapshot table stays in Postgres.
type EquityHistoryStore struct {
	conn *Conn
}

// NewEquityHistoryStore creates a new EquityHistoryStore.
func NewEquityHistoryStore(conn *Conn) *EquityHistoryStore {
	return &EquityHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityHistoryStore = (*EquityHistoryStore)(nil)

// Append writes one observation row.
func (s *EquityHistoryStore) Append(ctx context.Context, snap *domain.EquitySnapshot) error {
	if snap == nil || snap.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO equity_history (
			user_email, balance, equity, daily_pnl, status, observed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		snap.UserEmail,
		snap.Balance,
		snap.Equity,
		snap.DailyPnL,
		string(snap.Status),
		snap.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("append equity snapshot: %w", err)
	}
	return nil
}
