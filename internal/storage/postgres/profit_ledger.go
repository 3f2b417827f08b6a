package postgres

import (
	"context"
	"fmt"
	"time"

	"challenge-monitor/internal/storage"
)

// ProfitLedger implements storage.ProfitLedger using PostgreSQL. The
// profit_table is written by broker-side bridges; this store only reads it.
type ProfitLedger struct {
	pool *Pool
}

// NewProfitLedger creates a new ProfitLedger reader.
func NewProfitLedger(pool *Pool) *ProfitLedger {
	return &ProfitLedger{pool: pool}
}

// Compile-time interface check.
var _ storage.ProfitLedger = (*ProfitLedger)(nil)

// SumSince sums profits recorded for the account at or after since.
// An account with no ledger rows sums to 0.
func (l *ProfitLedger) SumSince(ctx context.Context, email string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(profit), 0)
		FROM profit_table
		WHERE user_email = $1 AND created_at >= $2
	`

	var total float64
	if err := l.pool.QueryRow(ctx, query, email, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum daily profit: %w", err)
	}
	return total, nil
}
