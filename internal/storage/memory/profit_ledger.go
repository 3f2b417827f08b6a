package memory

import (
	"context"
	"sync"
	"time"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// ProfitLedger is an in-memory implementation of storage.ProfitLedger.
// Record seeds entries for tests and the --use-memory mode; the interface
// itself stays read-only, matching the production ledger.
type ProfitLedger struct {
	mu      sync.RWMutex
	entries []domain.ProfitEntry
}

// NewProfitLedger creates a new in-memory profit ledger.
func NewProfitLedger() *ProfitLedger {
	return &ProfitLedger{}
}

// Compile-time interface check.
var _ storage.ProfitLedger = (*ProfitLedger)(nil)

// Record appends a ledger entry. Not part of storage.ProfitLedger.
func (l *ProfitLedger) Record(entry domain.ProfitEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// SumSince sums profits recorded for the account at or after since.
func (l *ProfitLedger) SumSince(_ context.Context, email string, since time.Time) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, e := range l.entries {
		if e.UserEmail == email && !e.CreatedAt.Before(since) {
			total += e.Profit
		}
	}
	return total, nil
}
