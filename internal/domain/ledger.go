package domain

import "time"

// ProfitEntry is one row of the append-only trade-profit ledger.
// The ledger is written by broker-side bridges, never by the monitor;
// the monitor only sums it to derive daily P&L.
type ProfitEntry struct {
	UserEmail string
	Profit    float64
	CreatedAt time.Time
}
