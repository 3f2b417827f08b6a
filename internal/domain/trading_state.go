package domain

import "time"

// TradingState is the latest observed state of one account. One row per
// UserEmail, overwritten every cycle: a current-snapshot table, not a
// time series (EquitySnapshot is the time series).
type TradingState struct {
	UserEmail   string // unique key
	Balance     float64
	Equity      float64
	Currency    string
	DailyPnL    float64
	Status      ChallengeStatus
	LastTradeAt *time.Time
	UpdatedAt   time.Time
}
