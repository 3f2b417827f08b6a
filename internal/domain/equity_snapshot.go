package domain

import "time"

// EquitySnapshot is one archived observation of an account, appended once per
// successful cycle. Unlike TradingState it is never overwritten.
type EquitySnapshot struct {
	UserEmail  string
	Balance    float64
	Equity     float64
	DailyPnL   float64
	Status     ChallengeStatus
	ObservedAt time.Time
}
