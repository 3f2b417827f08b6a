package domain

import "time"

// AccountState is the unified snapshot returned by every broker adapter fetch.
// It is transient: produced per fetch, folded into a TradingState, discarded.
type AccountState struct {
	Balance       float64
	Equity        float64
	Currency      string
	UnrealizedPnL float64
	DailyPnL      float64
	LastTradeAt   *time.Time
	AccountID     string // broker-assigned id, empty if the broker exposes none
	Err           string // non-empty means the fetch failed; numeric fields are not meaningful
}

// Valid reports whether the state was fetched successfully.
// When Valid, Equity == Balance + UnrealizedPnL holds.
func (s AccountState) Valid() bool {
	return s.Err == ""
}

// ErrorState builds an AccountState carrying only a failure message.
func ErrorState(msg string) AccountState {
	return AccountState{Currency: "USD", Err: msg}
}
