package domain

import "time"

// ChallengeStatus is the lifecycle state of a challenge account.
type ChallengeStatus string

// Challenge status values. Breached and Passed are terminal: once set,
// re-evaluation leaves them unchanged.
const (
	StatusActive   ChallengeStatus = "active"
	StatusBreached ChallengeStatus = "breached"
	StatusPassed   ChallengeStatus = "passed"
	StatusError    ChallengeStatus = "error"
)

// Terminal reports whether the status can never change again.
func (s ChallengeStatus) Terminal() bool {
	return s == StatusBreached || s == StatusPassed
}

// ChallengeConfig is the durable per-account challenge configuration.
// Created externally at onboarding; the monitor mutates only the bootstrap
// parameters (once), the challenge status, and the broker account id backfill.
type ChallengeConfig struct {
	UserEmail        string // identity key
	BrokerType       string
	Credentials      map[string]string // opaque, broker-specific
	AccountSize      float64           // 0 means not yet bootstrapped
	MaxDrawdownLimit float64
	ProfitTarget     float64
	ChallengeStatus  ChallengeStatus
	BrokerAccountID  string
	IsActive         bool
	CreatedAt        time.Time
}

// Bootstrapped reports whether challenge parameters have been initialized.
func (c ChallengeConfig) Bootstrapped() bool {
	return c.AccountSize != 0
}
