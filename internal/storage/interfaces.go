// Package storage defines the persistence interfaces the monitor depends on.
// Implementations live in the postgres, memory and clickhouse subpackages.
package storage

import (
	"context"
	"time"

	"challenge-monitor/internal/domain"
)

// AccountStore provides access to the challenge account configuration table.
// The monitor mutates only three slices of a config: bootstrap parameters
// (once), the challenge status, and the broker account id. Everything else
// (lock timestamps, evaluation windows) is owned by other subsystems and must
// never be touched by these partial updates.
type AccountStore interface {
	// Insert adds a new account config. Returns ErrDuplicateKey if the email exists.
	Insert(ctx context.Context, cfg *domain.ChallengeConfig) error

	// GetByEmail retrieves a config by its identity key. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*domain.ChallengeConfig, error)

	// ListEligible retrieves active accounts of the given broker types that
	// have credentials present. An empty result is not an error.
	ListEligible(ctx context.Context, brokerTypes []string) ([]*domain.ChallengeConfig, error)

	// List retrieves all account configs, ordered by user email.
	List(ctx context.Context) ([]*domain.ChallengeConfig, error)

	// UpdateChallengeStatus sets only the challenge_status column.
	UpdateChallengeStatus(ctx context.Context, email string, status domain.ChallengeStatus) error

	// UpdateBootstrapParams sets account size, drawdown limit and profit target.
	// Called at most once per account, when the first positive balance is seen.
	UpdateBootstrapParams(ctx context.Context, email string, size, drawdown, target float64) error

	// UpdateBrokerAccountID backfills the broker-assigned account id.
	UpdateBrokerAccountID(ctx context.Context, email, accountID string) error
}

// TradingStateStore provides access to the per-account latest-snapshot table.
// Upserts are keyed by user email: last write wins, never duplicated.
type TradingStateStore interface {
	// Upsert overwrites the full snapshot for the state's user email.
	Upsert(ctx context.Context, state *domain.TradingState) error

	// UpsertError records an error outcome touching only status and updated_at.
	UpsertError(ctx context.Context, email string, at time.Time) error

	// Get retrieves the snapshot for one account. Returns ErrNotFound if absent.
	Get(ctx context.Context, email string) (*domain.TradingState, error)

	// List retrieves all snapshots, ordered by user email.
	List(ctx context.Context) ([]*domain.TradingState, error)
}

// ProfitLedger reads the append-only trade-profit ledger. The monitor never
// writes it; broker-side bridges do.
type ProfitLedger interface {
	// SumSince sums profits recorded for the account at or after since.
	SumSince(ctx context.Context, email string, since time.Time) (float64, error)
}

// EquityHistoryStore archives per-cycle equity observations. Append-only.
type EquityHistoryStore interface {
	Append(ctx context.Context, snap *domain.EquitySnapshot) error
}
