package postgres

import (
	"context"
	"fmt"
	"time"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// TradingStateStore implements storage.TradingStateStore using PostgreSQL.
// trading_states holds exactly one row per user email; every write is an
// upsert with last-write-wins semantics on conflict.
type TradingStateStore struct {
	pool *Pool
}

// NewTradingStateStore creates a new TradingStateStore.
func NewTradingStateStore(pool *Pool) *TradingStateStore {
	return &TradingStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradingStateStore = (*TradingStateStore)(nil)

// Upsert overwrites the full snapshot for the state's user email.
func (s *TradingStateStore) Upsert(ctx context.Context, state *domain.TradingState) error {
	if state == nil || state.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_states (
			user_email, balance, equity, currency, daily_pnl, status,
			last_trade_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_email) DO UPDATE SET
			balance = EXCLUDED.balance,
			equity = EXCLUDED.equity,
			currency = EXCLUDED.currency,
			daily_pnl = EXCLUDED.daily_pnl,
			status = EXCLUDED.status,
			last_trade_at = EXCLUDED.last_trade_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		state.UserEmail,
		state.Balance,
		state.Equity,
		state.Currency,
		state.DailyPnL,
		string(state.Status),
		state.LastTradeAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert trading state: %w", err)
	}
	return nil
}

// UpsertError records an error outcome. Only status and updated_at change;
// the last known numeric fields are preserved for an existing row.
func (s *TradingStateStore) UpsertError(ctx context.Context, email string, at time.Time) error {
	if email == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_states (user_email, status, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_email) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, email, string(domain.StatusError), at)
	if err != nil {
		return fmt.Errorf("upsert error state: %w", err)
	}
	return nil
}

// Get retrieves the snapshot for one account. Returns ErrNotFound if absent.
func (s *TradingStateStore) Get(ctx context.Context, email string) (*domain.TradingState, error) {
	row := s.pool.QueryRow(ctx, stateSelect+` WHERE user_email = $1`, email)
	state, err := scanTradingState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trading state: %w", err)
	}
	return state, nil
}

// List retrieves all snapshots, ordered by user email.
func (s *TradingStateStore) List(ctx context.Context) ([]*domain.TradingState, error) {
	rows, err := s.pool.Query(ctx, stateSelect+` ORDER BY user_email ASC`)
	if err != nil {
		return nil, fmt.Errorf("list trading states: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradingState
	for rows.Next() {
		state, err := scanTradingState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trading state: %w", err)
		}
		result = append(result, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trading states: %w", err)
	}
	return result, nil
}

const stateSelect = `
	SELECT user_email, balance, equity, currency, daily_pnl, status,
	       last_trade_at, updated_at
	FROM trading_states
`

func scanTradingState(row rowScanner) (*domain.TradingState, error) {
	var state domain.TradingState
	var status string
	err := row.Scan(
		&state.UserEmail,
		&state.Balance,
		&state.Equity,
		&state.Currency,
		&state.DailyPnL,
		&status,
		&state.LastTradeAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	state.Status = domain.ChallengeStatus(status)
	return &state, nil
}
