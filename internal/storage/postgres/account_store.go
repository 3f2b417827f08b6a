package postgres

import (
	"context"
	"fmt"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Insert adds a new account config. Returns ErrDuplicateKey if the email exists.
func (s *AccountStore) Insert(ctx context.Context, cfg *domain.ChallengeConfig) error {
	if cfg == nil || cfg.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO user_accounts (
			user_email, broker_type, broker_credentials, account_size,
			max_drawdown_limit, profit_target, challenge_status,
			broker_account_id, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		cfg.UserEmail,
		cfg.BrokerType,
		cfg.Credentials,
		cfg.AccountSize,
		cfg.MaxDrawdownLimit,
		cfg.ProfitTarget,
		string(cfg.ChallengeStatus),
		cfg.BrokerAccountID,
		cfg.IsActive,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByEmail retrieves a config by its identity key. Returns ErrNotFound if absent.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*domain.ChallengeConfig, error) {
	query := accountSelect + ` WHERE user_email = $1`

	row := s.pool.QueryRow(ctx, query, email)
	cfg, err := scanAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return cfg, nil
}

// ListEligible retrieves active accounts of the given broker types that have
// credentials present, ordered by user email.
func (s *AccountStore) ListEligible(ctx context.Context, brokerTypes []string) ([]*domain.ChallengeConfig, error) {
	query := accountSelect + `
		WHERE broker_type = ANY($1)
		  AND is_active
		  AND broker_credentials IS NOT NULL
		  AND broker_credentials <> '{}'::jsonb
		ORDER BY user_email ASC
	`

	rows, err := s.pool.Query(ctx, query, brokerTypes)
	if err != nil {
		return nil, fmt.Errorf("list eligible accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.ChallengeConfig
	for rows.Next() {
		cfg, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

// List retrieves all account configs, ordered by user email.
func (s *AccountStore) List(ctx context.Context) ([]*domain.ChallengeConfig, error) {
	rows, err := s.pool.Query(ctx, accountSelect+` ORDER BY user_email ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.ChallengeConfig
	for rows.Next() {
		cfg, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

// UpdateChallengeStatus sets only the challenge_status column. Other columns
// (lock timestamps, evaluation windows) are owned elsewhere and stay untouched.
func (s *AccountStore) UpdateChallengeStatus(ctx context.Context, email string, status domain.ChallengeStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_accounts SET challenge_status = $2 WHERE user_email = $1`,
		email, string(status),
	)
	if err != nil {
		return fmt.Errorf("update challenge status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateBootstrapParams sets the one-time challenge parameters.
func (s *AccountStore) UpdateBootstrapParams(ctx context.Context, email string, size, drawdown, target float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_accounts
		 SET account_size = $2, max_drawdown_limit = $3, profit_target = $4
		 WHERE user_email = $1`,
		email, size, drawdown, target,
	)
	if err != nil {
		return fmt.Errorf("update bootstrap params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateBrokerAccountID backfills the broker-assigned account id.
func (s *AccountStore) UpdateBrokerAccountID(ctx context.Context, email, accountID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_accounts SET broker_account_id = $2 WHERE user_email = $1`,
		email, accountID,
	)
	if err != nil {
		return fmt.Errorf("update broker account id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const accountSelect = `
	SELECT user_email, broker_type, broker_credentials, account_size,
	       max_drawdown_limit, profit_target, challenge_status,
	       broker_account_id, is_active, created_at
	FROM user_accounts
`

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.ChallengeConfig, error) {
	var cfg domain.ChallengeConfig
	var status string
	err := row.Scan(
		&cfg.UserEmail,
		&cfg.BrokerType,
		&cfg.Credentials,
		&cfg.AccountSize,
		&cfg.MaxDrawdownLimit,
		&cfg.ProfitTarget,
		&status,
		&cfg.BrokerAccountID,
		&cfg.IsActive,
		&cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.ChallengeStatus = domain.ChallengeStatus(status)
	return &cfg, nil
}
