package memory

import (
	"context"
	"sort"
	"sync"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ChallengeConfig // keyed by user_email
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]*domain.ChallengeConfig),
	}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Insert adds a new account config. Returns ErrDuplicateKey if the email exists.
func (s *AccountStore) Insert(_ context.Context, cfg *domain.ChallengeConfig) error {
	if cfg == nil || cfg.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[cfg.UserEmail]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[cfg.UserEmail] = copyConfig(cfg)
	return nil
}

// GetByEmail retrieves a config by its identity key. Returns ErrNotFound if absent.
func (s *AccountStore) GetByEmail(_ context.Context, email string) (*domain.ChallengeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.data[email]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyConfig(cfg), nil
}

// ListEligible retrieves active accounts of the given broker types that have
// credentials present, ordered by user email.
func (s *AccountStore) ListEligible(_ context.Context, brokerTypes []string) ([]*domain.ChallengeConfig, error) {
	wanted := make(map[string]bool, len(brokerTypes))
	for _, bt := range brokerTypes {
		wanted[bt] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ChallengeConfig
	for _, cfg := range s.data {
		if cfg.IsActive && wanted[cfg.BrokerType] && len(cfg.Credentials) > 0 {
			result = append(result, copyConfig(cfg))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserEmail < result[j].UserEmail
	})
	return result, nil
}

// List retrieves all account configs, ordered by user email.
func (s *AccountStore) List(_ context.Context) ([]*domain.ChallengeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ChallengeConfig, 0, len(s.data))
	for _, cfg := range s.data {
		result = append(result, copyConfig(cfg))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserEmail < result[j].UserEmail
	})
	return result, nil
}

// UpdateChallengeStatus sets only the challenge status.
func (s *AccountStore) UpdateChallengeStatus(_ context.Context, email string, status domain.ChallengeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, exists := s.data[email]
	if !exists {
		return storage.ErrNotFound
	}
	cfg.ChallengeStatus = status
	return nil
}

// UpdateBootstrapParams sets the one-time challenge parameters.
func (s *AccountStore) UpdateBootstrapParams(_ context.Context, email string, size, drawdown, target float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, exists := s.data[email]
	if !exists {
		return storage.ErrNotFound
	}
	cfg.AccountSize = size
	cfg.MaxDrawdownLimit = drawdown
	cfg.ProfitTarget = target
	return nil
}

// UpdateBrokerAccountID backfills the broker-assigned account id.
func (s *AccountStore) UpdateBrokerAccountID(_ context.Context, email, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, exists := s.data[email]
	if !exists {
		return storage.ErrNotFound
	}
	cfg.BrokerAccountID = accountID
	return nil
}

// copyConfig deep-copies a config to prevent external mutation.
func copyConfig(cfg *domain.ChallengeConfig) *domain.ChallengeConfig {
	out := *cfg
	if cfg.Credentials != nil {
		out.Credentials = make(map[string]string, len(cfg.Credentials))
		for k, v := range cfg.Credentials {
			out.Credentials[k] = v
		}
	}
	return &out
}
