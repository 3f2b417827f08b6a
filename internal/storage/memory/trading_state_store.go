package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// TradingStateStore is an in-memory implementation of storage.TradingStateStore.
type TradingStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradingState // keyed by user_email
}

// NewTradingStateStore creates a new in-memory trading state store.
func NewTradingStateStore() *TradingStateStore {
	return &TradingStateStore{
		data: make(map[string]*domain.TradingState),
	}
}

// Compile-time interface check.
var _ storage.TradingStateStore = (*TradingStateStore)(nil)

// Upsert overwrites the full snapshot for the state's user email.
func (s *TradingStateStore) Upsert(_ context.Context, state *domain.TradingState) error {
	if state == nil || state.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stateCopy := *state
	s.data[state.UserEmail] = &stateCopy
	return nil
}

// UpsertError records an error outcome touching only status and updated_at.
func (s *TradingStateStore) UpsertError(_ context.Context, email string, at time.Time) error {
	if email == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.data[email]
	if !exists {
		state = &domain.TradingState{UserEmail: email, Currency: "USD"}
		s.data[email] = state
	}
	state.Status = domain.StatusError
	state.UpdatedAt = at
	return nil
}

// Get retrieves the snapshot for one account. Returns ErrNotFound if absent.
func (s *TradingStateStore) Get(_ context.Context, email string) (*domain.TradingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.data[email]
	if !exists {
		return nil, storage.ErrNotFound
	}
	stateCopy := *state
	return &stateCopy, nil
}

// List retrieves all snapshots, ordered by user email.
func (s *TradingStateStore) List(_ context.Context) ([]*domain.TradingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TradingState, 0, len(s.data))
	for _, state := range s.data {
		stateCopy := *state
		result = append(result, &stateCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserEmail < result[j].UserEmail
	})
	return result, nil
}
