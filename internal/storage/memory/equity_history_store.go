package memory

import (
	"context"
	"sync"

	"challenge-monitor/internal/domain"
	"challenge-monitor/internal/storage"
)

// EquityHistoryStore is an in-memory implementation of storage.EquityHistoryStore.
type EquityHistoryStore struct {
	mu    sync.RWMutex
	snaps []domain.EquitySnapshot
}

// NewEquityHistoryStore creates a new in-memory equity history store.
func NewEquityHistoryStore() *EquityHistoryStore {
	return &EquityHistoryStore{}
}

// Compile-time interface check.
var _ storage.EquityHistoryStore = (*EquityHistoryStore)(nil)

// Append writes one observation row.
func (s *EquityHistoryStore) Append(_ context.Context, snap *domain.EquitySnapshot) error {
	if snap == nil || snap.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, *snap)
	return nil
}

// All returns a copy of every archived snapshot, in append order.
func (s *EquityHistoryStore) All() []domain.EquitySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.EquitySnapshot, len(s.snaps))
	copy(out, s.snaps)
	return out
}
