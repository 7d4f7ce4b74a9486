package saga

import (
	"context"

	"github.com/sasha-s/go-deadlock"
)

// StateStore persists finalization records so that a restarted process can resume a saga.
type StateStore interface {
	Load(ctx context.Context, agreementID string) (FinalizationStatus, bool, error)
	Save(ctx context.Context, status FinalizationStatus) error
}

type MemoryStateStore struct {
	mu       *deadlock.RWMutex
	statuses map[string]FinalizationStatus
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		mu:       &deadlock.RWMutex{},
		statuses: make(map[string]FinalizationStatus),
	}
}

func (s *MemoryStateStore) Load(_ context.Context, agreementID string) (FinalizationStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[agreementID]
	return status, ok, nil
}

func (s *MemoryStateStore) Save(_ context.Context, status FinalizationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[status.AgreementID] = status
	return nil
}
