package state

import (
	"context"
	"sync"

	"github.com/rzbill/berth/pkg/types"
)

// Validate that MemoryStore implements the Store interface
var _ Store = &MemoryStore{}

// MemoryStore is an in-memory Store implementation for tests.
type MemoryStore struct {
	mu      sync.Mutex
	applied map[string]*AppliedSpec
	runs    []*types.DeployReport
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{applied: make(map[string]*AppliedSpec)}
}

// GetApplied returns a service's last-applied spec record, if any.
func (s *MemoryStore) GetApplied(ctx context.Context, service string) (*AppliedSpec, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.applied[service]
	if !ok {
		return nil, false, nil
	}
	copied := *rec
	return &copied, true, nil
}

// PutApplied records a service's applied spec fingerprint.
func (s *MemoryStore) PutApplied(ctx context.Context, rec *AppliedSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.applied[rec.Service] = &copied
	return nil
}

// AppendRun appends a deploy run record to the history.
func (s *MemoryStore) AppendRun(ctx context.Context, report *types.DeployReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, report)
	return nil
}

// LastRun returns the most recent deploy run record, if any.
func (s *MemoryStore) LastRun(ctx context.Context) (*types.DeployReport, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.runs) == 0 {
		return nil, false, nil
	}
	return s.runs[len(s.runs)-1], true, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
