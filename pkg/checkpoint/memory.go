package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps checkpoints in process memory. It is the default store
// and the one tests use; state does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns a copy of the thread's checkpoint, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, threadID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[threadID]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// Put replaces the thread's checkpoint.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ThreadID] = copyRecord(rec)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// copyRecord deep-copies a record so callers cannot mutate stored bytes.
func copyRecord(rec *Record) *Record {
	out := *rec
	if rec.State != nil {
		out.State = append([]byte(nil), rec.State...)
	}
	if rec.Interrupt != nil {
		out.Interrupt = append([]byte(nil), rec.Interrupt...)
	}
	return &out
}
