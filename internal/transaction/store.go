package transaction

import (
	"context"
	"sync"
	"time"
)

// Store persists transactions by key. Get returns (nil, nil) when no
// transaction exists under the key; errors are reserved for storage
// failures. Whole-record read-modify-write, commit per call.
//
// Cleanup removes transactions abandoned longer ago than olderThan;
// backends whose records expire on their own may report zero removals.
type Store interface {
	Get(ctx context.Context, key string) (*Transaction, error)
	Save(ctx context.Context, tr *Transaction) error
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MemStore is a process-local Store for development and tests.
type MemStore struct {
	mu  sync.Mutex
	trs map[string]*Transaction
}

func NewMemStore() *MemStore {
	return &MemStore{trs: make(map[string]*Transaction)}
}

func (s *MemStore) Get(ctx context.Context, key string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.trs[key]
	if !ok {
		return nil, nil
	}
	copied := Transaction{
		Key:         tr.Key,
		StartMoment: tr.StartMoment,
		Values:      make(map[string]any, len(tr.Values)),
	}
	for k, v := range tr.Values {
		copied.Values[k] = v
	}
	return &copied, nil
}

func (s *MemStore) Save(ctx context.Context, tr *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := Transaction{
		Key:         tr.Key,
		StartMoment: tr.StartMoment,
		Values:      make(map[string]any, len(tr.Values)),
	}
	for k, v := range tr.Values {
		copied.Values[k] = v
	}
	s.trs[tr.Key] = &copied
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trs, key)
	return nil
}

func (s *MemStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := nowFunc().Add(-olderThan)
	var removed int64
	for key, tr := range s.trs {
		if tr.StartMoment.Before(cutoff) {
			delete(s.trs, key)
			removed++
		}
	}
	return removed, nil
}
