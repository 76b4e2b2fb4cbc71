package remembered

import (
	"context"
	"sync"
	"time"
)

// MemStore is a process-local Store for development and tests.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*Record)}
}

func (s *MemStore) index(typ, key string) string {
	return compositeKey([]string{typ, key})
}

func (s *MemStore) Remember(ctx context.Context, typ string, ttl time.Duration, data string, keys ...string) error {
	expiry := nowFunc().Add(ttl)
	return s.store(typ, &expiry, data, keys)
}

func (s *MemStore) RememberForever(ctx context.Context, typ string, data string, keys ...string) error {
	return s.store(typ, nil, data, keys)
}

func (s *MemStore) store(typ string, expiry *time.Time, data string, keys []string) error {
	rec := &Record{
		Type:   typ,
		Key:    compositeKey(keys),
		Expiry: expiry,
		Data:   data,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.index(typ, rec.Key)] = rec
	return nil
}

func (s *MemStore) Get(ctx context.Context, typ string, keys ...string) (*Record, error) {
	key := compositeKey(keys)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[s.index(typ, key)]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Expired() {
		delete(s.records, s.index(typ, key))
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *MemStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for k, rec := range s.records {
		if rec.Expired() {
			delete(s.records, k)
			removed++
		}
	}
	return removed, nil
}
