package idempotency

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps records in process. Suitable for a single replica.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, cleanup)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (*Record, bool, error) {
	if err := s.c.Add(key, &Record{}, ttl); err == nil {
		return nil, true, nil
	}
	v, ok := s.c.Get(key)
	if !ok {
		// Expired between Add and Get; claim it again.
		if err := s.c.Add(key, &Record{}, ttl); err == nil {
			return nil, true, nil
		}
		return &Record{}, false, nil
	}
	rec := *v.(*Record)
	return &rec, false, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, rec Record, ttl time.Duration) error {
	rec.Completed = true
	s.c.Set(key, &rec, ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}
