package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryIdempotencyStore keeps idempotency records in process for
// single-instance deployments without Redis. Expired records are swept by
// the go-cache janitor every cleanupInterval.
type MemoryIdempotencyStore struct {
	items *gocache.Cache
}

func NewMemoryIdempotencyStore(ttl, cleanupInterval time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryIdempotencyStore{items: gocache.New(ttl, cleanupInterval)}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key, requestHash string) (*IdempotencyRecord, bool, error) {
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		if err := s.items.Add(key, IdempotencyRecord{RequestHash: requestHash}, gocache.DefaultExpiration); err == nil {
			return nil, true, nil
		}
		value, found := s.items.Get(key)
		if !found {
			continue
		}
		record := copyRecord(value.(IdempotencyRecord))
		return &record, false, nil
	}
	return nil, false, ErrReserveContention
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key string, record IdempotencyRecord) error {
	s.items.Set(key, copyRecord(record), gocache.DefaultExpiration)
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// Len counts stored records, including expired ones not yet swept.
func (s *MemoryIdempotencyStore) Len() int {
	return s.items.ItemCount()
}

func copyRecord(record IdempotencyRecord) IdempotencyRecord {
	if record.Response != nil {
		resp := *record.Response
		resp.Body = append([]byte(nil), resp.Body...)
		record.Response = &resp
	}
	return record
}
