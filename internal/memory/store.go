// Package memory implements the decayed-frequency fingerprint stores that
// track recurring campaigns per user and across the whole install base.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autoguardian/autoguardian/internal/core"
)

// CommunityBucket is the shared fingerprint scope. Personal scopes use
// UserBucket.
const CommunityBucket = "community"

// UserBucket returns the personal scope key for an account.
func UserBucket(userEmail string) string {
	return "user:" + userEmail
}

// Store persists fingerprint records per bucket. Upsert increments the count
// for an existing signature and sticks the quarantine flag once set.
type Store interface {
	Upsert(ctx context.Context, bucket, signature string, quarantined bool, now time.Time) error
	Entries(ctx context.Context, bucket string) ([]core.MemoryRecord, error)

	// Prune removes records older than maxAge and enforces a soft record cap,
	// dropping the oldest first. Returns (removedByAge, removedBySize).
	Prune(ctx context.Context, bucket string, maxAge time.Duration, maxRecords int, now time.Time) (int, int, error)

	Close() error
}

// InMemoryStore is the map-backed store used for tests and single-process
// runs without persistence.
type InMemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*core.MemoryRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{buckets: make(map[string]map[string]*core.MemoryRecord)}
}

func (s *InMemoryStore) Upsert(ctx context.Context, bucket, signature string, quarantined bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]*core.MemoryRecord)
		s.buckets[bucket] = b
	}
	if rec, ok := b[signature]; ok {
		rec.Count++
		rec.LastSeen = now
		if quarantined {
			rec.Quarantined = true
		}
		return nil
	}
	b[signature] = &core.MemoryRecord{
		Signature:   signature,
		FirstSeen:   now,
		LastSeen:    now,
		Count:       1,
		Quarantined: quarantined,
	}
	return nil
}

func (s *InMemoryStore) Entries(ctx context.Context, bucket string) ([]core.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.buckets[bucket]
	out := make([]core.MemoryRecord, 0, len(b))
	for _, rec := range b {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *InMemoryStore) Prune(ctx context.Context, bucket string, maxAge time.Duration, maxRecords int, now time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[bucket]
	removedAge := 0
	for sig, rec := range b {
		if now.Sub(rec.LastSeen) > maxAge {
			delete(b, sig)
			removedAge++
		}
	}

	removedSize := 0
	if maxRecords > 0 && len(b) > maxRecords {
		recs := make([]*core.MemoryRecord, 0, len(b))
		for _, rec := range b {
			recs = append(recs, rec)
		}
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].LastSeen.Before(recs[j].LastSeen)
		})
		for _, rec := range recs[:len(b)-maxRecords] {
			delete(b, rec.Signature)
			removedSize++
		}
	}
	return removedAge, removedSize, nil
}

func (s *InMemoryStore) Close() error { return nil }
