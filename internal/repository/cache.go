package repository

import (
	"context"
	"sync"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/models"
)

// StoredResponse is a replayable HTTP response kept under an idempotency key.
type StoredResponse struct {
	Done   bool   `json:"done"`
	Status int    `json:"status,omitempty"`
	Body   []byte `json:"body,omitempty"`
	// Fingerprint is the hash of the request body that produced the response.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// MemoryActiveSetCache is the in-process ActiveSetCache used when redis is not configured.
type MemoryActiveSetCache struct {
	mu          sync.Mutex
	generations map[string]int64
	entries     map[string]memoryEntry
	now         func() time.Time
}

type memoryEntry struct {
	set       domain.CachedActiveSet
	expiresAt time.Time
}

func NewMemoryActiveSetCache() *MemoryActiveSetCache {
	return &MemoryActiveSetCache{
		generations: make(map[string]int64),
		entries:     make(map[string]memoryEntry),
		now:         time.Now,
	}
}

func (c *MemoryActiveSetCache) Generation(ctx context.Context, equipmentID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[equipmentID], nil
}

func (c *MemoryActiveSetCache) Get(ctx context.Context, equipmentID string) (*domain.CachedActiveSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[equipmentID]
	if !ok || c.now().After(e.expiresAt) {
		delete(c.entries, equipmentID)
		return nil, nil
	}
	set := domain.CachedActiveSet{Generation: e.set.Generation, Bookings: cloneAll(e.set.Bookings)}
	return &set, nil
}

func (c *MemoryActiveSetCache) Set(ctx context.Context, equipmentID string, set *domain.CachedActiveSet, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[equipmentID] = memoryEntry{
		set:       domain.CachedActiveSet{Generation: set.Generation, Bookings: cloneAll(set.Bookings)},
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryActiveSetCache) Invalidate(ctx context.Context, equipmentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[equipmentID]++
	delete(c.entries, equipmentID)
	return nil
}

func cloneAll(in []*models.Booking) []*models.Booking {
	out := make([]*models.Booking, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}

// MemoryIdempotencyStore keeps idempotency records in process.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	resp      StoredResponse
	expiresAt time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{records: make(map[string]memoryRecord), now: time.Now}
}

// Begin claims key. When the key is taken it returns the stored record instead.
func (s *MemoryIdempotencyStore) Begin(ctx context.Context, key string, ttl time.Duration) (*StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[key]; ok && s.now().Before(r.expiresAt) {
		resp := r.resp
		return &resp, false, nil
	}
	s.records[key] = memoryRecord{expiresAt: s.now().Add(ttl)}
	return nil, true, nil
}

func (s *MemoryIdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp.Done = true
	s.records[key] = memoryRecord{resp: resp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Abort(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
