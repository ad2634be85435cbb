// Package cache is a bounded in-memory key/value store with per-key TTL.
//
// Expiry is passive: an entry past its deadline is invisible to readers and is
// physically removed the next time a write pushes the store over its bound.
// Writes are grouped into batches whose puts become visible together, so a
// reader sees either all of a batch or none of it.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
)

// DefaultMaxEntries bounds a store created with a non-positive limit.
const DefaultMaxEntries = 100_000

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is safe for concurrent use by multiple writers and readers.
// Stored values must be treated as immutable by callers.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]entry
	clock      clock.Clock
	maxEntries int
}

func New(clk clock.Clock, maxEntries int) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		entries:    make(map[string]entry),
		clock:      clk,
		maxEntries: maxEntries,
	}
}

// Put stores value under key for ttl, replacing any previous value and
// resetting its expiry. A non-positive ttl removes the key.
func (s *Store) Put(key string, value any, ttl time.Duration) {
	b := s.NewBatch()
	b.Put(key, value, ttl)
	b.Commit()
}

// Get returns the live value for key. Expired and absent keys both report ok == false.
func (s *Store) Get(key string) (any, bool) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// MultiGet returns the live values for keys from a single consistent view.
// Missing or expired keys are absent from the result.
func (s *Store) MultiGet(keys []string) map[string]any {
	now := s.clock.Now()
	out := make(map[string]any, len(keys))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range keys {
		if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
			out[key] = e.value
		}
	}
	return out
}

// MultiGetPrefix returns every live entry whose key starts with prefix.
func (s *Store) MultiGetPrefix(prefix string) map[string]any {
	now := s.clock.Now()
	out := make(map[string]any)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) && now.Before(e.expiresAt) {
			out[key] = e.value
		}
	}
	return out
}

// Keys lists live keys with the given prefix in sorted order.
func (s *Store) Keys(prefix string) []string {
	values := s.MultiGetPrefix(prefix)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of stored entries, including expired ones not yet evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type pendingPut struct {
	key   string
	value any
	ttl   time.Duration
}

// Batch collects puts that Commit applies atomically. A batch that is never
// committed changes nothing. Batches are not safe for concurrent use.
type Batch struct {
	store *Store
	puts  []pendingPut
}

func (s *Store) NewBatch() *Batch {
	return &Batch{store: s}
}

func (b *Batch) Put(key string, value any, ttl time.Duration) {
	b.puts = append(b.puts, pendingPut{key: key, value: value, ttl: ttl})
}

// Len is the number of puts queued in the batch.
func (b *Batch) Len() int {
	return len(b.puts)
}

// Commit applies every queued put under one write lock and returns the number
// of keys written. Expiry deadlines are computed from a single clock reading.
// The batch is empty afterwards and may be reused.
func (b *Batch) Commit() int {
	if len(b.puts) == 0 {
		return 0
	}
	s := b.store
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, p := range b.puts {
		if p.ttl <= 0 {
			delete(s.entries, p.key)
			continue
		}
		s.entries[p.key] = entry{value: p.value, expiresAt: now.Add(p.ttl)}
		written++
	}
	b.puts = b.puts[:0]

	if len(s.entries) > s.maxEntries {
		s.evictLocked(now)
	}
	return written
}

// evictLocked drops expired entries, then the entries closest to expiry,
// until the store is back within its bound. Caller holds the write lock.
func (s *Store) evictLocked(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}

	excess := len(s.entries) - s.maxEntries
	if excess <= 0 {
		return
	}

	type candidate struct {
		key       string
		expiresAt time.Time
	}
	candidates := make([]candidate, 0, len(s.entries))
	for key, e := range s.entries {
		candidates = append(candidates, candidate{key: key, expiresAt: e.expiresAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].expiresAt.Equal(candidates[j].expiresAt) {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].expiresAt.Before(candidates[j].expiresAt)
	})
	for _, c := range candidates[:excess] {
		delete(s.entries, c.key)
	}
}
