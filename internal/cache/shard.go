package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is the stored (image, timestamp, size) triple for one key. The image
// and size never change after construction; an overwrite swaps in a new
// entry so readers never see a half-updated pair.
type entry struct {
	image      Image
	size       int64
	lastAccess atomic.Int64 // UnixNano
}

func newEntry(img Image, size int64, now time.Time) *entry {
	e := &entry{image: img, size: size}
	e.touch(now)
	return e
}

func (e *entry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

func (e *entry) lastAccessed() int64 {
	return e.lastAccess.Load()
}

type shard[K ~string] struct {
	sync.RWMutex
	store map[K]*entry
}

func newShard[K ~string]() *shard[K] {
	return &shard[K]{store: make(map[K]*entry)}
}

func (s *shard[K]) itemCount() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.store)
}

func (s *shard[K]) get(key K) *entry {
	s.RLock()
	defer s.RUnlock()
	return s.store[key]
}

// set stores e under key and returns the entry it replaced, if any.
func (s *shard[K]) set(key K, e *entry) *entry {
	s.Lock()
	existing := s.store[key]
	s.store[key] = e
	s.Unlock()
	return existing
}

func (s *shard[K]) delete(key K) *entry {
	s.Lock()
	e := s.store[key]
	delete(s.store, key)
	s.Unlock()
	return e
}

// deleteIfSame removes key only while it still maps to e, so an entry
// replaced by a concurrent put is left alone.
func (s *shard[K]) deleteIfSame(key K, e *entry) bool {
	s.Lock()
	defer s.Unlock()
	if s.store[key] != e {
		return false
	}
	delete(s.store, key)
	return true
}

// clear empties the shard and returns the total size of what it removed.
func (s *shard[K]) clear() (removed int64) {
	s.Lock()
	old := s.store
	s.store = make(map[K]*entry)
	s.Unlock()

	for _, e := range old {
		removed += e.size
	}
	return removed
}

func (s *shard[K]) keys(dst []K) []K {
	s.RLock()
	defer s.RUnlock()
	for k := range s.store {
		dst = append(dst, k)
	}
	return dst
}

// candidate is a snapshot of one entry taken during an eviction scan.
type candidate[K ~string] struct {
	key        K
	entry      *entry
	lastAccess int64
}

func (s *shard[K]) snapshot(dst []candidate[K]) []candidate[K] {
	s.RLock()
	defer s.RUnlock()
	for k, e := range s.store {
		dst = append(dst, candidate[K]{key: k, entry: e, lastAccess: e.lastAccessed()})
	}
	return dst
}
