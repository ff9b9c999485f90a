package cache

import (
	"cmp"
	"hash/maphash"
	"math/bits"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"
)

const defaultShards = 16

// Options configures a Store.
type Options struct {
	// Capacity is the eviction threshold in bytes. Zero, negative and
	// Unlimited all disable eviction.
	Capacity int64

	// Shards is rounded up to a power of two. Defaults to 16.
	Shards int

	Logger *log.Logger

	// Now stamps entries on get and put. Defaults to time.Now.
	Now func() time.Time

	// OnEvict is called for every entry removed by eviction, after it has
	// left the map. Errors and panics are logged and otherwise ignored.
	OnEvict func(key string, img Image) error
}

// Store is one bounded cache tier: a sharded key→entry map with an atomic
// running total of estimated bytes and last-access eviction.
//
// Concurrency:
//
// Store methods are safe for concurrent use. Puts on keys in different
// shards only share the atomic size counter. The size total equals the sum of
// entry sizes whenever no operation is in flight; while eviction races with
// puts it may briefly exceed the capacity.
type Store[K ~string] struct {
	name     string
	capacity int64

	shards    []*shard[K]
	shardMask uint64
	seed      maphash.Seed

	size      atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	lastEvict atomic.Int64
	evicting  atomic.Bool

	loads singleflight.Group

	logger  *log.Logger
	now     func() time.Time
	onEvict func(key string, img Image) error
}

// NewStore creates a store named name (used in logs) from opts.
func NewStore[K ~string](name string, opts Options) *Store[K] {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("cache")
	}
	logger = logger.With("tier", name)

	capacity := opts.Capacity
	if capacity <= 0 {
		if capacity != Unlimited {
			logger.Warn("invalid cache capacity, eviction disabled", "capacity", capacity)
		}
		capacity = Unlimited
	}

	n := opts.Shards
	if n < 1 || n > 1<<16 {
		n = defaultShards
	}
	n = 1 << bits.Len(uint(n-1))

	s := &Store[K]{
		name:      name,
		capacity:  capacity,
		shards:    make([]*shard[K], n),
		shardMask: uint64(n - 1),
		seed:      maphash.MakeSeed(),
		logger:    logger,
		now:       opts.Now,
		onEvict:   opts.OnEvict,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for i := range s.shards {
		s.shards[i] = newShard[K]()
	}
	return s
}

// Name returns the tier name given at construction.
func (s *Store[K]) Name() string {
	return s.name
}

// Capacity returns the configured byte capacity, or Unlimited.
func (s *Store[K]) Capacity() int64 {
	return s.capacity
}

// Get returns the image stored under key and refreshes its last-access time.
// The returned handle is shared with the cache, not copied.
func (s *Store[K]) Get(key K) (Image, bool) {
	e := s.getShard(key).get(key)
	if e == nil {
		s.misses.Add(1)
		return nil, false
	}

	e.touch(s.now())
	s.hits.Add(1)
	return e.image, true
}

// Contains reports whether key is present without touching access metadata.
func (s *Store[K]) Contains(key K) bool {
	return s.getShard(key).get(key) != nil
}

// Put inserts or replaces the image stored under key. On replace the total
// moves by the size delta. Eviction runs afterwards if the tier is over
// capacity. Nil images are ignored.
func (s *Store[K]) Put(key K, img Image) {
	if img == nil {
		return
	}

	size := estimateSize(img, s.logger)
	e := newEntry(img, size, s.now())

	if old := s.getShard(key).set(key, e); old != nil {
		s.size.Add(size - old.size)
	} else {
		s.size.Add(size)
	}

	s.evictIfNeeded()
}

// GetOrLoad returns the cached image for key, or calls load once across all
// concurrent callers of the same key and stores its result. Load errors are
// returned and nothing is stored.
func (s *Store[K]) GetOrLoad(key K, load func() (Image, error)) (Image, error) {
	if img, ok := s.Get(key); ok {
		return img, nil
	}

	v, err, _ := s.loads.Do(string(key), func() (any, error) {
		// A flight that finished just before this one may have stored it.
		if e := s.getShard(key).get(key); e != nil {
			e.touch(s.now())
			return e.image, nil
		}

		img, err := load()
		if err != nil {
			return nil, err
		}
		s.Put(key, img)
		return img, nil
	})
	if err != nil {
		return nil, err
	}

	img, _ := v.(Image)
	return img, nil
}

// Delete removes key if present.
func (s *Store[K]) Delete(key K) bool {
	e := s.getShard(key).delete(key)
	if e == nil {
		return false
	}
	s.size.Add(-e.size)
	return true
}

// Clear removes all entries. A put racing Clear may survive it.
func (s *Store[K]) Clear() {
	var removed int64
	for _, sh := range s.shards {
		removed += sh.clear()
	}
	s.size.Add(-removed)
}

// Evict removes least recently accessed entries until the tier is at or
// below capacity or empty, and returns how many it removed. It does nothing
// for unlimited tiers.
func (s *Store[K]) Evict() int {
	if s.unbounded() {
		return 0
	}
	return s.evict()
}

// Len returns the number of entries.
func (s *Store[K]) Len() int {
	count := 0
	for _, sh := range s.shards {
		count += sh.itemCount()
	}
	return count
}

// Size returns the current estimated size in bytes.
func (s *Store[K]) Size() int64 {
	return s.size.Load()
}

// Keys returns a snapshot of all keys in no particular order.
func (s *Store[K]) Keys() []K {
	keys := make([]K, 0, s.Len())
	for _, sh := range s.shards {
		keys = sh.keys(keys)
	}
	return keys
}

// Stats returns a point-in-time snapshot; it is approximate under
// concurrent use.
func (s *Store[K]) Stats() TierStats {
	stats := TierStats{
		Capacity:  s.capacity,
		Size:      s.size.Load(),
		ItemCount: int64(s.Len()),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
	if last := s.lastEvict.Load(); last != 0 {
		stats.LastEvict = time.Unix(0, last)
	}
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

func (s *Store[K]) getShard(key K) *shard[K] {
	return s.shards[maphash.String(s.seed, string(key))&s.shardMask]
}

func (s *Store[K]) unbounded() bool {
	return s.capacity == Unlimited
}

func (s *Store[K]) overCapacity() bool {
	return s.size.Load() > s.capacity
}

// evictIfNeeded runs at most one eviction pass per store at a time. A put
// that finds a pass in flight leaves the work to it; the pass re-checks the
// total after releasing the guard.
func (s *Store[K]) evictIfNeeded() {
	if s.unbounded() {
		return
	}

	for s.overCapacity() {
		if !s.evicting.CompareAndSwap(false, true) {
			return
		}
		n := s.evict()
		s.evicting.Store(false)
		if n == 0 {
			return
		}
	}
}

func (s *Store[K]) evict() int {
	if !s.overCapacity() {
		return 0
	}

	var candidates []candidate[K]
	for _, sh := range s.shards {
		candidates = sh.snapshot(candidates)
	}

	// Oldest first, ties broken by key.
	slices.SortFunc(candidates, func(a, b candidate[K]) int {
		if c := cmp.Compare(a.lastAccess, b.lastAccess); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	var (
		evicted int
		freed   int64
	)
	for _, c := range candidates {
		if !s.overCapacity() {
			break
		}
		if !s.getShard(c.key).deleteIfSame(c.key, c.entry) {
			continue
		}
		s.size.Add(-c.entry.size)
		evicted++
		freed += c.entry.size
		s.release(c.key, c.entry.image)
	}

	if evicted > 0 {
		s.evictions.Add(int64(evicted))
		s.lastEvict.Store(s.now().UnixNano())
		s.logger.Debug("evicted cache entries",
			"count", evicted,
			"freed", humanize.Bytes(uint64(freed)),
			"size", humanize.Bytes(uint64(max(s.size.Load(), 0))),
			"capacity", FormatCapacity(s.capacity))
	}
	return evicted
}

// release hands an evicted image to the owner's hook. Failures never reach
// the caller whose put triggered the eviction.
func (s *Store[K]) release(key K, img Image) {
	if s.onEvict == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("releasing evicted image panicked", "key", key, "panic", r)
		}
	}()

	if err := s.onEvict(string(key), img); err != nil {
		s.logger.Warn("releasing evicted image failed", "key", key, "error", err)
	}
}
