package cache

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Unlimited disables eviction for a tier.
const Unlimited int64 = -1

// Image is the decoded bitmap handle held by the cache. The cache only needs
// its pixel dimensions; the pixel data is never read or mutated.
type Image interface {
	Width() int
	Height() int
}

// AssetPath keys the asset tier: a stable resource path.
type AssetPath string

// ModID keys the fast-path tier: a logical item identifier.
type ModID string

// Tier names one of the two cache instances owned by a CacheManager.
type Tier int

const (
	// TierAsset caches full decoded images addressed by path.
	TierAsset Tier = iota

	// TierFastPath caches grid-ready images addressed by logical identifier.
	TierFastPath
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierAsset:
		return "asset"
	case TierFastPath:
		return "fast-path"
	default:
		return "unknown"
	}
}

// TierStats holds a point-in-time snapshot of one store.
type TierStats struct {
	// Configuration
	Capacity int64 // Maximum size in bytes, or Unlimited

	// Current state
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of entries

	// Performance metrics
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastEvict time.Time
}

// Unlimited reports whether the tier never evicts.
func (s TierStats) Unlimited() bool {
	return s.Capacity == Unlimited
}

// ManagerStats combines the statistics of both tiers.
type ManagerStats struct {
	Asset    TierStats
	FastPath TierStats
}

// ItemCount returns the number of entries across both tiers.
func (s ManagerStats) ItemCount() int64 {
	return s.Asset.ItemCount + s.FastPath.ItemCount
}

// Size returns the estimated bytes held across both tiers.
func (s ManagerStats) Size() int64 {
	return s.Asset.Size + s.FastPath.Size
}

// CacheConfig holds the capacities of both tiers.
type CacheConfig struct {
	AssetCapacity    int64 // Bytes, or Unlimited
	FastPathCapacity int64 // Bytes, or Unlimited

	// Shards per store; rounded up to a power of two.
	Shards int
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		AssetCapacity:    256 * 1024 * 1024, // 256MB
		FastPathCapacity: 64 * 1024 * 1024,  // 64MB
		Shards:           defaultShards,
	}
}

// ParseCapacity turns a human readable size such as "256MB" or "1 GiB" into
// a byte capacity. "unlimited", "none", zero, negative and unparsable values
// all yield Unlimited; ok is false only for unparsable input.
func ParseCapacity(s string) (capacity int64, ok bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "unlimited", "none", "-1":
		return Unlimited, true
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return Unlimited, false
	}
	if n == 0 || n > uint64(1<<62) {
		return Unlimited, true
	}
	return int64(n), true
}

// FormatCapacity is the inverse of ParseCapacity for display.
func FormatCapacity(capacity int64) string {
	if capacity <= 0 {
		return "unlimited"
	}
	return humanize.Bytes(uint64(capacity))
}
