package cache

import (
	"time"

	"github.com/charmbracelet/log"
)

// CacheManager owns the two cache tiers. Entries and size accounting are
// never shared between them: the same underlying image may be held once per
// tier, each with its own retention curve.
type CacheManager struct {
	asset    *Store[AssetPath]
	fastPath *Store[ModID]

	config *CacheConfig
	logger *log.Logger
}

// ManagerOption customizes a CacheManager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger  *log.Logger
	now     func() time.Time
	onEvict func(tier Tier, key string, img Image) error
}

// WithLogger sets the logger used by both tiers.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithClock sets the timestamp source used by both tiers.
func WithClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		o.now = now
	}
}

// WithEvictionHook registers a release hook called for every evicted image.
func WithEvictionHook(fn func(tier Tier, key string, img Image) error) ManagerOption {
	return func(o *managerOptions) {
		o.onEvict = fn
	}
}

// NewCacheManager creates both tiers from config. A nil config uses
// DefaultCacheConfig.
func NewCacheManager(config *CacheConfig, opts ...ManagerOption) *CacheManager {
	if config == nil {
		config = DefaultCacheConfig()
	}

	o := managerOptions{logger: log.Default().WithPrefix("cache")}
	for _, opt := range opts {
		opt(&o)
	}

	hook := func(tier Tier) func(string, Image) error {
		if o.onEvict == nil {
			return nil
		}
		return func(key string, img Image) error {
			return o.onEvict(tier, key, img)
		}
	}

	cm := &CacheManager{
		asset: NewStore[AssetPath](TierAsset.String(), Options{
			Capacity: config.AssetCapacity,
			Shards:   config.Shards,
			Logger:   o.logger,
			Now:      o.now,
			OnEvict:  hook(TierAsset),
		}),
		fastPath: NewStore[ModID](TierFastPath.String(), Options{
			Capacity: config.FastPathCapacity,
			Shards:   config.Shards,
			Logger:   o.logger,
			Now:      o.now,
			OnEvict:  hook(TierFastPath),
		}),
		config: config,
		logger: o.logger,
	}

	cm.logger.Debug("cache manager created",
		"asset", FormatCapacity(cm.asset.Capacity()),
		"fast_path", FormatCapacity(cm.fastPath.Capacity()))

	return cm
}

// Asset returns the path-addressed tier.
func (cm *CacheManager) Asset() *Store[AssetPath] {
	return cm.asset
}

// FastPath returns the identifier-addressed tier.
func (cm *CacheManager) FastPath() *Store[ModID] {
	return cm.fastPath
}

// GetAsset looks up a decoded image by resource path.
func (cm *CacheManager) GetAsset(path AssetPath) (Image, bool) {
	return cm.asset.Get(path)
}

// PutAsset stores a decoded image by resource path.
func (cm *CacheManager) PutAsset(path AssetPath, img Image) {
	cm.asset.Put(path, img)
}

// GetFastPath looks up a grid-ready image by logical identifier.
func (cm *CacheManager) GetFastPath(id ModID) (Image, bool) {
	return cm.fastPath.Get(id)
}

// PutFastPath stores a grid-ready image by logical identifier.
func (cm *CacheManager) PutFastPath(id ModID, img Image) {
	cm.fastPath.Put(id, img)
}

// Get routes a lookup by tier name. Unknown tiers always miss.
func (cm *CacheManager) Get(tier Tier, key string) (Image, bool) {
	switch tier {
	case TierAsset:
		return cm.asset.Get(AssetPath(key))
	case TierFastPath:
		return cm.fastPath.Get(ModID(key))
	default:
		return nil, false
	}
}

// Put routes an insert by tier name. Unknown tiers are ignored.
func (cm *CacheManager) Put(tier Tier, key string, img Image) {
	switch tier {
	case TierAsset:
		cm.asset.Put(AssetPath(key), img)
	case TierFastPath:
		cm.fastPath.Put(ModID(key), img)
	default:
		cm.logger.Warn("put to unknown cache tier", "tier", tier, "key", key)
	}
}

// Invalidate drops path from the asset tier and id from the fast-path tier,
// used when the file behind both has changed on disk.
func (cm *CacheManager) Invalidate(path AssetPath, id ModID) {
	cm.asset.Delete(path)
	cm.fastPath.Delete(id)
}

// ClearAll empties both tiers.
func (cm *CacheManager) ClearAll() {
	cm.asset.Clear()
	cm.fastPath.Clear()
	cm.logger.Debug("cache cleared")
}

// Stats returns per-tier statistics.
func (cm *CacheManager) Stats() ManagerStats {
	return ManagerStats{
		Asset:    cm.asset.Stats(),
		FastPath: cm.fastPath.Stats(),
	}
}
