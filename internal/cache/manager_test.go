package cache

import (
	"fmt"
	"sync"
	"testing"
)

func newTestManager(asset, fastPath int64, opts ...ManagerOption) *CacheManager {
	config := &CacheConfig{
		AssetCapacity:    asset,
		FastPathCapacity: fastPath,
		Shards:           4,
	}
	opts = append([]ManagerOption{WithClock(newFakeClock().Now)}, opts...)
	return NewCacheManager(config, opts...)
}

func TestCacheManager_BasicOperations(t *testing.T) {
	manager := newTestManager(1024, 1024)

	full := sized(400, "full")
	thumb := sized(40, "thumb")

	manager.PutAsset("mods/alpha/preview.png", full)
	manager.PutFastPath("alpha", thumb)

	got, ok := manager.GetAsset("mods/alpha/preview.png")
	if !ok || got != Image(full) {
		t.Fatalf("asset lookup failed: %v, %v", got, ok)
	}

	got, ok = manager.GetFastPath("alpha")
	if !ok || got != Image(thumb) {
		t.Fatalf("fast-path lookup failed: %v, %v", got, ok)
	}

	stats := manager.Stats()
	if stats.Asset.Size != 400 || stats.FastPath.Size != 40 {
		t.Errorf("unexpected sizes: asset %d, fast-path %d", stats.Asset.Size, stats.FastPath.Size)
	}
	if stats.ItemCount() != 2 || stats.Size() != 440 {
		t.Errorf("unexpected combined stats: %d items, %d bytes", stats.ItemCount(), stats.Size())
	}
}

func TestCacheManager_TiersAreIndependent(t *testing.T) {
	manager := newTestManager(100, Unlimited)

	// The same key string in both tiers refers to different entries.
	manager.Put(TierAsset, "shared", sized(80, "asset"))
	manager.Put(TierFastPath, "shared", sized(80, "fast"))

	a, _ := manager.Get(TierAsset, "shared")
	f, _ := manager.Get(TierFastPath, "shared")
	if a.(*testImage).tag != "asset" || f.(*testImage).tag != "fast" {
		t.Fatalf("tiers shared an entry: asset=%v fast=%v", a, f)
	}

	// Filling the bounded asset tier must not touch the unlimited one.
	for i := 0; i < 10; i++ {
		manager.Put(TierAsset, fmt.Sprintf("a-%d", i), sized(80, ""))
		manager.Put(TierFastPath, fmt.Sprintf("f-%d", i), sized(80, ""))
	}

	stats := manager.Stats()
	if stats.Asset.Size > 100 {
		t.Errorf("asset tier above capacity: %d", stats.Asset.Size)
	}
	if stats.FastPath.ItemCount != 11 {
		t.Errorf("fast-path tier lost entries: %d", stats.FastPath.ItemCount)
	}
	if stats.FastPath.Evictions != 0 {
		t.Errorf("fast-path tier evicted %d entries", stats.FastPath.Evictions)
	}
}

func TestCacheManager_UnknownTier(t *testing.T) {
	manager := newTestManager(1024, 1024)

	manager.Put(Tier(42), "k", sized(4, ""))
	if _, ok := manager.Get(Tier(42), "k"); ok {
		t.Error("unknown tier should always miss")
	}
	if manager.Stats().ItemCount() != 0 {
		t.Error("unknown tier put should be ignored")
	}
}

func TestCacheManager_ClearAll(t *testing.T) {
	manager := newTestManager(1024, 1024)

	for i := 0; i < 5; i++ {
		manager.PutAsset(AssetPath(fmt.Sprintf("p-%d", i)), sized(16, ""))
		manager.PutFastPath(ModID(fmt.Sprintf("id-%d", i)), sized(16, ""))
	}

	manager.ClearAll()

	stats := manager.Stats()
	for _, s := range []TierStats{stats.Asset, stats.FastPath} {
		if s.ItemCount != 0 || s.Size != 0 {
			t.Errorf("expected empty tier after ClearAll, got %d items, %d bytes", s.ItemCount, s.Size)
		}
	}
}

func TestCacheManager_Invalidate(t *testing.T) {
	manager := newTestManager(1024, 1024)

	manager.PutAsset("a.png", sized(16, ""))
	manager.PutFastPath("a", sized(8, ""))
	manager.Invalidate("a.png", "a")

	if manager.Asset().Contains("a.png") || manager.FastPath().Contains("a") {
		t.Error("Invalidate should remove both entries")
	}
}

func TestCacheManager_EvictionHookReceivesTier(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[Tier][]string{}
	)
	manager := newTestManager(40, 40, WithEvictionHook(func(tier Tier, key string, _ Image) error {
		mu.Lock()
		seen[tier] = append(seen[tier], key)
		mu.Unlock()
		return nil
	}))

	manager.PutAsset("a1", sized(40, ""))
	manager.PutAsset("a2", sized(40, ""))
	manager.PutFastPath("f1", sized(40, ""))
	manager.PutFastPath("f2", sized(40, ""))

	if fmt.Sprint(seen[TierAsset]) != "[a1]" || fmt.Sprint(seen[TierFastPath]) != "[f1]" {
		t.Errorf("unexpected evictions: %v", seen)
	}
}

func TestCacheManager_DefaultConfig(t *testing.T) {
	manager := NewCacheManager(nil)

	if manager.Asset().Capacity() != DefaultCacheConfig().AssetCapacity {
		t.Errorf("unexpected asset capacity %d", manager.Asset().Capacity())
	}
	if manager.FastPath().Capacity() != DefaultCacheConfig().FastPathCapacity {
		t.Errorf("unexpected fast-path capacity %d", manager.FastPath().Capacity())
	}
}

func TestCacheManager_ConcurrentAccess(t *testing.T) {
	manager := newTestManager(8192, 2048)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				path := AssetPath(fmt.Sprintf("mods/%d/preview.png", i%40))
				id := ModID(fmt.Sprintf("%d", i%40))

				if _, ok := manager.GetFastPath(id); !ok {
					if _, ok := manager.GetAsset(path); !ok {
						manager.PutAsset(path, sized(256, ""))
					}
					manager.PutFastPath(id, sized(64, ""))
				}
				if g == 0 && i%100 == 0 {
					_ = manager.Stats()
				}
			}
		}(g)
	}
	wg.Wait()

	stats := manager.Stats()
	if got, want := stats.Asset.Size, entrySum(manager.Asset()); got != want {
		t.Errorf("asset total %d != entry sum %d", got, want)
	}
	if got, want := stats.FastPath.Size, entrySum(manager.FastPath()); got != want {
		t.Errorf("fast-path total %d != entry sum %d", got, want)
	}
}
