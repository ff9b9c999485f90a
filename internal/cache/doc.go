// Package cache provides a bounded, concurrency-safe in-memory cache for
// decoded preview images. A CacheManager owns two independent tiers: an
// asset tier keyed by resource path and a fast-path tier keyed by logical
// identifier. Each tier is a sharded map with atomic size accounting and
// least-recently-accessed eviction.
package cache
