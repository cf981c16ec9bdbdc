// Package searchcache wraps internal/cache's Redis-backed manager with
// the query-result caching concerns of the distributed search fabric
// (§4.11): keying on a stable hash of the SearchQuery fields that
// determine a result set. Misses are not counted.
package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/internal/cache"
)

// QueryKey is the subset of a SearchQuery that determines its result
// set; two queries with identical QueryKeys are cache-equivalent.
type QueryKey struct {
	Query               string
	Page                int
	NumResults          int
	SelectedRegion      string
	Optic               string
	HostRankings        []string
	SafeSearch          bool
	SignalCoefficients  map[string]float64
}

// hash derives a stable cache key from a QueryKey.
func (k QueryKey) hash() (string, error) {
	coeffKeys := make([]string, 0, len(k.SignalCoefficients))
	for name := range k.SignalCoefficients {
		coeffKeys = append(coeffKeys, name)
	}
	sort.Strings(coeffKeys)

	canon := struct {
		QueryKey
		CoeffKeys []string
	}{QueryKey: k, CoeffKeys: coeffKeys}

	b, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("searchcache: marshal query key: %w", err)
	}
	sum := sha256.Sum256(b)
	return "searchcache:v1:" + hex.EncodeToString(sum[:]), nil
}

// Cache fronts the shared search/distributed-search layer with a
// Redis-backed cache of fully-merged SearchResult payloads.
type Cache struct {
	mgr    *cache.Manager
	logger *zap.Logger
	ttl    time.Duration
}

// New wraps an already-connected cache.Manager.
func New(mgr *cache.Manager, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{mgr: mgr, logger: logger.With(zap.String("component", "searchcache")), ttl: ttl}
}

// Get looks up a previously cached result for key, unmarshalling into
// dest. Returns (false, nil) on a clean cache miss.
func (c *Cache) Get(ctx context.Context, key QueryKey, dest interface{}) (bool, error) {
	hk, err := key.hash()
	if err != nil {
		return false, err
	}
	if err := c.mgr.GetJSON(ctx, hk, dest); err != nil {
		if cache.IsCacheMiss(err) {
			return false, nil
		}
		return false, fmt.Errorf("searchcache: get: %w", err)
	}
	return true, nil
}

// Set stores result under key with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, key QueryKey, result interface{}) error {
	hk, err := key.hash()
	if err != nil {
		return err
	}
	if err := c.mgr.SetJSON(ctx, hk, result, c.ttl); err != nil {
		return fmt.Errorf("searchcache: set: %w", err)
	}
	return nil
}

// Invalidate drops a single cached entry.
func (c *Cache) Invalidate(ctx context.Context, key QueryKey) error {
	hk, err := key.hash()
	if err != nil {
		return err
	}
	return c.mgr.Delete(ctx, hk)
}
