// Package cache memoizes expensive AI-derived analyses keyed by a
// request fingerprint, so repeated requests for the same configuration
// never re-trigger the costly path.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxEntries = 256
	defaultTTL        = 24 * time.Hour
)

// Request identifies one analysis configuration. Equal requests share a
// cache entry.
type Request struct {
	Topic      string
	DateFrom   string
	DateTo     string
	Model      string
	SampleMode string
	ProfileID  string
	View       string
}

// Key derives the cache fingerprint for the request.
func (r Request) Key() string {
	joined := strings.Join([]string{
		r.Topic, r.DateFrom, r.DateTo, r.Model, r.SampleMode, r.ProfileID, r.View,
	}, "\x1f")
	sum := sha1.Sum([]byte(joined))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	payload  json.RawMessage
	storedAt time.Time
}

// ComputeFn produces the analysis payload on a cache miss.
type ComputeFn func(ctx context.Context) (json.RawMessage, error)

// AnalysisCache is an LRU with per-entry TTL. Concurrent lookups of the
// same key are coalesced to a single compute.
type AnalysisCache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
}

// New builds a cache; non-positive arguments fall back to defaults.
func New(maxEntries int, ttl time.Duration) *AnalysisCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		// lru.New only errors on a non-positive size, guarded above.
		panic(err)
	}
	return &AnalysisCache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrCompute returns the cached payload for key when it is live and
// forceRefresh is false; otherwise it runs compute once, stores the
// result, and returns it. The boolean reports whether the payload was
// served from cache.
func (c *AnalysisCache) GetOrCompute(ctx context.Context, key string, compute ComputeFn, forceRefresh bool) (json.RawMessage, bool, error) {
	if !forceRefresh {
		if e, ok := c.entries.Get(key); ok {
			if c.now().Sub(e.storedAt) < c.ttl {
				return e.payload, true, nil
			}
			c.entries.Remove(key)
		}
	}

	type result struct {
		payload json.RawMessage
		cached  bool
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A coalesced caller may arrive after the leader stored the
		// entry; serve that instead of recomputing.
		if !forceRefresh {
			if e, ok := c.entries.Get(key); ok && c.now().Sub(e.storedAt) < c.ttl {
				return result{payload: e.payload, cached: true}, nil
			}
		}

		payload, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, entry{payload: payload, storedAt: c.now()})
		return result{payload: payload}, nil
	})
	if err != nil {
		return nil, false, err
	}

	r := v.(result)
	return r.payload, r.cached, nil
}

// Invalidate evicts a single entry.
func (c *AnalysisCache) Invalidate(key string) {
	c.entries.Remove(key)
}

// InvalidateAll evicts every entry.
func (c *AnalysisCache) InvalidateAll() {
	c.entries.Purge()
}

// Len reports the number of stored entries, expired or not.
func (c *AnalysisCache) Len() int {
	return c.entries.Len()
}
