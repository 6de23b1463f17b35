package locator

import (
	"sort"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"
)

// probeCache fronts CountFiles with a short-TTL cache keyed by a content
// hash of (dataset key, sorted storage endpoint hosts), so repeating the
// same probe within the TTL doesn't pay for the catalogue round trip twice.
// The Controller's T1 and T2 probes use different dataset keys and endpoint
// sets, so a T2 fallback probe never reuses a T1 probe's entry. The TTL
// (default 30s) is short enough that a
// probe result never leaks across unrelated decisions, and existing within
// one decision pass is all spec.md §4.2 requires ("return count of files
// present").
type probeCache struct {
	cache otter.Cache[uint64, int]
	ttl   time.Duration
}

func newProbeCache(capacity int, ttl time.Duration) (*probeCache, error) {
	c, err := otter.MustBuilder[uint64, int](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}
	return &probeCache{cache: c, ttl: ttl}, nil
}

func cacheKey(dataset string, storageHosts []string) uint64 {
	sorted := append([]string(nil), storageHosts...)
	sort.Strings(sorted)
	h := xxh3.New()
	_, _ = h.WriteString(dataset)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(strings.Join(sorted, ","))
	return h.Sum64()
}

func (c *probeCache) get(dataset string, storageHosts []string) (int, bool) {
	if c == nil {
		return 0, false
	}
	return c.cache.Get(cacheKey(dataset, storageHosts))
}

func (c *probeCache) set(dataset string, storageHosts []string, count int) {
	if c == nil {
		return
	}
	c.cache.Set(cacheKey(dataset, storageHosts), count)
}
