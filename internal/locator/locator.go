package locator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/gridassign/gridassign/internal/netutil"
)

// Config configures a Locator.
type Config struct {
	Catalogue Catalogue

	Batch      int // spec.md §6 BATCH, default 200
	MaxBatches int // spec.md §6 MAX_BATCHES, default 100

	BatchRetries int           // retry attempts per batch (spec.md §4.2: 3)
	BatchBackoff time.Duration // linear backoff between attempts (spec.md §4.2: 60s)

	// Concurrency bounds how many sampled batches of one CountFiles call
	// are probed against the catalogue at once. Default 8.
	Concurrency int

	CacheCapacity int
	CacheTTL      time.Duration
}

// Locator is the Replica Locator component of spec.md §4.2.
type Locator struct {
	catalogue Catalogue

	batch        int
	maxBatches   int
	batchRetries int
	batchBackoff time.Duration
	sem          chan struct{}

	cache *probeCache
}

// New builds a Locator. An empty CacheCapacity disables the probe cache.
func New(cfg Config) (*Locator, error) {
	l := &Locator{
		catalogue:    cfg.Catalogue,
		batch:        cfg.Batch,
		maxBatches:   cfg.MaxBatches,
		batchRetries: cfg.BatchRetries,
		batchBackoff: cfg.BatchBackoff,
	}
	if l.batch <= 0 {
		l.batch = 200
	}
	if l.maxBatches <= 0 {
		l.maxBatches = 100
	}
	if l.batchRetries <= 0 {
		l.batchRetries = 3
	}
	if l.batchBackoff <= 0 {
		l.batchBackoff = 60 * time.Second
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 8
	}
	l.sem = make(chan struct{}, conc)

	if cfg.CacheCapacity > 0 {
		cache, err := newProbeCache(cfg.CacheCapacity, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("locator: build probe cache: %w", err)
		}
		l.cache = cache
	}
	return l, nil
}

// ErrProbeFailed wraps the definitive (post-retry) failure of a batch
// probe. Callers translate this into the assigner's LocatorFailed error.
var ErrProbeFailed = fmt.Errorf("locator: replica probe failed definitively")

// CountFiles implements the countFiles(lfns, guids, catalogueUrl,
// storageEndpoints) -> int | error contract of spec.md §4.2: partitions
// the input into batches, applies the sampling policy when there are more
// than MaxBatches batches, probes each sampled batch (retried, cached),
// and sums the per-batch found counts.
func (l *Locator) CountFiles(ctx context.Context, dataset, catalogueURL string, lfns, guids []string, storageEndpoints []string) (int, error) {
	hosts := make([]string, 0, len(storageEndpoints))
	for _, ep := range storageEndpoints {
		hosts = append(hosts, netutil.ExtractHost(ep))
	}

	if cached, ok := l.cache.get(dataset, hosts); ok {
		return cached, nil
	}

	batches := PlanBatches(lfns, guids, l.batch, l.maxBatches, nil)

	counts := make([]int, len(batches))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		l.sem <- struct{}{}
		go func(i int, b Batch) {
			defer wg.Done()
			defer func() { <-l.sem }()
			counts[i], errs[i] = l.probeBatch(ctx, catalogueURL, b, hosts)
		}(i, b)
	}
	wg.Wait()

	total := 0
	for i, err := range errs {
		if err != nil {
			return 0, fmt.Errorf("%w: batch %d: %v", ErrProbeFailed, batches[i].Index, err)
		}
		total += counts[i]
	}

	l.cache.set(dataset, hosts, total)
	return total, nil
}

func (l *Locator) probeBatch(ctx context.Context, catalogueURL string, b Batch, hosts []string) (int, error) {
	var count int
	err := retry.Do(
		func() error {
			c, err := l.catalogue.CountFiles(ctx, catalogueURL, b.LFNs, b.GUIDs, hosts)
			if err != nil {
				return err
			}
			count = c
			return nil
		},
		retry.Attempts(uint(l.batchRetries)),
		retry.Delay(l.batchBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[locator] batch %d probe attempt %d failed against %s: %v", b.Index, n+1, catalogueURL, err)
		}),
	)
	return count, err
}

// Refresh triggers a server-side replica re-listing for a dataset across
// the given sites (spec.md §4.1 step 5). Failures are logged and
// swallowed: stale ReplicaStat data only degrades scoring accuracy, it is
// never fatal to the decision.
func (l *Locator) Refresh(ctx context.Context, dataset string, sites []string) {
	if len(sites) == 0 {
		return
	}
	refreshCtx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	if err := l.catalogue.ListFileReplicasBySites(refreshCtx, dataset, sites); err != nil {
		log.Printf("[locator] refresh failed for dataset %s across %d sites: %v", dataset, len(sites), err)
	}
}
