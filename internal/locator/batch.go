package locator

import (
	"math/rand/v2"
	"sort"
	"sync"
)

// batchRNGPool mirrors the teacher's randomRouteRNGPool: a seedable
// *rand.Rand pulled from a pool so the hot batch-sampling path never pays
// for a fresh PCG seed, while tests can still inject a deterministic rng.
var batchRNGPool = sync.Pool{
	New: func() any {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	},
}

// Batch is one slice of the input entries to probe, identified by its
// index in probe order (used only for logging/debugging).
type Batch struct {
	Index int
	LFNs  []string
	GUIDs []string
}

// PlanBatches partitions lfns/guids into batches of size batchSize (the
// last batch may be shorter), then applies spec.md §4.2's sampling policy:
// if the batch count exceeds maxBatches, pick a uniformly random subset of
// maxBatches indices without replacement, sorted ascending, and return only
// those. rng may be nil, in which case a pooled *rand.Rand is used.
func PlanBatches(lfns, guids []string, batchSize, maxBatches int, rng *rand.Rand) []Batch {
	if batchSize <= 0 {
		batchSize = 1
	}
	n := len(lfns)
	all := make([]Batch, 0, (n+batchSize-1)/batchSize)
	for start, idx := 0, 0; start < n; start, idx = start+batchSize, idx+1 {
		end := start + batchSize
		if end > n {
			end = n
		}
		all = append(all, Batch{Index: idx, LFNs: lfns[start:end], GUIDs: guids[start:end]})
	}

	if len(all) <= maxBatches {
		return all
	}

	if rng == nil {
		pooled := batchRNGPool.Get().(*rand.Rand)
		defer batchRNGPool.Put(pooled)
		rng = pooled
	}

	chosen := sampleIndices(len(all), maxBatches, rng)
	out := make([]Batch, 0, len(chosen))
	for _, i := range chosen {
		out = append(out, all[i])
	}
	return out
}

// sampleIndices draws k distinct indices from [0, n) uniformly without
// replacement (partial Fisher-Yates), then sorts them ascending so probe
// order stays deterministic regardless of which indices were drawn.
func sampleIndices(n, k int, rng *rand.Rand) []int {
	if k >= n {
		k = n
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	chosen := append([]int(nil), pool[:k]...)
	sort.Ints(chosen)
	return chosen
}
