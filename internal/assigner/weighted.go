package assigner

import (
	"math/rand/v2"
	"sort"
	"sync"
)

// weightedRNGPool mirrors locator.batchRNGPool and the teacher's
// routing/random.go randomRouteRNGPool: a seedable *rand.Rand pulled from a
// pool so the weighted-choice hot path never pays for a fresh PCG seed.
var weightedRNGPool = sync.Pool{
	New: func() any {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	},
}

// weightedCandidate is one cloud's accumulation weight for step 13's draw.
type weightedCandidate struct {
	cloud  string
	weight float64
}

// weightedChoice implements spec.md §4.1 step 13's draw: sum the weights to
// W, draw r ~ Uniform[0, W), then walk the candidates in accumulation order
// subtracting w until the running remainder is <= 0. Candidates are sorted
// by cloud name first so the accumulation order — and therefore the draw —
// is deterministic for a given rng seed, independent of map iteration order.
func weightedChoice(candidates []weightedCandidate, rng *rand.Rand) (string, error) {
	if len(candidates) == 1 {
		return candidates[0].cloud, nil
	}

	ordered := append([]weightedCandidate(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].cloud < ordered[j].cloud })

	var total float64
	for _, c := range ordered {
		total += c.weight
	}
	if total <= 0 {
		return "", ErrZeroWeight
	}

	if rng == nil {
		pooled := weightedRNGPool.Get().(*rand.Rand)
		defer weightedRNGPool.Put(pooled)
		rng = pooled
	}

	r := rng.Float64() * total
	remainder := r
	for _, c := range ordered {
		remainder -= c.weight
		if remainder <= 0 {
			return c.cloud, nil
		}
	}
	// Floating-point rounding may leave a sliver unconsumed; the last
	// candidate wins rather than falling through to an error.
	return ordered[len(ordered)-1].cloud, nil
}
