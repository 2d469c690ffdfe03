package graph

// PageRank constants per the rebuild contract: damping 0.85, at most 100
// iterations, L∞ convergence tolerance 1e-4.
const (
	pagerankDamping   = 0.85
	pagerankMaxIter   = 100
	pagerankTolerance = 1e-4
	pagerankBaseScore = 1.0
)

// PageRank computes per-node PageRank over the directed graph and returns
// raw scores index-aligned with g.Nodes. Before normalization the scores sum
// to ≈ 1. Dangling nodes contribute nothing to their (absent) successors;
// the (1−d)/N term keeps them reachable.
func PageRank(g *Graph) []float64 {
	n := g.NodeCount()
	if n == 0 {
		return nil
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = pagerankBaseScore / float64(n)
	}

	base := (1 - pagerankDamping) / float64(n)
	for iter := 0; iter < pagerankMaxIter; iter++ {
		for i := range next {
			sum := 0.0
			for _, m := range g.In[i] {
				if out := len(g.Out[m]); out > 0 {
					sum += rank[m] / float64(out)
				}
			}
			next[i] = base + pagerankDamping*sum
		}

		maxDelta := 0.0
		for i := range rank {
			delta := next[i] - rank[i]
			if delta < 0 {
				delta = -delta
			}
			if delta > maxDelta {
				maxDelta = delta
			}
		}
		rank, next = next, rank
		if maxDelta < pagerankTolerance {
			break
		}
	}
	return rank
}

// PageRankNormalized computes PageRank and min-max normalizes to [0,100].
func PageRankNormalized(g *Graph) []float64 {
	return normalizeTo100(PageRank(g))
}
