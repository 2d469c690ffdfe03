package graph

import (
	"fmt"
	"math/rand"
	"sort"
)

// LeidenParams controls community detection.
type LeidenParams struct {
	// Resolution is the γ parameter: higher values produce more, smaller
	// communities.
	Resolution float64

	// Seed drives the node-visit shuffle. Identical seed + graph ⇒
	// identical assignments.
	Seed int64

	// MaxIterations bounds the move/refine/aggregate loop.
	MaxIterations int
}

// Leiden detects communities on the undirected weighted graph and returns
// node id → community id. Community ids are deterministic: communities are
// numbered in order of their smallest member node.
//
// The implementation follows the Leiden structure: seeded local moving on
// modularity with resolution, a refinement pass that splits communities into
// their connected components (the well-connectedness guarantee Louvain
// lacks), then aggregation and recursion until no move improves modularity.
func Leiden(g *Graph, params LeidenParams) map[string]string {
	n := g.NodeCount()
	result := make(map[string]string, n)
	if n == 0 {
		return result
	}

	rng := rand.New(rand.NewSource(params.Seed))
	resolution := params.Resolution
	if resolution <= 0 {
		resolution = 1.0
	}
	maxIter := params.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	// Working copy of the graph that shrinks as levels aggregate.
	adj := make([][]int, n)
	weights := make([][]float64, n)
	for i := range adj {
		adj[i] = append([]int(nil), g.Und[i]...)
		weights[i] = append([]float64(nil), g.UndWeights[i]...)
	}
	// membership[level node] = original node indexes it represents.
	membership := make([][]int, n)
	for i := range membership {
		membership[i] = []int{i}
	}

	finalComm := make([]int, n)
	for i := range finalComm {
		finalComm[i] = i
	}

	for iter := 0; iter < maxIter; iter++ {
		comm, improved := localMove(adj, weights, resolution, rng)
		if !improved && iter > 0 {
			break
		}
		comm = refine(adj, comm)

		// Record assignment for the original nodes.
		for node, members := range membership {
			for _, orig := range members {
				finalComm[orig] = comm[node]
			}
		}

		adj, weights, membership = aggregate(adj, weights, membership, comm)
		if len(adj) == len(comm) {
			// No shrinkage: the partition is stable.
			break
		}
		if !improved {
			break
		}
	}

	// Deterministic labels: number communities by smallest original member.
	order := make([]int, 0, n)
	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		if !seen[finalComm[i]] {
			seen[finalComm[i]] = true
			order = append(order, finalComm[i])
		}
	}
	label := make(map[int]string, len(order))
	for i, c := range order {
		label[c] = fmt.Sprintf("community_%d", i)
	}
	for i, id := range g.Nodes {
		result[id] = label[finalComm[i]]
	}
	return result
}

// localMove runs the seeded local-moving phase: repeatedly offer each node
// its best neighboring community until a full pass makes no move.
func localMove(adj [][]int, weights [][]float64, resolution float64, rng *rand.Rand) ([]int, bool) {
	n := len(adj)
	comm := make([]int, n)
	degree := make([]float64, n)
	commTot := make([]float64, n)
	total := 0.0
	for i := range adj {
		comm[i] = i
		for _, w := range weights[i] {
			degree[i] += w
		}
		commTot[i] = degree[i]
		total += degree[i]
	}
	total /= 2
	if total == 0 {
		return comm, false
	}

	order := rng.Perm(n)
	improvedAny := false
	for pass := 0; pass < n; pass++ {
		moved := false
		for _, v := range order {
			// Weight from v into each adjacent community. Self-loops
			// (introduced by aggregation) count toward degree only.
			neighWeight := make(map[int]float64)
			for j, nb := range adj[v] {
				if nb == v {
					continue
				}
				neighWeight[comm[nb]] += weights[v][j]
			}

			current := comm[v]
			commTot[current] -= degree[v]

			best := current
			bestGain := neighWeight[current] - resolution*commTot[current]*degree[v]/(2*total)
			// Deterministic candidate order.
			candidates := make([]int, 0, len(neighWeight))
			for c := range neighWeight {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)
			for _, c := range candidates {
				gain := neighWeight[c] - resolution*commTot[c]*degree[v]/(2*total)
				if gain > bestGain+1e-12 {
					bestGain = gain
					best = c
				}
			}

			commTot[best] += degree[v]
			if best != current {
				comm[v] = best
				moved = true
				improvedAny = true
			}
		}
		if !moved {
			break
		}
	}
	return comm, improvedAny
}

// refine splits each community into its connected components, renumbering
// so every emitted community is internally connected.
func refine(adj [][]int, comm []int) []int {
	n := len(adj)
	refined := make([]int, n)
	for i := range refined {
		refined[i] = -1
	}
	next := 0
	for start := 0; start < n; start++ {
		if refined[start] != -1 {
			continue
		}
		// BFS constrained to nodes sharing start's community.
		refined[start] = next
		queue := []int{start}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, nb := range adj[v] {
				if refined[nb] == -1 && comm[nb] == comm[v] {
					refined[nb] = next
					queue = append(queue, nb)
				}
			}
		}
		next++
	}
	return refined
}

// aggregate collapses each community into one supernode and returns the new
// adjacency, weights, and original-node membership per supernode.
func aggregate(adj [][]int, weights [][]float64, membership [][]int, comm []int) ([][]int, [][]float64, [][]int) {
	// Renumber communities densely in first-seen order.
	renum := make(map[int]int)
	for _, c := range comm {
		if _, ok := renum[c]; !ok {
			renum[c] = len(renum)
		}
	}
	k := len(renum)

	newMembership := make([][]int, k)
	for node, members := range membership {
		c := renum[comm[node]]
		newMembership[c] = append(newMembership[c], members...)
	}
	for i := range newMembership {
		sort.Ints(newMembership[i])
	}

	// Sum inter-community edge weights.
	accum := make([]map[int]float64, k)
	for i := range accum {
		accum[i] = make(map[int]float64)
	}
	// Intra-community weight becomes a supernode self-loop so aggregated
	// degrees stay consistent with the original graph.
	for v := range adj {
		cv := renum[comm[v]]
		for j, nb := range adj[v] {
			accum[cv][renum[comm[nb]]] += weights[v][j]
		}
	}

	newAdj := make([][]int, k)
	newWeights := make([][]float64, k)
	for i := range accum {
		nbs := make([]int, 0, len(accum[i]))
		for nb := range accum[i] {
			nbs = append(nbs, nb)
		}
		sort.Ints(nbs)
		for _, nb := range nbs {
			newAdj[i] = append(newAdj[i], nb)
			newWeights[i] = append(newWeights[i], accum[i][nb])
		}
	}
	return newAdj, newWeights, newMembership
}
