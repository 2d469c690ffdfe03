// Package graph implements the campaign knowledge-graph analytics: community
// detection, PageRank, betweenness centrality, hierarchy scoring, and the
// combined importance metric. Algorithms are deterministic: identical inputs
// (and seed, for community detection) produce identical outputs.
package graph

import (
	"fmt"
	"sort"
)

// Graph is the in-memory analytics graph. Node slices are index-aligned;
// node order is sorted by id so every run sees the same layout.
type Graph struct {
	// Nodes holds entity ids, sorted ascending.
	Nodes []string

	// Index maps entity id to its position in Nodes.
	Index map[string]int

	// Out and In are directed adjacency lists (for PageRank).
	Out [][]int
	In  [][]int

	// Und is the undirected adjacency list with parallel edge weights
	// (for community detection and betweenness). Deduplicated: one entry
	// per neighbor, weights summed over parallel edges.
	Und        [][]int
	UndWeights [][]float64
}

// Edge is one relationship surviving the loader's exclusion filters.
type Edge struct {
	From     string
	To       string
	Strength float64
}

// NewGraph builds a Graph from node ids and edges. Edges referencing unknown
// nodes are dropped. Self-loops are dropped.
func NewGraph(nodeIDs []string, edges []Edge) *Graph {
	nodes := make([]string, len(nodeIDs))
	copy(nodes, nodeIDs)
	sort.Strings(nodes)

	g := &Graph{
		Nodes:      nodes,
		Index:      make(map[string]int, len(nodes)),
		Out:        make([][]int, len(nodes)),
		In:         make([][]int, len(nodes)),
		Und:        make([][]int, len(nodes)),
		UndWeights: make([][]float64, len(nodes)),
	}
	for i, id := range nodes {
		g.Index[id] = i
	}

	type undKey struct{ a, b int }
	undAccum := make(map[undKey]float64)

	for _, e := range edges {
		from, okFrom := g.Index[e.From]
		to, okTo := g.Index[e.To]
		if !okFrom || !okTo || from == to {
			continue
		}
		g.Out[from] = append(g.Out[from], to)
		g.In[to] = append(g.In[to], from)

		a, b := from, to
		if a > b {
			a, b = b, a
		}
		w := e.Strength
		if w <= 0 {
			w = 0.5
		}
		undAccum[undKey{a, b}] += w
	}

	// Deterministic neighbor order: sort accumulated undirected edges.
	keys := make([]undKey, 0, len(undAccum))
	for k := range undAccum {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
	for _, k := range keys {
		w := undAccum[k]
		g.Und[k.a] = append(g.Und[k.a], k.b)
		g.UndWeights[k.a] = append(g.UndWeights[k.a], w)
		g.Und[k.b] = append(g.Und[k.b], k.a)
		g.UndWeights[k.b] = append(g.UndWeights[k.b], w)
	}
	for i := range g.Out {
		sort.Ints(g.Out[i])
		sort.Ints(g.In[i])
	}

	return g
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, out := range g.Out {
		n += len(out)
	}
	return n
}

// Subgraph returns the induced subgraph over the given entity ids, keeping
// only undirected edges with both endpoints inside. Directed adjacency is
// rebuilt from the undirected structure (analytics on subgraphs only use
// the undirected view).
func (g *Graph) Subgraph(ids []string) *Graph {
	keep := make(map[int]bool, len(ids))
	var nodeIDs []string
	for _, id := range ids {
		if idx, ok := g.Index[id]; ok && !keep[idx] {
			keep[idx] = true
			nodeIDs = append(nodeIDs, id)
		}
	}

	var edges []Edge
	for idx := range keep {
		for j, nb := range g.Und[idx] {
			if nb > idx && keep[nb] {
				edges = append(edges, Edge{
					From:     g.Nodes[idx],
					To:       g.Nodes[nb],
					Strength: g.UndWeights[idx][j],
				})
			}
		}
	}
	return NewGraph(nodeIDs, edges)
}

// normalizeTo100 min-max normalizes values into [0,100]. A constant vector
// maps to all-zero except a single-node graph, which maps to zero as well.
func normalizeTo100(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo) * 100
	}
	return out
}

// clamp bounds v into [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EstimateMemoryMB returns the estimated in-memory footprint for a graph of
// the given size: 5 MB base + 0.00005 MB per entity + 0.0001 MB per
// relationship.
func EstimateMemoryMB(entities, relationships int) float64 {
	return 5 + 0.00005*float64(entities) + 0.0001*float64(relationships)
}

// LimitError is the explicit failure raised before any algorithm runs when
// a graph exceeds the configured guardrails.
type LimitError struct {
	Reason string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("graph limit exceeded: %s", e.Reason)
}
