package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleAndPair is the reference graph from the determinism suite: a
// triangle {a,b,c} and an isolated pair {d,e}.
func triangleAndPair() *Graph {
	return NewGraph(
		[]string{"a", "b", "c", "d", "e"},
		[]Edge{
			{From: "a", To: "b", Strength: 1},
			{From: "b", To: "c", Strength: 1},
			{From: "c", To: "a", Strength: 1},
			{From: "d", To: "e", Strength: 1},
		},
	)
}

func TestNewGraphDropsUnknownAndSelfEdges(t *testing.T) {
	g := NewGraph(
		[]string{"a", "b"},
		[]Edge{
			{From: "a", To: "b", Strength: 1},
			{From: "a", To: "a", Strength: 1},  // self-loop
			{From: "a", To: "zz", Strength: 1}, // unknown target
		},
	)
	assert.Equal(t, 1, g.EdgeCount())
	assert.Len(t, g.Und[g.Index["a"]], 1)
}

func TestPageRankSumsToOne(t *testing.T) {
	g := triangleAndPair()
	ranks := PageRank(g)

	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 0.02)
}

func TestPageRankTriangleSymmetry(t *testing.T) {
	// In the directed cycle a→b→c→a all three nodes are equivalent.
	g := NewGraph(
		[]string{"a", "b", "c"},
		[]Edge{
			{From: "a", To: "b", Strength: 1},
			{From: "b", To: "c", Strength: 1},
			{From: "c", To: "a", Strength: 1},
		},
	)
	ranks := PageRank(g)
	assert.InDelta(t, ranks[0], ranks[1], 1e-6)
	assert.InDelta(t, ranks[1], ranks[2], 1e-6)
}

func TestPageRankDeterministic(t *testing.T) {
	g := triangleAndPair()
	first := PageRank(g)
	second := PageRank(g)
	assert.Equal(t, first, second)
}

func TestPageRankDanglingNodesStayReachable(t *testing.T) {
	// b has no out-edges; its rank must stay positive via the (1-d)/N term.
	g := NewGraph(
		[]string{"a", "b"},
		[]Edge{{From: "a", To: "b", Strength: 1}},
	)
	ranks := PageRank(g)
	assert.Greater(t, ranks[g.Index["a"]], 0.0)
	assert.Greater(t, ranks[g.Index["b"]], ranks[g.Index["a"]])
}

func TestBetweennessBridgeNode(t *testing.T) {
	// Path a-b-c: b lies on the only a↔c shortest path.
	g := NewGraph(
		[]string{"a", "b", "c"},
		[]Edge{
			{From: "a", To: "b", Strength: 1},
			{From: "b", To: "c", Strength: 1},
		},
	)
	scores := Betweenness(g)
	assert.InDelta(t, 1.0, scores[g.Index["b"]], 1e-9)
	assert.Zero(t, scores[g.Index["a"]])
	assert.Zero(t, scores[g.Index["c"]])
}

func TestBetweennessDeterministic(t *testing.T) {
	g := triangleAndPair()
	assert.Equal(t, Betweenness(g), Betweenness(g))
}

func TestNormalizeTo100(t *testing.T) {
	out := normalizeTo100([]float64{1, 2, 3})
	assert.Equal(t, []float64{0, 50, 100}, out)

	// Constant input normalizes to zero.
	assert.Equal(t, []float64{0, 0}, normalizeTo100([]float64{5, 5}))
	assert.Empty(t, normalizeTo100(nil))
}

func TestEstimateMemoryMB(t *testing.T) {
	assert.InDelta(t, 5.0, EstimateMemoryMB(0, 0), 1e-9)
	assert.InDelta(t, 5+0.00005*50000+0.0001*200000, EstimateMemoryMB(50000, 200000), 1e-9)
}

func TestSubgraphInduced(t *testing.T) {
	g := triangleAndPair()
	sub := g.Subgraph([]string{"a", "b", "d"})

	require.Equal(t, 3, sub.NodeCount())
	// Only a-b survives: c and e are outside the induced set.
	assert.Len(t, sub.Und[sub.Index["a"]], 1)
	assert.Empty(t, sub.Und[sub.Index["d"]])
}
