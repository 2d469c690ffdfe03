package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/pkg/config"
)

func defaultParams() LeidenParams {
	return LeidenParams{Resolution: 1.0, Seed: 42, MaxIterations: 10}
}

func TestLeidenTriangleAndPair(t *testing.T) {
	g := triangleAndPair()
	assignments := Leiden(g, defaultParams())

	// Exactly two communities: {a,b,c} and {d,e}.
	assert.Equal(t, assignments["a"], assignments["b"])
	assert.Equal(t, assignments["b"], assignments["c"])
	assert.Equal(t, assignments["d"], assignments["e"])
	assert.NotEqual(t, assignments["a"], assignments["d"])
}

func TestLeidenDeterministicUnderSeed(t *testing.T) {
	g := triangleAndPair()
	first := Leiden(g, defaultParams())
	second := Leiden(g, defaultParams())
	assert.Equal(t, first, second)
}

func TestLeidenEmptyGraph(t *testing.T) {
	g := NewGraph(nil, nil)
	assert.Empty(t, Leiden(g, defaultParams()))
}

func TestLeidenCommunitiesAreConnected(t *testing.T) {
	// Two cliques joined by one bridge edge: every detected community must
	// be internally connected (the refinement guarantee).
	var nodes []string
	var edges []Edge
	for _, clique := range [][]string{{"p", "q", "r", "s"}, {"w", "x", "y", "z"}} {
		nodes = append(nodes, clique...)
		for i := range clique {
			for j := i + 1; j < len(clique); j++ {
				edges = append(edges, Edge{From: clique[i], To: clique[j], Strength: 1})
			}
		}
	}
	edges = append(edges, Edge{From: "s", To: "w", Strength: 0.1})
	g := NewGraph(nodes, edges)

	assignments := Leiden(g, defaultParams())
	assert.Equal(t, assignments["p"], assignments["s"])
	assert.Equal(t, assignments["w"], assignments["z"])
	assert.NotEqual(t, assignments["p"], assignments["w"])
}

func TestDetectorFiltersSmallCommunities(t *testing.T) {
	// Triangle plus an isolated singleton: the singleton community falls
	// below min_community_size=2 and is dropped.
	g := NewGraph(
		[]string{"a", "b", "c", "lone"},
		[]Edge{
			{From: "a", To: "b", Strength: 1},
			{From: "b", To: "c", Strength: 1},
			{From: "c", To: "a", Strength: 1},
		},
	)
	d := NewDetector(config.DefaultGraphConfig())
	communities := d.DetectMultiLevel(g, "c1")

	require.Len(t, communities, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, communities[0].EntityIDs)
	assert.Equal(t, 0, communities[0].Level)
	assert.Empty(t, communities[0].ParentCommunityID)
}

func TestDetectorMultiLevelParentLinks(t *testing.T) {
	// Two 4-cliques bridged weakly: level 0 should find both, and each is
	// large enough (≥4 members) to be re-examined for sub-structure.
	var nodes []string
	var edges []Edge
	cliques := [][]string{{"a1", "a2", "a3", "a4"}, {"b1", "b2", "b3", "b4"}}
	for _, clique := range cliques {
		nodes = append(nodes, clique...)
		for i := range clique {
			for j := i + 1; j < len(clique); j++ {
				edges = append(edges, Edge{From: clique[i], To: clique[j], Strength: 1})
			}
		}
	}
	edges = append(edges, Edge{From: "a4", To: "b1", Strength: 0.05})
	g := NewGraph(nodes, edges)

	d := NewDetector(config.DefaultGraphConfig())
	communities := d.DetectMultiLevel(g, "c1")
	require.NotEmpty(t, communities)

	byID := make(map[string]int)
	for i, c := range communities {
		byID[c.ID] = i
	}
	for _, c := range communities {
		if c.Level == 0 {
			assert.Empty(t, c.ParentCommunityID)
			continue
		}
		// Every sub-community's parent exists and sits one level up.
		parentIdx, ok := byID[c.ParentCommunityID]
		require.True(t, ok, "parent of %s missing", c.ID)
		assert.Equal(t, c.Level-1, communities[parentIdx].Level)
		// Partition invariant: members are a subset of the parent.
		parentSet := map[string]bool{}
		for _, id := range communities[parentIdx].EntityIDs {
			parentSet[id] = true
		}
		for _, id := range c.EntityIDs {
			assert.True(t, parentSet[id], "member %s outside parent", id)
		}
	}
}

func TestDetectorPartitionPerLevel(t *testing.T) {
	// At each level, every entity appears in at most one community.
	var nodes []string
	var edges []Edge
	for c := 0; c < 3; c++ {
		var clique []string
		for i := 0; i < 5; i++ {
			clique = append(clique, fmt.Sprintf("n%d_%d", c, i))
		}
		nodes = append(nodes, clique...)
		for i := range clique {
			for j := i + 1; j < len(clique); j++ {
				edges = append(edges, Edge{From: clique[i], To: clique[j], Strength: 1})
			}
		}
	}
	g := NewGraph(nodes, edges)

	d := NewDetector(config.DefaultGraphConfig())
	communities := d.DetectMultiLevel(g, "c1")

	seen := map[int]map[string]bool{}
	for _, c := range communities {
		if seen[c.Level] == nil {
			seen[c.Level] = map[string]bool{}
		}
		for _, id := range c.EntityIDs {
			assert.False(t, seen[c.Level][id], "entity %s in two level-%d communities", id, c.Level)
			seen[c.Level][id] = true
		}
	}
}

func TestIncrementalUpdateDissolvesTouchedCommunities(t *testing.T) {
	g := triangleAndPair()
	d := NewDetector(config.DefaultGraphConfig())

	initial := d.DetectMultiLevel(g, "c1")
	require.Len(t, initial, 2)

	existing := communitiesFromInserts(t, initial)
	deleteIDs, inserts := d.IncrementalUpdate(g, "c1", []string{"a"}, existing)

	// Only the triangle community is touched.
	require.Len(t, deleteIDs, 1)
	require.Len(t, inserts, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, inserts[0].EntityIDs)
}

func TestImportanceCombination(t *testing.T) {
	assert.Equal(t, 100.0, CombinedImportance(100, 100, 100))
	assert.Equal(t, 0.0, CombinedImportance(0, 0, 0))
	assert.InDelta(t, 0.4*80+0.4*60+0.2*50, CombinedImportance(80, 60, 50), 1e-9)
}

func TestOverrideScore(t *testing.T) {
	score, ok := OverrideScore(map[string]any{"importanceOverride": "critical"})
	assert.True(t, ok)
	assert.Equal(t, 100.0, score)

	_, ok = OverrideScore(map[string]any{"importanceOverride": "sometimes"})
	assert.False(t, ok)
	_, ok = OverrideScore(nil)
	assert.False(t, ok)
}
