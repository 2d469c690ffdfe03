package graph

import (
	"github.com/loresmith/loresmith/ent"
)

// Importance weights: 0.4 PageRank + 0.4 betweenness + 0.2 hierarchy, all
// inputs normalized to [0,100], result clamped to [0,100].
const (
	weightPageRank    = 0.4
	weightBetweenness = 0.4
	weightHierarchy   = 0.2
)

// defaultHierarchyScore is assigned to entities belonging to no community.
const defaultHierarchyScore = 50.0

// HierarchyScores computes the per-entity hierarchy input: entities in no
// community score 50; others average their community levels, min-max
// normalized within the campaign.
func HierarchyScores(g *Graph, communities []*ent.Community) map[string]float64 {
	levelSum := make(map[string]float64)
	levelCount := make(map[string]int)
	for _, c := range communities {
		for _, member := range c.EntityIds {
			levelSum[member] += float64(c.Level)
			levelCount[member]++
		}
	}

	// Average levels for entities that have communities.
	averaged := make([]float64, 0, len(levelSum))
	order := make([]string, 0, len(levelSum))
	for _, id := range g.Nodes {
		if n := levelCount[id]; n > 0 {
			averaged = append(averaged, levelSum[id]/float64(n))
			order = append(order, id)
		}
	}
	normalized := normalizeTo100(averaged)

	scores := make(map[string]float64, len(g.Nodes))
	for _, id := range g.Nodes {
		scores[id] = defaultHierarchyScore
	}
	for i, id := range order {
		scores[id] = normalized[i]
	}
	return scores
}

// CombinedImportance folds the three normalized inputs into the final score.
func CombinedImportance(pagerank, betweenness, hierarchy float64) float64 {
	return clamp(
		weightPageRank*pagerank+weightBetweenness*betweenness+weightHierarchy*hierarchy,
		0, 100)
}

// overrideScores maps the manual importance override levels to fixed scores
// that replace the computed value on read.
var overrideScores = map[string]float64{
	"low":      25,
	"normal":   50,
	"high":     75,
	"critical": 100,
}

// OverrideScore resolves a manual override from entity metadata. Returns
// (score, true) when a valid override is present.
func OverrideScore(metadata map[string]any) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	level, _ := metadata["importanceOverride"].(string)
	score, ok := overrideScores[level]
	return score, ok
}
