package graph

import (
	"sort"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith/ent"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/services"
)

// Detector turns Leiden assignments into persistable community hierarchies.
type Detector struct {
	cfg *config.GraphConfig
}

// NewDetector creates a Detector.
func NewDetector(cfg *config.GraphConfig) *Detector {
	return &Detector{cfg: cfg}
}

// DetectMultiLevel runs hierarchical community detection over the whole
// graph: level 0 from one Leiden pass, then recursive re-detection inside
// every community large enough, down to MaxLevels. Communities below
// MinCommunitySize (level 0) or with fewer than two members (sub-levels)
// are dropped.
func (d *Detector) DetectMultiLevel(g *Graph, campaignID string) []services.CommunityInsert {
	var out []services.CommunityInsert
	d.detectInto(g, campaignID, 0, "", &out)
	return out
}

func (d *Detector) detectInto(g *Graph, campaignID string, level int, parentID string, out *[]services.CommunityInsert) {
	if g.NodeCount() == 0 {
		return
	}

	assignments := Leiden(g, LeidenParams{
		Resolution:    d.cfg.Resolution,
		Seed:          d.cfg.Seed,
		MaxIterations: d.cfg.MaxIterations,
	})
	groups := groupAssignments(assignments)
	if level > 0 && len(groups) == 1 {
		// No split found: the only group would reproduce the parent.
		return
	}

	minSize := d.cfg.MinCommunitySize
	if level > 0 {
		// Sub-level communities below two members collapse into noise.
		minSize = 2
	}

	for _, members := range groups {
		if len(members) < minSize {
			continue
		}
		id := uuid.New().String()
		*out = append(*out, services.CommunityInsert{
			ID:                id,
			CampaignID:        campaignID,
			Level:             level,
			ParentCommunityID: parentID,
			EntityIDs:         members,
			Metadata: map[string]any{
				"size": len(members),
			},
		})

		if len(members) >= d.cfg.SublevelMinMembers && level+1 < d.cfg.MaxLevels {
			sub := g.Subgraph(members)
			// A subgraph that cannot split further would reproduce the
			// parent; a sub-level pass that finds no split emits nothing.
			if sub.NodeCount() < len(members) || sub.NodeCount() < 2 {
				continue
			}
			d.detectInto(sub, campaignID, level+1, id, out)
		}
	}
}

// IncrementalUpdate re-detects only the neighborhoods touched by the
// affected entities: every community containing an affected entity is
// dissolved, and detection reruns over the union of their members (plus any
// affected entities not yet in a community). Returns the community ids to
// delete and their replacements.
func (d *Detector) IncrementalUpdate(g *Graph, campaignID string, affected []string, existing []*ent.Community) (deleteIDs []string, inserts []services.CommunityInsert) {
	affectedSet := make(map[string]bool, len(affected))
	for _, id := range affected {
		affectedSet[id] = true
	}

	memberUnion := make(map[string]bool)
	for _, c := range existing {
		touched := false
		for _, member := range c.EntityIds {
			if affectedSet[member] {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		deleteIDs = append(deleteIDs, c.ID)
		for _, member := range c.EntityIds {
			memberUnion[member] = true
		}
	}
	// Affected entities with no community yet still join the re-detection.
	for id := range affectedSet {
		if _, ok := g.Index[id]; ok {
			memberUnion[id] = true
		}
	}
	if len(memberUnion) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(memberUnion))
	for id := range memberUnion {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sub := g.Subgraph(ids)
	d.detectInto(sub, campaignID, 0, "", &inserts)
	return deleteIDs, inserts
}

// groupAssignments inverts node→community into sorted member lists, ordered
// by community label for determinism.
func groupAssignments(assignments map[string]string) [][]string {
	byComm := make(map[string][]string)
	for node, comm := range assignments {
		byComm[comm] = append(byComm[comm], node)
	}
	labels := make([]string, 0, len(byComm))
	for label := range byComm {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	groups := make([][]string, 0, len(labels))
	for _, label := range labels {
		members := byComm[label]
		sort.Strings(members)
		groups = append(groups, members)
	}
	return groups
}
