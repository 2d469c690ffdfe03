package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loresmith/loresmith/ent/rebuildstatus"
	"github.com/loresmith/loresmith/pkg/graph"
)

// TriggerRebuild handles POST /campaigns/:id/rebuild: schedules a manual
// full rebuild regardless of the impact accumulator.
func (s *Server) TriggerRebuild(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}

	rb, err := s.rebuilds.Schedule(c.Request.Context(), campaignID, rebuildstatus.RebuildTypeFull, nil)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"rebuild": rb})
}

// RebuildStatus handles GET /campaigns/:id/rebuild-status.
func (s *Server) RebuildStatus(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}

	rb, err := s.rebuilds.Latest(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	impact, err := s.recorder.AccumulatedImpact(c.Request.Context(), campaignID)
	if err != nil {
		impact = 0
	}
	c.JSON(http.StatusOK, gin.H{"rebuild": rb, "accumulatedImpact": impact})
}

// CancelRebuild handles POST /campaigns/:id/rebuild/:rebuildId/cancel.
func (s *Server) CancelRebuild(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	if err := s.rebuilds.Cancel(c.Request.Context(), c.Param("rebuildId")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": c.Param("rebuildId")})
}

// GetOverlay handles GET /campaigns/:id/overlay: the read-time projection
// of unapplied changelog entries.
func (s *Server) GetOverlay(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}

	overlay, err := s.overlay.Read(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overlay": overlay})
}

// ListEntities handles GET /campaigns/:id/entities.
func (s *Server) ListEntities(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	entities, err := s.entities.ListEntities(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// ListImportance handles GET /campaigns/:id/importance. A manual override
// in an entity's metadata replaces the computed score on read; the stored
// rows always keep the computed values.
func (s *Server) ListImportance(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}

	rows, err := s.communities.ListImportance(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	entities, err := s.entities.ListEntities(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	overrides := make(map[string]float64, len(entities))
	for _, e := range entities {
		if score, ok := graph.OverrideScore(e.Metadata); ok {
			overrides[e.ID] = score
		}
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		score := row.ImportanceScore
		overridden := false
		if o, ok := overrides[row.EntityID]; ok {
			score = o
			overridden = true
		}
		out = append(out, gin.H{
			"entityId":              row.EntityID,
			"pagerank":              row.Pagerank,
			"betweennessCentrality": row.BetweennessCentrality,
			"hierarchyLevel":        row.HierarchyLevel,
			"importanceScore":       score,
			"overridden":            overridden,
		})
	}
	c.JSON(http.StatusOK, gin.H{"importance": out})
}

// ListCommunities handles GET /campaigns/:id/communities.
func (s *Server) ListCommunities(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	communities, err := s.communities.ListCommunities(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	summaries, err := s.communities.ListSummaries(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": communities, "summaries": summaries})
}
