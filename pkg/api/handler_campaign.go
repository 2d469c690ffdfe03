package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loresmith/loresmith/ent/file"
	"github.com/loresmith/loresmith/pkg/extraction"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/services"
)

// maxAttachBytes caps the size of a file that can be attached; larger files
// must be split before extraction.
const maxAttachBytes = 100 * 1024 * 1024

// CreateCampaign handles POST /campaigns.
func (s *Server) CreateCampaign(c *gin.Context) {
	var req models.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := s.campaigns.CreateCampaign(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	s.publisher.PublishCampaignCreated(currentUser(c), campaign.ID, campaign.Name)
	c.JSON(http.StatusCreated, gin.H{"campaign": campaign})
}

// ListCampaigns handles GET /campaigns.
func (s *Server) ListCampaigns(c *gin.Context) {
	campaigns, err := s.campaigns.ListCampaigns(c.Request.Context(), currentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// GetCampaign handles GET /campaigns/:id.
func (s *Server) GetCampaign(c *gin.Context) {
	campaign, err := s.campaigns.GetCampaign(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// UpdateCampaign handles PUT /campaigns/:id.
func (s *Server) UpdateCampaign(c *gin.Context) {
	var req models.UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := s.campaigns.UpdateCampaign(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// DeleteCampaign handles DELETE /campaigns/:id.
func (s *Server) DeleteCampaign(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if err := s.campaigns.DeleteCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	s.publisher.PublishCampaignDeleted(userID, campaignID)
	c.JSON(http.StatusOK, gin.H{"deleted": campaignID})
}

// DeleteAllCampaigns handles DELETE /campaigns.
func (s *Server) DeleteAllCampaigns(c *gin.Context) {
	n, err := s.campaigns.DeleteAllCampaigns(c.Request.Context(), currentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// ListResources handles GET /campaigns/:id/resources.
func (s *Server) ListResources(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	resources, err := s.resources.ListResources(c.Request.Context(), campaignID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources})
}

// AttachResource handles POST /campaigns/:id/resource.
//
// Contract: 201 on create (extraction enqueued), 200 when the file is
// already attached (idempotent), 400 with reindexTriggered when the file is
// not completed, 413 when it exceeds the size cap.
func (s *Server) AttachResource(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")

	var raw models.AttachResourceRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := raw.Normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}

	f, err := s.files.GetFileByKey(c.Request.Context(), userID, req.FileKey)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if f.Size > maxAttachBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "file too large for extraction; split it and re-upload",
		})
		return
	}

	result, err := s.resources.AttachResource(c.Request.Context(), userID, campaignID, req.FileKey, req.Name)
	if err != nil {
		if errors.Is(err, services.ErrPreconditionFailed) {
			s.triggerReindex(c, userID, f.Key, f.Status)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":            err.Error(),
				"reindexTriggered": true,
			})
			return
		}
		respondServiceError(c, err)
		return
	}

	if !result.Created {
		c.JSON(http.StatusOK, gin.H{"resource": result.Resource})
		return
	}

	// Extraction is fully async; the 201 returns immediately.
	if _, err := s.queue.Enqueue(c.Request.Context(), extraction.TaskSpec{
		Username:     userID,
		CampaignID:   campaignID,
		ResourceID:   result.Resource.ID,
		ResourceName: result.Resource.FileName,
		FileKey:      req.FileKey,
	}); err != nil {
		respondServiceError(c, err)
		return
	}
	s.publisher.PublishCampaignFileAdded(userID, campaignID, result.Resource.FileName)
	c.JSON(http.StatusCreated, gin.H{"resource": result.Resource})
}

// triggerReindex kicks the not-yet-completed file back through indexing so
// a later attach can succeed.
func (s *Server) triggerReindex(c *gin.Context, userID, fileKey string, status file.Status) {
	if status != file.StatusUploaded {
		// Still uploading, already indexing, or failed — nothing to kick.
		s.publisher.PublishFileStatus(userID, fileKey, string(status))
		return
	}
	if _, err := s.files.UpdateStatus(c.Request.Context(), userID, fileKey, file.StatusIndexing); err == nil {
		s.publisher.PublishFileStatus(userID, fileKey, string(file.StatusIndexing))
	}
}

// DetachResource handles DELETE /campaigns/:id/resource/:rid.
func (s *Server) DetachResource(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	if err := s.resources.DetachResource(c.Request.Context(), campaignID, c.Param("rid")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("rid")})
}

// RetryExtraction handles POST /campaigns/:id/resource/:rid/retry-entity-extraction.
func (s *Server) RetryExtraction(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	resource, err := s.resources.GetResource(c.Request.Context(), campaignID, c.Param("rid"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	task, err := s.queue.Enqueue(c.Request.Context(), extraction.TaskSpec{
		Username:     userID,
		CampaignID:   campaignID,
		ResourceID:   resource.ID,
		ResourceName: resource.FileName,
		FileKey:      resource.FileKey,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": task.ID, "status": task.Status})
}

// ExtractionStatus handles GET /campaigns/:id/resource/:rid/entity-extraction-status.
func (s *Server) ExtractionStatus(c *gin.Context) {
	userID := currentUser(c)
	campaignID := c.Param("id")
	if _, err := s.campaigns.GetCampaign(c.Request.Context(), userID, campaignID); err != nil {
		respondServiceError(c, err)
		return
	}
	task, err := s.queue.Status(c.Request.Context(), campaignID, c.Param("rid"))
	if err != nil {
		if errors.Is(err, extraction.ErrNoTasksAvailable) {
			c.JSON(http.StatusOK, gin.H{"status": "none"})
			return
		}
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"taskId":  task.ID,
		"status":  task.Status,
		"attempt": task.Attempt,
		"error":   task.ErrorMessage,
	})
}
