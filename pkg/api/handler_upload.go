package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/uploads"
)

// StartUpload handles POST /uploads: registers the file row and creates an
// upload session actor.
func (s *Server) StartUpload(c *gin.Context) {
	var req models.StartUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUser(c)
	fileKey := fmt.Sprintf("files/%s/%s", userID, req.Filename)

	if _, err := s.files.CreateFile(c.Request.Context(), userID, fileKey, req.Filename, req.FileSize); err != nil {
		respondServiceError(c, err)
		return
	}

	// The object-store multipart upload id is opaque; blob storage itself
	// is an external collaborator.
	uploadID := uuid.New().String()
	sess, err := s.uploadMgr.Create(c.Request.Context(), userID, fileKey, uploadID,
		req.Filename, req.FileSize, req.TotalParts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

// GetUpload handles GET /uploads/:id.
func (s *Server) GetUpload(c *gin.Context) {
	sess, parts, err := s.uploadMgr.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if sess.OwnerID != currentUser(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "parts": parts})
}

// AckUploadPart handles POST /uploads/:id/parts.
func (s *Server) AckUploadPart(c *gin.Context) {
	var req models.UploadPartAck
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if ok := s.requireUploadOwner(c); !ok {
		return
	}
	sess, err := s.uploadMgr.AddPart(c.Request.Context(), c.Param("id"), uploads.Part{
		PartNumber: req.PartNumber,
		ETag:       req.ETag,
		Size:       req.Size,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// CompleteUpload handles POST /uploads/:id/complete.
func (s *Server) CompleteUpload(c *gin.Context) {
	if ok := s.requireUploadOwner(c); !ok {
		return
	}
	sess, err := s.uploadMgr.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// AbortUpload handles DELETE /uploads/:id.
func (s *Server) AbortUpload(c *gin.Context) {
	if ok := s.requireUploadOwner(c); !ok {
		return
	}
	if err := s.uploadMgr.Abort(c.Request.Context(), c.Param("id"), "aborted by client"); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aborted": c.Param("id")})
}

// requireUploadOwner enforces tenant isolation on upload routes.
func (s *Server) requireUploadOwner(c *gin.Context) bool {
	sess, _, err := s.uploadMgr.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return false
	}
	if sess.OwnerID != currentUser(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return false
	}
	return true
}

// ListFiles handles GET /files.
func (s *Server) ListFiles(c *gin.Context) {
	files, err := s.files.ListFiles(c.Request.Context(), currentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}
