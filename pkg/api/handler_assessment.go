package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UserState handles GET /assessment/user-state.
func (s *Server) UserState(c *gin.Context) {
	state, err := s.assessment.GetUserState(c.Request.Context(), currentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userState": state})
}

// Recommendations handles GET /assessment/recommendations.
func (s *Server) Recommendations(c *gin.Context) {
	recs, err := s.assessment.GetRecommendations(c.Request.Context(), currentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// Activity handles GET /assessment/activity.
func (s *Server) Activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	activity, err := s.assessment.GetActivity(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}
