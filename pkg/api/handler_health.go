package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loresmith/loresmith/pkg/database"
)

// Health handles GET /healthz: database and redis connectivity plus pool
// statistics.
func (s *Server) Health(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbErr := database.Health(reqCtx, s.db.DB())
	redisErr := s.store.Ping(reqCtx)

	if dbErr != nil || redisErr != nil {
		payload := gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
		}
		if dbErr != nil {
			payload["databaseError"] = dbErr.Error()
		}
		if redisErr != nil {
			payload["redisError"] = redisErr.Error()
		}
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
		"redis":    "healthy",
	})
}
