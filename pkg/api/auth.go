package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loresmith/loresmith/pkg/models"
)

// authTokenTTL bounds bearer token lifetime.
const authTokenTTL = 24 * time.Hour

// userIDKey is the gin context key carrying the authenticated user id.
const userIDKey = "auth.userID"

func authTokenKey(token string) string   { return "auth_token:" + token }
func streamTokenKey(token string) string { return "stream_token:" + token }

// Authenticate exchanges the shared secret for a bearer token. Token
// minting beyond this exchange is an external contract.
func (s *Server) Authenticate(c *gin.Context) {
	var req models.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.cfg.Server.AuthSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.cfg.Server.AuthSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	user, err := s.users.EnsureUser(c.Request.Context(), req.Username, req.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	token := uuid.New().String()
	if err := s.store.Put(c.Request.Context(), authTokenKey(token), user.ID, authTokenTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// authMiddleware resolves the bearer token into a user id.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		var userID string
		found, err := s.store.Get(c.Request.Context(), authTokenKey(token), &userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token lookup failed"})
			return
		}
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUser returns the authenticated user id.
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// MintStreamToken issues a short-lived, single-use token for the SSE
// stream (EventSource cannot send Authorization headers).
func (s *Server) MintStreamToken(c *gin.Context) {
	token := uuid.New().String()
	ttl := time.Duration(s.cfg.Server.StreamTokenTTLSeconds) * time.Second
	if err := s.store.Put(c.Request.Context(), streamTokenKey(token), currentUser(c), ttl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint stream token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": s.cfg.Server.StreamTokenTTLSeconds})
}
