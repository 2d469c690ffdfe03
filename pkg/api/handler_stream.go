package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// sseWriter adapts the HTTP response into the hub's StreamWriter. Writes
// arrive only from the owning hub goroutine; the mutex guards Close racing
// a final write when the handler unwinds.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *sseWriter) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stream is GET /stream?token=… — the per-user SSE notification stream.
// The token comes from POST /notifications/mint-stream and is single-use.
func (s *Server) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	var userID string
	found, err := s.store.GetDel(c.Request.Context(), streamTokenKey(token), &userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token lookup failed"})
		return
	}
	if !found {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired stream token"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	writer := &sseWriter{w: c.Writer, flusher: flusher}
	defer func() { _ = writer.Close() }()

	// Subscribe replays the offline queue, emits the connected marker, and
	// registers for live events. It returns once replay is done; the
	// request then parks until the client disconnects.
	ctx := c.Request.Context()
	if err := s.hub.Subscribe(ctx, userID, writer); err != nil {
		// The stream broke during replay; nothing more to send.
		return
	}
	<-ctx.Done()
}
