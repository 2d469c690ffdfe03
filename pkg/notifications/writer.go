// Package notifications implements the per-user Notification Hub: SSE
// fan-out with offline queuing, ordered replay on reconnect, ping-based
// liveness, and dead-connection reaping.
//
// Each user gets one Hub actor. All subscriber and writer access happens on
// the hub's own goroutine, which serializes outbound writes and guarantees
// the queued → connected → live ordering without locks.
package notifications

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loresmith/loresmith/pkg/models"
)

// StreamWriter is one subscriber's outbound stream. Implemented by the SSE
// handler over the HTTP response; by in-memory buffers in tests.
//
// Write is only ever called from the owning hub's goroutine.
type StreamWriter interface {
	// Write sends one complete SSE frame and flushes it.
	Write(frame []byte) error

	// Close releases the stream. Must be idempotent.
	Close() error
}

// pingFrame is the SSE comment written on every liveness tick.
const pingFrame = ": ping\n\n"

// eventFrame renders a notification payload as an SSE data frame.
func eventFrame(p *models.NotificationPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return []byte("data: " + string(data) + "\n\n"), nil
}

// isBrokenStream reports whether a write error indicates the underlying
// stream is gone, meaning further writes are pointless and replay must stop
// with the remaining entries still queued.
func isBrokenStream(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "closed") || strings.Contains(msg, "broken")
}
