package httpapi

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// LogStream implements the supplemental GET /jobs/{jid}/logs/ws endpoint:
// it polls the log file and pushes newly appended bytes to the client,
// adapted from the teacher's WebSocketHub connection loop but unicast
// (one job per connection) rather than broadcast, since log tailing is
// inherently per-job.
func (h *Handlers) LogStream(c *websocket.Conn) {
	jid := c.Params("jid")
	defer c.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastLen int
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			logs, err := h.Bundles.Logs(jid, 0)
			if err != nil {
				continue
			}
			if len(logs) <= lastLen {
				continue
			}
			chunk := logs[lastLen:]
			lastLen = len(logs)
			if err := c.WriteMessage(websocket.TextMessage, []byte(chunk)); err != nil {
				return
			}
		}
	}
}
