package server

import (
	"log"
	"net/http"
	"time"

	"address-distance/internal/jobs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pollInterval   = 250 * time.Millisecond
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamRun pushes a job snapshot whenever it changes and closes the connection once
// the job is done or failed.
func (s *Server) streamRun(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade for %s: %v", job.ID, err)
		return
	}
	defer conn.Close()

	// Clients only listen; reading detects when they go away.
	gone := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sent := -1
	for {
		if v := job.Version(); v != sent {
			snap := job.Snapshot()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
			sent = snap.Version

			if snap.Status == jobs.StatusDone || snap.Status == jobs.StatusError {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status)))
				return
			}
		}

		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
