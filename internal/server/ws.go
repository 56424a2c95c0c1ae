package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// streamInterval bounds how often a client receives a status update.
const streamInterval = 66 * time.Millisecond

// StatusStream pushes status board snapshots to WebSocket clients.
type StatusStream struct {
	board *status.Board
}

// NewStatusStream creates a StatusStream for the given board.
func NewStatusStream(b *status.Board) *StatusStream {
	return &StatusStream{board: b}
}

// ServeHTTP upgrades the connection and streams snapshots until the client
// goes away. Snapshots arriving faster than streamInterval are coalesced.
func (h *StatusStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id, updates := h.board.Subscribe()
	defer h.board.Unsubscribe(id)

	// Keep connection alive by reading messages
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	latest := h.board.Snapshot()
	dirty := true

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			latest = snap
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(latest); err != nil {
				return
			}
			dirty = false
		}
	}
}
