package telemetry

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rjboer/GoADI/internal/logging"
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// bench tool on a lab network
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// HandleLive upgrades the request to a websocket, replays the history as a
// "history" message, then streams each new point as a "point" message until
// the client goes away. ?run= restricts both to one run.
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	client := &wsClient{conn: conn}
	defer conn.Close()

	run := r.URL.Query().Get("run")
	past, points, cancel := h.Follow(run)
	defer cancel()

	if err := client.send(Message{Type: "history", Data: past}); err != nil {
		return
	}

	// reader goroutine notices the disconnect
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case p, ok := <-points:
			if !ok {
				return
			}
			if run != "" && p.Run != run {
				continue
			}
			if err := client.send(Message{Type: "point", Data: p}); err != nil {
				h.logger.Debug("websocket client write failed", logging.Err(err))
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
