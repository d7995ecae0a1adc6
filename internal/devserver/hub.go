package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"pollctl/pkg/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Hub fans vote updates out to the sockets watching each poll.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]bool
	closed bool
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*websocket.Conn]bool)}
}

// Serve upgrades GET /ws/polls/:id/ and keeps the socket in the poll's
// group until the peer goes away. Clients never send anything useful.
func (h *Hub) Serve(c *gin.Context) {
	pollID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	if !h.add(pollID, conn) {
		conn.Close()
		return
	}
	defer h.remove(pollID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends a vote_update with the full tally to every watcher.
func (h *Hub) Broadcast(pollID string, votes map[int64]int64) {
	b, err := json.Marshal(protocol.LiveMessage{
		Type:   protocol.LiveMessageVoteUpdate,
		PollID: pollID,
		Votes:  votes,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.groups[pollID] {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			conn.Close()
			delete(h.groups[pollID], conn)
		}
	}
}

// Watchers returns the number of sockets subscribed to a poll.
func (h *Hub) Watchers(pollID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[pollID])
}

// Close disconnects every socket and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, group := range h.groups {
		for conn := range group {
			conn.Close()
		}
		delete(h.groups, id)
	}
}

func (h *Hub) add(pollID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.groups[pollID] == nil {
		h.groups[pollID] = make(map[*websocket.Conn]bool)
	}
	h.groups[pollID][conn] = true
	return true
}

func (h *Hub) remove(pollID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group := h.groups[pollID]; group != nil {
		delete(group, conn)
		if len(group) == 0 {
			delete(h.groups, pollID)
		}
	}
	conn.Close()
}
