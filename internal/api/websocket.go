package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // join clients may stream from any origin, no same-origin dashboard
	},
}

// subscriber is one connected progress-stream client, optionally scoped to
// a single run. Passing ?runId= on /stream filters the broadcast to that
// run's events only, so a client watching one submission isn't woken by
// every other run's progress.
type subscriber struct {
	conn  *websocket.Conn
	runID string // empty means "all runs"
}

type runEvent struct {
	runID string
	data  []byte
}

// Hub maintains the set of active progress-stream clients and fans out
// join_progress events (see progressEvent in routes.go) to them.
type Hub struct {
	clients   map[*websocket.Conn]*subscriber
	broadcast chan runEvent
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan runEvent, 256),
		clients:   make(map[*websocket.Conn]*subscriber),
	}
}

func (h *Hub) Run() {
	for event := range h.broadcast {
		h.mutex.Lock()
		for conn, sub := range h.clients {
			if sub.runID != "" && sub.runID != event.runID {
				continue
			}
			// Set write deadline to prevent a stalled client from hanging the hub.
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, event.data); err != nil {
				log.Printf("join progress stream write error: %v", err)
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the request to a websocket and starts streaming
// join_progress events. An optional runId query parameter scopes the
// stream to a single run; omitted, the client receives every run's events.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade join progress stream: %v", err)
		return
	}

	sub := &subscriber{conn: conn, runID: c.Query("runId")}
	h.mutex.Lock()
	h.clients[conn] = sub
	h.mutex.Unlock()

	log.Printf("join progress client connected (runId=%q). total clients: %d", sub.runID, len(h.clients))

	// Keep-alive loop: we only push down, but must read to detect disconnects.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("join progress client disconnected. total clients: %d", len(h.clients))
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("join progress stream error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends a join_progress payload for runID to every subscriber
// watching that run, plus every subscriber watching all runs.
func (h *Hub) Broadcast(runID string, data []byte) {
	h.broadcast <- runEvent{runID: runID, data: data}
}
