package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/hasta/internal/present"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// writeWait bounds a single websocket write.
const writeWait = 2 * time.Second

// sceneMessage is pushed to renderer clients after every run.
type sceneMessage struct {
	RunID     string         `json:"run_id"`
	Scene     *present.Scene `json:"scene"`
	Timestamp int64          `json:"timestamp"`
}

// SceneHub pushes the latest render scene to websocket clients. A client
// that connects after a run receives that run's scene immediately.
type SceneHub struct {
	clients map[*websocket.Conn]*sync.Mutex
	latest  []byte
	mu      sync.RWMutex
}

// NewSceneHub creates an empty hub.
func NewSceneHub() *SceneHub {
	return &SceneHub{clients: make(map[*websocket.Conn]*sync.Mutex)}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *SceneHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	latest := h.latest
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	if latest != nil {
		if err := write(conn, writeMu, latest); err != nil {
			return
		}
	}

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Broadcast sends a run's scene to every connected client.
func (h *SceneHub) Broadcast(runID string, scene *present.Scene) {
	msg, err := json.Marshal(sceneMessage{
		RunID:     runID,
		Scene:     scene,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("scene encode error: %v", err)
		return
	}

	h.mu.Lock()
	h.latest = msg
	clients := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		clients[conn] = mu
	}
	h.mu.Unlock()

	for conn, mu := range clients {
		if err := write(conn, mu, msg); err != nil {
			log.Printf("scene write error: %v", err)
		}
	}
}

// Clients returns the number of connected clients.
func (h *SceneHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// write serializes writes per connection; gorilla allows one concurrent writer.
func write(conn *websocket.Conn, mu *sync.Mutex, msg []byte) error {
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
