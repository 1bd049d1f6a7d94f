// Package uistream pushes simulator state and run output to UI clients
// over WebSocket. Clients get the full current snapshot on connect and a
// fresh one on every state transition.
package uistream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/events/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from arbitrary dev-server origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Envelope is the wire frame sent to clients.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Frame types pushed to clients.
const (
	FrameState = "state"
	FrameLog   = "log"
)

// SnapshotFunc supplies the current full state for newly connected
// clients.
type SnapshotFunc func() interface{}

// Hub fans simulator events out to connected WebSocket clients.
type Hub struct {
	logger   *logger.Logger
	snapshot SnapshotFunc

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub builds a Hub; snapshot feeds the greeting frame per connection.
func NewHub(snapshot SnapshotFunc, log *logger.Logger) *Hub {
	return &Hub{
		logger:   log.WithFields(zap.String("component", "uistream")),
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}
}

// Attach subscribes the hub to the simulator subjects on the event bus.
func (h *Hub) Attach(eventBus bus.EventBus) error {
	_, err := eventBus.Subscribe(events.SimulatorStateUpdated, func(ctx context.Context, event *bus.Event) error {
		h.Broadcast(FrameState, event.Data["snapshot"])
		return nil
	})
	if err != nil {
		return err
	}
	_, err = eventBus.Subscribe(events.SimulatorLogLine, func(ctx context.Context, event *bus.Event) error {
		h.Broadcast(FrameLog, event.Data)
		return nil
	})
	return err
}

// Broadcast sends one frame to every connected client. Clients that
// cannot keep up are dropped.
func (h *Hub) Broadcast(frameType string, payload interface{}) {
	raw, err := json.Marshal(Envelope{Type: frameType, Payload: payload})
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode frame")
		return
	}

	h.mu.RLock()
	stale := make([]*client, 0)
	for c := range h.clients {
		if !c.enqueue(raw) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.drop(c)
	}
}

// HandleWS upgrades the request and serves the client until it leaves.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	cl := newClient(conn)
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.Int("clients", count))

	if greeting, err := json.Marshal(Envelope{Type: FrameState, Payload: h.snapshot()}); err == nil {
		cl.enqueue(greeting)
	}

	go cl.writePump()
	cl.readPump() // blocks until the peer disconnects
	h.drop(cl)
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl)
	count := len(h.clients)
	h.mu.Unlock()

	cl.close()
	h.logger.Debug("client disconnected", zap.Int("clients", count))
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
