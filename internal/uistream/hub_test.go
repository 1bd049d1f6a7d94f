package uistream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/events/bus"
)

func newTestServer(t *testing.T, hub *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/stream", hub.HandleWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestClientReceivesGreetingSnapshot(t *testing.T) {
	hub := NewHub(func() interface{} {
		return map[string]string{"status": "UNKNOWN"}
	}, logger.Default())
	url := newTestServer(t, hub)

	conn := dial(t, url)
	env := readEnvelope(t, conn)
	assert.Equal(t, FrameState, env.Type)

	payload, ok := env.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "UNKNOWN", payload["status"])
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(func() interface{} { return nil }, logger.Default())
	url := newTestServer(t, hub)

	first := dial(t, url)
	second := dial(t, url)
	readEnvelope(t, first)
	readEnvelope(t, second)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 5*time.Second, 20*time.Millisecond)

	hub.Broadcast(FrameLog, map[string]string{"line": "hello"})

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, FrameLog, env.Type)
	}
}

func TestHubForwardsBusEvents(t *testing.T) {
	eventBus := bus.NewMemoryEventBus(logger.Default())
	t.Cleanup(eventBus.Close)

	hub := NewHub(func() interface{} { return nil }, logger.Default())
	require.NoError(t, hub.Attach(eventBus))
	url := newTestServer(t, hub)

	conn := dial(t, url)
	readEnvelope(t, conn) // greeting

	event := bus.NewEvent(events.SimulatorLogLine, "simulator", map[string]interface{}{
		"line":   "from the bus",
		"stream": "stdout",
	})
	require.NoError(t, eventBus.Publish(context.Background(), events.SimulatorLogLine, event))

	env := readEnvelope(t, conn)
	assert.Equal(t, FrameLog, env.Type)
	payload, ok := env.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "from the bus", payload["line"])
}

func TestDisconnectedClientIsDropped(t *testing.T) {
	hub := NewHub(func() interface{} { return nil }, logger.Default())
	url := newTestServer(t, hub)

	conn := dial(t, url)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 20*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 20*time.Millisecond)
}
