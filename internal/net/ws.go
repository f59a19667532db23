package net

import (
	"encoding/json"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"roam/relay"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *nethttp.Request) bool {
		return true
	},
}

// WSEnvelope mirrors an SSE frame over a WebSocket: the event type plus the
// raw JSON payload.
type WSEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wsWriter delivers the same event stream over a WebSocket for non-browser
// clients. The mutex serializes broadcast and heartbeat writes.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteEvent(evt relay.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(WSEnvelope{Type: evt.Type, Data: evt.Data})
}

// Close shuts the socket; the blocked read loop in handleWS then returns.
func (w *wsWriter) Close() error {
	return w.conn.Close()
}

// handleWS upgrades the request and registers the socket as a subscriber.
// Inbound frames are not part of the protocol; the read loop exists only to
// notice the client going away.
func handleWS(registry *relay.Registry, logger *zap.SugaredLogger, w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "err", err)
		return
	}

	writer := &wsWriter{conn: conn}
	connID := registry.Register(writer)

	if peerID := r.URL.Query().Get("peer"); peerID != "" {
		registry.AssociatePeer(connID, peerID)
	}

	if err := writer.WriteEvent(relay.ConnectedEvent(connID, time.Now())); err != nil {
		logger.Warnw("failed to send connected frame", "conn", connID, "err", err)
		registry.Unregister(connID)
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			registry.Unregister(connID)
			return
		}
	}
}
