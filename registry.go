package relay

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventWriter delivers one event frame to a subscriber. Implementations that
// also satisfy io.Closer are closed when the registry drops the connection.
type EventWriter interface {
	WriteEvent(Event) error
}

type connection struct {
	id     string
	writer EventWriter
	peerID string
	stop   chan struct{}
}

// Registry owns every live subscriber connection and the last-known state of
// every peer. It is an explicit dependency handed to the HTTP layer, never a
// process-wide singleton.
//
// Delivery is best-effort: a failed write drops exactly that connection from
// the set, with no retry and no ordering guarantee across connections.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*connection
	peers map[string]*PeerSnapshot

	cfg       RegistryConfig
	logger    *zap.SugaredLogger
	telemetry Telemetry
	clock     func() time.Time
}

// NewRegistry builds a registry with normalized config. A nil logger falls
// back to a no-op logger so library callers are never forced to log.
func NewRegistry(cfg RegistryConfig, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		conns:  make(map[string]*connection),
		peers:  make(map[string]*PeerSnapshot),
		cfg:    cfg.Normalized(),
		logger: logger,
		clock:  time.Now,
	}
}

// Register adds a subscriber and starts its keep-alive loop. The returned id
// is revealed to the client in the connected frame so it can associate itself
// with a peer later.
func (r *Registry) Register(w EventWriter) string {
	conn := &connection{
		id:     uuid.NewString(),
		writer: w,
		stop:   make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[conn.id] = conn
	r.mu.Unlock()

	r.telemetry.recordOpen()
	go r.heartbeatLoop(conn)

	r.logger.Debugw("connection registered", "conn", conn.id)
	return conn.id
}

// Unregister removes a connection, stops its heartbeat timer, and closes the
// underlying writer. Safe to call more than once.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		close(conn.stop)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.telemetry.recordClose()
	if closer, ok := conn.writer.(io.Closer); ok {
		closer.Close()
	}
	r.logger.Debugw("connection removed", "conn", id)
}

// AssociatePeer links a connection to a peer id, enabling environment-filtered
// delivery for it. Returns false when the connection is unknown.
func (r *Registry) AssociatePeer(connID, peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.peerID = peerID
	return true
}

// ConnectionCount reports the number of live subscribers.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ConnectionInfo describes one live connection for diagnostics.
type ConnectionInfo struct {
	ID     string `json:"id"`
	PeerID string `json:"peerId,omitempty"`
}

// Connections lists the live subscribers for the diagnostics endpoint.
func (r *Registry) Connections() []ConnectionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]ConnectionInfo, 0, len(r.conns))
	for _, conn := range r.conns {
		infos = append(infos, ConnectionInfo{ID: conn.id, PeerID: conn.peerID})
	}
	return infos
}

// ApplyPeerUpdate merges a partial update into the stored snapshot for its
// peer, creating the peer on first sight, and returns the merged state.
func (r *Registry) ApplyPeerUpdate(u PeerUpdate) (PeerSnapshot, bool) {
	if u.ID == "" {
		return PeerSnapshot{}, false
	}
	if u.LastUpdate == 0 {
		u.LastUpdate = r.clock().UnixMilli()
	}

	r.mu.Lock()
	snap, ok := r.peers[u.ID]
	if !ok {
		snap = &PeerSnapshot{ID: u.ID}
		r.peers[u.ID] = snap
	}
	u.ApplyTo(snap)
	merged := *snap
	r.mu.Unlock()

	return merged, true
}

// Peer returns the stored snapshot for a peer id.
func (r *Registry) Peer(id string) (PeerSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.peers[id]
	if !ok {
		return PeerSnapshot{}, false
	}
	return *snap, true
}

// PeerCount reports the number of peers with last-known state.
func (r *Registry) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// BroadcastAll fans the event out to every connection. Write failures drop the
// failing connection and nothing else.
func (r *Registry) BroadcastAll(evt Event) {
	r.telemetry.recordBroadcast()
	r.mu.Lock()
	conns := make(map[string]*connection, len(r.conns))
	for id, conn := range r.conns {
		conns[id] = conn
	}
	r.mu.Unlock()

	r.writeToAll(conns, evt)
}

// BroadcastEnvironment delivers the event only to connections whose associated
// peer currently reports the given environment. Connections without a peer
// association never receive environment-filtered messages.
func (r *Registry) BroadcastEnvironment(environment string, evt Event) {
	r.telemetry.recordBroadcast()
	r.mu.Lock()
	conns := make(map[string]*connection)
	for id, conn := range r.conns {
		if conn.peerID == "" {
			continue
		}
		peer, ok := r.peers[conn.peerID]
		if !ok || peer.Environment != environment {
			continue
		}
		conns[id] = conn
	}
	r.mu.Unlock()

	r.writeToAll(conns, evt)
}

func (r *Registry) writeToAll(conns map[string]*connection, evt Event) {
	for id, conn := range conns {
		if err := conn.writer.WriteEvent(evt); err != nil {
			r.logger.Warnw("dropping connection after failed write", "conn", id, "err", err)
			r.telemetry.recordWriteFailure()
			r.Unregister(id)
			continue
		}
		r.telemetry.recordEvent(len(evt.Data))
	}
}

// PrunePeers drops peers whose last update is older than the stale TTL and
// broadcasts a peerGone event for each. Returns the dropped peer ids.
func (r *Registry) PrunePeers(now time.Time) []string {
	cutoff := now.Add(-r.cfg.StalePeerTTL).UnixMilli()

	r.mu.Lock()
	var gone []string
	for id, snap := range r.peers {
		if snap.LastUpdate < cutoff {
			delete(r.peers, id)
			gone = append(gone, id)
		}
	}
	r.mu.Unlock()

	if len(gone) == 0 {
		return nil
	}
	r.telemetry.recordPrune(len(gone))

	for _, id := range gone {
		r.logger.Infow("pruning stale peer", "peer", id)
		evt, err := NewEvent(EventPeerGone, PeerGonePayload{ID: id})
		if err != nil {
			continue
		}
		r.BroadcastAll(evt)
	}
	return gone
}

// Run drives the stale-peer sweep until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.PrunePeers(now)
		}
	}
}

// CloseAll drops every connection, used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Unregister(id)
	}
}

// Telemetry returns a point-in-time copy of the relay counters.
func (r *Registry) Telemetry() TelemetrySnapshot {
	return r.telemetry.Snapshot()
}

// HeartbeatInterval exposes the configured keep-alive cadence for diagnostics.
func (r *Registry) HeartbeatInterval() time.Duration {
	return r.cfg.HeartbeatInterval
}

// heartbeatLoop sends keep-alive frames until the connection is removed. The
// ticker stops when the registry closes the connection's stop channel.
func (r *Registry) heartbeatLoop(conn *connection) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.stop:
			return
		case now := <-ticker.C:
			evt := heartbeatEvent(now)
			if err := conn.writer.WriteEvent(evt); err != nil {
				r.logger.Warnw("dropping connection after failed heartbeat", "conn", conn.id, "err", err)
				r.telemetry.recordWriteFailure()
				r.Unregister(conn.id)
				return
			}
			r.telemetry.recordHeartbeat()
			r.telemetry.recordEvent(len(evt.Data))
		}
	}
}
