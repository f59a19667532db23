package relay

import (
	"sync/atomic"
)

// Telemetry tracks relay throughput with lock-free counters so the broadcast
// path never blocks on instrumentation.
type Telemetry struct {
	eventsSent        atomic.Uint64
	bytesSent         atomic.Uint64
	broadcasts        atomic.Uint64
	writeFailures     atomic.Uint64
	heartbeatsSent    atomic.Uint64
	connectionsOpened atomic.Uint64
	connectionsClosed atomic.Uint64
	peersPruned       atomic.Uint64
}

// TelemetrySnapshot is the diagnostics-facing copy of the counters.
type TelemetrySnapshot struct {
	EventsSent        uint64 `json:"eventsSent"`
	BytesSent         uint64 `json:"bytesSent"`
	Broadcasts        uint64 `json:"broadcasts"`
	WriteFailures     uint64 `json:"writeFailures"`
	HeartbeatsSent    uint64 `json:"heartbeatsSent"`
	ConnectionsOpened uint64 `json:"connectionsOpened"`
	ConnectionsClosed uint64 `json:"connectionsClosed"`
	PeersPruned       uint64 `json:"peersPruned"`
}

func (t *Telemetry) recordEvent(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	t.eventsSent.Add(1)
	t.bytesSent.Add(uint64(bytes))
}

func (t *Telemetry) recordBroadcast() {
	t.broadcasts.Add(1)
}

func (t *Telemetry) recordWriteFailure() {
	t.writeFailures.Add(1)
}

func (t *Telemetry) recordHeartbeat() {
	t.heartbeatsSent.Add(1)
}

func (t *Telemetry) recordOpen() {
	t.connectionsOpened.Add(1)
}

func (t *Telemetry) recordClose() {
	t.connectionsClosed.Add(1)
}

func (t *Telemetry) recordPrune(count int) {
	if count > 0 {
		t.peersPruned.Add(uint64(count))
	}
}

// Snapshot returns a point-in-time copy of every counter.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		EventsSent:        t.eventsSent.Load(),
		BytesSent:         t.bytesSent.Load(),
		Broadcasts:        t.broadcasts.Load(),
		WriteFailures:     t.writeFailures.Load(),
		HeartbeatsSent:    t.heartbeatsSent.Load(),
		ConnectionsOpened: t.connectionsOpened.Load(),
		ConnectionsClosed: t.connectionsClosed.Load(),
		PeersPruned:       t.peersPruned.Load(),
	}
}
