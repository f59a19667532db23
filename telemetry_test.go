package relay

import "testing"

func TestTelemetrySnapshotReflectsCounters(t *testing.T) {
	var counters Telemetry

	counters.recordBroadcast()
	counters.recordEvent(128)
	counters.recordEvent(64)
	counters.recordWriteFailure()
	counters.recordHeartbeat()
	counters.recordOpen()
	counters.recordOpen()
	counters.recordClose()
	counters.recordPrune(3)
	counters.recordPrune(0)

	snapshot := counters.Snapshot()
	if snapshot.Broadcasts != 1 {
		t.Fatalf("expected 1 broadcast, got %d", snapshot.Broadcasts)
	}
	if snapshot.EventsSent != 2 {
		t.Fatalf("expected 2 events sent, got %d", snapshot.EventsSent)
	}
	if snapshot.BytesSent != 192 {
		t.Fatalf("expected 192 bytes sent, got %d", snapshot.BytesSent)
	}
	if snapshot.WriteFailures != 1 {
		t.Fatalf("expected 1 write failure, got %d", snapshot.WriteFailures)
	}
	if snapshot.HeartbeatsSent != 1 {
		t.Fatalf("expected 1 heartbeat, got %d", snapshot.HeartbeatsSent)
	}
	if snapshot.ConnectionsOpened != 2 || snapshot.ConnectionsClosed != 1 {
		t.Fatalf("unexpected connection counters: %+v", snapshot)
	}
	if snapshot.PeersPruned != 3 {
		t.Fatalf("expected 3 pruned peers, got %d", snapshot.PeersPruned)
	}
}

func TestTelemetryNegativeBytesClamped(t *testing.T) {
	var counters Telemetry
	counters.recordEvent(-5)

	snapshot := counters.Snapshot()
	if snapshot.BytesSent != 0 {
		t.Fatalf("expected negative byte count to clamp to zero, got %d", snapshot.BytesSent)
	}
	if snapshot.EventsSent != 1 {
		t.Fatalf("expected the event itself to still count, got %d", snapshot.EventsSent)
	}
}
