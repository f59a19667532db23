package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roam/relay"
)

type stubSource struct {
	mu   sync.Mutex
	snap relay.PeerSnapshot
}

func (s *stubSource) Snapshot() relay.PeerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSource) set(mutate func(*relay.PeerSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.snap)
}

type recordingSender struct {
	mu      sync.Mutex
	updates []relay.PeerUpdate
	err     error
}

func (s *recordingSender) SendUpdate(_ context.Context, update relay.PeerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, update)
	return nil
}

func (s *recordingSender) sent() []relay.PeerUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.PeerUpdate(nil), s.updates...)
}

func fixedClock(millis int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(millis) }
}

func newTestPublisher(src *stubSource, sender Sender) *Publisher {
	return New(src, sender, Config{Clock: fixedClock(5000)})
}

func TestFirstTickSendsFullSnapshot(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) {
		s.ID = "p1"
		s.Name = "Avery"
		s.Position = relay.Vec3{X: 1}
		s.Environment = "plaza"
	})
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one update, got %d", len(sent))
	}
	update := sent[0]
	if update.ID != "p1" || update.Name == nil || update.Position == nil || update.Rotation == nil || update.Environment == nil {
		t.Fatalf("expected full snapshot on first send, got %+v", update)
	}
	if update.LastUpdate != 5000 {
		t.Fatalf("expected clock timestamp on update, got %d", update.LastUpdate)
	}
}

func TestSubThresholdTicksSendNothing(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) { s.ID = "p1" })
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	src.set(func(s *relay.PeerSnapshot) { s.Position.X = 0.0005 })
	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}
	if len(sender.sent()) != 1 {
		t.Fatalf("expected sub-threshold tick to send nothing, got %d updates", len(sender.sent()))
	}

	src.set(func(s *relay.PeerSnapshot) { s.Position.X = 0.01 })
	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("third publish failed: %v", err)
	}

	sent := sender.sent()
	if len(sent) != 2 {
		t.Fatalf("expected third tick to send, got %d updates", len(sent))
	}
	update := sent[1]
	if update.Position == nil || update.Position.X != 0.01 {
		t.Fatalf("expected position in update, got %+v", update.Position)
	}
	if update.Rotation != nil || update.State != nil {
		t.Fatalf("expected unchanged fields omitted, got %+v", update)
	}
}

func TestSilentTicksDiffAgainstLastSentNotLastComputed(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) { s.ID = "p1" })
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	// Three drifts of 0.0005 are each below threshold, but the cache must not
	// advance on silent ticks, so the accumulated 0.0015 eventually sends.
	for i := 0; i < 3; i++ {
		src.set(func(s *relay.PeerSnapshot) { s.Position.X += 0.0005 })
		if err := pub.Publish(context.Background()); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	sent := sender.sent()
	if len(sent) != 2 {
		t.Fatalf("expected accumulated drift to trigger exactly one more send, got %d", len(sent)-1)
	}
}

func TestCacheEqualsFullSnapshotAfterSend(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) { s.ID = "p1"; s.State = "idle" })
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	// Change two fields; only the diff travels, but the cache must hold the
	// complete new snapshot afterwards.
	src.set(func(s *relay.PeerSnapshot) { s.Position.X = 1; s.State = "walking" })
	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	cached, ok := pub.LastSent()
	if !ok {
		t.Fatalf("expected cache after send")
	}
	if cached.Position.X != 1 || cached.State != "walking" || cached.ID != "p1" {
		t.Fatalf("expected cache to equal the full new snapshot, got %+v", cached)
	}

	// Nothing further changed, so the next tick must be silent.
	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("third publish failed: %v", err)
	}
	if len(sender.sent()) != 2 {
		t.Fatalf("expected no resend after cache update, got %d updates", len(sender.sent()))
	}
}

func TestSendFailureDoesNotRollBackCache(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) { s.ID = "p1" })
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	sender.mu.Lock()
	sender.err = errors.New("relay unreachable")
	sender.mu.Unlock()

	src.set(func(s *relay.PeerSnapshot) { s.Position.X = 2 })
	if err := pub.Publish(context.Background()); err == nil {
		t.Fatalf("expected publish to report the transport error")
	}

	cached, _ := pub.LastSent()
	if cached.Position.X != 2 {
		t.Fatalf("expected cache to advance despite the failed send, got %+v", cached)
	}

	// With the transport healthy again and no further movement, the lost diff
	// is not resent. Accepted best-effort behavior, not a bug.
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("publish after recovery failed: %v", err)
	}
	if len(sender.sent()) != 1 {
		t.Fatalf("expected no retry of the lost diff, got %d updates", len(sender.sent()))
	}
}

func TestEnvironmentChangeIsImmediateAndEager(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) { s.ID = "p1"; s.Environment = "plaza" })
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	if err := pub.SetEnvironment(context.Background(), "cave"); err != nil {
		t.Fatalf("environment announce failed: %v", err)
	}

	sent := sender.sent()
	if len(sent) != 2 {
		t.Fatalf("expected out-of-band send, got %d updates", len(sent))
	}
	announce := sent[1]
	if announce.Environment == nil || *announce.Environment != "cave" {
		t.Fatalf("expected environment in announce, got %+v", announce)
	}
	if announce.Position != nil || announce.State != nil {
		t.Fatalf("expected announce to carry only the changed field, got %+v", announce)
	}

	cached, _ := pub.LastSent()
	if cached.Environment != "cave" {
		t.Fatalf("expected eager cache update, got %q", cached.Environment)
	}

	// Once the engine reports the same environment, the eager cache means the
	// polling loop has nothing new to say.
	src.set(func(s *relay.PeerSnapshot) { s.Environment = "cave" })
	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("publish after announce failed: %v", err)
	}
	if len(sender.sent()) != 2 {
		t.Fatalf("expected no duplicate environment announce, got %d updates", len(sender.sent()))
	}
}

func TestCharacterChangeBeforeFirstTickSendsFullState(t *testing.T) {
	src := &stubSource{}
	src.set(func(s *relay.PeerSnapshot) { s.ID = "p1"; s.Name = "Avery" })
	sender := &recordingSender{}
	pub := newTestPublisher(src, sender)

	if err := pub.SetCharacter(context.Background(), "knight"); err != nil {
		t.Fatalf("character announce failed: %v", err)
	}

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one update, got %d", len(sent))
	}
	update := sent[0]
	if update.Character == nil || *update.Character != "knight" {
		t.Fatalf("expected new character, got %+v", update.Character)
	}
	if update.Name == nil || update.Position == nil {
		t.Fatalf("expected full state when no cache existed, got %+v", update)
	}

	cached, ok := pub.LastSent()
	if !ok || cached.Character != "knight" {
		t.Fatalf("expected eager cache seed, got %+v", cached)
	}
}
