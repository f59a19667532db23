// Package publisher implements the client-side differential peer-state
// publisher: it polls the local avatar on a fixed interval and transmits a
// partial update only when something moved beyond the noise threshold.
package publisher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"roam/relay"
)

// Source reads the current state of the local avatar.
type Source interface {
	Snapshot() relay.PeerSnapshot
}

// SourceFunc adapts a plain function into a Source.
type SourceFunc func() relay.PeerSnapshot

func (f SourceFunc) Snapshot() relay.PeerSnapshot { return f() }

// Sender transmits one partial update to the relay.
type Sender interface {
	SendUpdate(ctx context.Context, update relay.PeerUpdate) error
}

// Config tunes a Publisher. Zero values fall back to defaults.
type Config struct {
	// Interval is the polling cadence.
	Interval time.Duration
	// Epsilon is the per-component position/rotation threshold.
	Epsilon float64
	Logger  *zap.SugaredLogger
	// Clock stamps outgoing updates; tests override it.
	Clock func() time.Time
}

const defaultInterval = 100 * time.Millisecond

// Publisher diffs the local avatar state against the last snapshot it put on
// the wire and transmits only meaningful changes. Delivery is best-effort: a
// failed send is logged and the cache still advances, so a diff can be lost
// unless the state moves again.
type Publisher struct {
	src    Source
	sender Sender
	cfg    Config

	mu       sync.Mutex
	lastSent *relay.PeerSnapshot
}

// New builds a publisher. Source and sender are required.
func New(src Source, sender Sender, cfg Config) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = relay.PositionEpsilon
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Publisher{src: src, sender: sender, cfg: cfg}
}

// Run polls until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.cfg.Logger.Warnw("peer update failed", "err", err)
			}
		}
	}
}

// Publish performs one tick: read the avatar, diff against the last sent
// snapshot, and transmit when at least one field crossed its threshold. Ticks
// that send nothing leave the cache untouched, so sub-threshold drift
// accumulates until it is worth a message.
func (p *Publisher) Publish(ctx context.Context) error {
	next := p.src.Snapshot()
	next.LastUpdate = p.cfg.Clock().UnixMilli()

	p.mu.Lock()
	var update relay.PeerUpdate
	send := false
	if p.lastSent == nil {
		update = relay.FullUpdate(next)
		send = true
	} else {
		update, send = relay.DiffSnapshots(*p.lastSent, next, p.cfg.Epsilon)
	}
	p.mu.Unlock()

	if !send {
		return nil
	}

	err := p.sender.SendUpdate(ctx, update)

	// The cache advances to the full new snapshot whether or not the send
	// succeeded; there is deliberately no rollback and no retry.
	p.mu.Lock()
	cached := next
	p.lastSent = &cached
	p.mu.Unlock()

	return err
}

// SetEnvironment announces an environment change immediately, outside the
// polling cycle. The cache updates eagerly, before the send is attempted.
func (p *Publisher) SetEnvironment(ctx context.Context, environment string) error {
	return p.announce(ctx, func(snap *relay.PeerSnapshot, update *relay.PeerUpdate) {
		snap.Environment = environment
		update.Environment = &environment
	})
}

// SetCharacter announces a character change immediately, outside the polling
// cycle. The cache updates eagerly, before the send is attempted.
func (p *Publisher) SetCharacter(ctx context.Context, character string) error {
	return p.announce(ctx, func(snap *relay.PeerSnapshot, update *relay.PeerUpdate) {
		snap.Character = character
		update.Character = &character
	})
}

// LastSent exposes the cached snapshot, primarily for tests and diagnostics.
func (p *Publisher) LastSent() (relay.PeerSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastSent == nil {
		return relay.PeerSnapshot{}, false
	}
	return *p.lastSent, true
}

func (p *Publisher) announce(ctx context.Context, mutate func(*relay.PeerSnapshot, *relay.PeerUpdate)) error {
	now := p.cfg.Clock().UnixMilli()

	p.mu.Lock()
	if p.lastSent == nil {
		// No cache yet: seed it from the avatar and send everything.
		snap := p.src.Snapshot()
		snap.LastUpdate = now
		update := relay.FullUpdate(snap)
		mutate(&snap, &update)
		p.lastSent = &snap
		p.mu.Unlock()
		return p.sender.SendUpdate(ctx, update)
	}

	update := relay.PeerUpdate{ID: p.lastSent.ID, LastUpdate: now}
	mutate(p.lastSent, &update)
	p.lastSent.LastUpdate = now
	p.mu.Unlock()

	return p.sender.SendUpdate(ctx, update)
}
