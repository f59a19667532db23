package relay

import "time"

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultStalePeerTTL      = 2 * time.Minute
	defaultPruneInterval     = 15 * time.Second
)

// RegistryConfig tunes the connection registry. Zero values fall back to the
// defaults via Normalized.
type RegistryConfig struct {
	// HeartbeatInterval is the cadence of keep-alive frames per connection.
	HeartbeatInterval time.Duration
	// StalePeerTTL is how long a peer's last-known state survives without an
	// update before it is dropped and a peerGone event is broadcast.
	StalePeerTTL time.Duration
	// PruneInterval is the cadence of the stale-peer sweep in Run.
	PruneInterval time.Duration
}

// DefaultRegistryConfig returns the tuning used in production.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HeartbeatInterval: defaultHeartbeatInterval,
		StalePeerTTL:      defaultStalePeerTTL,
		PruneInterval:     defaultPruneInterval,
	}
}

// Normalized replaces non-positive durations with defaults.
func (c RegistryConfig) Normalized() RegistryConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.StalePeerTTL <= 0 {
		c.StalePeerTTL = defaultStalePeerTTL
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = defaultPruneInterval
	}
	return c
}
