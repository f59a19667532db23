package net

import (
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"roam/relay"
)

// sseWriter frames events as text/event-stream. Broadcasts and the heartbeat
// loop write concurrently, so every write holds the mutex and flushes before
// releasing it.
type sseWriter struct {
	mu      sync.Mutex
	w       nethttp.ResponseWriter
	flusher nethttp.Flusher

	closeOnce sync.Once
	done      chan struct{}
}

func newSSEWriter(w nethttp.ResponseWriter, flusher nethttp.Flusher) *sseWriter {
	return &sseWriter{w: w, flusher: flusher, done: make(chan struct{})}
}

func (s *sseWriter) WriteEvent(evt relay.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("sse stream closed")
	default:
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close releases the handler goroutine; the registry calls it on removal.
// Taking the write mutex guarantees no write is in flight once the handler
// returns and the ResponseWriter becomes invalid.
func (s *sseWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// handleSSE registers the response stream as a subscriber, emits the connected
// frame, and parks until the client goes away or the registry evicts us.
func handleSSE(registry *relay.Registry, logger *zap.SugaredLogger, w nethttp.ResponseWriter, r *nethttp.Request) {
	flusher, ok := w.(nethttp.Flusher)
	if !ok {
		nethttp.Error(w, "streaming unsupported", nethttp.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(nethttp.StatusOK)
	flusher.Flush()

	writer := newSSEWriter(w, flusher)
	connID := registry.Register(writer)

	if peerID := r.URL.Query().Get("peer"); peerID != "" {
		registry.AssociatePeer(connID, peerID)
	}

	if err := writer.WriteEvent(relay.ConnectedEvent(connID, time.Now())); err != nil {
		logger.Warnw("failed to send connected frame", "conn", connID, "err", err)
		registry.Unregister(connID)
		return
	}

	select {
	case <-r.Context().Done():
		registry.Unregister(connID)
	case <-writer.done:
		// registry already dropped us
	}
}
