// relay-bot is a headless load and compatibility client: each bot wanders a
// simulated avatar, publishes differential updates over HTTP, and subscribes
// to the relay's WebSocket stream to observe everyone else.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"roam/relay"
	"roam/relay/publisher"
)

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// avatar is a random-walk stand-in for the browser's character controller.
type avatar struct {
	mu       sync.Mutex
	snapshot relay.PeerSnapshot
	heading  float64
}

func newAvatar(id, name, environment string) *avatar {
	return &avatar{
		snapshot: relay.PeerSnapshot{
			ID:          id,
			Name:        name,
			Environment: environment,
			Character:   "default",
			State:       "idle",
		},
		heading: rand.Float64() * 2 * math.Pi,
	}
}

func (a *avatar) Snapshot() relay.PeerSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// wander nudges the avatar along a slowly turning heading.
func (a *avatar) wander(step float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heading += (rand.Float64() - 0.5) * 0.4
	a.snapshot.Position.X += math.Cos(a.heading) * step
	a.snapshot.Position.Z += math.Sin(a.heading) * step
	a.snapshot.Rotation.Y = a.heading
	a.snapshot.State = "walking"
}

func main() {
	server := flag.String("server", "http://localhost:8080", "relay base url")
	bots := flag.Int("bots", 2, "number of bot peers")
	environment := flag.String("env", "plaza", "environment the bots report")
	interval := flag.Duration("interval", 100*time.Millisecond, "publish interval")
	duration := flag.Duration("duration", 15*time.Second, "how long to run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	logger := relay.NewLogger("")
	defer logger.Sync()

	var wg sync.WaitGroup
	for i := 0; i < *bots; i++ {
		name := fmt.Sprintf("bot-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBot(ctx, *server, name, *environment, *interval, logger)
		}()
	}
	wg.Wait()
	logger.Info("relay-bot: done")
}

func runBot(ctx context.Context, server, name, environment string, interval time.Duration, logger *zap.SugaredLogger) {
	peerID := uuid.NewString()
	av := newAvatar(peerID, name, environment)

	received := subscribe(ctx, server, peerID, name, logger)

	pub := publisher.New(av, publisher.NewHTTPSender(server, nil), publisher.Config{Interval: interval})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("%s: saw %d peer updates", name, received.Load())
			return
		case <-ticker.C:
			av.wander(0.25)
			if err := pub.Publish(ctx); err != nil {
				logger.Warnf("%s: publish failed: %v", name, err)
			}
		}
	}
}

// subscribe opens the WebSocket stream and counts peerUpdate frames from
// other peers until the context ends.
func subscribe(ctx context.Context, server, peerID, name string, logger *zap.SugaredLogger) *counter {
	received := &counter{}

	wsURL := strings.Replace(server, "http", "ws", 1) + "/api/ws?peer=" + peerID
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logger.Warnf("%s: subscribe failed: %v", name, err)
		return received
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		for {
			var envelope wsEnvelope
			if err := conn.ReadJSON(&envelope); err != nil {
				return
			}
			if envelope.Type != relay.EventPeerUpdate {
				continue
			}
			var update relay.PeerUpdate
			if err := json.Unmarshal(envelope.Data, &update); err != nil {
				continue
			}
			if update.ID != peerID {
				received.Add(1)
			}
		}
	}()

	// Browsers use the SSE stream; the health endpoint confirms the relay is
	// reachable before the bots start hammering it.
	if resp, err := http.Get(server + "/api/health"); err == nil {
		resp.Body.Close()
	}

	return received
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Add(delta int) {
	c.mu.Lock()
	c.n += delta
	c.mu.Unlock()
}

func (c *counter) Load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
