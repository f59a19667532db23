package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"roam/relay"
)

// HTTPSender posts partial updates to a relay's /api/datastar/send endpoint.
type HTTPSender struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSender builds a sender for the relay at baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type sendBody struct {
	Type string           `json:"type"`
	Peer relay.PeerUpdate `json:"peer"`
}

// SendUpdate transmits one update and reports any transport or server error.
func (s *HTTPSender) SendUpdate(ctx context.Context, update relay.PeerUpdate) error {
	body, err := json.Marshal(sendBody{Type: relay.EventPeerUpdate, Peer: update})
	if err != nil {
		return fmt.Errorf("encode peer update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/datastar/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send peer update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay rejected update: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
