package net

import (
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"go.uber.org/zap"

	"roam/relay"
)

// HTTPHandlerConfig carries the dependencies of the HTTP surface.
type HTTPHandlerConfig struct {
	// ClientDir, when set, is served at / for the browser client bundle.
	ClientDir string
	Logger    *zap.SugaredLogger
}

// SendRequest is the body of POST /api/datastar/send. Exactly one of Peer or
// Data is expected depending on Type; Environment narrows delivery to
// connections associated with peers in that environment.
type SendRequest struct {
	Type         string            `json:"type"`
	Peer         *relay.PeerUpdate `json:"peer,omitempty"`
	Data         json.RawMessage   `json:"data,omitempty"`
	Environment  string            `json:"environment,omitempty"`
	ConnectionID string            `json:"connectionId,omitempty"`
	PeerID       string            `json:"peerId,omitempty"`
}

type sendResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler wires the relay's HTTP surface around an injected registry.
func NewHTTPHandler(registry *relay.Registry, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/api/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
			Timestamp   int64  `json:"timestamp"`
		}{
			Status:      "ok",
			Connections: registry.ConnectionCount(),
			Timestamp:   time.Now().UnixMilli(),
		})
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, struct {
			Status      string                  `json:"status"`
			ServerTime  int64                   `json:"serverTime"`
			Connections []relay.ConnectionInfo  `json:"connections"`
			Peers       int                     `json:"peers"`
			Heartbeat   int64                   `json:"heartbeatMillis"`
			Telemetry   relay.TelemetrySnapshot `json:"telemetry"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			Connections: registry.Connections(),
			Peers:       registry.PeerCount(),
			Heartbeat:   registry.HeartbeatInterval().Milliseconds(),
			Telemetry:   registry.Telemetry(),
		})
	})

	mux.HandleFunc("/api/datastar/send", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeJSON(w, nethttp.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}

		if err := dispatchSend(registry, req); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, nethttp.StatusOK, sendResponse{Success: true})
	})

	mux.HandleFunc("/api/datastar/sse", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		handleSSE(registry, logger, w, r)
	})

	mux.HandleFunc("/api/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		handleWS(registry, logger, w, r)
	})

	if cfg.ClientDir != "" {
		mux.Handle("/", nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return mux
}

// dispatchSend routes one send request to the registry. Validation errors are
// reported to the caller; delivery itself stays best-effort.
func dispatchSend(registry *relay.Registry, req SendRequest) error {
	switch req.Type {
	case relay.EventPeerUpdate:
		if req.Peer == nil || req.Peer.ID == "" {
			return errors.New("peer with id is required")
		}
		registry.ApplyPeerUpdate(*req.Peer)
		evt, err := relay.NewEvent(relay.EventPeerUpdate, req.Peer)
		if err != nil {
			return err
		}
		if req.Environment != "" {
			registry.BroadcastEnvironment(req.Environment, evt)
		} else {
			registry.BroadcastAll(evt)
		}
		return nil
	case relay.EventMessage, relay.EventBroadcast:
		if len(req.Data) == 0 {
			return errors.New("data is required")
		}
		evt := relay.RawEvent(req.Type, req.Data)
		if req.Environment != "" {
			registry.BroadcastEnvironment(req.Environment, evt)
		} else {
			registry.BroadcastAll(evt)
		}
		return nil
	case "associate":
		if req.ConnectionID == "" || req.PeerID == "" {
			return errors.New("connectionId and peerId are required")
		}
		if !registry.AssociatePeer(req.ConnectionID, req.PeerID) {
			return errors.New("unknown connection")
		}
		return nil
	default:
		return errors.New("unknown message type")
	}
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
