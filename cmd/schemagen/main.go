// schemagen emits a JSON Schema for the relay's wire contract so the browser
// client can validate payloads during development.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"roam/relay"
	servernet "roam/relay/internal/net"
)

// wireContract groups every payload the relay accepts or emits.
type wireContract struct {
	Send      servernet.SendRequest  `json:"send" jsonschema:"description=Body of POST /api/datastar/send"`
	Envelope  servernet.WSEnvelope   `json:"envelope" jsonschema:"description=Frame shape on the WebSocket stream"`
	Peer      relay.PeerSnapshot     `json:"peer" jsonschema:"description=Full last-known state of one peer"`
	Update    relay.PeerUpdate       `json:"update" jsonschema:"description=Partial peer update as broadcast to subscribers"`
	Connected relay.ConnectedPayload `json:"connected" jsonschema:"description=Body of the first frame on a new connection"`
	Heartbeat relay.HeartbeatPayload `json:"heartbeat" jsonschema:"description=Body of the periodic keep-alive frame"`
	PeerGone  relay.PeerGonePayload  `json:"peerGone" jsonschema:"description=Body of the stale-peer eviction frame"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireContract))
	schema.Title = "Roam Relay Wire Contract"
	schema.Description = "Validates every payload exchanged between browser clients and the relay"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
