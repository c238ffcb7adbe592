// internal/storage/envelope.go
package storage

import (
	"encoding/json"
	"fmt"

	"mcp-glucose-insights/internal/models"
)

// PayloadVersion is the schema version written with every cached payload.
const PayloadVersion = 1

type envelope struct {
	Version int                `json:"version"`
	Kind    models.InsightKind `json:"kind"`
	Data    json.RawMessage    `json:"data"`
}

// EncodePayload validates payload and wraps it in a versioned envelope.
func EncodePayload(kind models.InsightKind, payload Payload) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload", models.ErrInvalidPayload)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(envelope{Version: PayloadVersion, Kind: kind, Data: data})
}

// DecodePayload unwraps an envelope. Payloads written before versioning
// (a bare JSON object) are read as version 0.
func DecodePayload(raw []byte) (int, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, nil, fmt.Errorf("failed to parse payload envelope: %w", err)
	}
	if env.Data == nil {
		return 0, json.RawMessage(raw), nil
	}
	if env.Version > PayloadVersion {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	return env.Version, env.Data, nil
}
