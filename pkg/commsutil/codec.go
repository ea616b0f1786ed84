package commsutil

import (
	"context"
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// RequestJSON sends req as JSON on subject and decodes the reply into resp.
func RequestJSON(ctx context.Context, nc *comms.Conn, subject string, req, resp interface{}) error {
	data, err := EncodePayload(req)
	if err != nil {
		return fmt.Errorf("commsutil:codec - failed to encode request: %w", err)
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("commsutil:codec - request to %s failed: %w", subject, err)
	}
	if err := DecodePayload(msg.Data, resp); err != nil {
		return fmt.Errorf("commsutil:codec - failed to decode reply from %s: %w", subject, err)
	}
	return nil
}
