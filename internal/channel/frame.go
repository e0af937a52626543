package channel

import (
	"encoding/json"
	"fmt"
)

// Frame is the transport envelope carrying a client identity and an opaque
// payload. On socket transports one frame is one newline-delimited JSON
// object; on websocket transports one frame is one text message. The payload
// is left undecoded so a malformed command still reaches the controller,
// which answers it with a protocol-level nack.
type Frame struct {
	Identity string          `json:"identity"`
	Payload  json.RawMessage `json:"payload"`
}

// EncodeFrame serializes a frame without a trailing newline
func EncodeFrame(identity string, payload []byte) ([]byte, error) {
	return json.Marshal(&Frame{Identity: identity, Payload: payload})
}

// DecodeFrame parses a frame and validates the identity
func DecodeFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if frame.Identity == "" {
		return nil, fmt.Errorf("frame missing client identity")
	}
	return &frame, nil
}
