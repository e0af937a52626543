// Package bridge implements the controller core: client sessions, the
// command protocol, per-session delta caches and the path translation
// between owner and client value conventions.
package bridge

import (
	"encoding/json"
	"fmt"
)

// Envelope kinds
const (
	KindCommand = "command"
	KindAck     = "ack"
	KindNack    = "nack"
)

// Command verbs
const (
	VerbEnumerateOwners = "enumerate-owners"
	VerbGet             = "get"
	VerbSet             = "set"
	VerbSubscribe       = "subscribe"
	VerbDisconnect      = "disconnect"

	// VerbError marks nacks for messages whose verb could not be recovered
	VerbError = "error"
)

// Envelope is the request/response unit exchanged with clients. The id is
// echoed from request to response so clients can correlate replies.
type Envelope struct {
	Kind   string                 `json:"kind"`
	Verb   string                 `json:"verb"`
	ID     int64                  `json:"id"`
	Params map[string]interface{} `json:"params"`
}

// NewAck builds an ack response; a nil params map serializes as {}
func NewAck(verb string, id int64, params map[string]interface{}) *Envelope {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Envelope{Kind: KindAck, Verb: verb, ID: id, Params: params}
}

// NewNack builds a nack response; a nil params map serializes as {}
func NewNack(verb string, id int64, params map[string]interface{}) *Envelope {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Envelope{Kind: KindNack, Verb: verb, ID: id, Params: params}
}

// NewCommand builds a command envelope, used by the client tool and tests
func NewCommand(verb string, id int64, params map[string]interface{}) *Envelope {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Envelope{Kind: KindCommand, Verb: verb, ID: id, Params: params}
}

// DecodeEnvelope parses and validates an inbound command envelope
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Kind != KindCommand {
		return nil, fmt.Errorf("unexpected envelope kind %q", env.Kind)
	}
	if env.Verb == "" {
		return nil, fmt.Errorf("envelope missing verb")
	}
	if env.Params == nil {
		env.Params = map[string]interface{}{}
	}
	return &env, nil
}

// Encode serializes an envelope
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// BoolParam returns the named param as a bool, or fallback when absent or
// of the wrong type
func (e *Envelope) BoolParam(key string, fallback bool) bool {
	if value, ok := e.Params[key].(bool); ok {
		return value
	}
	return fallback
}

// StringsParam returns the named param as a string slice; non-string
// elements are skipped
func (e *Envelope) StringsParam(key string) []string {
	raw, ok := e.Params[key].([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// MapParam returns the named param as a string-keyed map, or nil
func (e *Envelope) MapParam(key string) map[string]interface{} {
	value, _ := e.Params[key].(map[string]interface{})
	return value
}
