// Package protocol implements the terminal envelope protocol spoken between a
// termhub session and a terminal backend.
//
// Every frame on the wire is a JSON object with exactly two keys:
//
//	{"type": "output", "data": "hello\n"}
//	{"type": "exit",   "data": {"message": "bye", "code": 0}}
//
// The data field is either a string or an object carrying at least a
// "message" field. Decode turns it into a [Payload] variant before anything
// dispatches on it, and frames that are not valid envelopes are kept as raw
// text so peers that stream unframed bytes still render.
package protocol

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Kind is the envelope type tag.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
	KindSystem Kind = "system"
	KindError  Kind = "error"
	KindExit   Kind = "exit"
	KindPing   Kind = "ping"
	KindPong   Kind = "pong"
)

// IsKnown reports whether k is one of the protocol's closed set of kinds.
func (k Kind) IsKnown() bool {
	switch k {
	case KindInput, KindOutput, KindSystem, KindError, KindExit, KindPing, KindPong:
		return true
	default:
		return false
	}
}

// Envelope is the unit of wire exchange.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode produces a textual envelope with type=kind and data=payload.
// Payload is usually a string; anything JSON-encodable is accepted.
func Encode(kind Kind, payload interface{}) ([]byte, error) {
	if kind == "" {
		return nil, fmt.Errorf("encode envelope: missing type")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Type: kind, Data: data})
}

// TerminalURL builds the websocket endpoint for a target on the given
// backend. http upgrades to ws and https to wss; ws/wss pass through.
func TerminalURL(backend, targetID string) (string, error) {
	u, err := url.Parse(backend)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/terminal/" + targetID
	u.RawPath = ""
	return u.String(), nil
}
