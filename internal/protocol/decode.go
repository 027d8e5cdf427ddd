package protocol

import (
	"bytes"
	"encoding/json"
)

// Payload is the decoded data field of an envelope. It is either a
// StringPayload or a StructuredPayload.
type Payload interface {
	// Text returns the display form: the string itself, or the message
	// field of a structured payload (falling back to its JSON text).
	Text() string
	isPayload()
}

// StringPayload is a data field that was a JSON string. Non-object JSON
// values (numbers, arrays, booleans) are also carried here as their JSON text.
type StringPayload string

func (p StringPayload) Text() string { return string(p) }
func (StringPayload) isPayload()     {}

// StructuredPayload is a data field that was a JSON object.
type StructuredPayload struct {
	// Message is the "message" field when it was present as a string.
	Message    string
	HasMessage bool
	// Fields holds every key of the object, including "message".
	Fields map[string]json.RawMessage
	// Raw is the object exactly as received.
	Raw json.RawMessage
}

func (p StructuredPayload) Text() string {
	if p.HasMessage {
		return p.Message
	}
	return string(p.Raw)
}
func (StructuredPayload) isPayload() {}

// Frame is one decoded inbound frame. Exactly one of Type or Raw is meaningful:
// when IsRaw is true the bytes were not an envelope and Raw holds them verbatim.
type Frame struct {
	Type    Kind
	Payload Payload // nil when the envelope carried no data (or data was null)
	Raw     string
	raw     bool
}

// IsRaw reports whether the frame failed envelope parsing.
func (f Frame) IsRaw() bool { return f.raw }

// RawFrame wraps bytes that are known not to be an envelope, such as a
// binary websocket message.
func RawFrame(b []byte) Frame {
	return Frame{Raw: string(b), raw: true}
}

// Decode attempts to parse b as an envelope. Anything that is not a JSON
// object with a non-empty string "type" comes back as a raw frame.
func Decode(b []byte) Frame {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return RawFrame(b)
	}
	var kind string
	typeField, ok := obj["type"]
	if !ok || json.Unmarshal(typeField, &kind) != nil || kind == "" {
		return RawFrame(b)
	}

	f := Frame{Type: Kind(kind)}
	if data, ok := obj["data"]; ok {
		f.Payload = decodePayload(data)
	}
	return f
}

func decodePayload(data json.RawMessage) Payload {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return StringPayload(s)
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			p := StructuredPayload{Fields: fields, Raw: append(json.RawMessage(nil), trimmed...)}
			if m, ok := fields["message"]; ok {
				var msg string
				if json.Unmarshal(m, &msg) == nil {
					p.Message = msg
					p.HasMessage = true
				}
			}
			return p
		}
	}
	return StringPayload(string(trimmed))
}
