package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnvelopeType is the leading byte of a server envelope.
type EnvelopeType byte

const (
	EnvelopeOpen      EnvelopeType = 'o'
	EnvelopeHeartbeat EnvelopeType = 'h'
	EnvelopeArray     EnvelopeType = 'a'
	EnvelopeClose     EnvelopeType = 'c'
)

// String returns a human-readable envelope type name
func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeOpen:
		return "open"
	case EnvelopeHeartbeat:
		return "heartbeat"
	case EnvelopeArray:
		return "array"
	case EnvelopeClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(t))
	}
}

// Envelope is one decoded server message.
type Envelope struct {
	Type EnvelopeType

	// Frames holds the serialized inner frames of an array envelope.
	Frames []string

	// CloseCode and CloseReason are set for close envelopes.
	CloseCode   int
	CloseReason string
}

// IsControl reports whether the envelope carries no application data.
func (e *Envelope) IsControl() bool {
	return e.Type != EnvelopeArray
}

// String returns a debug representation of the envelope
func (e *Envelope) String() string {
	switch e.Type {
	case EnvelopeArray:
		return fmt.Sprintf("Envelope{type=array, frames=%d}", len(e.Frames))
	case EnvelopeClose:
		return fmt.Sprintf("Envelope{type=close, code=%d, reason=%q}", e.CloseCode, e.CloseReason)
	default:
		return fmt.Sprintf("Envelope{type=%s}", e.Type)
	}
}

// DecodeEnvelope parses one server message.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, newDecodeError(LayerEnvelope, "", nil, "empty envelope")
	}

	kind := EnvelopeType(data[0])
	rest := bytes.TrimSpace(data[1:])

	switch kind {
	case EnvelopeOpen, EnvelopeHeartbeat:
		if len(rest) != 0 {
			return nil, newDecodeError(LayerEnvelope, string(data), nil,
				"unexpected payload after %s envelope", kind)
		}
		return &Envelope{Type: kind}, nil

	case EnvelopeArray:
		var frames []string
		if err := json.Unmarshal(rest, &frames); err != nil {
			return nil, newDecodeError(LayerEnvelope, string(data), err, "invalid array payload")
		}
		return &Envelope{Type: kind, Frames: frames}, nil

	case EnvelopeClose:
		var parts []json.RawMessage
		if err := json.Unmarshal(rest, &parts); err != nil {
			return nil, newDecodeError(LayerEnvelope, string(data), err, "invalid close payload")
		}
		if len(parts) != 2 {
			return nil, newDecodeError(LayerEnvelope, string(data), nil,
				"close payload has %d elements, want 2", len(parts))
		}
		env := &Envelope{Type: kind}
		if err := json.Unmarshal(parts[0], &env.CloseCode); err != nil {
			return nil, newDecodeError(LayerEnvelope, string(data), err, "invalid close code")
		}
		if err := json.Unmarshal(parts[1], &env.CloseReason); err != nil {
			return nil, newDecodeError(LayerEnvelope, string(data), err, "invalid close reason")
		}
		return env, nil

	default:
		return nil, newDecodeError(LayerEnvelope, string(data), nil,
			"unknown envelope prefix %q", data[0])
	}
}

// EncodeEnvelope wraps serialized inner frames for the client-to-server
// direction: a bare JSON array of strings, without an 'a' prefix.
func EncodeEnvelope(frames ...string) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("encode envelope: no frames")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frames); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeClientEnvelope parses a client-to-server message, the bare JSON
// array written by EncodeEnvelope.
func DecodeClientEnvelope(data []byte) ([]string, error) {
	var frames []string
	if err := json.Unmarshal(bytes.TrimSpace(data), &frames); err != nil {
		return nil, newDecodeError(LayerEnvelope, string(data), err, "invalid client envelope")
	}
	if len(frames) == 0 {
		return nil, newDecodeError(LayerEnvelope, string(data), nil, "client envelope has no frames")
	}
	return frames, nil
}

// EncodeServerEnvelope renders an envelope in the server-to-client form.
// The live client never sends these; they exist for capture replay and the
// fake endpoint used in tests.
func EncodeServerEnvelope(env *Envelope) ([]byte, error) {
	switch env.Type {
	case EnvelopeOpen, EnvelopeHeartbeat:
		return []byte{byte(env.Type)}, nil
	case EnvelopeArray:
		body, err := EncodeEnvelope(env.Frames...)
		if err != nil {
			return nil, err
		}
		return append([]byte{'a'}, body...), nil
	case EnvelopeClose:
		body, err := json.Marshal([]interface{}{env.CloseCode, env.CloseReason})
		if err != nil {
			return nil, fmt.Errorf("encode close envelope: %w", err)
		}
		return append([]byte{'c'}, body...), nil
	default:
		return nil, fmt.Errorf("encode envelope: unsupported type %s", env.Type)
	}
}
