package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// Packet is a single protocol message. Requests carry "to" and "type",
// responses and events carry "from".
type Packet map[string]any

// NewRequest builds a request packet addressed to an actor
func NewRequest(to, typ string, params map[string]any) Packet {
	p := Packet{"to": to, "type": typ}
	for k, v := range params {
		if k == "to" || k == "type" {
			continue
		}
		p[k] = v
	}
	return p
}

// To returns the target actor id of a request
func (p Packet) To() string {
	s, _ := p.String("to")
	return s
}

// From returns the originating actor id of a response or event
func (p Packet) From() string {
	s, _ := p.String("from")
	return s
}

// Type returns the request or event type
func (p Packet) Type() string {
	s, _ := p.String("type")
	return s
}

// String returns the value at key if it is a string
func (p Packet) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Bool returns the value at key if it is a boolean, false otherwise
func (p Packet) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Number returns the value at key as a float64 if it holds any numeric type.
// JSON decoding produces float64, msgpack and Go callers produce sized ints.
func (p Packet) Number(key string) (float64, bool) {
	return ToFloat(p[key])
}

// Int returns the value at key as an int if it is an integral number
func (p Packet) Int(key string) (int, bool) {
	f, ok := p.Number(key)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Object returns the nested packet at key
func (p Packet) Object(key string) (Packet, bool) {
	switch v := p[key].(type) {
	case Packet:
		return v, true
	case map[string]any:
		return Packet(v), true
	default:
		return nil, false
	}
}

// Objects returns the list of nested packets at key, skipping non-object items
func (p Packet) Objects(key string) []Packet {
	var out []Packet
	switch v := p[key].(type) {
	case []Packet:
		return v
	case []map[string]any:
		for _, m := range v {
			out = append(out, Packet(m))
		}
	case []any:
		for _, item := range v {
			switch m := item.(type) {
			case Packet:
				out = append(out, m)
			case map[string]any:
				out = append(out, Packet(m))
			}
		}
	}
	return out
}

// Err converts an error response into an *Error, or returns nil
func (p Packet) Err() error {
	name, ok := p.String("error")
	if !ok || name == "" {
		return nil
	}
	msg, _ := p.String("message")
	return &Error{Name: name, Message: msg}
}

// Normalize round-trips the packet through JSON so that values built in Go
// (structs, typed slices, sized ints) take the same shape they have after
// crossing a real transport.
func (p Packet) Normalize() (Packet, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal packet: %w", err)
	}
	var out Packet
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet: %w", err)
	}
	return out, nil
}

// ToFloat converts any Go or wire numeric value to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Names used when the protocol is carried over MCP
const (
	// RequestToolName is the tool that dispatches one request packet
	RequestToolName = "rdp_request"
	// EventLoggerName tags logging notifications that carry actor events
	EventLoggerName = "rdp"
)
