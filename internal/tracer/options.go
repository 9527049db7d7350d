package tracer

import (
	"errors"
	"fmt"
	"math"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// ErrInvalidOptions is matched by every tracer configuration error
var ErrInvalidOptions = errors.New("invalid tracer options")

// OptionError reports one invalid start option. It travels on the wire as
// a "badParameterType" error.
type OptionError struct {
	Field  string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid tracer option %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidOptions) hold
func (e *OptionError) Unwrap() error { return ErrInvalidOptions }

// WireName implements the protocol wire error contract
func (e *OptionError) WireName() string { return protocol.ErrBadParameterType.Name }

// WireMessage implements the protocol wire error contract
func (e *OptionError) WireMessage() string { return e.Error() }

// StartOptions configures one tracing session
type StartOptions struct {
	// LogMethod defaults to the actor's configured method when empty
	LogMethod              LogMethod
	Prefix                 string
	TraceValues            bool
	TraceOnNextInteraction bool
	TraceDOMMutations      bool
	TraceFunctionReturn    bool
	UseNativeTracing       bool
	// Zero means no limit unless the actor has a configured default
	MaxDepth   int
	MaxRecords int
}

// validate checks the options without touching any state
func (o StartOptions) validate() error {
	if o.LogMethod != "" && !o.LogMethod.Valid() {
		return &OptionError{Field: "logMethod", Reason: fmt.Sprintf("invalid log method '%s'", o.LogMethod)}
	}
	if o.MaxDepth < 0 {
		return &OptionError{Field: "maxDepth", Reason: "must not be negative"}
	}
	if o.MaxRecords < 0 {
		return &OptionError{Field: "maxRecords", Reason: "must not be negative"}
	}
	return nil
}

// OptionsFromPacket decodes the loosely typed options of a startTracing
// request. A nil packet yields zero options.
func OptionsFromPacket(p protocol.Packet) (StartOptions, error) {
	var opts StartOptions
	if p == nil {
		return opts, nil
	}

	if v, ok := p["logMethod"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return opts, &OptionError{Field: "logMethod", Reason: fmt.Sprintf("expected a string, got %T", v)}
		}
		m, err := ParseLogMethod(s)
		if err != nil {
			return opts, err
		}
		opts.LogMethod = m
	}

	if v, ok := p["prefix"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return opts, &OptionError{Field: "prefix", Reason: fmt.Sprintf("expected a string, got %T", v)}
		}
		opts.Prefix = s
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{"traceValues", &opts.TraceValues},
		{"traceOnNextInteraction", &opts.TraceOnNextInteraction},
		{"traceDOMMutations", &opts.TraceDOMMutations},
		{"traceFunctionReturn", &opts.TraceFunctionReturn},
		{"useNativeTracing", &opts.UseNativeTracing},
	}
	for _, f := range flags {
		v, ok := p[f.key]
		if !ok || v == nil {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return opts, &OptionError{Field: f.key, Reason: fmt.Sprintf("expected a boolean, got %T", v)}
		}
		*f.dst = b
	}

	limits := []struct {
		key string
		dst *int
	}{
		{"maxDepth", &opts.MaxDepth},
		{"maxRecords", &opts.MaxRecords},
	}
	for _, l := range limits {
		v, ok := p[l.key]
		if !ok || v == nil {
			continue
		}
		n, ok := protocol.ToFloat(v)
		if !ok {
			return opts, &OptionError{Field: l.key, Reason: fmt.Sprintf("expected a number, got %T", v)}
		}
		if n != math.Trunc(n) || n < 0 {
			return opts, &OptionError{Field: l.key, Reason: fmt.Sprintf("expected a non-negative integer, got %v", n)}
		}
		*l.dst = int(n)
	}

	return opts, opts.validate()
}

// EngineOptions is what the tracing engine receives on start
type EngineOptions struct {
	// Global is the opaque execution context to trace. It never crosses
	// a serialization boundary.
	Global                 any    `json:"-" msgpack:"-"`
	Prefix                 string `json:"prefix,omitempty" msgpack:"prefix,omitempty"`
	TraceValues            bool   `json:"traceValues" msgpack:"traceValues"`
	TraceOnNextInteraction bool   `json:"traceOnNextInteraction" msgpack:"traceOnNextInteraction"`
	// Always on: listeners use the current DOM event to annotate frames
	TraceDOMEvents         bool   `json:"traceDOMEvents" msgpack:"traceDOMEvents"`
	TraceDOMMutations      bool   `json:"traceDOMMutations" msgpack:"traceDOMMutations"`
	TraceFunctionReturn    bool   `json:"traceFunctionReturn" msgpack:"traceFunctionReturn"`
	UseNativeTracing       bool   `json:"useNativeTracing" msgpack:"useNativeTracing"`
	MaxDepth               int    `json:"maxDepth,omitempty" msgpack:"maxDepth,omitempty"`
	MaxRecords             int    `json:"maxRecords,omitempty" msgpack:"maxRecords,omitempty"`
}

// Packet renders the options the way a startTracing request carries them.
// Unset fields are left out.
func (o StartOptions) Packet() protocol.Packet {
	p := protocol.Packet{}
	if o.LogMethod != "" {
		p["logMethod"] = string(o.LogMethod)
	}
	if o.Prefix != "" {
		p["prefix"] = o.Prefix
	}
	for key, on := range map[string]bool{
		"traceValues":            o.TraceValues,
		"traceOnNextInteraction": o.TraceOnNextInteraction,
		"traceDOMMutations":      o.TraceDOMMutations,
		"traceFunctionReturn":    o.TraceFunctionReturn,
		"useNativeTracing":       o.UseNativeTracing,
	} {
		if on {
			p[key] = true
		}
	}
	if o.MaxDepth > 0 {
		p["maxDepth"] = o.MaxDepth
	}
	if o.MaxRecords > 0 {
		p["maxRecords"] = o.MaxRecords
	}
	return p
}
