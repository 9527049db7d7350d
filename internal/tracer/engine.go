package tracer

import "context"

// Engine is the tracing engine a session delegates to. The engine itself is
// opaque; it pushes records to every registered listener while running.
type Engine interface {
	StartTracing(ctx context.Context, opts EngineOptions) error
	StopTracing(ctx context.Context) error
	AddTracingListener(l Listener)
	RemoveTracingListener(l Listener)
}

// Listener receives the records of one session
type Listener interface {
	Output(r Record)
	Error(err error)
	// Stop flushes the listener and returns its final result, which the
	// session keeps for GetProfile.
	Stop(ctx context.Context) (any, error)
}

// Target is the actor being traced, as seen by a tracer session
type Target interface {
	// Global is the execution context handed to the engine
	Global() any
	// IsMainThread is false for worker targets
	IsMainThread() bool
	// SharesThreadWithParent is true for sub-documents traced through the
	// target of their top-level document
	SharesThreadWithParent() bool
	// EmitResources notifies the client of new resources of the given type
	EmitResources(resourceType string, resources []any)
}

// GripFactory turns values into wire-safe grips
type GripFactory interface {
	CreateValueGrip(v any) any
}

// ListenerConfig is what every listener is built from
type ListenerConfig struct {
	Target      Target
	TraceValues bool
	TraceActor  GripFactory
}

// ListenerFactory builds the listener of one session
type ListenerFactory func(cfg ListenerConfig) Listener

// Strategy is the listener and engine adjustments associated with a LogMethod
type Strategy struct {
	NewListener ListenerFactory
	// Force the engine to report function exits
	ForceFunctionReturn bool
	// Force the engine's native tracing mode
	ForceNativeTracing bool
}

// Resource types emitted to the client
const (
	ResourceTrace = "jstracer-trace"
	ResourceState = "jstracer-state"
)
