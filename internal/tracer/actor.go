// Package tracer implements tracing sessions: option validation, choosing a
// listener for the requested log method, delegating to the tracing engine
// and capturing the listener's result when tracing stops.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// Session states reported by TracerActor.State
const (
	StateStopped = "stopped"
	StateRunning = "running"
)

// DefaultStrategies maps every LogMethod to its listener. Stdout sessions
// print to out.
func DefaultStrategies(out io.Writer) map[LogMethod]Strategy {
	resource := Strategy{NewListener: func(cfg ListenerConfig) Listener {
		return NewResourceListener(cfg)
	}}
	return map[LogMethod]Strategy{
		LogMethodStdout: {NewListener: func(cfg ListenerConfig) Listener {
			return NewStdoutListener(out, cfg)
		}},
		LogMethodConsole:         resource,
		LogMethodDebuggerSidebar: resource,
		LogMethodProfiler: {
			NewListener: func(cfg ListenerConfig) Listener {
				return NewProfilerListener(cfg)
			},
			ForceFunctionReturn: true,
			ForceNativeTracing:  true,
		},
	}
}

// Options configures a TracerActor
type Options struct {
	Engine Engine
	// Nil means DefaultStrategies(os.Stdout)
	Strategies map[LogMethod]Strategy
	// Used when a start request names no log method. Empty means stdout.
	DefaultLogMethod LogMethod
	// Applied when a start request leaves the limit at zero
	MaxDepth   int
	MaxRecords int
	Logger     *zap.Logger
}

// TracerActor owns the tracing session of one target
type TracerActor struct {
	protocol.BaseActor

	target     Target
	engine     Engine
	strategies map[LogMethod]Strategy
	defaults   Options
	logger     *zap.Logger

	mu         sync.Mutex
	logMethod  LogMethod
	listener   Listener
	grips      *gripPool
	stopResult any
}

// NewTracerActor creates a stopped session for target
func NewTracerActor(conn *protocol.Conn, target Target, opts Options) *TracerActor {
	strategies := opts.Strategies
	if strategies == nil {
		strategies = DefaultStrategies(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TracerActor{
		BaseActor:  protocol.NewBaseActor(conn, "tracer"),
		target:     target,
		engine:     opts.Engine,
		strategies: strategies,
		defaults:   opts,
		logger:     logger,
	}
}

// State implements protocol.Stateful
func (t *TracerActor) State() string {
	if t.IsTracing() {
		return StateRunning
	}
	return StateStopped
}

// IsTracing reports whether a session is running
func (t *TracerActor) IsTracing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener != nil
}

// LogMethod returns the log method of the running session, or ""
func (t *TracerActor) LogMethod() LogMethod {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logMethod
}

// GetProfile returns what the listener of the last session returned when it
// stopped. For profiler sessions this is a *Profile.
func (t *TracerActor) GetProfile() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopResult
}

func (t *TracerActor) resolveLogMethod(opts StartOptions) LogMethod {
	switch {
	case opts.LogMethod != "":
		return opts.LogMethod
	case t.defaults.DefaultLogMethod != "":
		return t.defaults.DefaultLogMethod
	default:
		return LogMethodStdout
	}
}

// StartTracing validates opts, selects the listener for the log method and
// starts the engine. An engine failure stops the session again before the
// error is returned.
func (t *TracerActor) StartTracing(ctx context.Context, opts StartOptions) error {
	if err := protocol.CheckState(t, StateStopped, "start tracing"); err != nil {
		return err
	}
	if err := opts.validate(); err != nil {
		return err
	}
	method := t.resolveLogMethod(opts)
	strategy, ok := t.strategies[method]
	if !ok || strategy.NewListener == nil {
		return &OptionError{Field: "logMethod", Reason: fmt.Sprintf("no listener for log method '%s'", method)}
	}

	// Background threads never wait for user interactions
	if opts.TraceOnNextInteraction && !t.target.IsMainThread() {
		return nil
	}
	// The parent document's target already traces this thread
	if t.target.SharesThreadWithParent() {
		return nil
	}

	engineOpts := EngineOptions{
		Global:                 t.target.Global(),
		Prefix:                 opts.Prefix,
		TraceValues:            opts.TraceValues,
		TraceOnNextInteraction: opts.TraceOnNextInteraction,
		TraceDOMEvents:         true,
		TraceDOMMutations:      opts.TraceDOMMutations,
		TraceFunctionReturn:    opts.TraceFunctionReturn || strategy.ForceFunctionReturn,
		UseNativeTracing:       opts.UseNativeTracing || strategy.ForceNativeTracing,
		MaxDepth:               opts.MaxDepth,
		MaxRecords:             opts.MaxRecords,
	}
	if engineOpts.MaxDepth == 0 {
		engineOpts.MaxDepth = t.defaults.MaxDepth
	}
	if engineOpts.MaxRecords == 0 {
		engineOpts.MaxRecords = t.defaults.MaxRecords
	}

	t.mu.Lock()
	t.logMethod = method
	t.releaseGripsLocked()
	listener := strategy.NewListener(ListenerConfig{
		Target:      t.target,
		TraceValues: opts.TraceValues,
		TraceActor:  t,
	})
	t.listener = listener
	t.mu.Unlock()

	t.engine.AddTracingListener(listener)
	if err := t.engine.StartTracing(ctx, engineOpts); err != nil {
		if stopErr := t.StopTracing(ctx); stopErr != nil {
			t.logger.Warn("failed to unwind tracer after start failure", zap.Error(stopErr))
		}
		return fmt.Errorf("failed to start tracing: %w", err)
	}

	t.logger.Debug("tracing started",
		zap.String("actor", t.ActorID()),
		zap.Stringer("logMethod", method))
	t.target.EmitResources(ResourceState, []any{map[string]any{
		"enabled":   true,
		"logMethod": string(method),
	}})
	return nil
}

// StopTracing stops the running session. Calling it while stopped is a no-op.
//
// The listener is removed from the engine before the engine is stopped so
// that no record reaches a listener that is no longer attached.
func (t *TracerActor) StopTracing(ctx context.Context) error {
	t.mu.Lock()
	listener, method := t.listener, t.logMethod
	t.mu.Unlock()
	if listener == nil {
		return nil
	}

	t.engine.RemoveTracingListener(listener)
	result, stopErr := listener.Stop(ctx)

	t.mu.Lock()
	t.stopResult = result
	t.listener = nil
	t.mu.Unlock()

	engineErr := t.engine.StopTracing(ctx)

	t.mu.Lock()
	t.logMethod = ""
	t.mu.Unlock()

	t.logger.Debug("tracing stopped", zap.String("actor", t.ActorID()))
	t.target.EmitResources(ResourceState, []any{map[string]any{
		"enabled":   false,
		"logMethod": string(method),
	}})

	if err := errors.Join(stopErr, engineErr); err != nil {
		return fmt.Errorf("failed to stop tracing: %w", err)
	}
	return nil
}

// ToggleTracing stops a running session or starts a new one, and reports
// whether tracing is running afterwards.
func (t *TracerActor) ToggleTracing(ctx context.Context, opts StartOptions) (bool, error) {
	if t.IsTracing() {
		return false, t.StopTracing(ctx)
	}
	if err := t.StartTracing(ctx, opts); err != nil {
		return false, err
	}
	return t.IsTracing(), nil
}

// CreateValueGrip returns a wire-safe grip for v. Object grips live in a pool
// that is created on first use and discarded when the next session starts.
func (t *TracerActor) CreateValueGrip(v any) any {
	t.mu.Lock()
	if t.grips == nil {
		t.grips = newGripPool(t.Conn())
	}
	grips := t.grips
	t.mu.Unlock()
	return grips.grip(v)
}

func (t *TracerActor) releaseGripsLocked() {
	if t.grips != nil {
		t.grips.destroy()
		t.grips = nil
	}
}

// Destroy implements protocol.Destroyer. It stops any running session.
func (t *TracerActor) Destroy() {
	if err := t.StopTracing(context.Background()); err != nil {
		t.logger.Warn("failed to stop tracing on destroy", zap.Error(err))
	}
	t.mu.Lock()
	t.releaseGripsLocked()
	t.mu.Unlock()
}

// Form implements protocol.FormProvider
func (t *TracerActor) Form() protocol.Packet {
	return protocol.Packet{"actor": t.ActorID()}
}

// Methods implements protocol.MethodProvider
func (t *TracerActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"startTracing": protocol.ExpectState(t, StateStopped, "start tracing",
			func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
				opts, err := t.requestOptions(req)
				if err != nil {
					return nil, err
				}
				return nil, t.StartTracing(ctx, opts)
			}),
		"stopTracing": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			return nil, t.StopTracing(ctx)
		},
		"toggleTracing": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			opts, err := t.requestOptions(req)
			if err != nil {
				return nil, err
			}
			tracing, err := t.ToggleTracing(ctx, opts)
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"isTracing": tracing}, nil
		},
		"getProfile": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			return protocol.Packet{"profile": t.GetProfile()}, nil
		},
	}
}

func (t *TracerActor) requestOptions(req protocol.Packet) (StartOptions, error) {
	raw, ok := req["options"]
	if !ok || raw == nil {
		return StartOptions{}, nil
	}
	p, ok := req.Object("options")
	if !ok {
		return StartOptions{}, &OptionError{Field: "options", Reason: fmt.Sprintf("expected an object, got %T", raw)}
	}
	return OptionsFromPacket(p)
}
