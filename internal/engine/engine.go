// Package engine hosts a WebAssembly tracing engine behind the
// tracer.Engine interface.
//
// The wasm module exports start_tracing and stop_tracing, both taking JSON
// engine options, and imports emit_trace (one msgpack positional record per
// call) and emit_error (a UTF-8 message).
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/tracer"
)

// ErrRecordLimit is reported to listeners when a session emits maxRecords
// records. The engine is told to stop emitting.
var ErrRecordLimit = errors.New("trace record limit reached")

// caller is the part of *extism.Plugin the engine drives
type caller interface {
	Call(name string, data []byte) (uint32, []byte, error)
}

// Engine implements tracer.Engine on top of an extism plugin
type Engine struct {
	plugin *extism.Plugin
	calls  caller
	logger *zap.Logger

	callMu sync.Mutex // extism plugins are not safe for concurrent calls

	mu        sync.Mutex
	listeners []tracer.Listener
	running   bool
	opts      tracer.EngineOptions
	records   int
	limitHit  bool
}

// NewFromFile loads the tracing engine from a .wasm file
func NewFromFile(ctx context.Context, path string, logger *zap.Logger) (*Engine, error) {
	return newEngine(ctx, extism.WasmFile{Path: path}, logger)
}

// NewFromBytes loads the tracing engine from an in-memory module
func NewFromBytes(ctx context.Context, wasm []byte, logger *zap.Logger) (*Engine, error) {
	return newEngine(ctx, extism.WasmData{Data: wasm}, logger)
}

func newEngine(ctx context.Context, wasm extism.Wasm, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{wasm},
	}
	config := extism.PluginConfig{
		EnableWasi: true,
	}
	hostFunctions := []extism.HostFunction{
		createEmitTraceHostFunc(e),
		createEmitErrorHostFunc(e),
	}

	plugin, err := extism.NewPlugin(ctx, manifest, config, hostFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing engine plugin: %w", err)
	}
	e.plugin = plugin
	e.calls = plugin
	return e, nil
}

// AddTracingListener implements tracer.Engine
func (e *Engine) AddTracingListener(l tracer.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// RemoveTracingListener implements tracer.Engine
func (e *Engine) RemoveTracingListener(l tracer.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// StartTracing implements tracer.Engine
func (e *Engine) StartTracing(ctx context.Context, opts tracer.EngineOptions) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("tracing engine is already running")
	}
	e.running = true
	e.opts = opts
	e.records = 0
	e.limitHit = false
	e.mu.Unlock()

	input, err := json.Marshal(opts)
	if err != nil {
		e.setRunning(false)
		return fmt.Errorf("failed to marshal engine options: %w", err)
	}
	if err := e.call(ctx, "start_tracing", input); err != nil {
		e.setRunning(false)
		return err
	}
	return nil
}

// StopTracing implements tracer.Engine. Stopping an idle engine is a no-op.
func (e *Engine) StopTracing(ctx context.Context) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return nil
	}

	err := e.call(ctx, "stop_tracing", nil)
	e.setRunning(false)
	return err
}

func (e *Engine) setRunning(running bool) {
	e.mu.Lock()
	e.running = running
	e.mu.Unlock()
}

func (e *Engine) call(ctx context.Context, name string, input []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.callMu.Lock()
	defer e.callMu.Unlock()

	exit, output, err := e.calls.Call(name, input)
	if err != nil {
		return fmt.Errorf("tracing engine %s failed: %w", name, err)
	}
	if exit != 0 {
		if len(output) > 0 {
			return fmt.Errorf("tracing engine %s exited with code %d: %s", name, exit, output)
		}
		return fmt.Errorf("tracing engine %s exited with code %d", name, exit)
	}
	return nil
}

func (e *Engine) snapshot() []tracer.Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]tracer.Listener(nil), e.listeners...)
}

// dispatch fans a record out to every listener. It reports false once the
// session's record limit is reached.
func (e *Engine) dispatch(r tracer.Record) bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	if e.limitHit {
		e.mu.Unlock()
		return false
	}
	if r.Kind() != tracer.KindFrame {
		if h, ok := headerOf(r); ok && e.opts.MaxDepth > 0 && h.Depth > e.opts.MaxDepth {
			e.mu.Unlock()
			return true
		}
		e.records++
	}
	reached := e.opts.MaxRecords > 0 && e.records >= e.opts.MaxRecords
	if reached {
		e.limitHit = true
	}
	e.mu.Unlock()

	listeners := e.snapshot()
	for _, l := range listeners {
		l.Output(r)
	}
	if reached {
		e.logger.Info("trace record limit reached", zap.Int("maxRecords", e.opts.MaxRecords))
		for _, l := range listeners {
			l.Error(ErrRecordLimit)
		}
		return false
	}
	return true
}

func (e *Engine) dispatchError(err error) {
	for _, l := range e.snapshot() {
		l.Error(err)
	}
}

func headerOf(r tracer.Record) (tracer.Header, bool) {
	switch rec := r.(type) {
	case tracer.FrameEnter:
		return rec.Header, true
	case tracer.FrameExit:
		return rec.Header, true
	case tracer.DOMMutation:
		return rec.Header, true
	case tracer.Event:
		return rec.Header, true
	default:
		return tracer.Header{}, false
	}
}

// Close frees the plugin
func (e *Engine) Close(ctx context.Context) {
	if e.plugin != nil {
		e.plugin.Close(ctx)
	}
}
