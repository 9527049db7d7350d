package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/tracer"
)

// Lazy loads the wasm module when the first session starts. Listeners added
// before that are handed to the engine once it exists.
type Lazy struct {
	load func(ctx context.Context) (*Engine, error)

	mu      sync.Mutex
	engine  *Engine
	pending []tracer.Listener
}

// NewLazy returns an engine that loads path on first use
func NewLazy(path string, logger *zap.Logger) *Lazy {
	return &Lazy{load: func(ctx context.Context) (*Engine, error) {
		return NewFromFile(ctx, path, logger)
	}}
}

// AddTracingListener implements tracer.Engine
func (l *Lazy) AddTracingListener(listener tracer.Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		l.engine.AddTracingListener(listener)
		return
	}
	l.pending = append(l.pending, listener)
}

// RemoveTracingListener implements tracer.Engine
func (l *Lazy) RemoveTracingListener(listener tracer.Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		l.engine.RemoveTracingListener(listener)
		return
	}
	for i, existing := range l.pending {
		if existing == listener {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

// StartTracing implements tracer.Engine
func (l *Lazy) StartTracing(ctx context.Context, opts tracer.EngineOptions) error {
	l.mu.Lock()
	if l.engine == nil {
		e, err := l.load(ctx)
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("failed to load tracing engine: %w", err)
		}
		for _, listener := range l.pending {
			e.AddTracingListener(listener)
		}
		l.pending = nil
		l.engine = e
	}
	e := l.engine
	l.mu.Unlock()

	return e.StartTracing(ctx, opts)
}

// StopTracing implements tracer.Engine
func (l *Lazy) StopTracing(ctx context.Context) error {
	l.mu.Lock()
	e := l.engine
	l.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.StopTracing(ctx)
}

// Close frees the engine if it was loaded
func (l *Lazy) Close(ctx context.Context) {
	l.mu.Lock()
	e := l.engine
	l.engine = nil
	l.mu.Unlock()
	if e != nil {
		e.Close(ctx)
	}
}
