package tracer

import (
	"context"
	"sync"
)

// resourceBatchSize bounds how many records are buffered before a flush
const resourceBatchSize = 100

// ResourceListener forwards records to the client as jstracer-trace
// resources, for the console and the debugger sidebar
type ResourceListener struct {
	mu          sync.Mutex
	target      Target
	grips       GripFactory
	traceValues bool
	pending     []any
	flushed     int
}

// NewResourceListener creates a listener emitting through cfg.Target
func NewResourceListener(cfg ListenerConfig) *ResourceListener {
	return &ResourceListener{
		target:      cfg.Target,
		grips:       cfg.TraceActor,
		traceValues: cfg.TraceValues,
	}
}

func (l *ResourceListener) grip(v any) any {
	if l.grips == nil {
		return nil
	}
	return l.grips.CreateValueGrip(v)
}

// Output implements Listener
func (l *ResourceListener) Output(r Record) {
	switch rec := r.(type) {
	case FrameEnter:
		if l.traceValues {
			args := make([]any, len(rec.Args))
			for i, a := range rec.Args {
				args[i] = l.grip(a)
			}
			rec.Args = args
		} else {
			rec.Args, rec.ArgNames = nil, nil
		}
		r = rec
	case FrameExit:
		if l.traceValues {
			rec.ReturnedValue = l.grip(rec.ReturnedValue)
		} else {
			rec.ReturnedValue = nil
		}
		r = rec
	case DOMMutation:
		rec.Element = l.grip(rec.Element)
		r = rec
	}

	l.mu.Lock()
	l.pending = append(l.pending, r.Positional())
	full := len(l.pending) >= resourceBatchSize
	l.mu.Unlock()

	if full {
		l.flush()
	}
}

// Error implements Listener
func (l *ResourceListener) Error(err error) {
	l.flush()
	l.target.EmitResources(ResourceState, []any{map[string]any{
		"enabled": true,
		"error":   err.Error(),
	}})
}

// Stop implements Listener. It flushes pending records and returns the
// number of records emitted during the session.
func (l *ResourceListener) Stop(ctx context.Context) (any, error) {
	l.flush()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushed, nil
}

func (l *ResourceListener) flush() {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.flushed += len(batch)
	l.mu.Unlock()

	if len(batch) > 0 {
		l.target.EmitResources(ResourceTrace, batch)
	}
}
