package engine

import (
	"context"
	"errors"

	"github.com/yousuf/tracebyte/internal/tracer"
)

// ErrUnavailable is returned when tracing is requested but no engine is configured
var ErrUnavailable = errors.New("no tracing engine configured")

// Unavailable is the engine used when none is configured. Every start fails,
// which unwinds the session.
type Unavailable struct{}

func (Unavailable) StartTracing(context.Context, tracer.EngineOptions) error { return ErrUnavailable }

func (Unavailable) StopTracing(context.Context) error { return nil }

func (Unavailable) AddTracingListener(tracer.Listener) {}

func (Unavailable) RemoveTracingListener(tracer.Listener) {}
