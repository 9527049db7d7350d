package actors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/tracer"
)

// Target actor type names. Fronts pick their class from these fragments of
// the actor id.
const (
	TypeParentProcessTarget  = "parentProcessTarget"
	TypeContentProcessTarget = "contentProcessTarget"
	TypeWindowGlobalTarget   = "windowGlobalTarget"
	TypeWorkerTarget         = "workerTarget"
)

// EventResourcesAvailable carries tracer resources to the client
const EventResourcesAvailable = "resources-available-array"

// closer is implemented by engines holding native resources
type closer interface {
	Close(ctx context.Context)
}

// targetInfo is the part of a host record a target needs
type targetInfo struct {
	URL           string
	Title         string
	ProcessID     int
	OuterWindowID int
	Worker        bool
	SubDocument   bool
	Sources       []SourceInfo
}

// TargetActor is a debuggable execution context. It owns a thread actor and
// a tracer session and implements tracer.Target for the latter.
type TargetActor struct {
	protocol.BaseActor

	env    *environment
	info   targetInfo
	pool   *protocol.Pool
	engine tracer.Engine
	thread *ThreadActor
	tracer *tracer.TracerActor
}

// newTarget creates a target of the given type, registers it in owner and
// creates its children.
func (e *environment) newTarget(owner *protocol.Pool, typeName string, info targetInfo) (*TargetActor, error) {
	t := &TargetActor{
		BaseActor: protocol.NewBaseActor(e.conn, typeName),
		env:       e,
		info:      info,
	}
	if err := owner.AddActor(t); err != nil {
		return nil, err
	}

	t.pool = protocol.NewPool(e.conn, t.ActorID())
	t.engine = e.newEngine()
	opts := e.tracerOpts
	opts.Engine = t.engine
	opts.Logger = e.logger.With(zap.String("target", t.ActorID()))
	t.tracer = tracer.NewTracerActor(e.conn, t, opts)
	t.thread = newThreadActor(e, info.Sources)

	for _, child := range []protocol.Actor{t.thread, t.tracer} {
		if err := t.pool.AddActor(child); err != nil {
			t.pool.Destroy()
			owner.RemoveActor(t)
			return nil, fmt.Errorf("failed to create target children: %w", err)
		}
	}
	return t, nil
}

// Global implements tracer.Target
func (t *TargetActor) Global() any {
	return map[string]any{"actor": t.ActorID(), "url": t.info.URL}
}

// IsMainThread implements tracer.Target
func (t *TargetActor) IsMainThread() bool { return !t.info.Worker }

// SharesThreadWithParent implements tracer.Target
func (t *TargetActor) SharesThreadWithParent() bool { return t.info.SubDocument }

// EmitResources implements tracer.Target
func (t *TargetActor) EmitResources(resourceType string, resources []any) {
	t.Conn().Emit(t.ActorID(), EventResourcesAvailable, protocol.Packet{
		"array": []any{[]any{resourceType, resources}},
	})
}

// Tracer returns the target's tracer session
func (t *TargetActor) Tracer() *tracer.TracerActor { return t.tracer }

// Thread returns the target's thread actor
func (t *TargetActor) Thread() *ThreadActor { return t.thread }

// Form implements protocol.FormProvider
func (t *TargetActor) Form() protocol.Packet {
	form := protocol.Packet{
		"actor":        t.ActorID(),
		"threadActor":  t.thread.ActorID(),
		"tracerActor":  t.tracer.ActorID(),
		"processID":    t.info.ProcessID,
		"isMainThread": t.IsMainThread(),
	}
	if t.info.URL != "" {
		form["url"] = t.info.URL
	}
	if t.info.Title != "" {
		form["title"] = t.info.Title
	}
	if t.info.OuterWindowID != 0 {
		form["outerWindowID"] = t.info.OuterWindowID
	}
	return form
}

// Methods implements protocol.MethodProvider
func (t *TargetActor) Methods() protocol.MethodTable {
	methods := protocol.MethodTable{}
	// process targets enumerate the workers of their process
	if t.TypeName() == TypeParentProcessTarget || t.TypeName() == TypeContentProcessTarget {
		methods["listWorkers"] = func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			workers, err := t.env.workers.sync(t.info.ProcessID)
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"workers": forms(workers)}, nil
		}
	}
	return methods
}

// Destroy implements protocol.Destroyer
func (t *TargetActor) Destroy() {
	t.pool.Destroy()
	if c, ok := t.engine.(closer); ok {
		c.Close(context.Background())
	}
}
