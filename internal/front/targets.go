package front

import (
	"context"
	"fmt"
	"sync"

	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/tracer"
)

// TargetFront is a debuggable execution context
type TargetFront struct {
	Front
	root *RootFront
}

func newTargetFront(r *RootFront, typeName string, form protocol.Packet) *TargetFront {
	return &TargetFront{Front: newFront(r.transport, typeName, form), root: r}
}

// URL returns the target's document or script url
func (t *TargetFront) URL() string { return t.str("url") }

// IsMainThread is false for worker targets
func (t *TargetFront) IsMainThread() bool { return t.form.Bool("isMainThread") }

// Tracer returns the front of the target's tracer session
func (t *TargetFront) Tracer() *TracerFront {
	return &TracerFront{Front: Front{transport: t.transport, actorID: t.str("tracerActor"), typeName: "tracer"}}
}

// Thread returns the front of the target's thread
func (t *TargetFront) Thread() *ThreadFront {
	return &ThreadFront{Front: Front{transport: t.transport, actorID: t.str("threadActor"), typeName: "thread"}}
}

// ListWorkers lists the workers of a process target
func (t *TargetFront) ListWorkers(ctx context.Context) ([]*WorkerDescriptorFront, error) {
	resp, err := t.Request(ctx, "listWorkers", nil)
	if err != nil {
		return nil, err
	}
	return t.root.workerFronts(resp.Objects("workers")), nil
}

// TracerFront drives the tracing session of a target
type TracerFront struct {
	Front
}

// StartTracing starts a session
func (t *TracerFront) StartTracing(ctx context.Context, opts tracer.StartOptions) error {
	_, err := t.Request(ctx, "startTracing", map[string]any{"options": opts.Packet()})
	return err
}

// StopTracing stops the running session
func (t *TracerFront) StopTracing(ctx context.Context) error {
	_, err := t.Request(ctx, "stopTracing", nil)
	return err
}

// ToggleTracing starts or stops a session and reports whether tracing runs
func (t *TracerFront) ToggleTracing(ctx context.Context, opts tracer.StartOptions) (bool, error) {
	resp, err := t.Request(ctx, "toggleTracing", map[string]any{"options": opts.Packet()})
	if err != nil {
		return false, err
	}
	return resp.Bool("isTracing"), nil
}

// GetProfile returns the result of the last session as sent by the server
func (t *TracerFront) GetProfile(ctx context.Context) (any, error) {
	resp, err := t.Request(ctx, "getProfile", nil)
	if err != nil {
		return nil, err
	}
	return resp["profile"], nil
}

// ThreadFront controls a target's thread
type ThreadFront struct {
	Front
}

// Attach starts debugging the thread
func (t *ThreadFront) Attach(ctx context.Context) error {
	_, err := t.Request(ctx, "attach", nil)
	return err
}

// Detach stops debugging the thread
func (t *ThreadFront) Detach(ctx context.Context) error {
	_, err := t.Request(ctx, "detach", nil)
	return err
}

// Sources lists the forms of the thread's scripts
func (t *ThreadFront) Sources(ctx context.Context) ([]protocol.Packet, error) {
	resp, err := t.Request(ctx, "sources", nil)
	if err != nil {
		return nil, err
	}
	return resp.Objects("sources"), nil
}

// TabDescriptorFront describes a tab
type TabDescriptorFront struct {
	Front
	root *RootFront

	mu     sync.Mutex
	target *TargetFront
}

// URL returns the tab's url
func (d *TabDescriptorFront) URL() string { return d.str("url") }

// Title returns the tab's title
func (d *TabDescriptorFront) Title() string { return d.str("title") }

// OuterWindowID returns the id of the tab's top-level window
func (d *TabDescriptorFront) OuterWindowID() int { return d.integer("outerWindowID") }

// Selected reports whether the tab is the selected one
func (d *TabDescriptorFront) Selected() bool { return d.form.Bool("selected") }

// GetTarget returns the tab's target, fetching it on first use
func (d *TabDescriptorFront) GetTarget(ctx context.Context) (*TargetFront, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target != nil {
		return d.target, nil
	}
	resp, err := d.Request(ctx, "getTarget", nil)
	if err != nil {
		return nil, err
	}
	form, ok := resp.Object("frame")
	if !ok {
		return nil, fmt.Errorf("getTarget response of %s has no frame form", d.actorID)
	}
	d.target = memo(d.root, form, func() *TargetFront {
		return newTargetFront(d.root, "windowGlobalTarget", form)
	})
	return d.target, nil
}

// Worker types
const (
	WorkerTypeDedicated = 0
	WorkerTypeShared    = 1
	WorkerTypeService   = 2
)

// WorkerDescriptorFront describes a running worker
type WorkerDescriptorFront struct {
	Front
	root *RootFront
}

// Type returns the worker type
func (w *WorkerDescriptorFront) Type() int { return w.integer("type") }

// URL returns the worker's script url
func (w *WorkerDescriptorFront) URL() string { return w.str("url") }

// Name returns the worker's name, if it has one
func (w *WorkerDescriptorFront) Name() string { return w.str("name") }

// Scope returns the scope of a service worker
func (w *WorkerDescriptorFront) Scope() string { return w.str("scope") }

// Fetch reports whether a service worker handles fetch events
func (w *WorkerDescriptorFront) Fetch() bool { return w.form.Bool("fetch") }

// GetTarget returns the worker's target
func (w *WorkerDescriptorFront) GetTarget(ctx context.Context) (*TargetFront, error) {
	resp, err := w.Request(ctx, "getTarget", nil)
	if err != nil {
		return nil, err
	}
	form, ok := resp.Object("workerTarget")
	if !ok {
		return nil, fmt.Errorf("getTarget response of %s has no workerTarget form", w.actorID)
	}
	return memo(w.root, form, func() *TargetFront {
		return newTargetFront(w.root, "workerTarget", form)
	}), nil
}

// RegistrationFront describes a service worker registration
type RegistrationFront struct {
	Front
}

func (r *RegistrationFront) Scope() string { return r.str("scope") }

func (r *RegistrationFront) URL() string { return r.str("url") }

func (r *RegistrationFront) Fetch() bool { return r.form.Bool("fetch") }

func (r *RegistrationFront) Active() bool { return r.form.Bool("active") }

// AddonFront describes an installed add-on
type AddonFront struct {
	Front
}

func (a *AddonFront) ID() string { return a.str("id") }

func (a *AddonFront) Name() string { return a.str("name") }

func (a *AddonFront) Debuggable() bool { return a.form.Bool("debuggable") }
