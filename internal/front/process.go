package front

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yousuf/tracebyte/internal/config"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// ProcessKind tells which front family serves a process actor
type ProcessKind string

const (
	KindDescriptor ProcessKind = "descriptor"
	KindContent    ProcessKind = "content"
	KindParent     ProcessKind = "parent"
)

// ClassifyProcessActor picks the front kind for a process actor id.
//
// Servers do not say which family a getProcess response belongs to, so the
// kind is read off the actor id: the first prefix whose fragment occurs in
// the id wins, and ids matching nothing are parent process targets.
func ClassifyProcessActor(actorID string, prefixes []config.ProcessPrefix) ProcessKind {
	for _, p := range prefixes {
		if p.Fragment != "" && strings.Contains(actorID, p.Fragment) {
			return ProcessKind(p.Kind)
		}
	}
	return KindParent
}

// ProcessFront is what GetProcess returns: a *ProcessDescriptorFront, a
// *ContentProcessTargetFront or a *ParentProcessTargetFront.
type ProcessFront interface {
	ActorID() string
	ProcessKind() ProcessKind
}

// ProcessTarget is a content or parent process target
type ProcessTarget interface {
	ProcessFront
	Target() *TargetFront
	ListWorkers(ctx context.Context) ([]*WorkerDescriptorFront, error)
}

// ProcessDescriptorFront describes a process
type ProcessDescriptorFront struct {
	Front
	root *RootFront

	mu     sync.Mutex
	target ProcessTarget
}

// ProcessKind implements ProcessFront
func (d *ProcessDescriptorFront) ProcessKind() ProcessKind { return KindDescriptor }

// ID returns the process id
func (d *ProcessDescriptorFront) ID() int { return d.integer("id") }

// IsParent reports whether this is the parent process
func (d *ProcessDescriptorFront) IsParent() bool { return d.form.Bool("isParent") }

// GetTarget returns the process target, fetching it on first use
func (d *ProcessDescriptorFront) GetTarget(ctx context.Context) (ProcessTarget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target != nil {
		return d.target, nil
	}

	resp, err := d.Request(ctx, "getTarget", nil)
	if err != nil {
		return nil, err
	}
	form, ok := resp.Object("process")
	if !ok {
		return nil, fmt.Errorf("getTarget response of %s has no process form", d.actorID)
	}
	front, ok := d.root.processFront(form).(ProcessTarget)
	if !ok {
		return nil, fmt.Errorf("getTarget of %s returned a descriptor", d.actorID)
	}
	d.target = front
	return front, nil
}

// ContentProcessTargetFront is the target of a content process
type ContentProcessTargetFront struct {
	*TargetFront
}

// ProcessKind implements ProcessFront
func (*ContentProcessTargetFront) ProcessKind() ProcessKind { return KindContent }

// Target returns the underlying target front
func (f *ContentProcessTargetFront) Target() *TargetFront { return f.TargetFront }

// ParentProcessTargetFront is the target of the parent process
type ParentProcessTargetFront struct {
	*TargetFront
}

// ProcessKind implements ProcessFront
func (*ParentProcessTargetFront) ProcessKind() ProcessKind { return KindParent }

// Target returns the underlying target front
func (f *ParentProcessTargetFront) Target() *TargetFront { return f.TargetFront }

// processFront builds or reuses the front for a process form
func (r *RootFront) processFront(form protocol.Packet) ProcessFront {
	id, _ := form.String("actor")
	switch ClassifyProcessActor(id, r.prefixes) {
	case KindDescriptor:
		return memo(r, form, func() *ProcessDescriptorFront {
			return &ProcessDescriptorFront{Front: newFront(r.transport, "processDescriptor", form), root: r}
		})
	case KindContent:
		return memo(r, form, func() *ContentProcessTargetFront {
			return &ContentProcessTargetFront{TargetFront: newTargetFront(r, "contentProcessTarget", form)}
		})
	default:
		return memo(r, form, func() *ParentProcessTargetFront {
			return &ParentProcessTargetFront{TargetFront: newTargetFront(r, "parentProcessTarget", form)}
		})
	}
}
