package actors

import (
	"context"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// ProcessDescriptor describes a process and creates its target on demand
type ProcessDescriptor struct {
	protocol.BaseActor

	env    *environment
	info   ProcessInfo
	target *TargetActor
}

func newProcessDescriptor(env *environment, info ProcessInfo) *ProcessDescriptor {
	return &ProcessDescriptor{BaseActor: protocol.NewBaseActor(env.conn, "processDescriptor"), env: env, info: info}
}

// Form implements protocol.FormProvider
func (d *ProcessDescriptor) Form() protocol.Packet {
	return protocol.Packet{
		"actor":    d.ActorID(),
		"id":       d.info.ID,
		"isParent": d.info.IsParent,
	}
}

// Methods implements protocol.MethodProvider
func (d *ProcessDescriptor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"getTarget": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			if d.target == nil {
				typeName := TypeContentProcessTarget
				if d.info.IsParent {
					typeName = TypeParentProcessTarget
				}
				t, err := d.env.newTarget(d.RegisteredPool(), typeName, targetInfo{ProcessID: d.info.ID})
				if err != nil {
					return nil, err
				}
				d.target = t
			}
			return protocol.Packet{"process": d.target.Form()}, nil
		},
	}
}

// Destroy implements protocol.Destroyer
func (d *ProcessDescriptor) Destroy() {
	if d.target != nil {
		if pool := d.target.RegisteredPool(); pool != nil {
			pool.RemoveActor(d.target)
		}
		d.target = nil
	}
}

// TabDescriptor describes a tab and creates its target on demand
type TabDescriptor struct {
	protocol.BaseActor

	env    *environment
	info   TabInfo
	target *TargetActor
}

func newTabDescriptor(env *environment, info TabInfo) *TabDescriptor {
	return &TabDescriptor{BaseActor: protocol.NewBaseActor(env.conn, "tabDescriptor"), env: env, info: info}
}

// Form implements protocol.FormProvider
func (d *TabDescriptor) Form() protocol.Packet {
	return protocol.Packet{
		"actor":         d.ActorID(),
		"browserId":     d.info.TabID,
		"outerWindowID": d.info.OuterWindowID,
		"url":           d.info.URL,
		"title":         d.info.Title,
		"selected":      d.info.Selected,
	}
}

// Methods implements protocol.MethodProvider
func (d *TabDescriptor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"getTarget": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			if d.target == nil {
				t, err := d.env.newTarget(d.RegisteredPool(), TypeWindowGlobalTarget, targetInfo{
					URL:           d.info.URL,
					Title:         d.info.Title,
					ProcessID:     d.info.ProcessID,
					OuterWindowID: d.info.OuterWindowID,
					SubDocument:   d.info.SubDocument,
					Sources:       d.info.Sources,
				})
				if err != nil {
					return nil, err
				}
				d.target = t
			}
			return protocol.Packet{"frame": d.target.Form()}, nil
		},
	}
}

// Destroy implements protocol.Destroyer
func (d *TabDescriptor) Destroy() {
	if d.target != nil {
		if pool := d.target.RegisteredPool(); pool != nil {
			pool.RemoveActor(d.target)
		}
		d.target = nil
	}
}

// WorkerDescriptor describes a running worker
type WorkerDescriptor struct {
	protocol.BaseActor

	env    *environment
	info   WorkerInfo
	target *TargetActor
}

func newWorkerDescriptor(env *environment, info WorkerInfo) *WorkerDescriptor {
	return &WorkerDescriptor{BaseActor: protocol.NewBaseActor(env.conn, "workerDescriptor"), env: env, info: info}
}

// Form implements protocol.FormProvider
func (d *WorkerDescriptor) Form() protocol.Packet {
	form := protocol.Packet{
		"actor": d.ActorID(),
		"id":    d.info.ID,
		"type":  d.info.Type,
		"url":   d.info.URL,
	}
	if d.info.Name != "" {
		form["name"] = d.info.Name
	}
	if d.info.Scope != "" {
		form["scope"] = d.info.Scope
	}
	return form
}

// Methods implements protocol.MethodProvider
func (d *WorkerDescriptor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"getTarget": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			if d.target == nil {
				t, err := d.env.newTarget(d.RegisteredPool(), TypeWorkerTarget, targetInfo{
					URL:       d.info.URL,
					ProcessID: d.info.ProcessID,
					Worker:    true,
					Sources:   d.info.Sources,
				})
				if err != nil {
					return nil, err
				}
				d.target = t
			}
			return protocol.Packet{"workerTarget": d.target.Form()}, nil
		},
	}
}

// Destroy implements protocol.Destroyer
func (d *WorkerDescriptor) Destroy() {
	if d.target != nil {
		if pool := d.target.RegisteredPool(); pool != nil {
			pool.RemoveActor(d.target)
		}
		d.target = nil
	}
}

// RegistrationActor describes a service worker registration
type RegistrationActor struct {
	protocol.BaseActor

	info RegistrationInfo
}

func newRegistrationActor(env *environment, info RegistrationInfo) *RegistrationActor {
	return &RegistrationActor{BaseActor: protocol.NewBaseActor(env.conn, "serviceWorkerRegistration"), info: info}
}

// Form implements protocol.FormProvider
func (r *RegistrationActor) Form() protocol.Packet {
	return protocol.Packet{
		"actor":  r.ActorID(),
		"scope":  r.info.Scope,
		"url":    r.info.URL,
		"fetch":  r.info.Fetch,
		"active": r.info.Active,
	}
}

// AddonActor describes an installed add-on
type AddonActor struct {
	protocol.BaseActor

	info AddonInfo
}

func newAddonActor(env *environment, info AddonInfo) *AddonActor {
	return &AddonActor{BaseActor: protocol.NewBaseActor(env.conn, "webExtensionDescriptor"), info: info}
}

// Form implements protocol.FormProvider
func (a *AddonActor) Form() protocol.Packet {
	return protocol.Packet{
		"actor":      a.ActorID(),
		"id":         a.info.ID,
		"name":       a.info.Name,
		"url":        a.info.URL,
		"debuggable": a.info.Debuggable,
	}
}

// workerRegistry keeps a worker descriptor set per process
type workerRegistry struct {
	env  *environment
	sets map[int]*actorSet[string, *WorkerDescriptor]
}

func (r *workerRegistry) sync(processID int) ([]*WorkerDescriptor, error) {
	set, ok := r.sets[processID]
	if !ok {
		set = newActorSet[string, *WorkerDescriptor](r.env.conn, "workers")
		r.sets[processID] = set
	}
	infos := r.env.host.Workers(processID)
	keys := make([]string, len(infos))
	for i, w := range infos {
		keys[i] = w.ID
	}
	return set.sync(keys,
		func(i int) *WorkerDescriptor { return newWorkerDescriptor(r.env, infos[i]) },
		func(d *WorkerDescriptor, i int) { d.info = infos[i] },
	)
}
