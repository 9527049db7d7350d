package actors

import (
	"context"

	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/engine"
	"github.com/yousuf/tracebyte/internal/location"
	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/tracer"
)

// RootActorID is the well-known id of the root actor
const RootActorID = "root"

// EngineFactory creates the tracing engine of one target
type EngineFactory func() tracer.Engine

// RootOptions configures the actors of one connection
type RootOptions struct {
	Host Host
	// NewEngine is called once per target
	NewEngine EngineFactory
	// Tracer is the template for every target's tracer session. Its Engine
	// and Logger are replaced per target.
	Tracer tracer.Options
	// SourceMaps maps generated urls to source map files
	SourceMaps map[string]string
	Logger     *zap.Logger
}

// environment is shared by every actor created under one root
type environment struct {
	conn         *protocol.Conn
	host         Host
	newEngine    EngineFactory
	tracerOpts   tracer.Options
	translator   *location.Translator
	sourcesByURL map[string]*SourceActor
	workers      *workerRegistry
	logger       *zap.Logger
}

// RootActor is the entry point of a connection
type RootActor struct {
	protocol.BaseActor

	env       *environment
	pool      *protocol.Pool
	device    *DeviceActor
	sourceMap *SourceMapActor

	processes     *actorSet[int, *ProcessDescriptor]
	tabs          *actorSet[int, *TabDescriptor]
	registrations *actorSet[string, *RegistrationActor]
	addons        *actorSet[string, *AddonActor]
}

// NewRootActor creates the root actor of conn together with its global
// actors, all registered in a "root" pool.
func NewRootActor(conn *protocol.Conn, opts RootOptions) (*RootActor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = conn.Logger()
	}
	host := opts.Host
	if host == nil {
		host = NewStaticHost(Inventory{})
	}
	newEngine := opts.NewEngine
	if newEngine == nil {
		newEngine = func() tracer.Engine { return engine.Unavailable{} }
	}

	env := &environment{
		conn:         conn,
		host:         host,
		newEngine:    newEngine,
		tracerOpts:   opts.Tracer,
		sourcesByURL: make(map[string]*SourceActor),
		logger:       logger,
	}
	env.translator = location.NewTranslator(func(url string) location.SourceActor {
		if s, ok := env.sourcesByURL[url]; ok {
			return s
		}
		return nil
	}, logger)
	for url, path := range opts.SourceMaps {
		if err := env.translator.RegisterFile(url, path); err != nil {
			logger.Warn("skipping source map", zap.String("url", url), zap.Error(err))
		}
	}
	env.workers = &workerRegistry{env: env, sets: make(map[int]*actorSet[string, *WorkerDescriptor])}

	r := &RootActor{
		BaseActor:     protocol.NewBaseActorWithID(conn, "root", RootActorID),
		env:           env,
		pool:          protocol.NewPool(conn, "root"),
		device:        newDeviceActor(env),
		sourceMap:     newSourceMapActor(env),
		processes:     newActorSet[int, *ProcessDescriptor](conn, "processes"),
		tabs:          newActorSet[int, *TabDescriptor](conn, "tabs"),
		registrations: newActorSet[string, *RegistrationActor](conn, "registrations"),
		addons:        newActorSet[string, *AddonActor](conn, "addons"),
	}
	for _, a := range []protocol.Actor{r, r.device, r.sourceMap} {
		if err := r.pool.AddActor(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Translator returns the connection's source map translator
func (r *RootActor) Translator() *location.Translator { return r.env.translator }

// Form is the greeting sent when a connection opens
func (r *RootActor) Form() protocol.Packet {
	return protocol.Packet{
		"from":            RootActorID,
		"applicationType": r.env.host.Device().AppType,
		"traits":          protocol.Packet{"workerConsoleApiMessagesDispatchedToMainThread": true},
	}
}

// Methods implements protocol.MethodProvider
func (r *RootActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"getRoot": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			return protocol.Packet{
				"deviceActor":    r.device.ActorID(),
				"sourceMapActor": r.sourceMap.ActorID(),
			}, nil
		},
		"listProcesses": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			processes, err := r.syncProcesses()
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"processes": forms(processes)}, nil
		},
		"getProcess": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			id, ok := req.Int("id")
			if !ok {
				return nil, protocol.Errorf(protocol.ErrMissingParameter.Name, "getProcess requires a numeric 'id'")
			}
			processes, err := r.syncProcesses()
			if err != nil {
				return nil, err
			}
			for _, d := range processes {
				if d.info.ID == id {
					return protocol.Packet{"processDescriptor": d.Form()}, nil
				}
			}
			return nil, protocol.Errorf(protocol.ErrNoSuchActor.Name, "no process with id %d", id)
		},
		"listTabs": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			tabs, err := r.syncTabs()
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"tabs": forms(tabs)}, nil
		},
		"getTab": r.getTab,
		"listWorkers": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			workers, err := r.env.workers.sync(parentProcessID(r.env.host))
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"workers": forms(workers)}, nil
		},
		"listServiceWorkerRegistrations": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			infos := r.env.host.Registrations()
			keys := make([]string, len(infos))
			for i, info := range infos {
				keys[i] = info.Scope
			}
			regs, err := r.registrations.sync(keys,
				func(i int) *RegistrationActor { return newRegistrationActor(r.env, infos[i]) },
				func(a *RegistrationActor, i int) { a.info = infos[i] },
			)
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"registrations": forms(regs)}, nil
		},
		"listAddons": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			infos := r.env.host.Addons()
			keys := make([]string, len(infos))
			for i, info := range infos {
				keys[i] = info.ID
			}
			addons, err := r.addons.sync(keys,
				func(i int) *AddonActor { return newAddonActor(r.env, infos[i]) },
				func(a *AddonActor, i int) { a.info = infos[i] },
			)
			if err != nil {
				return nil, err
			}
			return protocol.Packet{"addons": forms(addons)}, nil
		},
	}
}

func (r *RootActor) syncProcesses() ([]*ProcessDescriptor, error) {
	infos := r.env.host.Processes()
	keys := make([]int, len(infos))
	for i, info := range infos {
		keys[i] = info.ID
	}
	return r.processes.sync(keys,
		func(i int) *ProcessDescriptor { return newProcessDescriptor(r.env, infos[i]) },
		nil,
	)
}

func (r *RootActor) syncTabs() ([]*TabDescriptor, error) {
	infos := r.env.host.Tabs()
	keys := make([]int, len(infos))
	for i, info := range infos {
		keys[i] = info.TabID
	}
	return r.tabs.sync(keys,
		func(i int) *TabDescriptor { return newTabDescriptor(r.env, infos[i]) },
		func(d *TabDescriptor, i int) { d.info = infos[i] },
	)
}

// getTab finds a tab by outerWindowID or tabId, or returns the selected tab
// when the request names neither.
func (r *RootActor) getTab(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
	tabs, err := r.syncTabs()
	if err != nil {
		return nil, err
	}

	var match func(TabInfo) bool
	var describe string
	if id, ok := req.Int("outerWindowID"); ok {
		match = func(t TabInfo) bool { return t.OuterWindowID == id }
		describe = "outerWindowID"
	} else if id, ok := req.Int("tabId"); ok {
		match = func(t TabInfo) bool { return t.TabID == id }
		describe = "tabId"
	} else {
		match = func(t TabInfo) bool { return t.Selected }
		describe = "selected"
	}

	for _, d := range tabs {
		if match(d.info) {
			return protocol.Packet{"tab": d.Form()}, nil
		}
	}
	return nil, protocol.Errorf("noTab", "unable to find tab matching %s", describe)
}
