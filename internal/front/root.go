package front

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yousuf/tracebyte/internal/config"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// RootActorID is the well-known id of the root actor
const RootActorID = "root"

// ErrUnsupportedTabFilter is returned by GetTab for a filter naming no tab
var ErrUnsupportedTabFilter = errors.New("unsupported argument given to getTab request")

// Options configures a RootFront
type Options struct {
	// ProcessPrefixes classify getProcess responses. Nil means
	// config.DefaultProcessPrefixes().
	ProcessPrefixes []config.ProcessPrefix
	Logger          *zap.Logger
}

// RootFront is the client-side proxy of the root actor. It is safe for
// concurrent use.
type RootFront struct {
	Front
	prefixes []config.ProcessPrefix
	logger   *zap.Logger
	group    singleflight.Group

	mu       sync.Mutex
	rootForm protocol.Packet
	globals  map[string]*Front // by type name
	fronts   map[string]any    // by actor id
}

// NewRootFront creates the root front of a connection
func NewRootFront(t Transport, opts Options) *RootFront {
	prefixes := opts.ProcessPrefixes
	if prefixes == nil {
		prefixes = config.DefaultProcessPrefixes()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RootFront{
		Front:    Front{transport: t, actorID: RootActorID, typeName: "root"},
		prefixes: prefixes,
		logger:   logger,
		globals:  make(map[string]*Front),
		fronts:   make(map[string]any),
	}
}

// memo returns the front already created for form's actor, or builds and
// remembers a new one. The first form seen for an actor is kept.
func memo[T any](r *RootFront, form protocol.Packet, build func() T) T {
	id, _ := form.String("actor")
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fronts[id].(T); ok {
		return f
	}
	f := build()
	if id != "" {
		r.fronts[id] = f
	}
	return f
}

// RootForm returns the response of getRoot. It is fetched once; concurrent
// first callers share one request and a failed fetch is retried by the next
// caller.
func (r *RootFront) RootForm(ctx context.Context) (protocol.Packet, error) {
	r.mu.Lock()
	form := r.rootForm
	r.mu.Unlock()
	if form != nil {
		return form, nil
	}

	v, err, _ := r.group.Do("getRoot", func() (any, error) {
		r.mu.Lock()
		cached := r.rootForm
		r.mu.Unlock()
		if cached != nil {
			return cached, nil
		}

		resp, err := r.Request(ctx, "getRoot", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch root form: %w", err)
		}
		r.mu.Lock()
		r.rootForm = resp
		r.mu.Unlock()
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(protocol.Packet), nil
}

// GetFront returns the front of the global actor of the given type, such as
// "device" or "sourceMap". Fronts are created once per connection.
func (r *RootFront) GetFront(ctx context.Context, typeName string) (*Front, error) {
	r.mu.Lock()
	f, ok := r.globals[typeName]
	r.mu.Unlock()
	if ok {
		return f, nil
	}

	v, err, _ := r.group.Do("front:"+typeName, func() (any, error) {
		form, err := r.RootForm(ctx)
		if err != nil {
			return nil, err
		}
		id, ok := form.String(typeName + "Actor")
		if !ok || id == "" {
			return nil, fmt.Errorf("root form has no %s actor", typeName)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.globals[typeName]; ok {
			return existing, nil
		}
		f := &Front{transport: r.transport, actorID: id, typeName: typeName, form: protocol.Packet{"actor": id}}
		r.globals[typeName] = f
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Front), nil
}

// ListProcesses lists the debuggee's processes
func (r *RootFront) ListProcesses(ctx context.Context) ([]*ProcessDescriptorFront, error) {
	resp, err := r.Request(ctx, "listProcesses", nil)
	if err != nil {
		return nil, err
	}
	var out []*ProcessDescriptorFront
	for _, form := range resp.Objects("processes") {
		out = append(out, memo(r, form, func() *ProcessDescriptorFront {
			return &ProcessDescriptorFront{Front: newFront(r.transport, "processDescriptor", form), root: r}
		}))
	}
	return out, nil
}

// GetProcess returns the front of the process with the given id. Which
// front type is returned depends on the actor id of the response.
func (r *RootFront) GetProcess(ctx context.Context, id int) (ProcessFront, error) {
	resp, err := r.Request(ctx, "getProcess", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	form, ok := resp.Object("processDescriptor")
	if !ok {
		// older servers answer with a bare form
		form, ok = resp.Object("form")
	}
	if !ok {
		return nil, fmt.Errorf("getProcess response has no process form")
	}
	return r.processFront(form), nil
}

// ListTabs lists the debuggee's tabs
func (r *RootFront) ListTabs(ctx context.Context) ([]*TabDescriptorFront, error) {
	resp, err := r.Request(ctx, "listTabs", nil)
	if err != nil {
		return nil, err
	}
	var out []*TabDescriptorFront
	for _, form := range resp.Objects("tabs") {
		out = append(out, r.tabFront(form))
	}
	return out, nil
}

func (r *RootFront) tabFront(form protocol.Packet) *TabDescriptorFront {
	return memo(r, form, func() *TabDescriptorFront {
		return &TabDescriptorFront{Front: newFront(r.transport, "tabDescriptor", form), root: r}
	})
}

// Browser is the part of a tab reference GetTab needs
type Browser struct {
	OuterWindowID int
}

// TabRef is a tab reference as held by UI code
type TabRef struct {
	LinkedBrowser Browser
}

// TabFilter selects one tab. Set exactly one field.
type TabFilter struct {
	OuterWindowID *int
	TabID         *int
	Tab           *TabRef
}

// GetTab returns the tab matching filter, or the selected tab when filter
// is nil.
func (r *RootFront) GetTab(ctx context.Context, filter *TabFilter) (*TabDescriptorFront, error) {
	params := map[string]any{}
	if filter != nil {
		switch {
		case filter.OuterWindowID != nil:
			params["outerWindowID"] = *filter.OuterWindowID
		case filter.TabID != nil:
			params["tabId"] = *filter.TabID
		case filter.Tab != nil:
			params["outerWindowID"] = filter.Tab.LinkedBrowser.OuterWindowID
		default:
			return nil, ErrUnsupportedTabFilter
		}
	}

	resp, err := r.Request(ctx, "getTab", params)
	if err != nil {
		return nil, err
	}
	form, ok := resp.Object("tab")
	if !ok {
		return nil, fmt.Errorf("getTab response has no tab form")
	}
	return r.tabFront(form), nil
}

// ListWorkers lists the workers of the parent process
func (r *RootFront) ListWorkers(ctx context.Context) ([]*WorkerDescriptorFront, error) {
	resp, err := r.Request(ctx, "listWorkers", nil)
	if err != nil {
		return nil, err
	}
	return r.workerFronts(resp.Objects("workers")), nil
}

func (r *RootFront) workerFronts(forms []protocol.Packet) []*WorkerDescriptorFront {
	out := make([]*WorkerDescriptorFront, 0, len(forms))
	for _, form := range forms {
		out = append(out, memo(r, form, func() *WorkerDescriptorFront {
			return &WorkerDescriptorFront{Front: newFront(r.transport, "workerDescriptor", form), root: r}
		}))
	}
	return out
}

// ListServiceWorkerRegistrations lists the service worker registrations
func (r *RootFront) ListServiceWorkerRegistrations(ctx context.Context) ([]*RegistrationFront, error) {
	resp, err := r.Request(ctx, "listServiceWorkerRegistrations", nil)
	if err != nil {
		return nil, err
	}
	var out []*RegistrationFront
	for _, form := range resp.Objects("registrations") {
		out = append(out, memo(r, form, func() *RegistrationFront {
			return &RegistrationFront{Front: newFront(r.transport, "serviceWorkerRegistration", form)}
		}))
	}
	return out, nil
}

// ListAddons lists the installed add-ons
func (r *RootFront) ListAddons(ctx context.Context) ([]*AddonFront, error) {
	resp, err := r.Request(ctx, "listAddons", nil)
	if err != nil {
		return nil, err
	}
	var out []*AddonFront
	for _, form := range resp.Objects("addons") {
		out = append(out, memo(r, form, func() *AddonFront {
			return &AddonFront{Front: newFront(r.transport, "webExtensionDescriptor", form)}
		}))
	}
	return out, nil
}

// GetAddon returns the add-on with the given id, or nil if none matches
func (r *RootFront) GetAddon(ctx context.Context, id string) (*AddonFront, error) {
	addons, err := r.ListAddons(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range addons {
		if a.ID() == id {
			return a, nil
		}
	}
	return nil, nil
}
