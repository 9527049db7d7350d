package actors

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yousuf/tracebyte/internal/location"
	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/tracer"
)

func testInventory() Inventory {
	return Inventory{
		Device: DeviceInfo{AppType: "browser", Name: "test", Version: "1.0", Platform: "linux"},
		Processes: []ProcessInfo{
			{ID: 0, IsParent: true},
			{ID: 1},
		},
		Tabs: []TabInfo{
			{TabID: 10, OuterWindowID: 100, URL: "http://example.com/", Title: "Example", ProcessID: 1,
				Sources: []SourceInfo{
					{URL: "http://example.com/app.js", SourceMapURL: "app.js.map", Text: "greet()"},
					{URL: "http://example.com/app.ts"},
				}},
			{TabID: 11, OuterWindowID: 101, URL: "http://example.org/", Selected: true, ProcessID: 1},
			{TabID: 12, OuterWindowID: 102, URL: "http://example.org/frame", ProcessID: 1, SubDocument: true},
		},
		Workers: []WorkerInfo{
			{ID: "w-main", Type: WorkerTypeDedicated, URL: "chrome://worker.js"},
			{ID: "w-sw", Type: WorkerTypeService, URL: "http://example.com/sw.js", Scope: "http://example.com/", ProcessID: 1},
			{ID: "w-shared", Type: WorkerTypeShared, URL: "http://example.com/shared.js", Name: "shared", ProcessID: 1},
		},
		Registrations: []RegistrationInfo{
			{Scope: "http://example.com/", URL: "http://example.com/sw.js", Fetch: true, Active: true},
		},
		Addons: []AddonInfo{
			{ID: "addon@example.com", Name: "Addon", Debuggable: true},
		},
	}
}

// fakeEngine accepts every session and counts start calls
type fakeEngine struct {
	mu        sync.Mutex
	starts    []tracer.EngineOptions
	listeners []tracer.Listener
	closed    bool
}

func (e *fakeEngine) StartTracing(ctx context.Context, opts tracer.EngineOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, opts)
	return nil
}

func (e *fakeEngine) StopTracing(ctx context.Context) error { return nil }

func (e *fakeEngine) AddTracingListener(l tracer.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *fakeEngine) RemoveTracingListener(l tracer.Listener) {}

func (e *fakeEngine) Close(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

type fixture struct {
	t       *testing.T
	conn    *protocol.Conn
	root    *RootActor
	host    *StaticHost
	engines []*fakeEngine
	events  []protocol.Packet
}

func newFixture(t *testing.T, configure ...func(*RootOptions)) *fixture {
	t.Helper()
	f := &fixture{t: t, host: NewStaticHost(testInventory())}
	f.conn = protocol.NewConn("server0.conn0.", zaptest.NewLogger(t))
	f.conn.SetEventSink(func(p protocol.Packet) { f.events = append(f.events, p) })

	opts := RootOptions{
		Host: f.host,
		NewEngine: func() tracer.Engine {
			e := &fakeEngine{}
			f.engines = append(f.engines, e)
			return e
		},
		Tracer: tracer.Options{DefaultLogMethod: tracer.LogMethodConsole},
	}
	for _, c := range configure {
		c(&opts)
	}
	root, err := NewRootActor(f.conn, opts)
	require.NoError(t, err)
	f.root = root
	t.Cleanup(f.conn.Close)
	return f
}

func (f *fixture) request(to, typ string, params map[string]any) protocol.Packet {
	f.t.Helper()
	return f.conn.Request(context.Background(), protocol.NewRequest(to, typ, params))
}

func (f *fixture) ok(to, typ string, params map[string]any) protocol.Packet {
	f.t.Helper()
	resp := f.request(to, typ, params)
	require.NoError(f.t, resp.Err(), "%s %s", to, typ)
	return resp
}

func (f *fixture) tabTarget(outerWindowID int) protocol.Packet {
	f.t.Helper()
	tab, ok := f.ok("root", "getTab", map[string]any{"outerWindowID": outerWindowID}).Object("tab")
	require.True(f.t, ok)
	frame, ok := f.ok(actorOf(tab), "getTarget", nil).Object("frame")
	require.True(f.t, ok)
	return frame
}

func actorOf(p protocol.Packet) string {
	s, _ := p.String("actor")
	return s
}

func TestGetRootAndDevice(t *testing.T) {
	f := newFixture(t)

	resp := f.ok("root", "getRoot", nil)
	device, _ := resp.String("deviceActor")
	sourceMap, _ := resp.String("sourceMapActor")
	assert.True(t, strings.HasPrefix(device, "server0.conn0.device"))
	assert.True(t, strings.HasPrefix(sourceMap, "server0.conn0.sourceMap"))

	desc, ok := f.ok(device, "getDescription", nil).Object("value")
	require.True(t, ok)
	assert.Equal(t, "browser", desc["appType"])
	assert.Equal(t, "linux", desc["platform"])

	assert.Equal(t, "browser", f.root.Form()["applicationType"])
}

func TestProcessesAndTargets(t *testing.T) {
	f := newFixture(t)

	processes := f.ok("root", "listProcesses", nil).Objects("processes")
	require.Len(t, processes, 2)
	for _, p := range processes {
		assert.Contains(t, actorOf(p), "processDescriptor")
	}
	assert.Equal(t, true, processes[0]["isParent"])

	// ids are stable across calls
	again := f.ok("root", "listProcesses", nil).Objects("processes")
	assert.Equal(t, actorOf(processes[1]), actorOf(again[1]))

	desc, ok := f.ok("root", "getProcess", map[string]any{"id": 1.0}).Object("processDescriptor")
	require.True(t, ok)
	assert.Equal(t, actorOf(processes[1]), actorOf(desc))

	content, ok := f.ok(actorOf(desc), "getTarget", nil).Object("process")
	require.True(t, ok)
	assert.Contains(t, actorOf(content), TypeContentProcessTarget)
	// the same target is returned every time
	content2, _ := f.ok(actorOf(desc), "getTarget", nil).Object("process")
	assert.Equal(t, actorOf(content), actorOf(content2))

	parent, _ := f.ok(actorOf(processes[0]), "getTarget", nil).Object("process")
	assert.Contains(t, actorOf(parent), TypeParentProcessTarget)

	resp := f.request("root", "getProcess", map[string]any{"id": 9.0})
	assert.ErrorIs(t, resp.Err(), protocol.ErrNoSuchActor)
	resp = f.request("root", "getProcess", nil)
	assert.ErrorIs(t, resp.Err(), protocol.ErrMissingParameter)
}

func TestTabs(t *testing.T) {
	f := newFixture(t)

	tabs := f.ok("root", "listTabs", nil).Objects("tabs")
	require.Len(t, tabs, 3)
	assert.Equal(t, "Example", tabs[0]["title"])

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"by outerWindowID", map[string]any{"outerWindowID": 100.0}, "http://example.com/"},
		{"by tabId", map[string]any{"tabId": 12.0}, "http://example.org/frame"},
		{"selected", nil, "http://example.org/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, ok := f.ok("root", "getTab", tt.params).Object("tab")
			require.True(t, ok)
			assert.Equal(t, tt.want, tab["url"])
		})
	}

	resp := f.request("root", "getTab", map[string]any{"outerWindowID": 999.0})
	require.Error(t, resp.Err())
	assert.Equal(t, "noTab", resp["error"])
}

func TestTabsRemovedFromInventory(t *testing.T) {
	f := newFixture(t)
	tabs := f.ok("root", "listTabs", nil).Objects("tabs")
	removed := actorOf(tabs[0])
	f.tabTarget(100)

	f.host.inv.Tabs = f.host.inv.Tabs[1:]
	tabs = f.ok("root", "listTabs", nil).Objects("tabs")
	require.Len(t, tabs, 2)

	resp := f.request(removed, "getTarget", nil)
	assert.ErrorIs(t, resp.Err(), protocol.ErrNoSuchActor)
	require.Len(t, f.engines, 1)
	assert.True(t, f.engines[0].closed)
}

func TestWorkers(t *testing.T) {
	f := newFixture(t)

	main := f.ok("root", "listWorkers", nil).Objects("workers")
	require.Len(t, main, 1)
	assert.Equal(t, "chrome://worker.js", main[0]["url"])

	desc, _ := f.ok("root", "getProcess", map[string]any{"id": 1.0}).Object("processDescriptor")
	target, _ := f.ok(actorOf(desc), "getTarget", nil).Object("process")
	workers := f.ok(actorOf(target), "listWorkers", nil).Objects("workers")
	require.Len(t, workers, 2)
	assert.Equal(t, WorkerTypeService, workers[0]["type"])
	assert.Equal(t, "http://example.com/", workers[0]["scope"])
	assert.Equal(t, "shared", workers[1]["name"])

	// listing the parent process does not drop content workers
	f.ok("root", "listWorkers", nil)
	again := f.ok(actorOf(target), "listWorkers", nil).Objects("workers")
	assert.Equal(t, actorOf(workers[0]), actorOf(again[0]))

	wt, ok := f.ok(actorOf(workers[0]), "getTarget", nil).Object("workerTarget")
	require.True(t, ok)
	assert.Equal(t, false, wt["isMainThread"])
}

func TestRegistrationsAndAddons(t *testing.T) {
	f := newFixture(t)

	regs := f.ok("root", "listServiceWorkerRegistrations", nil).Objects("registrations")
	require.Len(t, regs, 1)
	assert.Equal(t, "http://example.com/", regs[0]["scope"])
	assert.Equal(t, true, regs[0]["active"])

	addons := f.ok("root", "listAddons", nil).Objects("addons")
	require.Len(t, addons, 1)
	assert.Equal(t, "addon@example.com", addons[0]["id"])
	assert.Contains(t, actorOf(addons[0]), "webExtensionDescriptor")
}

func TestThreadLifecycle(t *testing.T) {
	f := newFixture(t)
	thread, _ := f.tabTarget(100).String("threadActor")

	sources := f.ok(thread, "sources", nil).Objects("sources")
	assert.Empty(t, sources, "no sources before attach")

	resp := f.request(thread, "resume", nil)
	assert.Equal(t, "wrongState", resp["error"])
	assert.Contains(t, resp["message"], `"detached"`)

	f.ok(thread, "attach", nil)
	resp = f.request(thread, "attach", nil)
	assert.Equal(t, "wrongState", resp["error"])

	sources = f.ok(thread, "sources", nil).Objects("sources")
	require.Len(t, sources, 2)
	assert.Equal(t, "app.js.map", sources[0]["sourceMapURL"])
	text := f.ok(actorOf(sources[0]), "source", nil)
	assert.Equal(t, "greet()", text["source"])

	f.ok(thread, "interrupt", nil)
	require.NotEmpty(t, f.events)
	last := f.events[len(f.events)-1]
	assert.Equal(t, "paused", last.Type())
	assert.Equal(t, thread, last.From())

	f.ok(thread, "resume", nil)
	assert.Equal(t, "resumed", f.events[len(f.events)-1].Type())

	f.ok(thread, "detach", nil)
	resp = f.request(actorOf(sources[0]), "source", nil)
	assert.ErrorIs(t, resp.Err(), protocol.ErrNoSuchActor)
	resp = f.request(thread, "detach", nil)
	assert.Equal(t, "wrongState", resp["error"])
}

func TestTracingThroughTarget(t *testing.T) {
	f := newFixture(t)
	target := f.tabTarget(100)
	tracerID, _ := target.String("tracerActor")

	resp := f.ok(tracerID, "toggleTracing", nil)
	assert.Equal(t, true, resp["isTracing"])
	require.Len(t, f.engines, 1)
	require.Len(t, f.engines[0].starts, 1)
	assert.Equal(t, actorOf(target), f.engines[0].starts[0].Global.(map[string]any)["actor"])

	// listener output reaches the client as resources of the target
	f.engines[0].listeners[0].Output(tracer.Event{EventName: "click"})
	f.ok(tracerID, "stopTracing", nil)

	var resourceTypes []string
	for _, ev := range f.events {
		if ev.Type() != EventResourcesAvailable {
			continue
		}
		assert.Equal(t, actorOf(target), ev.From())
		for _, entry := range ev["array"].([]any) {
			resourceTypes = append(resourceTypes, entry.([]any)[0].(string))
		}
	}
	assert.Equal(t, []string{tracer.ResourceState, tracer.ResourceTrace, tracer.ResourceState}, resourceTypes)
}

func TestSubDocumentTracingIsNoop(t *testing.T) {
	f := newFixture(t)
	tracerID, _ := f.tabTarget(102).String("tracerActor")

	resp := f.ok(tracerID, "toggleTracing", nil)
	assert.Equal(t, false, resp["isTracing"])
	assert.Empty(t, f.engines[0].starts)
}

func TestTracingWithoutEngine(t *testing.T) {
	f := newFixture(t, func(o *RootOptions) { o.NewEngine = nil })
	tracerID, _ := f.tabTarget(100).String("tracerActor")

	resp := f.request(tracerID, "startTracing", nil)
	require.Error(t, resp.Err())
	assert.Contains(t, resp["message"], "no tracing engine configured")

	// the failed start left the session stopped
	resp = f.request(tracerID, "startTracing", nil)
	assert.NotEqual(t, "wrongState", resp["error"])
}

func TestSourceMapActor(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "app.js.map")
	require.NoError(t, os.WriteFile(mapPath,
		[]byte(`{"version":3,"sources":["app.ts"],"names":["greet"],"mappings":"AAAAA;AACA,IAAI"}`), 0o644))

	f := newFixture(t, func(o *RootOptions) {
		o.SourceMaps = map[string]string{
			"http://example.com/app.js": mapPath,
			"http://example.com/bad.js": filepath.Join(dir, "missing.map"),
		}
	})
	assert.True(t, f.root.Translator().Has("http://example.com/app.js"))
	assert.False(t, f.root.Translator().Has("http://example.com/bad.js"))

	sourceMap, _ := f.ok("root", "getRoot", nil).String("sourceMapActor")
	params := map[string]any{"location": map[string]any{"url": "http://example.com/app.js", "line": 2.0, "column": 4.0}}

	resp := f.ok(sourceMap, "getOriginalLocation", params)
	rec, ok := resp["location"].(location.Record)
	require.True(t, ok)
	assert.Equal(t, "http://example.com/app.ts", rec.Source.URL)
	assert.Empty(t, rec.Source.Actor)
	assert.Equal(t, 2, rec.Line)
	require.NotNil(t, rec.Column)
	assert.Equal(t, 4, *rec.Column)

	// once a thread has the original source, the record points at its actor
	thread, _ := f.tabTarget(100).String("threadActor")
	f.ok(thread, "attach", nil)
	sources := f.ok(thread, "sources", nil).Objects("sources")
	rec = f.ok(sourceMap, "getOriginalLocation", params)["location"].(location.Record)
	assert.Equal(t, actorOf(sources[1]), rec.Source.Actor)

	miss := f.ok(sourceMap, "getOriginalLocation", map[string]any{
		"location": map[string]any{"url": "http://example.com/other.js", "line": 1.0, "column": 0.0},
	})
	assert.Nil(t, miss["location"])

	bad := f.request(sourceMap, "getOriginalLocation", map[string]any{
		"location": map[string]any{"url": "http://example.com/app.js", "line": "two"},
	})
	assert.ErrorIs(t, bad.Err(), protocol.ErrBadParameterType)

	stack := f.ok(sourceMap, "mapStack", map[string]any{
		"stack": "    at greet (http://example.com/app.js:2:5)",
	})
	assert.Equal(t, "    at greet (http://example.com/app.ts:2:5)", stack["stack"])
}

func TestCloseDestroysTargets(t *testing.T) {
	f := newFixture(t)
	tracerID, _ := f.tabTarget(100).String("tracerActor")
	f.ok(tracerID, "startTracing", nil)

	f.conn.Close()

	require.Len(t, f.engines, 1)
	assert.True(t, f.engines[0].closed)
	resp := f.request("root", "getRoot", nil)
	assert.ErrorIs(t, resp.Err(), protocol.ErrConnectionClosed)
}

func TestLoadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  name: lab
processes:
  - id: 4
tabs:
  - tabId: 1
    outerWindowID: 7
    url: http://example.com/
    selected: true
workers:
  - id: a
    type: 2
    url: http://example.com/sw.js
    scope: http://example.com/
    processID: 4
`), 0o644))

	host, err := LoadInventory(path)
	require.NoError(t, err)

	assert.Equal(t, []ProcessInfo{{ID: 0, IsParent: true}, {ID: 4}}, host.Processes())
	assert.Equal(t, "tracebyte", host.Device().AppType)
	assert.Equal(t, 7, host.Tabs()[0].OuterWindowID)
	assert.Len(t, host.Workers(4), 1)
	assert.Empty(t, host.Workers(0))

	_, err = LoadInventory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
