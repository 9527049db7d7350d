package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/actors"
	"github.com/yousuf/tracebyte/internal/config"
	"github.com/yousuf/tracebyte/internal/front"
	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/server"
	"github.com/yousuf/tracebyte/internal/session"
	"github.com/yousuf/tracebyte/internal/tracer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// acceptingEngine starts every session without producing records
type acceptingEngine struct{}

func (acceptingEngine) StartTracing(ctx context.Context, opts tracer.EngineOptions) error { return nil }
func (acceptingEngine) StopTracing(ctx context.Context) error                             { return nil }
func (acceptingEngine) AddTracingListener(l tracer.Listener)                              {}
func (acceptingEngine) RemoveTracingListener(l tracer.Listener)                           {}

func inventory() actors.Inventory {
	return actors.Inventory{
		Processes: []actors.ProcessInfo{{ID: 0, IsParent: true}, {ID: 1}},
		Tabs: []actors.TabInfo{
			{TabID: 1, OuterWindowID: 10, URL: "http://example.com/", Selected: true, ProcessID: 1},
		},
		Workers: []actors.WorkerInfo{
			{ID: "main", Type: actors.WorkerTypeDedicated, URL: "chrome://main.js"},
			{ID: "sw", Type: actors.WorkerTypeService, URL: "http://example.com/sw.js", Scope: "http://example.com/", ProcessID: 1},
		},
		Registrations: []actors.RegistrationInfo{
			{Scope: "http://example.com/", Fetch: true, Active: true},
		},
	}
}

// openBox serves an in-memory protocol server and connects a box to it
func openBox(t *testing.T) *ClientBox {
	t.Helper()
	logger := zap.NewNop()
	mgr := session.NewManager(session.Options{
		ServerPrefix: "server0",
		Root: actors.RootOptions{
			Host:      actors.NewStaticHost(inventory()),
			NewEngine: func() tracer.Engine { return acceptingEngine{} },
			Tracer:    tracer.Options{DefaultLogMethod: tracer.LogMethodConsole},
		},
		Logger: logger,
	})

	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.NewMcpServer(mgr, logger).Connect(ctx, st, nil)
	require.NoError(t, err)

	box, err := OpenTransport(ctx, ct, config.Default(), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = box.Close()
		_ = ss.Wait()
		mgr.CloseAll()
	})
	return box
}

func TestFrontsOverClient(t *testing.T) {
	box := openBox(t)
	ctx := context.Background()

	device, err := box.Root.GetFront(ctx, "device")
	require.NoError(t, err)
	resp, err := device.Request(ctx, "getDescription", nil)
	require.NoError(t, err)
	desc, ok := resp.Object("value")
	require.True(t, ok)
	assert.Equal(t, "tracebyte", desc["appType"])

	tab, err := box.Root.GetTab(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/", tab.URL())
	assert.Equal(t, 10, tab.OuterWindowID())

	p, err := box.Root.GetProcess(ctx, 1)
	require.NoError(t, err)
	desc1, ok := p.(*front.ProcessDescriptorFront)
	require.True(t, ok)
	target, err := desc1.GetTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, front.KindContent, target.ProcessKind())
}

func TestErrorResponses(t *testing.T) {
	box := openBox(t)

	_, err := box.Root.GetProcess(context.Background(), 42)
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.ErrNoSuchActor.Name, perr.Name)
}

func TestEventsReachSubscribers(t *testing.T) {
	box := openBox(t)
	ctx := context.Background()

	events := make(chan protocol.Packet, 16)
	unsubscribe := box.Client.Subscribe(func(p protocol.Packet) { events <- p })
	defer unsubscribe()

	tab, err := box.Root.GetTab(ctx, nil)
	require.NoError(t, err)
	target, err := tab.GetTarget(ctx)
	require.NoError(t, err)

	tracing, err := target.Tracer().ToggleTracing(ctx, tracer.StartOptions{})
	require.NoError(t, err)
	assert.True(t, tracing)

	select {
	case ev := <-events:
		assert.Equal(t, target.ActorID(), ev.From())
		assert.Equal(t, actors.EventResourcesAvailable, ev.Type())
	case <-time.After(5 * time.Second):
		t.Fatal("no resources event received")
	}
}

func TestListAllWorkersOverClient(t *testing.T) {
	box := openBox(t)

	workers := box.Root.ListAllWorkers(context.Background())

	require.Len(t, workers.Service, 1)
	sw := workers.Service[0]
	assert.Equal(t, "http://example.com/", sw.Scope)
	assert.Equal(t, "http://example.com/sw.js", sw.URL)
	assert.True(t, sw.Active)
	require.NotNil(t, sw.Worker)
	assert.NotNil(t, sw.Registration)

	require.Len(t, workers.Other, 1)
	assert.Equal(t, "chrome://main.js", workers.Other[0].URL)
	assert.Empty(t, workers.Shared)
}

func TestRequestAfterClose(t *testing.T) {
	box := openBox(t)
	require.NoError(t, box.Close())

	_, err := box.Client.Request(context.Background(), protocol.NewRequest("root", "getRoot", nil))
	assert.Error(t, err)
}

func TestEventHub(t *testing.T) {
	h := newEventHub()
	var got []string

	unA := h.subscribe(func(p protocol.Packet) { got = append(got, "a:"+p.Type()) })
	h.subscribe(func(p protocol.Packet) { got = append(got, "b:"+p.Type()) })

	h.publish(protocol.Packet{"type": "one"})
	unA()
	unA()
	h.publish(protocol.Packet{"type": "two"})

	assert.Equal(t, []string{"a:one", "b:one", "b:two"}, got)
}

func TestHeaderRoundTripper(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
	}))
	defer srv.Close()

	c := httpClient(config.RemoteConfig{Headers: map[string]string{
		"Authorization": "Bearer token",
		"X-Trace":       "1",
	}})
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	c.CloseIdleConnections()

	assert.Equal(t, "Bearer token", seen.Get("Authorization"))
	assert.Equal(t, "1", seen.Get("X-Trace"))
}

func TestConnectRejectsUnknownType(t *testing.T) {
	_, err := Connect(context.Background(), config.RemoteConfig{Type: "carrier-pigeon"}, nil)
	assert.ErrorContains(t, err, "unsupported transport type")
}
