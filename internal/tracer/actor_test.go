package tracer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/tracebyte/internal/protocol"
)

type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	startOpts []EngineOptions
	listeners []Listener
	startErr  error
	// records pushed to listeners on start
	emit []Record
}

func (e *fakeEngine) record(call string) {
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) StartTracing(ctx context.Context, opts EngineOptions) error {
	e.mu.Lock()
	e.record("start")
	e.startOpts = append(e.startOpts, opts)
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	if e.startErr != nil {
		return e.startErr
	}
	for _, r := range e.emit {
		for _, l := range listeners {
			l.Output(r)
		}
	}
	return nil
}

func (e *fakeEngine) StopTracing(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop")
	return nil
}

func (e *fakeEngine) AddTracingListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("add")
	e.listeners = append(e.listeners, l)
}

func (e *fakeEngine) RemoveTracingListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("remove")
	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			break
		}
	}
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type emitted struct {
	resourceType string
	resources    []any
}

type fakeTarget struct {
	worker      bool
	subDocument bool
	mu          sync.Mutex
	emitted     []emitted
}

func (t *fakeTarget) Global() any { return "window" }

func (t *fakeTarget) IsMainThread() bool { return !t.worker }

func (t *fakeTarget) SharesThreadWithParent() bool { return t.subDocument }

func (t *fakeTarget) EmitResources(resourceType string, resources []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitted = append(t.emitted, emitted{resourceType, resources})
}

func (t *fakeTarget) ofType(resourceType string) [][]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]any
	for _, e := range t.emitted {
		if e.resourceType == resourceType {
			out = append(out, e.resources)
		}
	}
	return out
}

type tracerFixture struct {
	conn   *protocol.Conn
	engine *fakeEngine
	target *fakeTarget
	actor  *TracerActor
	out    *bytes.Buffer
}

func newTracerFixture(t *testing.T, opts Options) *tracerFixture {
	t.Helper()
	f := &tracerFixture{
		conn:   protocol.NewConn("conn0.", nil),
		engine: &fakeEngine{},
		target: &fakeTarget{},
		out:    &bytes.Buffer{},
	}
	opts.Engine = f.engine
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies(f.out)
	}
	f.actor = NewTracerActor(f.conn, f.target, opts)
	require.NoError(t, protocol.NewPool(f.conn, "target").AddActor(f.actor))
	return f
}

func TestStartRejectsBogusLogMethod(t *testing.T) {
	f := newTracerFixture(t, Options{})

	err := f.actor.StartTracing(context.Background(), StartOptions{LogMethod: "bogus"})

	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Empty(t, f.engine.Calls())
	assert.False(t, f.actor.IsTracing())
	assert.Equal(t, StateStopped, f.actor.State())
}

func TestStartRejectsBogusLogMethodOverProtocol(t *testing.T) {
	f := newTracerFixture(t, Options{})

	resp := f.conn.Request(context.Background(), protocol.NewRequest(f.actor.ActorID(), "startTracing",
		map[string]any{"options": map[string]any{"logMethod": "bogus"}}))

	assert.ErrorIs(t, resp.Err(), protocol.ErrBadParameterType)
	assert.Contains(t, resp["message"], "bogus")
	assert.Empty(t, f.engine.Calls())
}

func TestStartRejectsBadOptionTypes(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
	}{
		{"prefix", map[string]any{"prefix": 12.0}},
		{"maxDepth", map[string]any{"maxDepth": "deep"}},
		{"maxRecords", map[string]any{"maxRecords": 1.5}},
		{"flag", map[string]any{"traceValues": "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTracerFixture(t, Options{})
			resp := f.conn.Request(context.Background(), protocol.NewRequest(f.actor.ActorID(), "startTracing",
				map[string]any{"options": tt.options}))
			assert.ErrorIs(t, resp.Err(), protocol.ErrBadParameterType)
			assert.Empty(t, f.engine.Calls())
		})
	}
}

func TestProfilerForcesEngineFlags(t *testing.T) {
	f := newTracerFixture(t, Options{})

	require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{LogMethod: LogMethodProfiler}))

	require.Len(t, f.engine.startOpts, 1)
	got := f.engine.startOpts[0]
	assert.True(t, got.TraceFunctionReturn)
	assert.True(t, got.UseNativeTracing)
	assert.True(t, got.TraceDOMEvents)
	assert.Equal(t, "window", got.Global)
	assert.Equal(t, LogMethodProfiler, f.actor.LogMethod())
}

func TestListenerRegisteredBeforeEngineStart(t *testing.T) {
	f := newTracerFixture(t, Options{})

	require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{}))
	require.NoError(t, f.actor.StopTracing(context.Background()))

	assert.Equal(t, []string{"add", "start", "remove", "stop"}, f.engine.Calls())
}

func TestDefaultLogMethodAndLimits(t *testing.T) {
	f := newTracerFixture(t, Options{DefaultLogMethod: LogMethodConsole, MaxDepth: 50, MaxRecords: 1000})

	require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{MaxRecords: 10}))

	assert.Equal(t, LogMethodConsole, f.actor.LogMethod())
	assert.Equal(t, 50, f.engine.startOpts[0].MaxDepth)
	assert.Equal(t, 10, f.engine.startOpts[0].MaxRecords)
}

func TestStopTracingIsIdempotent(t *testing.T) {
	f := newTracerFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.actor.StopTracing(ctx))
	assert.Empty(t, f.engine.Calls())

	require.NoError(t, f.actor.StartTracing(ctx, StartOptions{}))
	require.NoError(t, f.actor.StopTracing(ctx))
	require.NoError(t, f.actor.StopTracing(ctx))

	stops := 0
	for _, c := range f.engine.Calls() {
		if c == "stop" {
			stops++
		}
	}
	assert.Equal(t, 1, stops)
	assert.Equal(t, LogMethod(""), f.actor.LogMethod())
}

func TestEngineStartFailureUnwinds(t *testing.T) {
	f := newTracerFixture(t, Options{})
	f.engine.startErr = errors.New("engine refused")

	err := f.actor.StartTracing(context.Background(), StartOptions{LogMethod: LogMethodConsole})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine refused")
	assert.False(t, f.actor.IsTracing())
	assert.Empty(t, f.engine.listeners)
	assert.Equal(t, []string{"add", "start", "remove", "stop"}, f.engine.Calls())
	assert.Equal(t, LogMethod(""), f.actor.LogMethod())
}

func TestStartNoOps(t *testing.T) {
	t.Run("next interaction on worker", func(t *testing.T) {
		f := newTracerFixture(t, Options{})
		f.target.worker = true
		require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{TraceOnNextInteraction: true}))
		assert.Empty(t, f.engine.Calls())
		assert.False(t, f.actor.IsTracing())
	})

	t.Run("worker without next interaction", func(t *testing.T) {
		f := newTracerFixture(t, Options{})
		f.target.worker = true
		require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{}))
		assert.True(t, f.actor.IsTracing())
	})

	t.Run("sub document", func(t *testing.T) {
		f := newTracerFixture(t, Options{})
		f.target.subDocument = true
		require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{}))
		assert.Empty(t, f.engine.Calls())
	})
}

func TestStartWhileRunningIsWrongState(t *testing.T) {
	f := newTracerFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.actor.StartTracing(ctx, StartOptions{}))

	resp := f.conn.Request(ctx, protocol.NewRequest(f.actor.ActorID(), "startTracing", nil))

	err := resp.Err()
	require.Error(t, err)
	assert.Equal(t, "wrongState", err.(*protocol.Error).Name)
	assert.Contains(t, err.Error(), `"running"`)
	assert.Contains(t, err.Error(), `"stopped"`)
	assert.Len(t, f.engine.startOpts, 1)
}

func TestToggleTracing(t *testing.T) {
	f := newTracerFixture(t, Options{})
	ctx := context.Background()
	id := f.actor.ActorID()

	resp := f.conn.Request(ctx, protocol.NewRequest(id, "toggleTracing",
		map[string]any{"options": map[string]any{"logMethod": "console"}}))
	require.NoError(t, resp.Err())
	assert.Equal(t, true, resp["isTracing"])

	resp = f.conn.Request(ctx, protocol.NewRequest(id, "toggleTracing", nil))
	require.NoError(t, resp.Err())
	assert.Equal(t, false, resp["isTracing"])

	states := f.target.ofType(ResourceState)
	require.Len(t, states, 2)
	assert.Equal(t, true, states[0][0].(map[string]any)["enabled"])
	assert.Equal(t, false, states[1][0].(map[string]any)["enabled"])
}

func TestValueGripsDoNotLeakAcrossSessions(t *testing.T) {
	f := newTracerFixture(t, Options{})
	ctx := context.Background()

	slot := map[string]any{"session": 1}

	require.NoError(t, f.actor.StartTracing(ctx, StartOptions{}))
	first := f.actor.CreateValueGrip(slot).(protocol.Packet)
	again := f.actor.CreateValueGrip(slot).(protocol.Packet)
	assert.Equal(t, first["actor"], again["actor"], "same object, same grip within a session")
	_, ok := f.conn.GetActor(first["actor"].(string))
	require.True(t, ok)
	require.NoError(t, f.actor.StopTracing(ctx))

	// same map, different contents
	delete(slot, "session")
	slot["other"] = true
	slot["more"] = 3

	require.NoError(t, f.actor.StartTracing(ctx, StartOptions{}))
	second := f.actor.CreateValueGrip(slot).(protocol.Packet)

	assert.NotEqual(t, first["actor"], second["actor"])
	assert.Equal(t, 2, second["ownPropertyLength"])
	_, ok = f.conn.GetActor(first["actor"].(string))
	assert.False(t, ok, "session 1 grip must be released")
}

func TestGetProfileAfterProfilerSession(t *testing.T) {
	f := newTracerFixture(t, Options{})
	f.engine.emit = []Record{
		Frame{Name: "main", URL: "http://example.com/app.js", Line: 1, Column: 0},
		Frame{Name: "helper", URL: "http://example.com/app.js", Line: 10, Column: 2},
		FrameEnter{Header: Header{FrameIndex: 0, Timestamp: 1, Depth: 0}},
		FrameEnter{Header: Header{FrameIndex: 1, Timestamp: 2, Depth: 1}},
		FrameExit{Header: Header{FrameIndex: 1, Timestamp: 3, Depth: 1}, Why: "return"},
		Event{Header: Header{FrameIndex: 0, Timestamp: 4, Depth: 0}, EventName: "click"},
		FrameExit{Header: Header{FrameIndex: 0, Timestamp: 5, Depth: 0}, Why: "return"},
	}
	ctx := context.Background()

	assert.Nil(t, f.actor.GetProfile())
	require.NoError(t, f.actor.StartTracing(ctx, StartOptions{LogMethod: LogMethodProfiler}))
	require.NoError(t, f.actor.StopTracing(ctx))

	profile, ok := f.actor.GetProfile().(*Profile)
	require.True(t, ok)
	assert.Equal(t, []ProfileFrame{
		{Name: "main", URL: "http://example.com/app.js", Line: 1, Column: 0},
		{Name: "helper", URL: "http://example.com/app.js", Line: 10, Column: 2},
	}, profile.Frames)
	assert.Equal(t, []ProfileStack{{Frame: 0, Parent: -1}, {Frame: 1, Parent: 0}}, profile.Stacks)
	assert.Equal(t, []ProfileSample{
		{Stack: 0, Time: 1},
		{Stack: 1, Time: 2},
		{Stack: 0, Time: 3},
		{Stack: -1, Time: 5},
	}, profile.Samples)
	require.Len(t, profile.Markers, 1)
	assert.Equal(t, "DOMEvent", profile.Markers[0].Name)
	assert.Equal(t, 1.0, profile.Meta.StartTime)
	assert.Equal(t, 5.0, profile.Meta.EndTime)

	resp := f.conn.Request(ctx, protocol.NewRequest(f.actor.ActorID(), "getProfile", nil))
	assert.Same(t, profile, resp["profile"])
}

func TestDestroyStopsTracing(t *testing.T) {
	f := newTracerFixture(t, Options{})
	require.NoError(t, f.actor.StartTracing(context.Background(), StartOptions{}))

	f.actor.RegisteredPool().RemoveActor(f.actor)

	assert.False(t, f.actor.IsTracing())
	assert.Contains(t, f.engine.Calls(), "stop")
}
