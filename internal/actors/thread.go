package actors

import (
	"context"
	"sync"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// Thread states
const (
	ThreadDetached = "detached"
	ThreadRunning  = "running"
	ThreadPaused   = "paused"
	ThreadExited   = "exited"
)

// ThreadActor is the debugger of one target's thread
type ThreadActor struct {
	protocol.BaseActor

	env     *environment
	infos   []SourceInfo
	sources *protocol.Pool

	mu    sync.Mutex
	state string
}

func newThreadActor(env *environment, sources []SourceInfo) *ThreadActor {
	return &ThreadActor{
		BaseActor: protocol.NewBaseActor(env.conn, "thread"),
		env:       env,
		infos:     sources,
		state:     ThreadDetached,
	}
}

// State implements protocol.Stateful
func (t *ThreadActor) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *ThreadActor) setState(state string) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// Methods implements protocol.MethodProvider
func (t *ThreadActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"attach": protocol.ExpectState(t, ThreadDetached, "attach",
			func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
				if err := t.createSources(); err != nil {
					return nil, err
				}
				t.setState(ThreadRunning)
				return nil, nil
			}),
		"interrupt": protocol.ExpectState(t, ThreadRunning, "interrupt",
			func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
				t.setState(ThreadPaused)
				t.Conn().Emit(t.ActorID(), "paused", protocol.Packet{
					"why": protocol.Packet{"type": "interrupted"},
				})
				return nil, nil
			}),
		"resume": protocol.ExpectState(t, ThreadPaused, "resume",
			func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
				t.setState(ThreadRunning)
				t.Conn().Emit(t.ActorID(), "resumed", nil)
				return nil, nil
			}),
		"detach": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			if state := t.State(); state != ThreadRunning && state != ThreadPaused {
				return nil, &protocol.StateError{Expected: ThreadRunning, Actual: state, Activity: "detach"}
			}
			t.releaseSources()
			t.setState(ThreadDetached)
			return nil, nil
		},
		"sources": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			if t.State() == ThreadDetached || t.State() == ThreadExited {
				return protocol.Packet{"sources": []protocol.Packet{}}, nil
			}
			var out []protocol.Packet
			t.sources.ForEach(func(a protocol.Actor) {
				out = append(out, a.(*SourceActor).Form())
			})
			if out == nil {
				out = []protocol.Packet{}
			}
			return protocol.Packet{"sources": out}, nil
		},
	}
}

func (t *ThreadActor) createSources() error {
	t.sources = protocol.NewPool(t.Conn(), t.ActorID()+"-sources")
	for _, info := range t.infos {
		s := newSourceActor(t.env, info)
		if err := t.sources.AddActor(s); err != nil {
			return err
		}
		t.env.sourcesByURL[info.URL] = s
	}
	return nil
}

func (t *ThreadActor) releaseSources() {
	if t.sources == nil {
		return
	}
	t.sources.ForEach(func(a protocol.Actor) {
		s := a.(*SourceActor)
		if t.env.sourcesByURL[s.URL()] == s {
			delete(t.env.sourcesByURL, s.URL())
		}
	})
	t.sources.Destroy()
	t.sources = nil
}

// Destroy implements protocol.Destroyer
func (t *ThreadActor) Destroy() {
	t.releaseSources()
	t.setState(ThreadExited)
}
