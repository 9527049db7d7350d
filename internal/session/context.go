package session

import (
	"context"
	"sync"

	"github.com/yousuf/tracebyte/internal/actors"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// Context is one protocol connection bound to a transport session
type Context struct {
	SessionID string
	Conn      *protocol.Conn
	Root      *actors.RootActor

	bindOnce sync.Once
}

// NewContext creates a new session context
func NewContext(sessionID string, conn *protocol.Conn, root *actors.RootActor) *Context {
	return &Context{
		SessionID: sessionID,
		Conn:      conn,
		Root:      root,
	}
}

// BindEvents installs the receiver of the connection's actor events. Only
// the first call has an effect; it reports whether it was that call.
func (c *Context) BindEvents(sink protocol.EventSink) bool {
	bound := false
	c.bindOnce.Do(func() {
		c.Conn.SetEventSink(sink)
		bound = true
	})
	return bound
}

// Request dispatches one request packet on the session's connection
func (c *Context) Request(ctx context.Context, req protocol.Packet) protocol.Packet {
	return c.Conn.Request(ctx, req)
}

// Close destroys every actor of the connection
func (c *Context) Close() {
	c.Conn.Close()
}
