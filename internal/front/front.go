// Package front implements the client side of the root protocol. Fronts are
// typed proxies for remote actors; RootFront discovers and memoizes them.
package front

import (
	"context"
	"fmt"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// Transport carries request packets to a protocol server
type Transport interface {
	Request(ctx context.Context, req protocol.Packet) (protocol.Packet, error)
}

// Front is the client-side proxy of one actor
type Front struct {
	transport Transport
	actorID   string
	typeName  string
	form      protocol.Packet
}

func newFront(t Transport, typeName string, form protocol.Packet) Front {
	id, _ := form.String("actor")
	return Front{transport: t, actorID: id, typeName: typeName, form: form}
}

// ActorID returns the id of the remote actor
func (f *Front) ActorID() string { return f.actorID }

// TypeName returns the type of the remote actor
func (f *Front) TypeName() string { return f.typeName }

// Form returns the form the front was created from
func (f *Front) Form() protocol.Packet { return f.form }

// Request sends a request to the actor. Error responses are returned as
// *protocol.Error.
func (f *Front) Request(ctx context.Context, typ string, params map[string]any) (protocol.Packet, error) {
	if f.actorID == "" {
		return nil, fmt.Errorf("%s front has no actor id", f.typeName)
	}
	resp, err := f.transport.Request(ctx, protocol.NewRequest(f.actorID, typ, params))
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Front) str(key string) string {
	s, _ := f.form.String(key)
	return s
}

func (f *Front) integer(key string) int {
	n, _ := f.form.Int(key)
	return n
}
