package protocol

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EventSink receives unsolicited packets emitted by actors
type EventSink func(Packet)

// Conn is one client connection to the protocol server. It allocates actor
// ids, finds actors across its pools and dispatches requests to them one at
// a time.
type Conn struct {
	prefix string
	nextID atomic.Uint64
	logger *zap.Logger

	mu     sync.Mutex // guards pools, sink and closed
	pools  []*Pool
	sink   EventSink
	closed bool

	dispatchMu sync.Mutex
}

// NewConn creates a connection whose actor ids start with prefix,
// e.g. "server1.conn0.".
func NewConn(prefix string, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		prefix: prefix,
		logger: logger.With(zap.String("conn", prefix)),
	}
}

// Prefix returns the connection's actor id prefix
func (c *Conn) Prefix() string { return c.prefix }

// Logger returns the connection-scoped logger
func (c *Conn) Logger() *zap.Logger { return c.logger }

// AllocID returns a new actor id unique within this connection
func (c *Conn) AllocID(prefix string) string {
	return c.prefix + prefix + strconv.FormatUint(c.nextID.Add(1), 10)
}

func (c *Conn) addPool(p *Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.pools {
		if existing == p {
			return
		}
	}
	c.pools = append(c.pools, p)
}

func (c *Conn) removePool(p *Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.pools {
		if existing == p {
			c.pools = append(c.pools[:i], c.pools[i+1:]...)
			return
		}
	}
}

// GetActor finds an actor by id in any pool of the connection
func (c *Conn) GetActor(id string) (Actor, bool) {
	c.mu.Lock()
	pools := append([]*Pool(nil), c.pools...)
	c.mu.Unlock()

	for _, p := range pools {
		if a, ok := p.Get(id); ok {
			return a, true
		}
	}
	return nil, false
}

// SetEventSink installs the receiver of actor events
func (c *Conn) SetEventSink(sink EventSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Emit sends an event packet {from, type, ...payload} to the event sink
func (c *Conn) Emit(from, typ string, payload Packet) {
	c.mu.Lock()
	sink, closed := c.sink, c.closed
	c.mu.Unlock()
	if sink == nil || closed {
		return
	}

	ev := Packet{}
	for k, v := range payload {
		ev[k] = v
	}
	ev["from"] = from
	ev["type"] = typ
	sink(ev)
}

// Request dispatches a request packet and returns the response packet.
// Failures are reported as {from, error, message} packets, never as Go errors.
func (c *Conn) Request(ctx context.Context, req Packet) (resp Packet) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	to := req.To()
	if to == "" {
		return ErrorPacket("root", Errorf(ErrMissingParameter.Name, "missing 'to' property in packet"))
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrorPacket(to, Errorf(ErrConnectionClosed.Name, "connection closed"))
	}

	actor, ok := c.GetActor(to)
	if !ok {
		return ErrorPacket(to, Errorf(ErrNoSuchActor.Name, "no such actor for ID: %s", to))
	}

	var method Method
	if mp, ok := actor.(MethodProvider); ok {
		method = mp.Methods()[req.Type()]
	}
	if method == nil {
		return ErrorPacket(to, Errorf(ErrUnrecognizedPacketType.Name,
			"actor %s does not recognize the packet type '%s'", to, req.Type()))
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("actor method panicked",
				zap.String("actor", to),
				zap.String("type", req.Type()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			resp = ErrorPacket(to, Errorf(ErrUnknown.Name, "%v", r))
		}
	}()

	result, err := method(ctx, req)
	if err != nil {
		c.logger.Debug("actor method failed",
			zap.String("actor", to),
			zap.String("type", req.Type()),
			zap.Error(err))
		return ErrorPacket(to, err)
	}
	if result == nil {
		result = Packet{}
	}
	result["from"] = to
	return result
}

// Close destroys every pool of the connection. Later requests fail with
// connectionClosed.
func (c *Conn) Close() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pools := append([]*Pool(nil), c.pools...)
	c.mu.Unlock()

	// Newest pools first so that children go before the root pool.
	for i := len(pools) - 1; i >= 0; i-- {
		pools[i].Destroy()
	}
}

// String implements fmt.Stringer
func (c *Conn) String() string {
	return fmt.Sprintf("Conn(%s)", c.prefix)
}
