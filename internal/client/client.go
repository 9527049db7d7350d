// Package client connects to a protocol server over MCP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/config"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// Client is one protocol connection carried by an MCP session. It
// implements front.Transport.
type Client struct {
	session *mcp.ClientSession
	hub     *eventHub
	logger  *zap.Logger
}

// Connect dials the server described by cfg
func Connect(ctx context.Context, cfg config.RemoteConfig, logger *zap.Logger) (*Client, error) {
	var transport mcp.Transport
	var err error

	switch cfg.Type {
	case "stdio":
		transport, err = createStdioTransport(cfg)
	case "http":
		transport, err = createHttpTransport(cfg)
	case "sse":
		transport, err = createSSETransport(cfg)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return ConnectTransport(ctx, transport, logger)
}

// ConnectTransport starts an MCP session over transport and subscribes to
// actor events.
func ConnectTransport(ctx context.Context, transport mcp.Transport, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{hub: newEventHub(), logger: logger}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "tracebyte-client",
		Version: "1.0.0",
	}, &mcp.ClientOptions{
		LoggingMessageHandler: c.handleLoggingMessage,
	})

	session, err := client.Connect(ctx, transport, &mcp.ClientSessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	// events are only sent once a level is set
	if err := session.SetLoggingLevel(ctx, &mcp.SetLoggingLevelParams{Level: "debug"}); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	c.session = session
	return c, nil
}

// createStdioTransport creates a stdio transport
func createStdioTransport(cfg config.RemoteConfig) (mcp.Transport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}

	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	return &mcp.CommandTransport{Command: cmd}, nil
}

// headerRoundTripper adds the configured headers to every request
type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(h.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range h.headers {
			req.Header.Set(k, v)
		}
	}
	return h.next.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport
func (h *headerRoundTripper) CloseIdleConnections() {
	if c, ok := h.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

func httpClient(cfg config.RemoteConfig) *http.Client {
	return &http.Client{Transport: &headerRoundTripper{
		headers: cfg.Headers,
		next:    http.DefaultTransport,
	}}
}

func createHttpTransport(cfg config.RemoteConfig) (mcp.Transport, error) {
	return &mcp.StreamableClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: httpClient(cfg),
		MaxRetries: 0,
	}, nil
}

func createSSETransport(cfg config.RemoteConfig) (mcp.Transport, error) {
	return &mcp.SSEClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: httpClient(cfg),
	}, nil
}

// Request sends one request packet and returns the response packet. Error
// responses are returned as packets; a closed session yields
// protocol.ErrConnectionClosed.
func (c *Client) Request(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
	params := make(map[string]any, len(req))
	for k, v := range req {
		if k != "to" && k != "type" {
			params[k] = v
		}
	}
	args := map[string]any{"to": req.To(), "type": req.Type()}
	if len(params) > 0 {
		args["params"] = params
	}

	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      protocol.RequestToolName,
		Arguments: args,
	})
	if err != nil {
		if errors.Is(err, mcp.ErrConnectionClosed) {
			return nil, protocol.Errorf(protocol.ErrConnectionClosed.Name, "%v", err)
		}
		return nil, fmt.Errorf("failed to send %s to %s: %w", req.Type(), req.To(), err)
	}
	if res.IsError {
		return nil, fmt.Errorf("server rejected %s to %s: %s", req.Type(), req.To(), resultText(res))
	}
	return resultPacket(res)
}

// resultPacket extracts the response packet of a tool result
func resultPacket(res *mcp.CallToolResult) (protocol.Packet, error) {
	if data, ok := res.StructuredContent.(map[string]any); ok {
		return protocol.Packet(data), nil
	}
	var p protocol.Packet
	if err := json.Unmarshal([]byte(resultText(res)), &p); err != nil {
		return nil, fmt.Errorf("failed to decode response packet: %w", err)
	}
	return p, nil
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// handleLoggingMessage routes actor events to subscribers
func (c *Client) handleLoggingMessage(ctx context.Context, req *mcp.LoggingMessageRequest) {
	if req.Params == nil || req.Params.Logger != protocol.EventLoggerName {
		return
	}
	data, ok := req.Params.Data.(map[string]any)
	if !ok {
		c.logger.Debug("ignoring malformed event", zap.Any("data", req.Params.Data))
		return
	}
	c.hub.publish(protocol.Packet(data))
}

// Subscribe registers fn for every actor event. The returned function
// removes the subscription.
func (c *Client) Subscribe(fn func(protocol.Packet)) (unsubscribe func()) {
	return c.hub.subscribe(fn)
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
