// Package server exposes the actor protocol as an MCP server.
package server

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/session"
)

// RequestArgs represents the arguments for the rdp_request tool
type RequestArgs struct {
	To     string         `json:"to" jsonschema:"Required. Id of the actor the request is addressed to, 'root' to start with"`
	Type   string         `json:"type" jsonschema:"Required. Request type, e.g. 'getRoot', 'listTabs', 'startTracing'"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Request parameters, merged into the request packet"`
}

const instructions = `
Debugging Actor Protocol

Every debuggable thing (the root, processes, tabs, workers, threads, tracer
sessions, sources) is an actor with an id. Send a request to an actor with
the "rdp_request" tool; the result is the actor's response packet.

Start from the root actor:

    rdp_request({ to: "root", type: "listTabs" })
    rdp_request({ to: "<tab actor>", type: "getTarget" })
    rdp_request({ to: "<tracerActor>", type: "startTracing", params: { options: { logMethod: "console" } } })

Failures come back as packets of the form { from, error, message }.

Actor events (paused, resources-available-array, ...) are sent as logging
notifications with logger "rdp"; set a logging level to receive them.
`

// NewMcpServer creates and configures the MCP server
func NewMcpServer(sessionMgr *session.Manager, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tracebyte",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: instructions,
	})

	server.AddReceivingMiddleware(createSessionInjectionMiddleware(sessionMgr, logger))
	server.AddReceivingMiddleware(createLoggingMiddleware(logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        protocol.RequestToolName,
		Description: "Send one request packet to an actor and return its response packet.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RequestArgs) (*mcp.CallToolResult, map[string]any, error) {
		sessionCtx, err := getSessionFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		if args.To == "" || args.Type == "" {
			return nil, nil, fmt.Errorf("both 'to' and 'type' are required")
		}

		resp := sessionCtx.Request(ctx, protocol.NewRequest(args.To, args.Type, args.Params))
		return nil, map[string]any(resp), nil
	})

	return server
}
