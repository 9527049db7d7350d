package client

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/config"
	"github.com/yousuf/tracebyte/internal/front"
)

// ClientBox holds a connection together with the root front built on it
type ClientBox struct {
	Client *Client
	Root   *front.RootFront
}

// Open connects to the remote server of cfg
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ClientBox, error) {
	c, err := Connect(ctx, cfg.Remote, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s remote: %w", cfg.Remote.Type, err)
	}
	return newClientBox(c, cfg, logger), nil
}

// OpenTransport is Open over an already created transport
func OpenTransport(ctx context.Context, t mcp.Transport, cfg *config.Config, logger *zap.Logger) (*ClientBox, error) {
	c, err := ConnectTransport(ctx, t, logger)
	if err != nil {
		return nil, err
	}
	return newClientBox(c, cfg, logger), nil
}

func newClientBox(c *Client, cfg *config.Config, logger *zap.Logger) *ClientBox {
	return &ClientBox{
		Client: c,
		Root: front.NewRootFront(c, front.Options{
			ProcessPrefixes: cfg.Protocol.ProcessPrefixes,
			Logger:          logger,
		}),
	}
}

// Close closes the connection
func (cb *ClientBox) Close() error {
	return cb.Client.Close()
}
