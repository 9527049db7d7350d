package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/actors"
	"github.com/yousuf/tracebyte/internal/config"
	"github.com/yousuf/tracebyte/internal/engine"
	"github.com/yousuf/tracebyte/internal/server"
	"github.com/yousuf/tracebyte/internal/session"
	"github.com/yousuf/tracebyte/internal/tracer"
)

var serveStdio bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the actor protocol over MCP",
	Long: `Starts the protocol server. By default it listens for streamable HTTP
MCP sessions on server.addr; with --stdio it serves one session on
stdin/stdout.

Each MCP session gets its own protocol connection and root actor. Tabs,
processes and workers come from the inventory file, tracing sessions from the
wasm engine named by tracer.engineWasm.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve a single session over stdin/stdout")
}

// rootOptions builds the per-connection actor configuration from cfg
func rootOptions(cfg *config.Config, logger *zap.Logger) (actors.RootOptions, error) {
	opts := actors.RootOptions{
		Tracer: tracer.Options{
			// stdout carries the MCP stream in stdio mode
			Strategies:       tracer.DefaultStrategies(os.Stderr),
			DefaultLogMethod: tracer.LogMethod(cfg.Tracer.DefaultLogMethod),
			MaxDepth:         cfg.Tracer.MaxDepth,
			MaxRecords:       cfg.Tracer.MaxRecords,
		},
		SourceMaps: cfg.SourceMaps,
		Logger:     logger,
	}

	if cfg.Inventory != "" {
		host, err := actors.LoadInventory(cfg.Inventory)
		if err != nil {
			return opts, err
		}
		opts.Host = host
	}
	if path := cfg.Tracer.EngineWasm; path != "" {
		opts.NewEngine = func() tracer.Engine {
			return engine.NewLazy(path, logger)
		}
	} else {
		logger.Warn("no tracer.engineWasm configured, tracing requests will fail")
	}
	return opts, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	root, err := rootOptions(cfg, logger)
	if err != nil {
		return err
	}
	sessionMgr := session.NewManager(session.Options{
		ServerPrefix: cfg.Protocol.ServerPrefix,
		Root:         root,
		Logger:       logger,
	})
	defer sessionMgr.CloseAll()

	mcpServer := server.NewMcpServer(sessionMgr, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveStdio {
		logger.Info("serving on stdio", zap.String("prefix", sessionMgr.ServerPrefix()))
		if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server failed: %w", err)
		}
		return nil
	}

	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, &mcp.StreamableHTTPOptions{})

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("prefix", sessionMgr.ServerPrefix()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
