package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/session"
)

// sessionContextKey is the context key for storing session context
type contextKey string

const sessionContextKey contextKey = "session"

// getSessionFromContext retrieves the session context from the request context.
func getSessionFromContext(ctx context.Context) (*session.Context, error) {
	sessionCtx, ok := ctx.Value(sessionContextKey).(*session.Context)
	if !ok || sessionCtx == nil {
		return nil, fmt.Errorf("session context not found in request context")
	}
	return sessionCtx, nil
}

// sessionID names a transport session. Stdio and in-memory sessions carry
// no id, so the session itself stands in for one.
func sessionID(s mcp.Session) string {
	if id := s.ID(); id != "" {
		return id
	}
	return fmt.Sprintf("local-%p", s)
}

// createSessionInjectionMiddleware binds each MCP session to a protocol
// connection. The first request of a session installs the event forwarder
// and arranges for the connection to be closed with the session.
func createSessionInjectionMiddleware(sessionMgr *session.Manager, logger *zap.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			id := sessionID(req.GetSession())

			sessionCtx, err := sessionMgr.GetOrCreateSession(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to get/create session: %w", err)
			}

			if ss, ok := req.GetSession().(*mcp.ServerSession); ok {
				if sessionCtx.BindEvents(eventForwarder(ss, logger)) {
					go func() {
						_ = ss.Wait()
						_ = sessionMgr.DeleteSession(id)
					}()
				}
			}

			ctx = context.WithValue(ctx, sessionContextKey, sessionCtx)
			return next(ctx, method, req)
		}
	}
}

// eventForwarder sends actor events to the client as logging notifications
func eventForwarder(ss *mcp.ServerSession, logger *zap.Logger) protocol.EventSink {
	return func(ev protocol.Packet) {
		err := ss.Log(context.Background(), &mcp.LoggingMessageParams{
			Logger: protocol.EventLoggerName,
			Level:  "info",
			Data:   map[string]any(ev),
		})
		if err != nil {
			logger.Debug("dropped actor event",
				zap.String("from", ev.From()),
				zap.String("type", ev.Type()),
				zap.Error(err))
		}
	}
}

// createLoggingMiddleware creates middleware that logs all MCP method calls
func createLoggingMiddleware(logger *zap.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			fields := []zap.Field{
				zap.String("session", sessionID(req.GetSession())),
				zap.String("method", method),
			}

			result, err := next(ctx, method, req)

			fields = append(fields, zap.Duration("duration", time.Since(start)))
			if err != nil {
				logger.Warn("request failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("request served", fields...)
			}
			return result, err
		}
	}
}
