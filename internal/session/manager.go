// Package session maps transport sessions to protocol connections.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yousuf/tracebyte/internal/actors"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// Options configures a Manager
type Options struct {
	// ServerPrefix starts every actor id. Empty means a random one.
	ServerPrefix string
	// Root is applied to the root actor of every connection
	Root   actors.RootOptions
	Logger *zap.Logger
}

// Manager manages session contexts
type Manager struct {
	sessions map[string]*Context
	mu       sync.RWMutex
	prefix   string
	root     actors.RootOptions
	logger   *zap.Logger
	nextConn atomic.Uint64
}

// NewManager creates a new session manager
func NewManager(opts Options) *Manager {
	prefix := opts.ServerPrefix
	if prefix == "" {
		prefix = "server" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Context),
		prefix:   prefix,
		root:     opts.Root,
		logger:   logger,
	}
}

// ServerPrefix returns the prefix shared by the ids of every connection
func (m *Manager) ServerPrefix() string { return m.prefix }

// GetOrCreateSession gets an existing session or creates a new one
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID string) (*Context, error) {
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if exists {
		return session, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if session, exists := m.sessions[sessionID]; exists {
		return session, nil
	}

	connPrefix := fmt.Sprintf("%s.conn%d.", m.prefix, m.nextConn.Add(1)-1)
	conn := protocol.NewConn(connPrefix, m.logger.With(zap.String("session", sessionID)))
	root, err := actors.NewRootActor(conn, m.root)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create root actor: %w", err)
	}

	session = NewContext(sessionID, conn, root)
	m.sessions[sessionID] = session
	m.logger.Debug("session opened", zap.String("session", sessionID), zap.String("prefix", connPrefix))

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(sessionID string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// DeleteSession removes a session and destroys its actors
func (m *Manager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	session, exists := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("session %q not found", sessionID)
	}

	session.Close()
	m.logger.Debug("session closed", zap.String("session", sessionID))
	return nil
}

// CloseAll closes all sessions
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Context)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
