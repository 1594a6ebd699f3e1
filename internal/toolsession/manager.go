// Package toolsession manages the single long-lived session to the remote
// tool-execution backend and exposes a filtered tool surface to the agent.
package toolsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/pkg/logger"
	"github.com/clearline-ai/support-orchestrator/pkg/metrics"
)

// ErrBackendUnavailable signals that a session to the tool backend could not
// be established. Callers may retry on the next request; the manager does not
// retry internally.
var ErrBackendUnavailable = errors.New("tool backend unavailable")

// Tool describes one tool surfaced by the remote backend.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the outcome of one tool invocation. Execution failures are
// carried here as error-shaped content, never as a Go error.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Session is one live connection to the remote tool endpoint.
type Session interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// Dialer opens a new session to the tool backend.
type Dialer func(ctx context.Context) (Session, error)

// Manager lazily opens exactly one session on first use and hands out the
// filtered tool list plus a bound executor. Constructed once at startup and
// injected wherever tools are needed.
type Manager struct {
	dial      Dialer
	allowlist []string
	log       *logger.Logger

	mu      sync.Mutex
	session Session
	tools   []Tool
}

// NewManager creates a manager. No connection is made until first use.
func NewManager(dial Dialer, allowlist []string, log *logger.Logger) *Manager {
	return &Manager{
		dial:      dial,
		allowlist: allowlist,
		log:       log,
	}
}

// Tools returns the allow-listed tool catalog, initializing the session if
// needed.
func (m *Manager) Tools(ctx context.Context) ([]Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureSessionLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Tool, len(m.tools))
	copy(out, m.tools)
	return out, nil
}

// Executor returns an executor bound to the current session, initializing the
// session if needed.
func (m *Manager) Executor(ctx context.Context) (*Executor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureSessionLocked(ctx); err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(m.tools))
	for _, t := range m.tools {
		allowed[t.Name] = struct{}{}
	}
	return &Executor{session: m.session, allowed: allowed, log: m.log}, nil
}

// Shutdown closes the session if one is open. Safe to call repeatedly and
// before any initialization; teardown failures are logged and swallowed so a
// later acquire re-initializes cleanly.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.log.Warn("tool session close failed", zap.Error(err))
	}
	m.session = nil
	m.tools = nil
	m.log.Info("tool session closed")
}

// ensureSessionLocked opens the session and loads the filtered catalog. The
// caller holds the mutex, so concurrent first users wait for one init.
func (m *Manager) ensureSessionLocked(ctx context.Context) error {
	if m.session != nil {
		return nil
	}

	session, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	catalog, err := session.ListTools(ctx)
	if err != nil {
		if closeErr := session.Close(); closeErr != nil {
			m.log.Warn("tool session close failed", zap.Error(closeErr))
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	m.session = session
	m.tools = m.filterCatalog(catalog)
	metrics.ToolSessionInitsTotal.Inc()
	m.log.Info("tool session initialized",
		zap.Int("catalog_size", len(catalog)),
		zap.Int("exposed", len(m.tools)),
	)
	return nil
}

// filterCatalog keeps only allow-listed tools. Unknown remote tools are
// dropped silently; an expected tool missing from the catalog is a warning,
// not a failure.
func (m *Manager) filterCatalog(catalog []Tool) []Tool {
	byName := make(map[string]Tool, len(catalog))
	for _, t := range catalog {
		byName[t.Name] = t
	}

	var out []Tool
	for _, name := range m.allowlist {
		t, ok := byName[name]
		if !ok {
			m.log.Warn("expected tool missing from remote catalog", zap.String("tool", name))
			continue
		}
		out = append(out, t)
	}
	return out
}

// Executor runs tool calls against the bound session. Every failure path is
// converted into an error-shaped ToolResult so one bad call never aborts the
// surrounding inference turn.
type Executor struct {
	session Session
	allowed map[string]struct{}
	log     *logger.Logger
}

// Execute runs one tool call.
func (e *Executor) Execute(ctx context.Context, call ToolCall) ToolResult {
	if _, ok := e.allowed[call.Name]; !ok {
		metrics.RecordToolCall(call.Name, "rejected")
		return ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("tool %q is not available", call.Name),
			IsError: true,
		}
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			metrics.RecordToolCall(call.Name, "bad_arguments")
			return ToolResult{
				CallID:  call.ID,
				Content: fmt.Sprintf("invalid tool arguments: %v", err),
				IsError: true,
			}
		}
	}

	content, err := e.session.CallTool(ctx, call.Name, args)
	if err != nil {
		e.log.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		metrics.RecordToolCall(call.Name, "error")
		return ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("tool execution failed: %v", err),
			IsError: true,
		}
	}

	metrics.RecordToolCall(call.Name, "success")
	return ToolResult{CallID: call.ID, Content: content}
}
