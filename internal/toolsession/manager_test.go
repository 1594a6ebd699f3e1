package toolsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/clearline-ai/support-orchestrator/pkg/logger"
)

type fakeSession struct {
	tools    []Tool
	callErr  error
	closed   atomic.Int32
	lastTool string
	lastArgs map[string]any
}

func (s *fakeSession) ListTools(ctx context.Context) ([]Tool, error) {
	return s.tools, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	s.lastTool = name
	s.lastArgs = args
	if s.callErr != nil {
		return "", s.callErr
	}
	return "ok:" + name, nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

func catalog(names ...string) []Tool {
	out := make([]Tool, len(names))
	for i, n := range names {
		out[i] = Tool{Name: n, InputSchema: []byte(`{"type":"object"}`)}
	}
	return out
}

func TestConcurrentFirstUseOpensOneSession(t *testing.T) {
	var dials atomic.Int32
	session := &fakeSession{tools: catalog("execute_sql", "list_tables")}

	m := NewManager(func(ctx context.Context) (Session, error) {
		dials.Add(1)
		return session, nil
	}, []string{"execute_sql", "list_tables"}, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Tools(context.Background()); err != nil {
				t.Errorf("Tools failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := dials.Load(); got != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", got)
	}
}

func TestAllowlistFiltersUnknownTools(t *testing.T) {
	session := &fakeSession{tools: catalog("execute_sql", "drop_database", "list_tables")}

	m := NewManager(func(ctx context.Context) (Session, error) {
		return session, nil
	}, []string{"execute_sql", "list_tables"}, logger.NewNop())

	tools, err := m.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	for _, tool := range tools {
		if tool.Name == "drop_database" {
			t.Fatalf("unknown tool leaked through the allow-list")
		}
	}
}

func TestMissingExpectedToolIsNotFatal(t *testing.T) {
	session := &fakeSession{tools: catalog("execute_sql")}

	m := NewManager(func(ctx context.Context) (Session, error) {
		return session, nil
	}, []string{"execute_sql", "list_tables"}, logger.NewNop())

	tools, err := m.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "execute_sql" {
		t.Fatalf("unexpected tool set: %+v", tools)
	}
}

func TestDialFailureReturnsBackendUnavailable(t *testing.T) {
	m := NewManager(func(ctx context.Context) (Session, error) {
		return nil, errors.New("connection refused")
	}, []string{"execute_sql"}, logger.NewNop())

	if _, err := m.Tools(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestShutdownIsIdempotentAndAllowsReinit(t *testing.T) {
	var dials atomic.Int32
	m := NewManager(func(ctx context.Context) (Session, error) {
		dials.Add(1)
		return &fakeSession{tools: catalog("execute_sql")}, nil
	}, []string{"execute_sql"}, logger.NewNop())

	ctx := context.Background()

	// Shutdown before any init is a no-op.
	m.Shutdown(ctx)

	if _, err := m.Tools(ctx); err != nil {
		t.Fatalf("Tools failed: %v", err)
	}

	m.Shutdown(ctx)
	m.Shutdown(ctx)

	if _, err := m.Tools(ctx); err != nil {
		t.Fatalf("Tools after shutdown failed: %v", err)
	}
	if got := dials.Load(); got != 2 {
		t.Fatalf("expected re-initialization after shutdown, dials=%d", got)
	}
}

func TestExecutorConvertsFailuresToErrorResults(t *testing.T) {
	session := &fakeSession{
		tools:   catalog("execute_sql"),
		callErr: errors.New("relation does not exist"),
	}
	m := NewManager(func(ctx context.Context) (Session, error) {
		return session, nil
	}, []string{"execute_sql"}, logger.NewNop())

	exec, err := m.Executor(context.Background())
	if err != nil {
		t.Fatalf("Executor failed: %v", err)
	}

	res := exec.Execute(context.Background(), ToolCall{
		ID:        "call-1",
		Name:      "execute_sql",
		Arguments: `{"query":"select 1"}`,
	})
	if !res.IsError {
		t.Fatalf("expected error-shaped result")
	}
	if res.CallID != "call-1" {
		t.Fatalf("result lost its call id: %q", res.CallID)
	}

	// Unknown tool and malformed arguments are also error results, not panics
	// or Go errors.
	res = exec.Execute(context.Background(), ToolCall{ID: "c2", Name: "nope"})
	if !res.IsError {
		t.Fatalf("expected error result for unknown tool")
	}
	res = exec.Execute(context.Background(), ToolCall{ID: "c3", Name: "execute_sql", Arguments: "{bad"})
	if !res.IsError {
		t.Fatalf("expected error result for malformed arguments")
	}
}

func TestExecutorPassesParsedArguments(t *testing.T) {
	session := &fakeSession{tools: catalog("execute_sql")}
	m := NewManager(func(ctx context.Context) (Session, error) {
		return session, nil
	}, []string{"execute_sql"}, logger.NewNop())

	exec, err := m.Executor(context.Background())
	if err != nil {
		t.Fatalf("Executor failed: %v", err)
	}

	res := exec.Execute(context.Background(), ToolCall{
		ID:        "c1",
		Name:      "execute_sql",
		Arguments: `{"query":"select count(*) from accounts"}`,
	})
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if session.lastArgs["query"] != "select count(*) from accounts" {
		t.Fatalf("arguments not forwarded: %+v", session.lastArgs)
	}
}
