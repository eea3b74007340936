package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/retry"
	"github.com/nstogner/overseer/pkg/tool"
)

// fakeTool executes a configurable function and declares a "path" parameter
// as its resource key.
type fakeTool struct {
	name   string
	serial bool
	fn     func(ctx context.Context, params map[string]any) *tool.Result
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }

func (t *fakeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
	}
}

func (t *fakeTool) ResourceKeys(params map[string]any) ([]string, bool) {
	if t.serial {
		return nil, true
	}
	if path, ok := params["path"].(string); ok && path != "" {
		return []string{path}, false
	}
	return nil, false
}

func (t *fakeTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	return t.fn(ctx, params)
}

func newExecutor(t *testing.T, tools []*fakeTool, opts ...Option) (*Executor, *retry.Tracker) {
	t.Helper()
	reg := tool.NewRegistry()
	for _, ft := range tools {
		reg.Register(ft)
	}
	tr := retry.NewTracker()
	return New(reg, tr, opts...), tr
}

func makeInvs(toolName string, paths ...string) []*domain.ToolInvocation {
	var invs []*domain.ToolInvocation
	for i, p := range paths {
		invs = append(invs, &domain.ToolInvocation{
			ID:     fmt.Sprintf("inv-%d", i),
			Name:   toolName,
			Params: map[string]any{"path": p},
			Status: domain.StatusPending,
		})
	}
	return invs
}

func TestRunResultsInRequestOrder(t *testing.T) {
	slow := &fakeTool{name: "read_file", fn: func(ctx context.Context, params map[string]any) *tool.Result {
		path, _ := params["path"].(string)
		if path == "/a.py" {
			time.Sleep(50 * time.Millisecond)
		}
		return tool.OK("content of " + path)
	}}
	exec, _ := newExecutor(t, []*fakeTool{slow})

	invs := makeInvs("read_file", "/a.py", "/b.py", "/c.py")
	results := exec.Run(context.Background(), invs)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if res.InvocationID != invs[i].ID {
			t.Errorf("results[%d] answers %s, want %s", i, res.InvocationID, invs[i].ID)
		}
	}
}

func TestRunParallelismBounded(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0

	track := &fakeTool{name: "read_file", fn: func(ctx context.Context, params map[string]any) *tool.Result {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return tool.OK("done")
	}}
	exec, _ := newExecutor(t, []*fakeTool{track}, WithConcurrency(3))

	invs := makeInvs("read_file", "/1", "/2", "/3", "/4", "/5")
	start := time.Now()
	exec.Run(context.Background(), invs)
	elapsed := time.Since(start)

	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
	if peak < 2 {
		t.Errorf("peak concurrency = %d, independent invocations should overlap", peak)
	}
	// ceil(5/3) = 2 rounds of ~30ms, far below 5 serial rounds.
	if elapsed > 120*time.Millisecond {
		t.Errorf("elapsed %v suggests serial execution", elapsed)
	}
}

func TestRunConflictingNeverOverlap(t *testing.T) {
	var mu sync.Mutex
	active := make(map[string]int)

	edit := &fakeTool{name: "write_file", fn: func(ctx context.Context, params map[string]any) *tool.Result {
		path, _ := params["path"].(string)
		mu.Lock()
		active[path]++
		if active[path] > 1 {
			mu.Unlock()
			t.Error("two invocations sharing a resource key overlapped")
			return tool.Errorf(domain.ErrToolExecution, false, "overlap")
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active[path]--
		mu.Unlock()
		return tool.OK("edited")
	}}
	exec, _ := newExecutor(t, []*fakeTool{edit})

	invs := makeInvs("write_file", "/a.py", "/a.py", "/a.py")
	results := exec.Run(context.Background(), invs)
	for i, res := range results {
		if res.IsError {
			t.Errorf("results[%d] unexpectedly failed: %s", i, res.Content)
		}
	}
}

func TestRunFailureDoesNotCancelSiblings(t *testing.T) {
	mixed := &fakeTool{name: "read_file", fn: func(ctx context.Context, params map[string]any) *tool.Result {
		path, _ := params["path"].(string)
		if path == "/bad" {
			return tool.Errorf(domain.ErrToolExecution, true, "boom")
		}
		return tool.OK("fine")
	}}
	exec, _ := newExecutor(t, []*fakeTool{mixed})

	invs := makeInvs("read_file", "/good1", "/bad", "/good2")
	results := exec.Run(context.Background(), invs)

	if !results[1].IsError {
		t.Error("expected failure for /bad")
	}
	if results[0].IsError || results[2].IsError {
		t.Error("sibling invocations must not be affected by one failure")
	}
	if invs[0].Status != domain.StatusSucceeded || invs[1].Status != domain.StatusFailed {
		t.Errorf("unexpected statuses: %s, %s", invs[0].Status, invs[1].Status)
	}
}

func TestRunRetryLoopBlocked(t *testing.T) {
	failing := &fakeTool{name: "write_file", fn: func(ctx context.Context, params map[string]any) *tool.Result {
		return tool.Errorf(domain.ErrToolExecution, true, "syntax error in patch")
	}}
	exec, _ := newExecutor(t, []*fakeTool{failing})

	// Same edit fails twice with the same error signature.
	for i := 0; i < 2; i++ {
		invs := makeInvs("write_file", "/a.py")
		results := exec.Run(context.Background(), invs)
		if results[0].Error == nil || results[0].Error.Kind != domain.ErrToolExecution {
			t.Fatalf("attempt %d: expected tool_execution failure, got %+v", i, results[0].Error)
		}
	}

	// Third attempt short-circuits; the tool is never invoked.
	invoked := false
	failing.fn = func(ctx context.Context, params map[string]any) *tool.Result {
		invoked = true
		return tool.OK("should not run")
	}
	invs := makeInvs("write_file", "/a.py")
	results := exec.Run(context.Background(), invs)

	if invoked {
		t.Error("blocked invocation must not reach the tool")
	}
	if results[0].Error == nil || results[0].Error.Kind != domain.ErrRetryLoopBlocked {
		t.Fatalf("expected retry_loop_blocked, got %+v", results[0].Error)
	}
	if results[0].Content == "" {
		t.Error("blocked result should carry guidance text")
	}
}

func TestRunCancellationStopsFurtherLayers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	firstStarted := make(chan struct{})
	slow := &fakeTool{name: "write_file", fn: func(c context.Context, params map[string]any) *tool.Result {
		close(firstStarted)
		<-c.Done()
		return tool.Errorf(domain.ErrToolExecution, true, "interrupted")
	}}
	exec, _ := newExecutor(t, []*fakeTool{slow}, WithGrace(50*time.Millisecond))

	go func() {
		<-firstStarted
		cancel()
	}()

	// Two conflicting invocations: layer 1 runs and is cancelled mid-flight,
	// layer 2 must never be scheduled.
	invs := makeInvs("write_file", "/a.py", "/a.py")
	results := exec.Run(ctx, invs)

	if results[1].Error == nil || results[1].Error.Kind != domain.ErrCancelled {
		t.Fatalf("second layer should be cancelled, got %+v", results[1].Error)
	}
	if invs[1].Status != domain.StatusCancelled {
		t.Errorf("invs[1].Status = %s, want cancelled", invs[1].Status)
	}
}

func TestRunGracePeriodMarksUnresponsiveToolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	stuck := &fakeTool{name: "run_shell", serial: true, fn: func(c context.Context, params map[string]any) *tool.Result {
		close(started)
		time.Sleep(2 * time.Second) // ignores cancellation
		return tool.OK("late")
	}}
	exec, _ := newExecutor(t, []*fakeTool{stuck}, WithGrace(30*time.Millisecond))

	go func() {
		<-started
		cancel()
	}()

	invs := []*domain.ToolInvocation{{
		ID: "inv-0", Name: "run_shell", Params: map[string]any{}, Status: domain.StatusPending,
	}}
	start := time.Now()
	results := exec.Run(ctx, invs)

	if results[0].Error == nil || results[0].Error.Kind != domain.ErrCancelled {
		t.Fatalf("expected cancelled result, got %+v", results[0].Error)
	}
	if time.Since(start) > time.Second {
		t.Error("executor waited past the grace period for an unresponsive tool")
	}
}
