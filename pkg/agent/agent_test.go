package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nstogner/overseer/pkg/conversation"
	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/executor"
	"github.com/nstogner/overseer/pkg/model"
	"github.com/nstogner/overseer/pkg/retry"
	"github.com/nstogner/overseer/pkg/tool"
)

// scriptedProvider returns pre-scripted assistant turns in order.
type scriptedProvider struct {
	turns [][]domain.ContentBlock
	calls int
}

var _ model.Provider = (*scriptedProvider)(nil)

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) List(ctx context.Context) ([]domain.Model, error) {
	return []domain.Model{{ID: "scripted", Provider: "scripted"}}, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, modelName, instructions string, messages []*domain.Message, tools []domain.ToolDecl) (model.Stream, error) {
	if p.calls >= len(p.turns) {
		return nil, fmt.Errorf("no scripted turn for call %d", p.calls)
	}
	turn := p.turns[p.calls]
	p.calls++
	return &scriptedStream{blocks: turn}, nil
}

type scriptedStream struct {
	blocks []domain.ContentBlock
}

func (s *scriptedStream) FullTurn() ([]domain.ContentBlock, error) { return s.blocks, nil }
func (s *scriptedStream) Close() error                             { return nil }

// echoTool records what it executes.
type echoTool struct {
	executed []string
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo the input." }
func (t *echoTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": "string"},
		},
		"required": []string{"value"},
	}
}
func (t *echoTool) ResourceKeys(params map[string]any) ([]string, bool) {
	return nil, false
}
func (t *echoTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	v, _ := params["value"].(string)
	t.executed = append(t.executed, v)
	return tool.OK("echo: " + v)
}

func textTurn(text string) []domain.ContentBlock {
	return []domain.ContentBlock{{Type: domain.BlockTypeText, Text: text}}
}

func invTurn(ids ...string) []domain.ContentBlock {
	var blocks []domain.ContentBlock
	for _, id := range ids {
		blocks = append(blocks, domain.ContentBlock{
			Type: domain.BlockTypeInvocation,
			Invocation: &domain.ToolInvocation{
				ID:     id,
				Name:   "echo",
				Params: map[string]any{"value": id},
			},
		})
	}
	return blocks
}

func newTestAgent(t *testing.T, provider model.Provider, tools ...tool.Tool) (*Agent, *tool.Registry) {
	t.Helper()
	registry := tool.NewRegistry()
	for _, tl := range tools {
		registry.Register(tl)
	}
	exec := executor.New(registry, retry.NewTracker())
	sess := &domain.Session{ID: "sess-1", Task: "Implement auth", Model: "scripted"}
	conv := conversation.New(conversation.NewBudget("scripted", 100000))
	return New(sess, conv, registry, exec, provider), registry
}

func TestSubmitTextOnly(t *testing.T) {
	provider := &scriptedProvider{turns: [][]domain.ContentBlock{
		textTurn("all done"),
	}}
	a, _ := newTestAgent(t, provider)

	got, err := a.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got != "all done" {
		t.Errorf("Submit = %q", got)
	}
	if a.Conversation().Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Conversation().Len())
	}
}

func TestSubmitRunsToolsThenFinishes(t *testing.T) {
	echo := &echoTool{}
	provider := &scriptedProvider{turns: [][]domain.ContentBlock{
		invTurn("inv-1", "inv-2"),
		textTurn("finished"),
	}}
	a, _ := newTestAgent(t, provider, echo)

	got, err := a.Submit(context.Background(), "do the task")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got != "finished" {
		t.Errorf("Submit = %q", got)
	}
	if len(echo.executed) != 2 {
		t.Errorf("executed %d invocations, want 2", len(echo.executed))
	}

	// History: user, assistant(invocations), tool(results), assistant(text).
	msgs := a.Conversation().Messages()
	if len(msgs) != 4 {
		t.Fatalf("history length = %d, want 4", len(msgs))
	}
	if msgs[2].Role != domain.RoleTool {
		t.Errorf("message 2 role = %s, want tool", msgs[2].Role)
	}
	if err := conversation.ValidatePairing(msgs); err != nil {
		t.Errorf("pairing violated: %v", err)
	}
}

func TestSubmitToolFailureIsRecordedNotFatal(t *testing.T) {
	provider := &scriptedProvider{turns: [][]domain.ContentBlock{
		// Unknown tool name: the executor synthesizes a failed result.
		{{
			Type: domain.BlockTypeInvocation,
			Invocation: &domain.ToolInvocation{
				ID:     "inv-1",
				Name:   "no_such_tool",
				Params: map[string]any{},
			},
		}},
		textTurn("recovered"),
	}}
	a, _ := newTestAgent(t, provider)

	got, err := a.Submit(context.Background(), "go")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Submit = %q", got)
	}

	var res *domain.ToolResult
	for _, msg := range a.Conversation().Messages() {
		for _, b := range msg.Blocks {
			if b.Result != nil {
				res = b.Result
			}
		}
	}
	if res == nil {
		t.Fatal("no result recorded")
	}
	if !res.IsError || res.Error == nil || res.Error.Kind != domain.ErrToolNotFound {
		t.Errorf("result = %+v, want tool_not_found error", res)
	}
}

func TestSubmitEmergencyResetPreservesTask(t *testing.T) {
	big := strings.Repeat("output ", 50000) // ~117k tokens, past 150% of 50k

	bigTool := &staticTool{name: "dump", output: big}
	provider := &scriptedProvider{turns: [][]domain.ContentBlock{
		{{
			Type: domain.BlockTypeInvocation,
			Invocation: &domain.ToolInvocation{
				ID:     "inv-1",
				Name:   "dump",
				Params: map[string]any{},
			},
		}},
		textTurn("starting over"),
	}}

	registry := tool.NewRegistry()
	registry.Register(bigTool)
	exec := executor.New(registry, retry.NewTracker())
	sess := &domain.Session{ID: "sess-1", Task: "Implement auth", Model: "scripted"}
	conv := conversation.New(conversation.NewBudget("scripted", 50000))
	a := New(sess, conv, registry, exec, provider)

	if _, err := a.Submit(context.Background(), "go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The oversized result must have triggered a reset before the second
	// model call: the history restarts from the preserved task.
	msgs := a.Conversation().Messages()
	if msgs[0].Role != domain.RoleUser || msgs[0].Blocks[0].Text != "Implement auth" {
		t.Errorf("first message = %+v, want preserved task", msgs[0])
	}
	if a.Conversation().Usage().BudgetFraction > 1.0 {
		t.Errorf("usage still over budget: %+v", a.Conversation().Usage())
	}
}

// staticTool returns a fixed output.
type staticTool struct {
	name   string
	output string
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static" }
func (t *staticTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *staticTool) ResourceKeys(map[string]any) ([]string, bool) { return nil, false }
func (t *staticTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	return tool.OK(t.output)
}

func TestSubmitCancelledContext(t *testing.T) {
	provider := &scriptedProvider{turns: [][]domain.ContentBlock{
		invTurn("inv-1"),
		textTurn("should not reach"),
	}}
	echo := &echoTool{}
	a, _ := newTestAgent(t, provider, echo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Submit(ctx, "go")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	// Pairing still holds: every invocation that made it into history has a
	// result, cancelled or otherwise.
	if err := conversation.ValidatePairing(a.Conversation().Messages()); err != nil {
		t.Errorf("pairing violated after cancel: %v", err)
	}
}
