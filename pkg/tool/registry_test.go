package tool

import (
	"context"
	"testing"

	"github.com/nstogner/overseer/pkg/domain"
)

type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echoes the input text." }

func (t *echoTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":   map[string]any{"type": "string"},
			"repeat": map[string]any{"type": "integer"},
		},
		"required": []string{"text"},
	}
}

func (t *echoTool) ResourceKeys(params map[string]any) ([]string, bool) {
	return nil, false
}

func (t *echoTool) Execute(ctx context.Context, params map[string]any) *Result {
	text, _ := params["text"].(string)
	return OK(text)
}

func TestDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	res := r.Dispatch(context.Background(), &domain.ToolInvocation{
		Name:   "echo",
		Params: map[string]any{"text": "hello"},
	})
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if res.Content != "hello" {
		t.Errorf("Content = %q, want %q", res.Content, "hello")
	}
}

func TestDispatchToolNotFound(t *testing.T) {
	r := NewRegistry()

	res := r.Dispatch(context.Background(), &domain.ToolInvocation{Name: "nope"})
	if res.Error == nil || res.Error.Kind != domain.ErrToolNotFound {
		t.Fatalf("expected tool_not_found, got %+v", res.Error)
	}
}

func TestDispatchInvalidParameters(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	cases := []struct {
		name   string
		params map[string]any
	}{
		{"missing required", map[string]any{}},
		{"wrong type", map[string]any{"text": 42}},
		{"undeclared key", map[string]any{"text": "hi", "bogus": true}},
		{"wrong integer type", map[string]any{"text": "hi", "repeat": "three"}},
	}
	for _, tc := range cases {
		res := r.Dispatch(context.Background(), &domain.ToolInvocation{Name: "echo", Params: tc.params})
		if res.Error == nil || res.Error.Kind != domain.ErrInvalidParameters {
			t.Errorf("%s: expected invalid_parameters, got %+v", tc.name, res.Error)
		}
	}
}

func TestDeclarationsOrdered(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	decls := r.Declarations()
	if len(decls) != 1 {
		t.Fatalf("Declarations len = %d, want 1", len(decls))
	}
	if decls[0].Name != "echo" || decls[0].Parameters == nil {
		t.Errorf("unexpected declaration: %+v", decls[0])
	}
}
