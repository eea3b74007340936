package conversation

import (
	"strings"
	"testing"

	"github.com/nstogner/overseer/pkg/domain"
)

func TestHeuristicEstimatorCeilingDivision(t *testing.T) {
	cases := []struct {
		chars int
		want  int
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{300, 100},
	}
	for _, tc := range cases {
		msg := &domain.Message{
			Role:   domain.RoleUser,
			Blocks: []domain.ContentBlock{textBlock(strings.Repeat("a", tc.chars))},
		}
		got := HeuristicEstimator{}.Estimate([]*domain.Message{msg})
		if got != tc.want+perMessageOverhead {
			t.Errorf("chars=%d: got %d, want %d", tc.chars, got, tc.want+perMessageOverhead)
		}
	}
}

func TestHeuristicEstimatorCountsInvocationsAndResults(t *testing.T) {
	plain := &domain.Message{
		Role:   domain.RoleAssistant,
		Blocks: []domain.ContentBlock{textBlock("hi")},
	}
	withTools := &domain.Message{
		Role: domain.RoleAssistant,
		Blocks: []domain.ContentBlock{
			textBlock("hi"),
			invBlock("inv-1", "read_file"),
			{
				Type: domain.BlockTypeResult,
				Result: &domain.ToolResult{
					InvocationID: "inv-1",
					Content:      strings.Repeat("line\n", 20),
				},
			},
		},
	}

	base := HeuristicEstimator{}.Estimate([]*domain.Message{plain})
	full := HeuristicEstimator{}.Estimate([]*domain.Message{withTools})
	if full <= base {
		t.Errorf("invocation and result content not counted: base=%d full=%d", base, full)
	}
}

func TestTiktokenEstimatorFallsBackWithoutEncoder(t *testing.T) {
	e := &TiktokenEstimator{}
	msgs := []*domain.Message{{
		Role:   domain.RoleUser,
		Blocks: []domain.ContentBlock{textBlock("some text")},
	}}
	if got, want := e.Estimate(msgs), (HeuristicEstimator{}).Estimate(msgs); got != want {
		t.Errorf("nil-encoder estimate = %d, want heuristic %d", got, want)
	}
}

// fixedEstimator returns a constant count regardless of content.
type fixedEstimator struct{ n int }

func (e fixedEstimator) Estimate([]*domain.Message) int { return e.n }

func TestDisplayEstimatorOnlyAffectsUsage(t *testing.T) {
	c := New(NewBudget("test-model", 1000), WithDisplayEstimator(fixedEstimator{n: 999999}))
	if _, err := c.AppendUser("short"); err != nil {
		t.Fatal(err)
	}

	if got := c.Usage().EstimatedTokens; got != 999999 {
		t.Errorf("Usage tokens = %d, want display estimate", got)
	}
	if got := c.EstimateTokens(); got >= 999999 {
		t.Errorf("EstimateTokens = %d, want heuristic count", got)
	}

	// Budget decisions ignore the display estimator: the heuristic count is
	// nowhere near the emergency threshold, so no reset fires.
	if c.MaybeEmergencyReset("task") {
		t.Error("emergency reset fired off the display estimate")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
