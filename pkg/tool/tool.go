// Package tool defines the contract between the orchestration core and the
// tools it can invoke, and the registry that dispatches to them.
package tool

import (
	"context"
	"fmt"

	"github.com/nstogner/overseer/pkg/domain"
)

// Tool is implemented by every callable tool. Implementations must not hold
// state shared across invocations except through the resource keys they
// declare; the executor's conflict graph is only sound under that rule.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Description returns the model-facing description.
	Description() string

	// Parameters returns the JSON-schema-shaped parameter declaration.
	Parameters() map[string]any

	// ResourceKeys derives the normalized resource keys this invocation
	// would touch from its parameters, plus whether the invocation is
	// inherently serial (conflicts with every other invocation).
	ResourceKeys(params map[string]any) (keys []string, serial bool)

	// Execute runs the tool. Failures are reported through the result's
	// error record, never through panics.
	Execute(ctx context.Context, params map[string]any) *Result
}

// Result is the outcome of a single tool execution.
type Result struct {
	Content string
	Error   *domain.ErrorRecord
}

// OK builds a successful result.
func OK(content string) *Result {
	return &Result{Content: content}
}

// Errorf builds a failed result with the given error kind.
func Errorf(kind domain.ErrorKind, recoverable bool, format string, args ...any) *Result {
	return &Result{
		Content: fmt.Sprintf(format, args...),
		Error:   domain.NewErrorRecord(kind, recoverable, format, args...),
	}
}
