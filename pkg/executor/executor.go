// Package executor schedules one model turn's tool invocations: independent
// invocations run concurrently in dependency-respecting layers, conflicting
// invocations never overlap in time.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/retry"
	"github.com/nstogner/overseer/pkg/tool"
)

const (
	// DefaultConcurrency caps how many invocations of one layer run at once.
	DefaultConcurrency = 8
	// DefaultGrace is how long an in-flight tool may keep running after
	// cancellation before it is marked cancelled at the orchestration level.
	DefaultGrace = 5 * time.Second
)

// Executor runs tool invocation batches through the registry, consulting the
// failure tracker before each invocation.
type Executor struct {
	registry    *tool.Registry
	tracker     *retry.Tracker
	concurrency int
	grace       time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency sets the per-layer concurrency cap.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithGrace sets the cancellation grace period.
func WithGrace(d time.Duration) Option {
	return func(e *Executor) { e.grace = d }
}

// New creates an Executor.
func New(registry *tool.Registry, tracker *retry.Tracker, opts ...Option) *Executor {
	e := &Executor{
		registry:    registry,
		tracker:     tracker,
		concurrency: DefaultConcurrency,
		grace:       DefaultGrace,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the invocations from one assistant turn and returns one result
// per invocation, in original request order. A failing invocation does not
// cancel its layer siblings; cancellation stops scheduling of further layers.
func (e *Executor) Run(ctx context.Context, invs []*domain.ToolInvocation) []*domain.ToolResult {
	// Derive each invocation's resource keys before building the graph.
	for _, inv := range invs {
		inv.ResourceKeys, inv.Serial = e.registry.ResourceKeys(inv.Name, inv.Params)
	}

	layers := buildLayers(invs)
	slog.Debug("Executing invocation batch", "invocations", len(invs), "layers", len(layers))

	results := make([]*domain.ToolResult, len(invs))
	sem := make(chan struct{}, e.concurrency)

	for _, layer := range layers {
		// A cancellation observed between layers stops all further scheduling.
		if ctx.Err() != nil {
			for _, idx := range layer {
				results[idx] = cancelResult(invs[idx])
			}
			continue
		}

		var wg sync.WaitGroup
		for _, idx := range layer {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					results[idx] = e.runOne(ctx, invs[idx])
					<-sem
				case <-ctx.Done():
					results[idx] = cancelResult(invs[idx])
				}
			}(idx)
		}
		// Layer N+1 never starts before every member of layer N resolved.
		wg.Wait()
	}

	return results
}

// runOne executes a single invocation: tracker pre-flight, registry dispatch
// with a cancellation grace period, then tracker bookkeeping.
func (e *Executor) runOne(ctx context.Context, inv *domain.ToolInvocation) *domain.ToolResult {
	target := retry.TargetSignature(inv.Name, inv.ResourceKeys)

	if blocked, guidance := e.tracker.ShouldBlock(inv.Name, target); blocked {
		inv.Status = domain.StatusFailed
		return &domain.ToolResult{
			InvocationID: inv.ID,
			Content:      guidance,
			IsError:      true,
			Error:        domain.NewErrorRecord(domain.ErrRetryLoopBlocked, false, "%s", guidance),
		}
	}

	inv.Status = domain.StatusRunning
	ch := make(chan *tool.Result, 1)
	go func() {
		ch <- e.registry.Dispatch(ctx, inv)
	}()

	var res *tool.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// Bounded grace for the tool to observe cancellation on its own.
		select {
		case res = <-ch:
		case <-time.After(e.grace):
			slog.Warn("Tool did not stop within grace period", "tool", inv.Name)
			return cancelResult(inv)
		}
	}

	result := &domain.ToolResult{
		InvocationID: inv.ID,
		Content:      res.Content,
	}
	switch {
	case res.Error != nil && res.Error.Kind == domain.ErrCancelled:
		// Cancellation is not a failure; it never counts toward blocking.
		inv.Status = domain.StatusCancelled
		result.Error = res.Error
	case res.Error != nil:
		inv.Status = domain.StatusFailed
		result.IsError = true
		result.Error = res.Error
		e.tracker.RecordFailure(inv.Name, target, res.Error.Message)
	default:
		inv.Status = domain.StatusSucceeded
		e.tracker.RecordSuccess(inv.Name, target)
	}
	return result
}

// cancelResult marks an invocation cancelled and synthesizes its result.
// Cancellation is a distinct result status, not an execution error.
func cancelResult(inv *domain.ToolInvocation) *domain.ToolResult {
	inv.Status = domain.StatusCancelled
	return &domain.ToolResult{
		InvocationID: inv.ID,
		Content:      "cancelled before completion",
		Error:        domain.NewErrorRecord(domain.ErrCancelled, true, "cancellation requested"),
	}
}
