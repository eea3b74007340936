// Package agent runs the orchestration loop: it feeds the conversation to
// the model provider, executes requested tool invocations through the
// executor, records results, and keeps the context inside its token budget.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nstogner/overseer/pkg/conversation"
	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/executor"
	"github.com/nstogner/overseer/pkg/model"
	"github.com/nstogner/overseer/pkg/store"
	"github.com/nstogner/overseer/pkg/tool"
)

// maxSteps bounds the number of provider round trips per Submit call. A model
// stuck requesting tools forever is cut off rather than looping indefinitely.
const maxSteps = 50

// staticInstructions describes the agent's environment and tool protocol.
// This is always prepended to the system instructions.
const staticInstructions = `You are a coding agent with access to a workspace through tools.

## Tool protocol

- Request tools when you need to inspect or modify the workspace; each request is answered with exactly one result before the conversation continues.
- Independent requests in a single turn run in parallel. Requests touching the same file run one at a time, in the order you issued them.
- A request repeating an action that already failed twice with the same error is rejected before execution. Change your approach instead of retrying.

## Guidelines

- Read before you write: inspect files and directory structure before editing.
- Keep tool outputs small; read specific files rather than whole trees.
- When the task is complete, reply with text only and no tool requests.`

// Agent orchestrates one session's conversation.
type Agent struct {
	conv        *conversation.Conversation
	registry    *tool.Registry
	exec        *executor.Executor
	provider    model.Provider
	transcripts store.TranscriptStore

	session      *domain.Session
	instructions string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures an Agent.
type Option func(*Agent)

// WithTranscriptStore enables snapshot persistence after every completed
// exchange.
func WithTranscriptStore(ts store.TranscriptStore) Option {
	return func(a *Agent) { a.transcripts = ts }
}

// WithInstructions appends extra system instructions after the static block.
func WithInstructions(instructions string) Option {
	return func(a *Agent) { a.instructions = instructions }
}

// New creates an Agent for the given session.
func New(
	sess *domain.Session,
	conv *conversation.Conversation,
	registry *tool.Registry,
	exec *executor.Executor,
	provider model.Provider,
	opts ...Option,
) *Agent {
	a := &Agent{
		conv:     conv,
		registry: registry,
		exec:     exec,
		provider: provider,
		session:  sess,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Conversation exposes the underlying conversation for transcript access and
// subscriptions.
func (a *Agent) Conversation() *conversation.Conversation { return a.conv }

// Session returns the session this agent serves.
func (a *Agent) Session() *domain.Session { return a.session }

// Usage reports current context budget consumption.
func (a *Agent) Usage() domain.Usage { return a.conv.Usage() }

// Cancel stops the in-flight Submit, if any. Already-running tool invocations
// get the executor's grace period to stop; unstarted work is cancelled.
func (a *Agent) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Submit appends a user message and runs the loop until the model replies
// with a turn containing no tool invocations. It returns the final assistant
// text.
func (a *Agent) Submit(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer func() {
		cancel()
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
	}()

	if _, err := a.conv.AppendUser(text); err != nil {
		return "", err
	}

	for step := 0; step < maxSteps; step++ {
		a.checkBudget()

		blocks, err := a.callModel(ctx)
		if err != nil {
			return "", err
		}

		assistantMsg, err := a.conv.BeginAssistantTurn(blocks)
		if err != nil {
			return "", err
		}

		invs := invocations(assistantMsg)
		if len(invs) == 0 {
			a.persist(ctx)
			return turnText(assistantMsg), nil
		}

		results := a.exec.Run(ctx, invs)
		if err := a.conv.RecordResults(results); err != nil {
			return "", err
		}
		a.persist(ctx)

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("agent did not converge within %d steps", maxSteps)
}

// callModel sends the current history and tool declarations to the provider.
func (a *Agent) callModel(ctx context.Context) ([]domain.ContentBlock, error) {
	stream, err := a.provider.Stream(ctx,
		a.session.Model,
		a.buildInstructions(),
		a.conv.Messages(),
		a.registry.Declarations(),
	)
	if err != nil {
		return nil, fmt.Errorf("streaming model: %w", err)
	}
	defer stream.Close()

	blocks, err := stream.FullTurn()
	if err != nil {
		return nil, fmt.Errorf("getting model response: %w", err)
	}
	return blocks, nil
}

// checkBudget classifies the current usage and prunes or resets as needed.
// The emergency reset preserves the session task so the agent can restart the
// work with a clean context.
func (a *Agent) checkBudget() {
	est := a.conv.EstimateTokens()
	switch a.conv.Budget().Check(est) {
	case conversation.LevelEmergency:
		a.conv.MaybeEmergencyReset(a.session.Task)
	case conversation.LevelPrune:
		a.conv.PruneToFraction(conversation.DefaultWarnFraction)
	case conversation.LevelWarn:
		slog.Warn("Context budget running low",
			"sessionID", a.session.ID,
			"estimatedTokens", est,
			"maxTokens", a.conv.Budget().MaxTokens,
		)
	}
}

// persist snapshots the transcript if a store is configured. Persistence
// failures are logged, not fatal: the in-memory conversation stays correct.
func (a *Agent) persist(ctx context.Context) {
	if a.transcripts == nil {
		return
	}
	if err := a.transcripts.SaveTranscript(ctx, a.session.ID, a.conv.Snapshot()); err != nil {
		slog.Error("Failed to persist transcript", "sessionID", a.session.ID, "error", err)
	}
}

func (a *Agent) buildInstructions() string {
	parts := []string{staticInstructions}
	if a.session.Task != "" {
		parts = append(parts, "## Task\n\n"+a.session.Task)
	}
	if a.instructions != "" {
		parts = append(parts, "## Additional Instructions\n\n"+a.instructions)
	}
	return strings.Join(parts, "\n\n")
}

// invocations extracts the tool invocations from an assistant message.
func invocations(msg *domain.Message) []*domain.ToolInvocation {
	var invs []*domain.ToolInvocation
	for _, b := range msg.Blocks {
		if b.Invocation != nil {
			invs = append(invs, b.Invocation)
		}
	}
	return invs
}

// turnText concatenates the text blocks of an assistant message.
func turnText(msg *domain.Message) string {
	var sb strings.Builder
	for _, b := range msg.Blocks {
		if b.Type == domain.BlockTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
