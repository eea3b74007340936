// Package conversation owns the provider-facing message history: it appends
// user/assistant/tool content, enforces the invocation/result pairing
// protocol, estimates token cost, and prunes or resets to stay under budget.
package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nstogner/overseer/pkg/domain"
)

// Conversation is the single owner of message history. All mutation is
// serialized behind its mutex, and every message handed out (returned from
// an operation, listed by Messages, or delivered to a subscriber) is a deep
// copy, so callers can read or marshal it without synchronizing with the
// conversation.
type Conversation struct {
	mu          sync.Mutex
	messages    []*domain.Message
	nextSeq     int
	budget      *Budget
	estimator   Estimator
	display     Estimator
	subscribers map[int]chan *domain.Message
	nextSubID   int
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithDisplayEstimator sets the estimator used for Usage reporting. Budget
// decisions (prune, emergency reset) always use the conservative character
// heuristic regardless.
func WithDisplayEstimator(e Estimator) Option {
	return func(c *Conversation) { c.display = e }
}

// New creates an empty Conversation governed by the given budget.
func New(budget *Budget, opts ...Option) *Conversation {
	c := &Conversation{
		budget:    budget,
		estimator: HeuristicEstimator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budget returns the governing budget.
func (c *Conversation) Budget() *Budget { return c.budget }

// AppendUser adds a user message. It fails with a protocol violation while
// the most recent assistant turn still has unanswered invocations: the
// orchestrating loop must record the full result batch first.
func (c *Conversation) AppendUser(text string) (*domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ids := c.unresolvedLocked(); len(ids) > 0 {
		return nil, domain.ProtocolViolationf("cannot append user message: %d unanswered invocation(s), first: %s", len(ids), ids[0])
	}

	msg := c.appendLocked(domain.RoleUser, []domain.ContentBlock{
		{Type: domain.BlockTypeText, Text: text},
	})
	return cloneMessage(msg), nil
}

// BeginAssistantTurn adds an assistant message containing text blocks and
// zero or more tool invocations, all initially pending.
func (c *Conversation) BeginAssistantTurn(blocks []domain.ContentBlock) (*domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ids := c.unresolvedLocked(); len(ids) > 0 {
		return nil, domain.ProtocolViolationf("cannot begin assistant turn: %d unanswered invocation(s)", len(ids))
	}

	seen := make(map[string]bool)
	for _, b := range blocks {
		switch b.Type {
		case domain.BlockTypeText:
		case domain.BlockTypeInvocation:
			if b.Invocation == nil || b.Invocation.ID == "" {
				return nil, domain.ProtocolViolationf("assistant turn contains an invocation block without an id")
			}
			if seen[b.Invocation.ID] {
				return nil, domain.ProtocolViolationf("duplicate invocation id in turn: %s", b.Invocation.ID)
			}
			seen[b.Invocation.ID] = true
			b.Invocation.Status = domain.StatusPending
		default:
			return nil, domain.ProtocolViolationf("assistant turn may not contain %q blocks", b.Type)
		}
	}

	return cloneMessage(c.appendLocked(domain.RoleAssistant, blocks)), nil
}

// RecordResults attaches results to their matching pending/running
// invocations and appends them as a tool message. Any result referencing an
// unknown or already-answered invocation is a protocol violation and leaves
// the history unchanged.
func (c *Conversation) RecordResults(results []*domain.ToolResult) error {
	if len(results) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	answered := c.answeredLocked()
	invs := c.invocationsLocked()

	seen := make(map[string]bool)
	for _, res := range results {
		if _, ok := invs[res.InvocationID]; !ok {
			return domain.ProtocolViolationf("result references unknown invocation: %s", res.InvocationID)
		}
		if answered[res.InvocationID] || seen[res.InvocationID] {
			return domain.ProtocolViolationf("invocation already answered: %s", res.InvocationID)
		}
		seen[res.InvocationID] = true
	}

	blocks := make([]domain.ContentBlock, 0, len(results))
	for _, res := range results {
		inv := invs[res.InvocationID]
		if inv.Status == domain.StatusPending || inv.Status == domain.StatusRunning {
			switch {
			case res.Error != nil && res.Error.Kind == domain.ErrCancelled:
				inv.Status = domain.StatusCancelled
			case res.IsError:
				inv.Status = domain.StatusFailed
			default:
				inv.Status = domain.StatusSucceeded
			}
		}
		blocks = append(blocks, domain.ContentBlock{Type: domain.BlockTypeResult, Result: res})
	}

	c.appendLocked(domain.RoleTool, blocks)
	return nil
}

// HasUnresolved reports whether any invocation in history lacks a result.
func (c *Conversation) HasUnresolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unresolvedLocked()) > 0
}

// EstimateTokens recomputes the estimated token cost of the full history.
func (c *Conversation) EstimateTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimator.Estimate(c.messages)
}

// Usage reports current consumption against the budget. When a display
// estimator is configured it supplies the reported count; budget decisions
// elsewhere stay on the heuristic.
func (c *Conversation) Usage() domain.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	est := c.estimator.Estimate(c.messages)
	if c.display != nil {
		est = c.display.Estimate(c.messages)
	}
	return domain.Usage{
		EstimatedTokens: est,
		MaxTokens:       c.budget.MaxTokens,
		BudgetFraction:  c.budget.Fraction(est),
	}
}

// Messages returns a deep copy of the message list, safe to read or marshal
// while the conversation keeps moving.
func (c *Conversation) Messages() []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Message, len(c.messages))
	for i, msg := range c.messages {
		out[i] = cloneMessage(msg)
	}
	return out
}

// Len returns the number of messages in history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// PruneToFraction removes the oldest exchange unit repeatedly until the
// estimate is at most f times the budget maximum, or only one unit remains.
// Whole units only: partial removal that would strand an invocation or
// result is impossible by construction. Returns the number of units removed.
func (c *Conversation) PruneToFraction(f float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := int(f * float64(c.budget.MaxTokens))
	removed := 0

	for c.estimator.Estimate(c.messages) > target {
		units := unitStarts(c.messages)
		if len(units) <= 1 {
			// Never prune below one full unit.
			break
		}
		c.messages = c.messages[units[1]:]
		removed++
	}

	if removed > 0 {
		slog.Info("Pruned conversation history",
			"unitsRemoved", removed,
			"estimatedTokens", c.estimator.Estimate(c.messages),
			"targetTokens", target,
		)
	}
	return removed
}

// MaybeEmergencyReset clears the entire history if the estimate exceeds the
// emergency threshold, re-seeding it with only the preserved task label.
// Returns whether the reset fired.
func (c *Conversation) MaybeEmergencyReset(preserveTask string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	est := c.estimator.Estimate(c.messages)
	if c.budget.MaxTokens <= 0 || float64(est) <= c.budget.EmergencyFraction*float64(c.budget.MaxTokens) {
		return false
	}

	slog.Warn("Emergency context reset",
		"estimatedTokens", est,
		"maxTokens", c.budget.MaxTokens,
	)

	c.messages = nil
	c.appendLocked(domain.RoleUser, []domain.ContentBlock{
		{Type: domain.BlockTypeText, Text: preserveTask},
	})
	return true
}

// Subscribe registers for messages appended after this call. It returns the
// backlog (a deep copy of the history so far), a channel delivering every
// subsequent append exactly once, and a cancel func that removes the
// subscription. Slow subscribers are skipped rather than blocking the
// conversation.
func (c *Conversation) Subscribe() (backlog []*domain.Message, updates <-chan *domain.Message, cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	backlog = make([]*domain.Message, len(c.messages))
	for i, msg := range c.messages {
		backlog[i] = cloneMessage(msg)
	}

	ch := make(chan *domain.Message, 64)
	if c.subscribers == nil {
		c.subscribers = make(map[int]chan *domain.Message)
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	cancel = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
	return backlog, ch, cancel
}

// --- internal ---

func (c *Conversation) appendLocked(role domain.Role, blocks []domain.ContentBlock) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Seq:       c.nextSeq,
		Blocks:    blocks,
		Timestamp: time.Now().UTC(),
	}
	c.nextSeq++
	c.messages = append(c.messages, msg)

	if len(c.subscribers) > 0 {
		// Subscribers get a frozen copy; the live message keeps changing
		// under the mutex as statuses resolve.
		pub := cloneMessage(msg)
		for _, ch := range c.subscribers {
			select {
			case ch <- pub:
			default:
			}
		}
	}
	return msg
}

// invocationsLocked indexes every invocation in history by id.
func (c *Conversation) invocationsLocked() map[string]*domain.ToolInvocation {
	invs := make(map[string]*domain.ToolInvocation)
	for _, msg := range c.messages {
		for _, b := range msg.Blocks {
			if b.Invocation != nil {
				invs[b.Invocation.ID] = b.Invocation
			}
		}
	}
	return invs
}

// answeredLocked indexes every invocation id that already has a result.
func (c *Conversation) answeredLocked() map[string]bool {
	answered := make(map[string]bool)
	for _, msg := range c.messages {
		for _, b := range msg.Blocks {
			if b.Result != nil {
				answered[b.Result.InvocationID] = true
			}
		}
	}
	return answered
}

// unresolvedLocked returns the ids of invocations without a result.
func (c *Conversation) unresolvedLocked() []string {
	answered := c.answeredLocked()
	var ids []string
	for _, msg := range c.messages {
		for _, b := range msg.Blocks {
			if b.Invocation != nil && !answered[b.Invocation.ID] {
				ids = append(ids, b.Invocation.ID)
			}
		}
	}
	return ids
}

// unitStarts returns the indices where exchange units begin. A unit starts
// at the first message, at every user message, and at an assistant message
// that opens a new turn after a completed tool cycle. Tool messages never
// start a unit, so an assistant turn always keeps its results.
func unitStarts(messages []*domain.Message) []int {
	var starts []int
	for i, msg := range messages {
		switch {
		case i == 0:
			starts = append(starts, i)
		case msg.Role == domain.RoleUser:
			starts = append(starts, i)
		case msg.Role == domain.RoleAssistant && messages[i-1].Role == domain.RoleTool:
			starts = append(starts, i)
		}
	}
	return starts
}
