package domain

import "time"

// Message is one turn in the conversation: a role, an ordered list of content
// blocks, and a monotonic sequence index. Messages are owned exclusively by
// the conversation state manager and are immutable once appended, except for
// whole-message removal during pruning.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Seq       int            `json:"seq"`
	Blocks    []ContentBlock `json:"blocks"`
	Model     string         `json:"model,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ContentBlock is a single component of a message: plain text, a tool
// invocation request, or a tool result.
type ContentBlock struct {
	Type string `json:"type"` // "text", "tool_invocation", "tool_result"

	// Text content (when Type == "text").
	Text string `json:"text,omitempty"`

	// Invocation request (when Type == "tool_invocation").
	Invocation *ToolInvocation `json:"invocation,omitempty"`

	// Result (when Type == "tool_result").
	Result *ToolResult `json:"result,omitempty"`

	// ThoughtSignature is an opaque signature for the model's internal state.
	// Must be round-tripped back to the model on the next request.
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// ToolInvocation is one requested tool call from the model. The resource key
// set and serial flag are derived from the declared parameters when the turn
// is parsed and drive conflict detection in the executor.
type ToolInvocation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Params       map[string]any   `json:"params"`
	ResourceKeys []string         `json:"resource_keys,omitempty"`
	Serial       bool             `json:"serial,omitempty"`
	Status       InvocationStatus `json:"status"`
}

// ToolResult is the outcome of exactly one ToolInvocation. Every invocation
// still present in history must have exactly one result; the conversation
// state manager enforces this pairing.
type ToolResult struct {
	InvocationID string       `json:"invocation_id"`
	Content      string       `json:"content"`
	IsError      bool         `json:"is_error,omitempty"`
	Error        *ErrorRecord `json:"error,omitempty"`
}

// ErrorRecord classifies a failure so callers can react without parsing
// message text.
type ErrorRecord struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

// ToolDecl is the provider-facing declaration of a registered tool.
type ToolDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Model represents an available LLM model.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Session describes a persisted conversation session.
type Session struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Usage reports the current context budget consumption for UI display.
type Usage struct {
	EstimatedTokens int     `json:"estimated_tokens"`
	MaxTokens       int     `json:"max_tokens"`
	BudgetFraction  float64 `json:"budget_fraction"`
}
