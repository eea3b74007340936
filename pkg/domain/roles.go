package domain

// Role defines the sender of a conversation message.
type Role string

const (
	// RoleUser indicates a message from the user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model/assistant.
	RoleAssistant Role = "assistant"
	// RoleTool indicates a message carrying tool results.
	RoleTool Role = "tool"
)

// Content block types.
const (
	BlockTypeText       = "text"
	BlockTypeInvocation = "tool_invocation"
	BlockTypeResult     = "tool_result"
)

// InvocationStatus tracks the lifecycle of a single tool invocation.
type InvocationStatus string

const (
	StatusPending   InvocationStatus = "pending"
	StatusRunning   InvocationStatus = "running"
	StatusSucceeded InvocationStatus = "succeeded"
	StatusFailed    InvocationStatus = "failed"
	StatusCancelled InvocationStatus = "cancelled"
)
