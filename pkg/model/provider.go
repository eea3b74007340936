package model

import (
	"context"

	"github.com/nstogner/overseer/pkg/domain"
)

// Provider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini", "openai").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// Stream sends a conversation history to the LLM and returns a stream of
	// responses. modelName identifies which model to use, instructions is the
	// system prompt, and tools declares what the model may invoke.
	Stream(ctx context.Context, modelName, instructions string, messages []*domain.Message, tools []domain.ToolDecl) (Stream, error)
}

// Stream abstracts the stream of responses from the model.
type Stream interface {
	// FullTurn blocks until the complete assistant turn is available and
	// returns its content blocks: text plus zero or more tool invocations.
	FullTurn() ([]domain.ContentBlock, error)

	// Close releases resources associated with this stream.
	Close() error
}
