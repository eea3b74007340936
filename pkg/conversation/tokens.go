package conversation

import (
	"encoding/json"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead accounts for role/framing tokens the wire format adds
// around each message.
const perMessageOverhead = 4

// Estimator estimates the token cost of a message history. Estimates are
// recomputed in full after every mutation rather than cached incrementally,
// to avoid drift.
type Estimator interface {
	Estimate(messages []*domain.Message) int
}

// HeuristicEstimator is the default, conservative estimator: characters
// divided by three, rounded up. Real tokenizers average closer to four
// characters per token, so this overestimates on purpose.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(messages []*domain.Message) int {
	total := 0
	for _, msg := range messages {
		total += charsToTokens(messageChars(msg)) + perMessageOverhead
	}
	return total
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 2) / 3
}

// messageChars sums the character count of everything in a message that
// reaches the provider: text, invocation names and parameters, and result
// payloads.
func messageChars(msg *domain.Message) int {
	chars := 0
	for _, b := range msg.Blocks {
		chars += len(b.Text)
		if b.Invocation != nil {
			chars += len(b.Invocation.Name) + len(b.Invocation.ID)
			if data, err := json.Marshal(b.Invocation.Params); err == nil {
				chars += len(data)
			}
		}
		if b.Result != nil {
			chars += len(b.Result.InvocationID) + len(b.Result.Content)
			if b.Result.Error != nil {
				chars += len(b.Result.Error.Message)
			}
		}
	}
	return chars
}

// TiktokenEstimator counts tokens with the model's own encoding when one is
// known, falling back to cl100k_base and finally to the character heuristic.
// Used for UI-facing usage display; budget decisions stay on the
// conservative heuristic.
type TiktokenEstimator struct {
	encoder *tiktoken.Tiktoken
}

// NewTiktokenEstimator resolves an encoding for the model.
func NewTiktokenEstimator(modelID string) *TiktokenEstimator {
	encoder, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		encoder, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &TiktokenEstimator{encoder: encoder}
}

func (e *TiktokenEstimator) Estimate(messages []*domain.Message) int {
	if e.encoder == nil {
		return HeuristicEstimator{}.Estimate(messages)
	}

	total := 0
	for _, msg := range messages {
		for _, b := range msg.Blocks {
			total += e.count(b.Text)
			if b.Invocation != nil {
				total += e.count(b.Invocation.Name)
				if data, err := json.Marshal(b.Invocation.Params); err == nil {
					total += e.count(string(data))
				}
			}
			if b.Result != nil {
				total += e.count(b.Result.Content)
			}
		}
		total += perMessageOverhead
	}
	return total
}

func (e *TiktokenEstimator) count(text string) int {
	if text == "" {
		return 0
	}
	return len(e.encoder.Encode(text, nil, nil))
}
