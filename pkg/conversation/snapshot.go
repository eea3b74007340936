package conversation

import (
	"github.com/nstogner/overseer/pkg/domain"
)

// Snapshot returns a deep copy of the message history, suitable for
// persistence and crash recovery.
func (c *Conversation) Snapshot() []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*domain.Message, len(c.messages))
	for i, msg := range c.messages {
		out[i] = cloneMessage(msg)
	}
	return out
}

// Restore replaces the history with a snapshot. A snapshot containing an
// unpaired invocation or result is rejected with a protocol violation; it is
// never silently repaired.
func (c *Conversation) Restore(messages []*domain.Message) error {
	if err := ValidatePairing(messages); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = make([]*domain.Message, len(messages))
	maxSeq := -1
	for i, msg := range messages {
		c.messages[i] = cloneMessage(msg)
		if msg.Seq > maxSeq {
			maxSeq = msg.Seq
		}
	}
	c.nextSeq = maxSeq + 1
	return nil
}

// ValidatePairing checks the central invariant over a message list: every
// invocation has exactly one result and every result answers a known
// invocation.
func ValidatePairing(messages []*domain.Message) error {
	invs := make(map[string]bool)
	for _, msg := range messages {
		for _, b := range msg.Blocks {
			if b.Invocation != nil {
				if invs[b.Invocation.ID] {
					return domain.ProtocolViolationf("duplicate invocation id: %s", b.Invocation.ID)
				}
				invs[b.Invocation.ID] = true
			}
		}
	}

	answered := make(map[string]bool)
	for _, msg := range messages {
		for _, b := range msg.Blocks {
			if b.Result == nil {
				continue
			}
			id := b.Result.InvocationID
			if !invs[id] {
				return domain.ProtocolViolationf("result answers unknown invocation: %s", id)
			}
			if answered[id] {
				return domain.ProtocolViolationf("invocation answered twice: %s", id)
			}
			answered[id] = true
		}
	}

	for id := range invs {
		if !answered[id] {
			return domain.ProtocolViolationf("invocation without result: %s", id)
		}
	}
	return nil
}

func cloneMessage(msg *domain.Message) *domain.Message {
	out := *msg
	out.Blocks = make([]domain.ContentBlock, len(msg.Blocks))
	for i, b := range msg.Blocks {
		nb := b
		if b.Invocation != nil {
			inv := *b.Invocation
			if b.Invocation.Params != nil {
				inv.Params = make(map[string]any, len(b.Invocation.Params))
				for k, v := range b.Invocation.Params {
					inv.Params[k] = v
				}
			}
			inv.ResourceKeys = append([]string(nil), b.Invocation.ResourceKeys...)
			nb.Invocation = &inv
		}
		if b.Result != nil {
			res := *b.Result
			if b.Result.Error != nil {
				errRec := *b.Result.Error
				res.Error = &errRec
			}
			nb.Result = &res
		}
		out.Blocks[i] = nb
	}
	return &out
}
