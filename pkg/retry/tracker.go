// Package retry tracks repeated identical tool failures and blocks the
// tool+target combination before a third attempt executes.
package retry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// blockThreshold is the consecutive-failure count at which a key enters the
// blocked state: first failure warns, an identical second failure blocks, so
// the third attempt is rejected before execution.
const blockThreshold = 2

type key struct {
	tool   string
	target uint64
}

// record holds the per-key state machine: the consecutive-failure count and
// the signature of the last error. Any success for the key resets it.
type record struct {
	count   int
	lastErr uint64
}

// Tracker observes execution results per (tool, target signature) key. It is
// session-scoped: state lives for the process lifetime and is never pruned by
// the conversation manager.
type Tracker struct {
	mu      sync.Mutex
	records map[key]*record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[key]*record)}
}

// TargetSignature derives the tracker key for an invocation from its salient
// parameters only (tool name plus normalized resource keys), so
// near-duplicate retries hash to the same signature.
func TargetSignature(toolName string, resourceKeys []string) uint64 {
	keys := append([]string(nil), resourceKeys...)
	sort.Strings(keys)

	h := xxhash.New()
	h.WriteString(toolName)
	for _, k := range keys {
		h.WriteString("\x00")
		h.WriteString(strings.ToLower(strings.TrimSpace(k)))
	}
	return h.Sum64()
}

// errorSignature normalizes an error message so cosmetic differences don't
// defeat repeat detection.
func errorSignature(msg string) uint64 {
	normalized := strings.ToLower(strings.Join(strings.Fields(msg), " "))
	return xxhash.Sum64String(normalized)
}

// ShouldBlock reports whether the next attempt for this key must be rejected
// pre-execution, along with guidance text for the model.
func (t *Tracker) ShouldBlock(toolName string, target uint64) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key{tool: toolName, target: target}]
	if !ok || rec.count < blockThreshold {
		return false, ""
	}
	return true, fmt.Sprintf(
		"Tool %q has failed %d times in a row against the same target with the same error. "+
			"Retrying is blocked. Re-read the current state, reconsider the approach, or ask the user for guidance instead of repeating the call.",
		toolName, rec.count)
}

// RecordFailure advances the state machine for the key. A failure with the
// same error signature as the last one increments the count; a different
// error restarts the count at one.
func (t *Tracker) RecordFailure(toolName string, target uint64, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{tool: toolName, target: target}
	sig := errorSignature(errMsg)

	rec, ok := t.records[k]
	if !ok || rec.lastErr != sig {
		t.records[k] = &record{count: 1, lastErr: sig}
		return
	}
	rec.count++
	if rec.count == blockThreshold {
		slog.Warn("Retry loop detected, blocking further attempts",
			"tool", toolName, "failures", rec.count)
	}
}

// RecordSuccess resets the key to the OK state.
func (t *Tracker) RecordSuccess(toolName string, target uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key{tool: toolName, target: target})
}

// FailureCount returns the current consecutive-failure count for a key.
func (t *Tracker) FailureCount(toolName string, target uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key{tool: toolName, target: target}]
	if !ok {
		return 0
	}
	return rec.count
}
