// Package hooks implements the command-hook chain: a priority-sorted flat
// list of handlers gating and observing tool dispatch (§9 "Dynamic dispatch
// in tool execution").
package hooks

import (
	"context"
	"sort"
	"sync"
)

// Decision is a hook's verdict on one command (§9 "check(command, context)
// -> {allow|block(reason)|metadata}").
type Decision struct {
	Blocked  bool
	Reason   string
	Metadata map[string]any
}

// Allow is the zero-value decision: proceed, no metadata.
func Allow() Decision { return Decision{} }

// Block rejects the command with a human-readable reason.
func Block(reason string) Decision {
	return Decision{Blocked: true, Reason: reason}
}

// Command is the unit a hook inspects: a tool name plus its raw input,
// scoped to a thread/run. Grounded on internal/tools/policy's
// toolName/edgeID/riskLevel check-site shape, generalized from
// allow/deny-list policy to an arbitrary handler chain.
type Command struct {
	ToolName string
	Input    []byte
	ThreadID string
	RunID    string
	Phase    Phase
}

// Phase distinguishes pre-execute validation from post-execute logging
// (§9): both are handlers in the same chain, filtered by phase.
type Phase string

const (
	PhasePreExecute  Phase = "pre_execute"
	PhasePostExecute Phase = "post_execute"
)

// Hook is one handler in the chain.
type Hook struct {
	Name     string
	Priority int // higher runs first
	Phase    Phase
	Check    func(ctx context.Context, cmd Command) Decision
}

// Chain is a priority-sorted, flat list of hooks scanned in order; no
// inheritance hierarchy, matching §9's explicit instruction to "avoid deep
// inheritance".
type Chain struct {
	mu    sync.RWMutex
	hooks []Hook
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register adds a hook and re-sorts by priority, descending.
func (c *Chain) Register(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
	sort.SliceStable(c.hooks, func(i, j int) bool {
		return c.hooks[i].Priority > c.hooks[j].Priority
	})
}

// Run scans every hook registered for cmd.Phase in priority order, stopping
// at the first block. Metadata from every hook that ran is merged, later
// (lower-priority) hooks never overwriting a key an earlier hook set.
func (c *Chain) Run(ctx context.Context, cmd Command) Decision {
	c.mu.RLock()
	hooks := make([]Hook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()

	merged := map[string]any{}
	for _, h := range hooks {
		if h.Phase != cmd.Phase {
			continue
		}
		d := h.Check(ctx, cmd)
		for k, v := range d.Metadata {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		if d.Blocked {
			return Decision{Blocked: true, Reason: d.Reason, Metadata: merged}
		}
	}
	return Decision{Metadata: merged}
}
