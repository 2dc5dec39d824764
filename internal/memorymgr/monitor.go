package memorymgr

import (
	"sync"

	"github.com/leon-agent/leon/internal/models"
)

// ContextMonitor tracks how full the active context window is, feeding the
// status event emitted after every tool round (§4.3 "Cost accounting").
type ContextMonitor struct {
	mu           sync.Mutex
	messageCount int
	estTokens    int
	limit        int
	nearLimit    bool
}

// NearLimitShare is the usage fraction above which NearLimit reports true.
const NearLimitShare = 0.85

// NewContextMonitor creates a monitor against a fixed context_limit.
func NewContextMonitor(limit int) *ContextMonitor {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	return &ContextMonitor{limit: limit}
}

// DefaultContextLimit is used when a model reports no context window.
const DefaultContextLimit = 128000

// Update recomputes usage from the current message list.
func (c *ContextMonitor) Update(messages []*models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageCount = len(messages)
	c.estTokens = tokensOf(messages)
	c.nearLimit = c.limit > 0 && float64(c.estTokens)/float64(c.limit) >= NearLimitShare
}

// Snapshot is the read-only view surfaced on the status event.
type Snapshot struct {
	Messages     int     `json:"messages"`
	EstTokens    int     `json:"est_tokens"`
	PercentUsed  float64 `json:"percent_used"`
	NearLimit    bool    `json:"near_limit"`
}

// Snapshot returns the current usage view.
func (c *ContextMonitor) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct := 0.0
	if c.limit > 0 {
		pct = float64(c.estTokens) / float64(c.limit) * 100
	}
	return Snapshot{
		Messages:    c.messageCount,
		EstTokens:   c.estTokens,
		PercentUsed: pct,
		NearLimit:   c.nearLimit,
	}
}

// Usage is one model call's usage_metadata (§4.3 "Cost accounting").
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// PricingTable prices a Usage into a dollar cost. The concrete catalog is an
// external collaborator (out of scope per §1); callers supply one.
type PricingTable interface {
	Price(model string, u Usage) float64
}

// TokenMonitor accumulates running token totals and cost across a thread's
// lifetime (§4.3 "Cost accounting").
type TokenMonitor struct {
	mu      sync.Mutex
	pricing PricingTable
	totals  map[string]Usage
	costUSD float64
}

// NewTokenMonitor wires a monitor to a pricing table.
func NewTokenMonitor(pricing PricingTable) *TokenMonitor {
	return &TokenMonitor{pricing: pricing, totals: make(map[string]Usage)}
}

// Record folds one model call's usage into the running totals and cost.
func (t *TokenMonitor) Record(model string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.totals[model]
	cur.InputTokens += u.InputTokens
	cur.OutputTokens += u.OutputTokens
	cur.CacheReadTokens += u.CacheReadTokens
	cur.CacheWriteTokens += u.CacheWriteTokens
	t.totals[model] = cur
	if t.pricing != nil {
		t.costUSD += t.pricing.Price(model, u)
	}
}

// TotalsSnapshot is the running-totals view surfaced on the status event.
type TotalsSnapshot struct {
	ByModel map[string]Usage `json:"by_model"`
	CostUSD float64          `json:"cost_usd"`
}

// Totals returns a copy of the running totals and accumulated cost.
func (t *TokenMonitor) Totals() TotalsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	byModel := make(map[string]Usage, len(t.totals))
	for k, v := range t.totals {
		byModel[k] = v
	}
	return TotalsSnapshot{ByModel: byModel, CostUSD: t.costUSD}
}
