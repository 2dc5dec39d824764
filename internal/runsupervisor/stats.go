package runsupervisor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

// RunStats accumulates over the life of a run for the operator dashboard
// and the `status` event's token/cost fields (§4.1, §4.3). Grounded on
// models.RunStats's shape.
type RunStats struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	ToolCalls    int
	ToolErrors   int
	TextDeltas   int
	LastSeq      uint64
	Cancelled    bool
	Errored      bool
}

// StatsCollector watches the events an Emitter produces and keeps a
// running RunStats. Grounded on internal/agent/event_emitter.go's
// StatsCollector, adapted to RunEvent instead of AgentEvent.
type StatsCollector struct {
	mu    sync.Mutex
	stats RunStats
}

// NewStatsCollector starts a collector for the given run.
func NewStatsCollector(runID string) *StatsCollector {
	return &StatsCollector{stats: RunStats{RunID: runID, StartedAt: time.Now().UTC()}}
}

// OnEvent folds one event into the running totals.
func (c *StatsCollector) OnEvent(e models.RunEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastSeq = e.Seq
	switch e.Type {
	case models.RunEventText:
		c.stats.TextDeltas++
	case models.RunEventToolCall:
		c.stats.ToolCalls++
	case models.RunEventToolResult:
		var data models.ToolResultEventData
		if json.Unmarshal(e.Data, &data) == nil && !data.Success {
			c.stats.ToolErrors++
		}
	case models.RunEventError:
		c.stats.Errored = true
		c.stats.FinishedAt = e.CreatedAt
	case models.RunEventCancelled:
		c.stats.Cancelled = true
		c.stats.FinishedAt = e.CreatedAt
	case models.RunEventDone:
		c.stats.FinishedAt = e.CreatedAt
	}
}

// LastSeq returns the most recently observed sequence number.
func (c *StatsCollector) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.LastSeq
}

// Stats returns a copy of the accumulated statistics, filling FinishedAt
// with now if the run hasn't reached a terminal event yet.
func (c *StatsCollector) Stats() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if s.FinishedAt.IsZero() {
		s.FinishedAt = time.Now().UTC()
	}
	return s
}
