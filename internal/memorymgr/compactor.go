package memorymgr

import (
	"context"
	"fmt"

	"github.com/leon-agent/leon/internal/compaction"
	"github.com/leon-agent/leon/internal/models"
)

// CompactionThreshold is the fraction of context_limit that triggers
// compaction (§4.3 "0.70 default").
const CompactionThreshold = 0.70

// BoundaryShare bounds how much of the context window the retained prefix
// may occupy (§4.3 "messages before k sum to <= context_limit * 0.5").
const BoundaryShare = 0.5

// SplitTurnMargin is the safety factor applied to BoundaryShare when
// deciding whether a single turn is too large to summarize whole (§4.3
// "Split-turn handling").
const SplitTurnMargin = 1.2

const summarySeparator = "\n\n---\n\n"

// Summarizer generates a natural-language summary of a message run. Narrow
// external seam standing in for the model backend, grounded on
// the Summarizer interface of nexus's compaction package (this repository's
// internal/compaction keeps only token estimation).
type Summarizer interface {
	Summarize(ctx context.Context, messages []*models.Message, instructions string) (string, error)
}

// CompactResult is what MaybeCompact produces when compaction actually ran.
type CompactResult struct {
	Messages []*models.Message
	Summary  models.Summary
}

func toCompactionMessage(m *models.Message) *compaction.Message {
	toolCalls := ""
	if len(m.ToolCalls) > 0 {
		toolCalls = fmt.Sprintf("%d tool calls", len(m.ToolCalls))
	}
	return &compaction.Message{
		Role:        string(m.Role),
		Content:     m.Content,
		Timestamp:   m.CreatedAt.Unix(),
		ID:          m.ID,
		ToolCalls:   toolCalls,
		ToolResults: m.ToolCallID,
	}
}

// tokensOf estimates tokens for a message slice using the same
// chars-per-token heuristic the teacher's compaction package uses.
func tokensOf(messages []*models.Message) int {
	total := 0
	for _, m := range messages {
		total += compaction.EstimateTokens(toCompactionMessage(m))
	}
	return total
}

// MaybeCompact checks whether messages need compaction and, if so, performs
// it: picks a boundary k, adjusts it off any tool-call/result split,
// summarizes the prefix via summarizer, and returns the replacement message
// list plus the Summary row to persist (§4.3 steps 1-2). Returns
// (nil, false, nil) when no compaction is needed.
func MaybeCompact(ctx context.Context, messages []*models.Message, contextLimit int, summarizer Summarizer) (*CompactResult, bool, error) {
	if contextLimit <= 0 {
		contextLimit = compaction.DefaultContextWindow
	}
	total := tokensOf(messages)
	if float64(total) < CompactionThreshold*float64(contextLimit) {
		return nil, false, nil
	}

	k := chooseBoundary(messages, contextLimit)
	k = AdjustBoundary(messages, k)
	if k <= 0 || k >= len(messages) {
		return nil, false, nil
	}

	prefix := messages[:k]
	suffix := messages[k:]

	suffixTokens := tokensOf(suffix)
	splitThreshold := BoundaryShare * float64(contextLimit) * SplitTurnMargin

	var summaryText string
	isSplitTurn := false
	splitTurnPrefix := 0

	if float64(suffixTokens) > splitThreshold {
		// A single retained turn alone is too large: split it and summarize
		// its own prefix separately, preserving the original request intent
		// (§4.3 "Split-turn handling").
		turnBoundary := len(suffix) / 2
		turnBoundary = AdjustBoundary(suffix, turnBoundary)
		if turnBoundary > 0 && turnBoundary < len(suffix) {
			turnPrefix := suffix[:turnBoundary]
			historical, err := summarizer.Summarize(ctx, prefix, "")
			if err != nil {
				return nil, false, fmt.Errorf("memorymgr: summarize historical: %w", err)
			}
			turnSummary, err := summarizer.Summarize(ctx, turnPrefix,
				"Summarize this turn's prefix, emphasizing the user's original request.")
			if err != nil {
				return nil, false, fmt.Errorf("memorymgr: summarize turn prefix: %w", err)
			}
			summaryText = historical + summarySeparator + turnSummary
			isSplitTurn = true
			splitTurnPrefix = tokensOf(turnPrefix)
			suffix = suffix[turnBoundary:]
		} else {
			summary, err := summarizer.Summarize(ctx, prefix, "")
			if err != nil {
				return nil, false, fmt.Errorf("memorymgr: summarize: %w", err)
			}
			summaryText = summary
		}
	} else {
		summary, err := summarizer.Summarize(ctx, prefix, "")
		if err != nil {
			return nil, false, fmt.Errorf("memorymgr: summarize: %w", err)
		}
		summaryText = summary
	}

	summaryMsg := &models.Message{
		Role:    models.RoleSystem,
		Content: "Conversation Summary:\n" + summaryText,
	}
	newMessages := make([]*models.Message, 0, 1+len(suffix))
	newMessages = append(newMessages, summaryMsg)
	newMessages = append(newMessages, suffix...)

	return &CompactResult{
		Messages: newMessages,
		Summary: models.Summary{
			SummaryText:      summaryText,
			CompactUpToIndex: k,
			IsSplitTurn:      isSplitTurn,
			SplitTurnPrefix:  splitTurnPrefix,
			IsActive:         true,
		},
	}, true, nil
}

// chooseBoundary picks the largest k such that messages[:k] fits within
// BoundaryShare*contextLimit tokens (§4.3 step 2a).
func chooseBoundary(messages []*models.Message, contextLimit int) int {
	budget := BoundaryShare * float64(contextLimit)
	running := 0
	k := 0
	for i, m := range messages {
		running += compaction.EstimateTokens(toCompactionMessage(m))
		if float64(running) > budget {
			return k
		}
		k = i + 1
	}
	return k
}

// AdjustBoundary walks k forward while the message before k is an assistant
// message with tool calls and some call is still open, or the message at k
// is a tool result whose call is not open before k, so the boundary never
// splits a tool-call/result pair (§4.3 "Boundary safety").
func AdjustBoundary(messages []*models.Message, k int) int {
	if k <= 0 || k >= len(messages) {
		return k
	}

	openCalls := make(map[string]bool)
	track := func(i int) {
		m := messages[i]
		if m.HasToolCalls() {
			for _, tc := range m.ToolCalls {
				openCalls[tc.ID] = true
			}
		}
		if m.Role == models.RoleTool {
			delete(openCalls, m.ToolCallID)
		}
	}
	for i := 0; i < k; i++ {
		track(i)
	}

	for k < len(messages) {
		prev := messages[k-1]
		stillOpen := prev.HasToolCalls() && len(openCalls) > 0
		orphanedNext := messages[k].IsOrphanedToolResult(openCalls)
		if !stillOpen && !orphanedNext {
			break
		}
		track(k)
		k++
	}
	return k
}
