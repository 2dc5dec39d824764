package memorymgr

import (
	"fmt"

	"github.com/leon-agent/leon/internal/models"
)

// DefaultKeepLast is the number of trailing messages pruning never touches
// (§4.3 "never prune the last N messages, default N=6").
const DefaultKeepLast = 6

// placeholder replaces an oversized message's content without disturbing its
// role or tool linkage.
const placeholderFmt = "[pruned: %d chars omitted]"

// PruneConfig bounds per-role content size before a message is replaced with
// a placeholder.
type PruneConfig struct {
	// CapByRole is the content-length cap per role. A role absent from the
	// map is never pruned.
	CapByRole map[models.Role]int
	KeepLast  int
}

// DefaultPruneConfig mirrors the caps nexus's packer applies to tool output,
// the largest practical source of oversized content.
func DefaultPruneConfig() PruneConfig {
	return PruneConfig{
		CapByRole: map[models.Role]int{
			models.RoleTool:      4000,
			models.RoleAssistant: 8000,
			models.RoleUser:      8000,
		},
		KeepLast: DefaultKeepLast,
	}
}

// PruneResult mirrors the PruneResult shape of nexus's compaction package,
// generalized from token-budget eviction to per-message placeholder
// replacement.
type PruneResult struct {
	Messages        []*models.Message
	PrunedCount     int
	PrunedCharsSaved int
}

// Prune scans messages and replaces any whose content exceeds its role's cap
// with a short placeholder, preserving role and tool_call_id/tool_calls
// linkage. It never touches the first system message nor the last KeepLast
// messages, and never crosses a tool-call/result boundary by construction:
// only Content is rewritten, never the call linkage fields (§4.3 "Pruning").
// Prune is idempotent when every configured cap is at least as long as the
// placeholder (true of DefaultPruneConfig): re-running it against
// already-pruned output is then a no-op. A cap shorter than the placeholder
// gets the placeholder itself replaced on the next run.
func Prune(messages []*models.Message, cfg PruneConfig) PruneResult {
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = DefaultKeepLast
	}
	out := make([]*models.Message, len(messages))
	copy(out, messages)

	protectedFromIndex := len(out) - cfg.KeepLast
	firstSystemIdx := -1
	for i, m := range out {
		if m.Role == models.RoleSystem {
			firstSystemIdx = i
			break
		}
	}

	result := PruneResult{Messages: out}
	for i, m := range out {
		if i == firstSystemIdx {
			continue
		}
		if protectedFromIndex >= 0 && i >= protectedFromIndex {
			continue
		}
		roleCap, ok := cfg.CapByRole[m.Role]
		if !ok || roleCap <= 0 {
			continue
		}
		if len(m.Content) <= roleCap {
			continue
		}

		pruned := *m
		pruned.Content = fmt.Sprintf(placeholderFmt, len(m.Content))
		saved := len(m.Content) - len(pruned.Content)
		out[i] = &pruned
		result.PrunedCount++
		result.PrunedCharsSaved += saved
	}
	return result
}
