package hooks

import (
	"context"
	"testing"
)

func TestChainRunEmptyAllows(t *testing.T) {
	c := NewChain()
	d := c.Run(context.Background(), Command{ToolName: "bash", Phase: PhasePreExecute})
	if d.Blocked {
		t.Error("empty chain should never block")
	}
}

func TestChainRunPriorityOrder(t *testing.T) {
	c := NewChain()
	var order []string
	c.Register(Hook{
		Name: "low", Priority: 1, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			order = append(order, "low")
			return Allow()
		},
	})
	c.Register(Hook{
		Name: "high", Priority: 10, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			order = append(order, "high")
			return Allow()
		},
	})
	c.Register(Hook{
		Name: "mid", Priority: 5, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			order = append(order, "mid")
			return Allow()
		},
	})

	c.Run(context.Background(), Command{ToolName: "bash", Phase: PhasePreExecute})

	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChainRunStopsAtFirstBlock(t *testing.T) {
	c := NewChain()
	var ranLast bool
	c.Register(Hook{
		Name: "blocker", Priority: 10, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			return Block("not allowed")
		},
	})
	c.Register(Hook{
		Name: "never runs", Priority: 1, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			ranLast = true
			return Allow()
		},
	})

	d := c.Run(context.Background(), Command{ToolName: "rm", Phase: PhasePreExecute})
	if !d.Blocked {
		t.Fatal("expected the chain to block")
	}
	if d.Reason != "not allowed" {
		t.Errorf("Reason = %q, want %q", d.Reason, "not allowed")
	}
	if ranLast {
		t.Error("hooks after a block should not run")
	}
}

func TestChainRunFiltersByPhase(t *testing.T) {
	c := NewChain()
	var preRan, postRan bool
	c.Register(Hook{
		Name: "pre", Priority: 1, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision { preRan = true; return Allow() },
	})
	c.Register(Hook{
		Name: "post", Priority: 1, Phase: PhasePostExecute,
		Check: func(ctx context.Context, cmd Command) Decision { postRan = true; return Allow() },
	})

	c.Run(context.Background(), Command{Phase: PhasePreExecute})
	if !preRan || postRan {
		t.Errorf("pre-phase run: preRan=%v postRan=%v, want true/false", preRan, postRan)
	}
}

func TestChainRunMergesMetadataFirstWriterWins(t *testing.T) {
	c := NewChain()
	c.Register(Hook{
		Name: "high", Priority: 10, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			return Decision{Metadata: map[string]any{"source": "high", "only_high": true}}
		},
	})
	c.Register(Hook{
		Name: "low", Priority: 1, Phase: PhasePreExecute,
		Check: func(ctx context.Context, cmd Command) Decision {
			return Decision{Metadata: map[string]any{"source": "low", "only_low": true}}
		},
	})

	d := c.Run(context.Background(), Command{Phase: PhasePreExecute})
	if d.Metadata["source"] != "high" {
		t.Errorf(`Metadata["source"] = %v, want "high" (earlier/higher-priority hook wins)`, d.Metadata["source"])
	}
	if d.Metadata["only_high"] != true || d.Metadata["only_low"] != true {
		t.Errorf("expected both hooks' unique metadata keys to be merged, got %+v", d.Metadata)
	}
}
