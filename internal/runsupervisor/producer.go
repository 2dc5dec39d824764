package runsupervisor

import (
	"context"
	"errors"
	"time"

	"github.com/leon-agent/leon/internal/models"
)

// ErrNoModelClient is returned by Produce when the supervisor was
// constructed without a ModelClient.
var ErrNoModelClient = errors.New("runsupervisor: no model client configured")

// ModelChunk is one unit of a streaming model response: either a text
// delta or a completed tool call. Exactly one of the two is populated.
type ModelChunk struct {
	TextDelta string
	ToolCall  *models.ToolCall
}

// ModelStream is produced by ModelClient.Stream and yields chunks until
// the response is complete; Next reports the end of the stream with
// ok=false and a nil error.
type ModelStream interface {
	// Next returns the next chunk, or ok=false when the stream is
	// exhausted normally.
	Next(ctx context.Context) (chunk ModelChunk, ok bool, err error)
	Close() error
}

// ModelClient is the external boundary to whatever LLM backend is
// configured; the agent loop depends only on this interface (accept
// interfaces, return structs), grounded on internal/agent/loop.go's
// LLMProvider seam.
type ModelClient interface {
	Stream(ctx context.Context, threadID string, history []models.Message) (ModelStream, error)
}

// ToolRunner executes one tool call and reports its result plus wall
// time, grounded on internal/agent/loop.go's executeToolsPhase boundary.
// internal/toolexec.Executor implements this. Run receives thread/run
// scope via the context (see WithRunScope/RunScope) rather than as extra
// parameters, so the interface stays narrow while still letting a
// resolver-backed runner resolve the calling thread's physical terminal.
type ToolRunner interface {
	Run(ctx context.Context, call models.ToolCall) (result models.ToolResult, elapsed time.Duration, err error)
}

type runScopeKey struct{}

// RunScope identifies the thread and run a tool call executes under.
type RunScope struct {
	ThreadID string
	RunID    string
}

// WithRunScope attaches scope to ctx so a ToolRunner can recover which
// thread/run a call belongs to.
func WithRunScope(ctx context.Context, scope RunScope) context.Context {
	return context.WithValue(ctx, runScopeKey{}, scope)
}

// RunScopeFrom recovers the scope WithRunScope attached, if any.
func RunScopeFrom(ctx context.Context) (RunScope, bool) {
	scope, ok := ctx.Value(runScopeKey{}).(RunScope)
	return scope, ok
}

// ProducerConfig bounds one run's agent-loop iterations (§4.1, §8
// invariant: every run terminates).
type ProducerConfig struct {
	MaxIterations int
	MaxWallTime   time.Duration
}

// DefaultProducerConfig matches the teacher's AgenticLoop defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{MaxIterations: 10, MaxWallTime: 0}
}

// Producer drives one run's agent loop: it streams from the model,
// classifies each chunk into the right RunEvent, executes tool calls via
// the ToolRunner, and feeds results back for the next iteration, until the
// model stops requesting tools or the run hits its iteration/wall-time
// ceiling (§4.1 steps 1-7, grounded on internal/agent/loop.go's
// streamPhase/executeToolsPhase/continuePhase split).
type Producer struct {
	model ModelClient
	tools ToolRunner
	cfg   ProducerConfig
}

// NewProducer wires a model client and tool runner together under the
// given config. tools may be nil if the run never needs tool execution.
func NewProducer(model ModelClient, tools ToolRunner, cfg ProducerConfig) *Producer {
	if cfg.MaxIterations <= 0 {
		cfg = DefaultProducerConfig()
	}
	return &Producer{model: model, tools: tools, cfg: cfg}
}

// Produce runs the loop to completion, emitting every event through em,
// and returns the terminal outcome. The caller (Supervisor) is
// responsible for calling em.Done/Error/Cancelled after Produce returns,
// matching the teacher's "emit terminal event, cleanup in finally"
// structure at the call site rather than inside the loop itself.
func (p *Producer) Produce(ctx context.Context, threadID string, history []models.Message, em *Emitter) error {
	if p.model == nil {
		return ErrNoModelClient
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.MaxWallTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.MaxWallTime)
		defer cancel()
	}

	msgs := append([]models.Message(nil), history...)

	for iter := 0; iter < p.cfg.MaxIterations; iter++ {
		toolCalls, assistantText, err := p.streamOnce(runCtx, threadID, msgs, em)
		if err != nil {
			return err
		}
		msgs = append(msgs, models.Message{
			ThreadID:  threadID,
			Role:      models.RoleAssistant,
			Content:   assistantText,
			ToolCalls: toolCalls,
			CreatedAt: time.Now().UTC(),
		})

		if len(toolCalls) == 0 {
			return nil
		}

		toolCtx := WithRunScope(runCtx, RunScope{ThreadID: threadID, RunID: em.runID})
		results, err := p.executeTools(toolCtx, toolCalls, em)
		if err != nil {
			return err
		}
		for _, r := range results {
			msgs = append(msgs, models.Message{
				ThreadID:   threadID,
				Role:       models.RoleTool,
				Content:    r.Content,
				ToolCallID: r.ToolCallID,
				CreatedAt:  time.Now().UTC(),
			})
		}
	}

	return nil
}

// streamOnce consumes one model stream to completion, classifying each
// chunk and emitting it as it arrives so partial output is never lost on
// a later error (§4.1 "coalesce-but-emit-per-chunk").
func (p *Producer) streamOnce(ctx context.Context, threadID string, history []models.Message, em *Emitter) ([]models.ToolCall, string, error) {
	stream, err := p.model.Stream(ctx, threadID, history)
	if err != nil {
		return nil, "", err
	}
	defer stream.Close()

	var toolCalls []models.ToolCall
	var text string
	for {
		chunk, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			break
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
			if err := em.ToolCall(ctx, *chunk.ToolCall); err != nil {
				return nil, "", err
			}
			continue
		}
		if chunk.TextDelta != "" {
			text += chunk.TextDelta
			if err := em.Text(ctx, "", chunk.TextDelta); err != nil {
				return nil, "", err
			}
		}
	}
	return toolCalls, text, nil
}

// executeTools runs every pending tool call sequentially against the
// configured ToolRunner and emits its result. Calls are not dispatched in
// parallel; per-call timeouts are applied by the ToolRunner
// (internal/toolexec), so Produce only needs the ToolRunner boundary.
func (p *Producer) executeTools(ctx context.Context, calls []models.ToolCall, em *Emitter) ([]models.ToolResult, error) {
	if p.tools == nil {
		results := make([]models.ToolResult, len(calls))
		for i, c := range calls {
			results[i] = models.ToolResult{ToolCallID: c.ID, Content: "no tool runner configured", IsError: true}
			if err := em.ToolResult(ctx, results[i], c.Name, 0); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	results := make([]models.ToolResult, 0, len(calls))
	for _, c := range calls {
		result, elapsed, err := p.tools.Run(ctx, c)
		if err != nil {
			result = models.ToolResult{ToolCallID: c.ID, Content: err.Error(), IsError: true}
		}
		if err := em.ToolResult(ctx, result, c.Name, elapsed); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
