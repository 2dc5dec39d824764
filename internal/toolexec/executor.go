// Package toolexec dispatches one agent tool call onto the physical
// terminal a resolver.Handle already resolved, grounded on
// internal/tools/sandbox/executor.go's Executor/ExecuteParams/ExecuteResult
// shape but adapted from "spin up a fresh sandbox per call" to "run inside
// whatever instance the lease already holds" (§4.2/§4.3, §9 "Dynamic
// dispatch in tool execution"). Thread/run scope travels through the
// context (runsupervisor.WithRunScope/RunScopeFrom) so Executor.Run keeps
// the narrow runsupervisor.ToolRunner signature.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/leon-agent/leon/internal/errs"
	"github.com/leon-agent/leon/internal/hooks"
	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/provider"
	"github.com/leon-agent/leon/internal/resolver"
	"github.com/leon-agent/leon/internal/runsupervisor"
)

// toolInput is the JSON shape every code-execution tool call's Input
// decodes into. Non-code tools (file read, search, ...) are out of scope;
// §1 scopes Leon's tool surface to sandboxed code execution.
type toolInput struct {
	Language string            `json:"language"`
	Code     string            `json:"code"`
	Stdin    string            `json:"stdin"`
	Files    map[string]string `json:"files"`
	Timeout  int               `json:"timeout_seconds"`
	CPULimit int               `json:"cpu_limit"`
	MemLimit int               `json:"mem_limit_mb"`
}

// Config bounds the defaults applied when a tool call doesn't specify its
// own resource limits, mirroring the teacher's Config.Default* fields.
type Config struct {
	DefaultTimeout int // seconds
	DefaultCPU     int
	DefaultMemory  int // MB
}

// DefaultConfig mirrors the teacher's NewExecutor defaults.
func DefaultConfig() Config {
	return Config{DefaultTimeout: 30, DefaultCPU: 1, DefaultMemory: 512}
}

// Executor runs tool calls against an already-resolved resolver.Handle
// instead of provisioning its own sandbox, satisfying
// internal/runsupervisor.ToolRunner.
type Executor struct {
	resolver  *resolver.Resolver
	providers *provider.Registry
	hooks     *hooks.Chain
	cfg       Config
}

// NewExecutor wires a resolver, provider registry, and optional hook chain
// together. hooks may be nil: Run then skips the pre/post-execute gate.
func NewExecutor(r *resolver.Resolver, providers *provider.Registry, chain *hooks.Chain, cfg Config) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Executor{resolver: r, providers: providers, hooks: chain, cfg: cfg}
}

// Run resolves the calling thread's physical terminal (recovered from ctx
// via runsupervisor.RunScopeFrom) and executes call against it,
// implementing internal/runsupervisor.ToolRunner (§4.3 "tool execution
// runs against the resolved physical terminal").
func (e *Executor) Run(ctx context.Context, call models.ToolCall) (models.ToolResult, time.Duration, error) {
	start := time.Now()

	scope, ok := runsupervisor.RunScopeFrom(ctx)
	if !ok {
		return models.ToolResult{}, 0, fmt.Errorf("toolexec: no run scope in context")
	}

	if e.hooks != nil {
		decision := e.hooks.Run(ctx, hooks.Command{
			ToolName: call.Name,
			Input:    call.Input,
			ThreadID: scope.ThreadID,
			RunID:    scope.RunID,
			Phase:    hooks.PhasePreExecute,
		})
		if decision.Blocked {
			return models.ToolResult{ToolCallID: call.ID, Content: decision.Reason, IsError: true}, time.Since(start), nil
		}
	}

	var in toolInput
	if err := json.Unmarshal(call.Input, &in); err != nil {
		return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("invalid tool input: %v", err), IsError: true},
			time.Since(start), nil
	}

	handle, err := e.resolver.Resolve(ctx, scope.ThreadID)
	if err != nil {
		return models.ToolResult{}, time.Since(start), err
	}

	result, execErr := e.execute(ctx, handle, in)

	if e.hooks != nil {
		e.hooks.Run(ctx, hooks.Command{
			ToolName: call.Name,
			Input:    call.Input,
			ThreadID: scope.ThreadID,
			RunID:    scope.RunID,
			Phase:    hooks.PhasePostExecute,
		})
	}

	elapsed := time.Since(start)
	if execErr != nil {
		return models.ToolResult{}, elapsed, execErr
	}
	return toModelsResult(call.ID, result), elapsed, nil
}

func (e *Executor) execute(ctx context.Context, handle *resolver.Handle, in toolInput) (provider.ExecResult, error) {
	if in.Language == "" {
		return provider.ExecResult{}, errs.New(errs.KindValidation, "toolexec.execute", "language is required")
	}

	p, ok := e.providers.Get(handle.Lease.Provider)
	if !ok {
		return provider.ExecResult{}, errs.New(errs.KindNotFound, "toolexec.execute", fmt.Sprintf("provider %q not registered", handle.Lease.Provider))
	}
	runner, ok := p.(provider.CommandExecutor)
	if !ok {
		return provider.ExecResult{}, errs.New(errs.KindFatal, "toolexec.execute", fmt.Sprintf("provider %q cannot execute commands", handle.Lease.Provider))
	}
	if handle.Lease.InstanceID == "" {
		return provider.ExecResult{}, errs.New(errs.KindTransientUpstream, "toolexec.execute", "lease has no instance id yet")
	}

	params := provider.ExecParams{
		Language: in.Language,
		Code:     in.Code,
		Stdin:    in.Stdin,
		Files:    in.Files,
		Timeout:  orDefault(in.Timeout, e.cfg.DefaultTimeout),
		CPULimit: orDefault(in.CPULimit, e.cfg.DefaultCPU),
		MemLimit: orDefault(in.MemLimit, e.cfg.DefaultMemory),
		Cwd:      handle.Terminal.Cwd,
		EnvDelta: handle.Terminal.EnvDelta,
	}

	timeout := time.Duration(params.Timeout) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := runner.Exec(execCtx, handle.Lease.InstanceID, params)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return provider.ExecResult{Timeout: true, ExitCode: -1}, nil
		}
		return provider.ExecResult{}, errs.Wrap(errs.KindTransientUpstream, "toolexec.execute", "exec", err)
	}
	e.persistTerminalState(ctx, handle, result)
	return result, nil
}

// persistTerminalState writes the command's observed cwd/env/hydration
// state back onto handle.Terminal and, if anything actually changed,
// persists it -- the only production call site of resolver.UpdateTerminal
// (§3 PhysicalTerminalRuntime, "version bumped on any mutation"). A
// provider that doesn't report state back (ExecResult's Cwd/EnvDelta left
// zero) leaves the terminal untouched.
func (e *Executor) persistTerminalState(ctx context.Context, handle *resolver.Handle, result provider.ExecResult) {
	term := handle.Terminal
	changed := false
	if result.Cwd != "" && result.Cwd != term.Cwd {
		term.Cwd = result.Cwd
		changed = true
	}
	if result.EnvDelta != nil && !maps.Equal(term.EnvDelta, result.EnvDelta) {
		term.EnvDelta = result.EnvDelta
		changed = true
	}
	if result.HydrationBlob != nil {
		term.HydrationBlob = result.HydrationBlob
		changed = true
	}
	if !changed {
		return
	}
	if err := e.resolver.UpdateTerminal(ctx, term); err != nil {
		slog.Default().Warn("toolexec: persist terminal state", "session_id", term.SessionID, "error", err)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func toModelsResult(callID string, r provider.ExecResult) models.ToolResult {
	if r.Timeout {
		return models.ToolResult{ToolCallID: callID, Content: "execution timed out", IsError: true}
	}
	content := r.Stdout
	if r.ExitCode != 0 {
		if r.Stderr != "" {
			content = fmt.Sprintf("%s\n%s", content, r.Stderr)
		}
		return models.ToolResult{ToolCallID: callID, Content: content, IsError: true}
	}
	return models.ToolResult{ToolCallID: callID, Content: content}
}
