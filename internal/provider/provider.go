// Package provider defines Leon's boundary to sandbox compute backends.
// Concrete providers (local shell, container runtime, remote workspace
// services such as Daytona) are external collaborators Leon talks to
// through this interface and, for out-of-process providers, over the gRPC
// client in grpcclient.go; Leon ships exactly one built-in implementation
// (firecrackerstub.go) so the resolver always has something runnable to
// reconcile against.
package provider

import (
	"context"
	"errors"

	"github.com/leon-agent/leon/internal/models"
)

// ErrInstanceNotFound is returned by Pause/Resume for an instance id the
// provider has no record of; Status reports such an id as destroyed instead.
var ErrInstanceNotFound = errors.New("provider: instance not found")

// CreateSpec describes the compute a lease wants provisioned (§4.2 step 2).
// Cwd/EnvDelta/HydrationBlob carry the abstract terminal's persisted state
// so a freshly provisioned instance starts hydrated rather than blank --
// the physical runtime may be recreated long after the abstract terminal
// it backs was first established.
type CreateSpec struct {
	SessionID     string
	Cwd           string
	EnvDelta      map[string]string
	HydrationBlob []byte
	Language      string
}

// SandboxProvider is the verb set every sandbox backend implements, lifted
// directly from the create/status/pause/resume/destroy cycle shared by
// nexus's Daytona executor and Firecracker backend, generalized so the
// reconciler in internal/resolver drives any of them identically (§4.2).
type SandboxProvider interface {
	// Name identifies the provider for lease.Provider bookkeeping.
	Name() string

	// Create provisions a new instance and returns its id. The instance
	// is not guaranteed to be immediately Active -- Status converges it.
	Create(ctx context.Context, spec CreateSpec) (instanceID string, err error)

	// Status reports the provider's current view of an instance.
	Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error)

	// Pause suspends an instance without destroying it.
	Pause(ctx context.Context, instanceID string) error

	// Resume reactivates a paused instance.
	Resume(ctx context.Context, instanceID string) error

	// Destroy tears down an instance permanently. Idempotent: destroying
	// an already-destroyed or unknown instance is not an error.
	Destroy(ctx context.Context, instanceID string) error
}

// InstanceLister is implemented by providers that can enumerate every
// instance they currently manage, independent of Leon's local lease table
// (§4.2 "Orphan detection"). A provider that cannot enumerate -- e.g. a
// remote daemon with no listing API -- simply doesn't implement this;
// orphan detection skips it.
type InstanceLister interface {
	ListInstances(ctx context.Context) ([]string, error)
}

// ExecParams describes one command to run inside an already-running
// instance (§4.3/§9: tool execution runs against the resolved physical
// terminal rather than a fresh sandbox per call). Cwd/EnvDelta are the
// calling session's abstract terminal state at the time of the call, so a
// provider that shells out can `cd`/export into the right place instead of
// always running from the instance's boot-time working directory.
type ExecParams struct {
	Language string
	Code     string
	Stdin    string
	Files    map[string]string
	Timeout  int // seconds
	CPULimit int
	MemLimit int // MB
	Cwd      string
	EnvDelta map[string]string
}

// ExecResult is the outcome of one CommandExecutor.Exec call. Cwd/EnvDelta/
// HydrationBlob are the terminal's state after the command ran -- set only
// when the provider observed a change (e.g. the command `cd`ed or exported
// a variable) -- so the caller can persist it back onto the abstract
// terminal (§3 PhysicalTerminalRuntime, "version bumped on any mutation").
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Timeout  bool

	Cwd           string
	EnvDelta      map[string]string
	HydrationBlob []byte
}

// CommandExecutor is implemented by providers that can run a command
// inside an already-provisioned instance, independent of the
// create/status/pause/resume/destroy lifecycle (§4.2 "Orphan detection"
// sibling optional-interface pattern). A provider with no exec
// capability -- e.g. one that only ever pauses/resumes -- simply doesn't
// implement this; internal/toolexec fails fast if the resolved lease's
// provider lacks it.
type CommandExecutor interface {
	Exec(ctx context.Context, instanceID string, params ExecParams) (ExecResult, error)
}

// Registry looks providers up by name so the resolver can dispatch a
// lease's Provider field to the right backend without a type switch.
type Registry struct {
	providers map[string]SandboxProvider
}

// NewRegistry builds a registry from zero or more providers.
func NewRegistry(providers ...SandboxProvider) *Registry {
	r := &Registry{providers: make(map[string]SandboxProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider and whether it was registered.
func (r *Registry) Get(name string) (SandboxProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

var (
	_ SandboxProvider = (*FirecrackerProvider)(nil)
	_ SandboxProvider = (*GRPCProvider)(nil)
)
