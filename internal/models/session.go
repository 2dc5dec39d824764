package models

import "time"

// SessionPolicy is the policy under which physical compute may be used by a
// ChatSession: idle TTL, max wall duration, max total cost (§3 ChatSession).
type SessionPolicy struct {
	IdleTTL     time.Duration `json:"idle_ttl"`
	MaxWallTime time.Duration `json:"max_wall_time"`
	MaxCostUSD  float64       `json:"max_cost_usd"`
	DefaultCwd  string        `json:"default_cwd"`
}

// DefaultSessionPolicy mirrors nexus's sensible-default idiom.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		IdleTTL:     15 * time.Minute,
		MaxWallTime: 2 * time.Hour,
		MaxCostUSD:  5.0,
		DefaultCwd:  "/workspace",
	}
}

// ChatSession is the lifecycle envelope inside a thread (§3 ChatSession). A
// thread has at most one active session at a time; session end triggers
// terminal/lease release.
type ChatSession struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	Policy    SessionPolicy `json:"policy"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// AbstractTerminal is the logical shell identity bound to a session (§3
// AbstractTerminal). It survives physical-runtime restart.
type AbstractTerminal struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Cwd       string            `json:"cwd"`
	EnvDelta  map[string]string `json:"env_delta"`
	Version   int64             `json:"version"`

	// HydrationBlob is the opaque provider-specific state (shell history,
	// terminal scrollback, etc.) persisted on detach and restored on attach.
	HydrationBlob []byte `json:"hydration_blob,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SandboxDesiredState and SandboxObservedState implement the lease state
// machine described in §4.2.
type SandboxDesiredState string

const (
	DesiredActive    SandboxDesiredState = "active"
	DesiredPaused    SandboxDesiredState = "paused"
	DesiredDestroyed SandboxDesiredState = "destroyed"
)

type SandboxObservedState string

const (
	ObservedUnknown      SandboxObservedState = "unknown"
	ObservedProvisioning SandboxObservedState = "provisioning"
	ObservedActive       SandboxObservedState = "active"
	ObservedPaused       SandboxObservedState = "paused"
	ObservedDestroyed    SandboxObservedState = "destroyed"
	ObservedError        SandboxObservedState = "error"
)

// SandboxLease is a session's reservation of a sandbox instance (§3
// SandboxLease).
type SandboxLease struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"session_id"`
	Provider      string               `json:"provider"`
	InstanceID    string               `json:"instance_id,omitempty"`
	DesiredState  SandboxDesiredState  `json:"desired_state"`
	ObservedState SandboxObservedState `json:"observed_state"`
	LastError     string               `json:"last_error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Converged reports whether the lease has reached its desired state, or has
// settled into a reported error (§8 invariant).
func (l *SandboxLease) Converged() bool {
	return l.ObservedState == SandboxObservedState(l.DesiredState) || l.ObservedState == ObservedError
}

// LeaseEvent records one reconciler transition, surfaced via the operator
// view (§4.2).
type LeaseEvent struct {
	ID        string    `json:"id"`
	LeaseID   string    `json:"lease_id"`
	Provider  string    `json:"provider"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SandboxInstance is a provider-managed compute resource referenced by a
// lease's InstanceID (§3 SandboxInstance).
type SandboxInstance struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}
