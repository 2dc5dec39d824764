package resolver

// SandboxMode determines which threads get a dedicated sandbox lease at
// all. Copied near-verbatim from internal/tools/sandbox/modes.go -- a
// feature the spec's distillation dropped but the original system carries
// (§4.2 enrichment).
type SandboxMode string

const (
	// ModeOff never provisions a lease; tools run against a bare local
	// terminal with no isolation.
	ModeOff SandboxMode = "off"
	// ModeAll provisions a lease for every thread.
	ModeAll SandboxMode = "all"
	// ModeNonMain provisions a lease for every thread except the
	// operator's main/interactive thread.
	ModeNonMain SandboxMode = "non-main"
)

// SandboxScope determines how many threads share one lease.
type SandboxScope string

const (
	// ScopeAgent gives each agent its own lease (default).
	ScopeAgent SandboxScope = "agent"
	// ScopeSession gives each session its own lease.
	ScopeSession SandboxScope = "session"
	// ScopeShared uses a single lease for everything.
	ScopeShared SandboxScope = "shared"
)

// ModeConfig is the resolved mode/scope pair an operator configures (§6
// Environment: LEON_SANDBOX_MODE, LEON_SANDBOX_SCOPE).
type ModeConfig struct {
	Mode  SandboxMode
	Scope SandboxScope
}

// ResolveModeConfig validates raw config strings into a ModeConfig,
// falling back to sensible defaults for unrecognized values exactly as
// nexus's ResolveModeConfig does.
func ResolveModeConfig(enabled bool, mode, scope string) ModeConfig {
	mc := ModeConfig{Mode: ModeOff, Scope: ScopeAgent}
	if !enabled {
		return mc
	}

	switch SandboxMode(mode) {
	case ModeAll, ModeNonMain:
		mc.Mode = SandboxMode(mode)
	default:
		mc.Mode = ModeAll
	}

	switch SandboxScope(scope) {
	case ScopeSession, ScopeShared:
		mc.Scope = SandboxScope(scope)
	default:
		mc.Scope = ScopeAgent
	}

	return mc
}

// ShouldSandbox reports whether a thread should get a dedicated lease.
func (mc ModeConfig) ShouldSandbox(threadID string, isMainThread bool) bool {
	switch mc.Mode {
	case ModeOff:
		return false
	case ModeAll:
		return true
	case ModeNonMain:
		return !isMainThread
	default:
		return false
	}
}

// SandboxKey computes the lease-sharing key implied by Scope, used to map
// several threads onto one session/lease when Scope != ScopeAgent.
func (mc ModeConfig) SandboxKey(threadID, sessionID string) string {
	switch mc.Scope {
	case ScopeSession:
		return "session:" + sessionID
	case ScopeShared:
		return "shared"
	case ScopeAgent:
		fallthrough
	default:
		return "thread:" + threadID
	}
}
