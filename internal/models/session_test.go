package models

import "testing"

func TestDefaultSessionPolicy(t *testing.T) {
	p := DefaultSessionPolicy()
	if p.IdleTTL <= 0 {
		t.Error("IdleTTL should be positive")
	}
	if p.MaxWallTime <= 0 {
		t.Error("MaxWallTime should be positive")
	}
	if p.MaxCostUSD <= 0 {
		t.Error("MaxCostUSD should be positive")
	}
	if p.DefaultCwd == "" {
		t.Error("DefaultCwd should not be empty")
	}
}

func TestSandboxLeaseConverged(t *testing.T) {
	cases := []struct {
		name    string
		desired SandboxDesiredState
		observed SandboxObservedState
		want    bool
	}{
		{"matches desired", DesiredActive, ObservedActive, true},
		{"settled on error", DesiredActive, ObservedError, true},
		{"still provisioning", DesiredActive, ObservedProvisioning, false},
		{"destroyed vs paused", DesiredDestroyed, ObservedPaused, false},
		{"destroyed matches", DesiredDestroyed, ObservedDestroyed, true},
	}
	for _, c := range cases {
		lease := &SandboxLease{DesiredState: c.desired, ObservedState: c.observed}
		if got := lease.Converged(); got != c.want {
			t.Errorf("%s: Converged() = %v, want %v", c.name, got, c.want)
		}
	}
}
