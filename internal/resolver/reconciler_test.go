package resolver

import (
	"context"
	"testing"

	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/provider"
)

func TestReconcilerStepCreatesThenActivates(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)
	ctx := context.Background()

	lease := &models.SandboxLease{ID: "l1", SessionID: "s1", Provider: "fake", DesiredState: models.DesiredActive, ObservedState: models.ObservedUnknown}
	store.leases["l1"] = lease

	r.step(ctx, lease)
	if lease.ObservedState != models.ObservedProvisioning {
		t.Fatalf("after Create step, ObservedState = %q, want provisioning", lease.ObservedState)
	}
	if lease.InstanceID == "" {
		t.Error("expected InstanceID to be assigned after create")
	}

	r.step(ctx, lease)
	if lease.ObservedState != models.ObservedActive {
		t.Fatalf("after Status step, ObservedState = %q, want active", lease.ObservedState)
	}

	if len(store.events) != 2 {
		t.Errorf("len(events) = %d, want 2 (create + status)", len(store.events))
	}
}

func TestReconcilerStepCreatePopulatesSpecFromTerminal(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)
	ctx := context.Background()

	term := &models.AbstractTerminal{
		ID: "term-1", SessionID: "s1", Cwd: "/work/project",
		EnvDelta: map[string]string{"FOO": "bar"}, HydrationBlob: []byte("scrollback"),
	}
	store.terminals["s1"] = term

	lease := &models.SandboxLease{ID: "l1", SessionID: "s1", Provider: "fake", DesiredState: models.DesiredActive, ObservedState: models.ObservedUnknown}
	store.leases["l1"] = lease

	r.step(ctx, lease)

	if fp.lastCreateSpec.Cwd != "/work/project" {
		t.Errorf("CreateSpec.Cwd = %q, want /work/project", fp.lastCreateSpec.Cwd)
	}
	if fp.lastCreateSpec.EnvDelta["FOO"] != "bar" {
		t.Errorf("CreateSpec.EnvDelta[FOO] = %q, want bar", fp.lastCreateSpec.EnvDelta["FOO"])
	}
	if string(fp.lastCreateSpec.HydrationBlob) != "scrollback" {
		t.Errorf("CreateSpec.HydrationBlob = %q, want scrollback", fp.lastCreateSpec.HydrationBlob)
	}
}

func TestReconcilerStepUnknownProviderErrors(t *testing.T) {
	store := newMemStore()
	reg := provider.NewRegistry() // empty registry
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)

	lease := &models.SandboxLease{ID: "l1", SessionID: "s1", Provider: "missing", DesiredState: models.DesiredActive, ObservedState: models.ObservedUnknown}
	r.step(context.Background(), lease)

	if lease.ObservedState != models.ObservedError {
		t.Errorf("ObservedState = %q, want error for unregistered provider", lease.ObservedState)
	}
	if lease.LastError == "" {
		t.Error("expected LastError to be set")
	}
}

func TestReconcilerStepConvergedIsNoop(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)

	lease := &models.SandboxLease{ID: "l1", Provider: "fake", DesiredState: models.DesiredActive, ObservedState: models.ObservedActive}
	r.step(context.Background(), lease)

	if len(store.events) != 0 {
		t.Error("converged lease should not produce any reconcile events")
	}
}

func TestReconcilerStepPauseAndResume(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)
	ctx := context.Background()

	lease := &models.SandboxLease{ID: "l1", Provider: "fake", InstanceID: "inst-1", DesiredState: models.DesiredPaused, ObservedState: models.ObservedActive}
	r.step(ctx, lease)
	if lease.ObservedState != models.ObservedPaused {
		t.Fatalf("ObservedState = %q, want paused", lease.ObservedState)
	}

	lease.DesiredState = models.DesiredActive
	r.step(ctx, lease)
	if lease.ObservedState != models.ObservedActive {
		t.Fatalf("ObservedState = %q, want active after resume", lease.ObservedState)
	}
}

func TestReconcilerStepDestroy(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)

	lease := &models.SandboxLease{ID: "l1", Provider: "fake", InstanceID: "inst-1", DesiredState: models.DesiredDestroyed, ObservedState: models.ObservedActive}
	r.step(context.Background(), lease)

	if lease.ObservedState != models.ObservedDestroyed {
		t.Errorf("ObservedState = %q, want destroyed", lease.ObservedState)
	}
	if len(fp.destroyed) != 1 || fp.destroyed[0] != "inst-1" {
		t.Errorf("destroyed = %v, want [inst-1]", fp.destroyed)
	}
}

func TestReconcilerSignalIsNonBlocking(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)

	for i := 0; i < 100; i++ {
		r.Signal("lease-x")
	}
}

func TestReconcilerDestroySetsDesiredAndSteps(t *testing.T) {
	store := newMemStore()
	fp := newFakeProvider("fake")
	reg := provider.NewRegistry(fp)
	r := NewReconciler(store, reg, DefaultReconcilerConfig(), nil)

	lease := &models.SandboxLease{ID: "l1", Provider: "fake", InstanceID: "inst-1", DesiredState: models.DesiredActive, ObservedState: models.ObservedActive}
	if err := r.Destroy(context.Background(), lease); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if lease.DesiredState != models.DesiredDestroyed {
		t.Error("DesiredState should be set to destroyed")
	}
	if lease.ObservedState != models.ObservedDestroyed {
		t.Error("ObservedState should converge to destroyed after Destroy")
	}
}
