package provider

import (
	"context"
	"testing"

	"github.com/leon-agent/leon/internal/models"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) Create(ctx context.Context, spec CreateSpec) (string, error) {
	return "inst-1", nil
}
func (s stubProvider) Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error) {
	return models.ObservedActive, nil
}
func (s stubProvider) Pause(ctx context.Context, instanceID string) error  { return nil }
func (s stubProvider) Resume(ctx context.Context, instanceID string) error { return nil }
func (s stubProvider) Destroy(ctx context.Context, instanceID string) error { return nil }

func TestRegistryGetFound(t *testing.T) {
	reg := NewRegistry(stubProvider{name: "a"}, stubProvider{name: "b"})
	p, ok := reg.Get("b")
	if !ok {
		t.Fatal("expected provider b to be registered")
	}
	if p.Name() != "b" {
		t.Errorf("Name() = %q, want b", p.Name())
	}
}

func TestRegistryGetMissing(t *testing.T) {
	reg := NewRegistry(stubProvider{name: "a"})
	_, ok := reg.Get("missing")
	if ok {
		t.Error("expected ok=false for an unregistered provider name")
	}
}

func TestRegistryEmpty(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Get("anything")
	if ok {
		t.Error("expected ok=false on an empty registry")
	}
}
