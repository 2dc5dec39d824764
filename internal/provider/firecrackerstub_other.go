//go:build !linux

package provider

import (
	"context"
	"errors"

	"github.com/leon-agent/leon/internal/models"
)

// ErrNotSupported is returned by FirecrackerProvider on platforms where
// firecracker-go-sdk's KVM-backed Machine cannot run.
var ErrNotSupported = errors.New("provider: firecracker is only supported on linux")

// FirecrackerConfig configures the built-in Firecracker-backed provider.
// On non-Linux platforms it carries no usable fields.
type FirecrackerConfig struct {
	KernelPath string
	RootFSPath string
	SocketDir  string
	VCPUs      int64
	MemSizeMB  int64
}

// DefaultFirecrackerConfig mirrors the Linux build's defaults for field
// parity; none of them are usable here.
func DefaultFirecrackerConfig() FirecrackerConfig {
	return FirecrackerConfig{VCPUs: 1, MemSizeMB: 512}
}

// FirecrackerProvider stub: every operation returns ErrNotSupported.
type FirecrackerProvider struct{}

// NewFirecrackerProvider returns a stub provider.
func NewFirecrackerProvider(cfg FirecrackerConfig) *FirecrackerProvider {
	return &FirecrackerProvider{}
}

func (p *FirecrackerProvider) Name() string { return "firecracker" }

func (p *FirecrackerProvider) Create(ctx context.Context, spec CreateSpec) (string, error) {
	return "", ErrNotSupported
}

func (p *FirecrackerProvider) Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error) {
	return models.ObservedError, ErrNotSupported
}

func (p *FirecrackerProvider) Pause(ctx context.Context, instanceID string) error {
	return ErrNotSupported
}

func (p *FirecrackerProvider) Resume(ctx context.Context, instanceID string) error {
	return ErrNotSupported
}

func (p *FirecrackerProvider) Destroy(ctx context.Context, instanceID string) error {
	return ErrNotSupported
}
