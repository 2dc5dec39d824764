//go:build linux

package provider

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	fcmodels "github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/google/uuid"

	"github.com/leon-agent/leon/internal/models"
)

// FirecrackerConfig configures the built-in Firecracker-backed provider.
// Grounded on internal/tools/sandbox/firecracker.BackendConfig/VMConfig,
// trimmed to the fields the sandbox lease lifecycle actually needs.
type FirecrackerConfig struct {
	KernelPath string
	RootFSPath string
	SocketDir  string
	VCPUs      int64
	MemSizeMB  int64
}

// DefaultFirecrackerConfig mirrors nexus's DefaultVMConfig defaults.
func DefaultFirecrackerConfig() FirecrackerConfig {
	return FirecrackerConfig{
		VCPUs:     1,
		MemSizeMB: 512,
		SocketDir: "/var/run/leon/firecracker",
	}
}

type instance struct {
	id      string
	machine *firecracker.Machine
	state   models.SandboxObservedState
}

// FirecrackerProvider is Leon's one built-in SandboxProvider, a thin
// adapter around firecracker-go-sdk's Machine lifecycle, grounded on
// internal/tools/sandbox/firecracker/vm.go's MicroVM.Start/Stop/Pause/Resume.
type FirecrackerProvider struct {
	cfg FirecrackerConfig

	mu        sync.Mutex
	instances map[string]*instance
}

// NewFirecrackerProvider constructs a provider against the given config.
func NewFirecrackerProvider(cfg FirecrackerConfig) *FirecrackerProvider {
	return &FirecrackerProvider{cfg: cfg, instances: make(map[string]*instance)}
}

// Name identifies this provider in lease.Provider bookkeeping.
func (p *FirecrackerProvider) Name() string { return "firecracker" }

// Create boots a fresh microVM and registers it under a new instance id.
func (p *FirecrackerProvider) Create(ctx context.Context, spec CreateSpec) (string, error) {
	id := uuid.NewString()

	bin, err := exec.LookPath("firecracker")
	if err != nil {
		return "", fmt.Errorf("provider: firecracker binary not found: %w", err)
	}

	socketPath := fmt.Sprintf("%s/%s.sock", p.cfg.SocketDir, id)
	cmd := firecracker.VMCommandBuilder{}.
		WithBin(bin).
		WithSocketPath(socketPath).
		Build(ctx)

	fcConfig := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: p.cfg.KernelPath,
		Drives: []fcmodels.Drive{
			{
				DriveID:      firecracker.String("rootfs"),
				PathOnHost:   firecracker.String(p.cfg.RootFSPath),
				IsRootDevice: firecracker.Bool(true),
				IsReadOnly:   firecracker.Bool(false),
			},
		},
		MachineCfg: fcmodels.MachineConfiguration{
			VcpuCount:  firecracker.Int64(p.cfg.VCPUs),
			MemSizeMib: firecracker.Int64(p.cfg.MemSizeMB),
			Smt:        firecracker.Bool(false),
		},
	}

	machine, err := firecracker.NewMachine(ctx, fcConfig, firecracker.WithProcessRunner(cmd))
	if err != nil {
		return "", fmt.Errorf("provider: create machine: %w", err)
	}
	if err := machine.Start(ctx); err != nil {
		return "", fmt.Errorf("provider: start machine: %w", err)
	}

	p.mu.Lock()
	p.instances[id] = &instance{id: id, machine: machine, state: models.ObservedActive}
	p.mu.Unlock()

	return id, nil
}

// Status reports the last-known observed state for instanceID.
func (p *FirecrackerProvider) Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[instanceID]
	if !ok {
		return models.ObservedDestroyed, nil
	}
	return inst.state, nil
}

// Pause suspends the microVM via the Firecracker pause API.
func (p *FirecrackerProvider) Pause(ctx context.Context, instanceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	if err := inst.machine.PauseVM(ctx); err != nil {
		inst.state = models.ObservedError
		return fmt.Errorf("provider: pause: %w", err)
	}
	inst.state = models.ObservedPaused
	return nil
}

// Resume reactivates a paused microVM.
func (p *FirecrackerProvider) Resume(ctx context.Context, instanceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	if err := inst.machine.ResumeVM(ctx); err != nil {
		inst.state = models.ObservedError
		return fmt.Errorf("provider: resume: %w", err)
	}
	inst.state = models.ObservedActive
	return nil
}

// ListInstances returns every instance id this process currently tracks.
// Firecracker instances are local to one process, so this is a complete
// view by construction (no cross-host registry to consult).
func (p *FirecrackerProvider) ListInstances(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.instances))
	for id := range p.instances {
		ids = append(ids, id)
	}
	return ids, nil
}

// Destroy stops the microVM and forgets it. Destroying an unknown
// instance is a no-op, matching the resolver's idempotent teardown
// expectation (§4.2 "orphan detection").
func (p *FirecrackerProvider) Destroy(ctx context.Context, instanceID string) error {
	p.mu.Lock()
	inst, ok := p.instances[instanceID]
	delete(p.instances, instanceID)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if err := inst.machine.StopVMM(); err != nil {
		return fmt.Errorf("provider: stop vmm: %w", err)
	}
	return nil
}
