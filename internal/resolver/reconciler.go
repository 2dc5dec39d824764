package resolver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/provider"
)

// ReconcilerConfig controls the tick loop's cadence.
type ReconcilerConfig struct {
	TickInterval time.Duration
}

// DefaultReconcilerConfig returns sensible defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{TickInterval: 2 * time.Second}
}

// Reconciler drives every lease's observed state toward its desired
// state, one step per tick, exactly per the transition table in §4.2:
//
//	(active, unknown|destroyed)  -> provider.Create    -> provisioning
//	(active, provisioning)       -> provider.Status     -> active | error
//	(paused, active)             -> provider.Pause      -> paused
//	(active, paused)             -> provider.Resume     -> active
//	(destroyed, *≠destroyed)     -> provider.Destroy    -> destroyed
//
// Grounded on nexus's daytona/firecracker executors' create/status/pause/
// resume/destroy verb set, generalized behind provider.SandboxProvider.
type Reconciler struct {
	store     Store
	providers *provider.Registry
	cfg       ReconcilerConfig
	log       *slog.Logger

	signal chan string
}

// NewReconciler wires a Reconciler to its store and provider registry.
func NewReconciler(store Store, providers *provider.Registry, cfg ReconcilerConfig, log *slog.Logger) *Reconciler {
	if cfg.TickInterval <= 0 {
		cfg = DefaultReconcilerConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:     store,
		providers: providers,
		cfg:       cfg,
		log:       log,
		signal:    make(chan string, 64),
	}
}

// Signal nudges the reconciler to look at leaseID sooner than its next
// tick. It never blocks; a full signal channel just means the lease will
// be picked up on the next regular tick instead.
func (r *Reconciler) Signal(leaseID string) {
	select {
	case r.signal <- leaseID:
	default:
	}
}

// Run ticks until ctx is cancelled, reconciling every non-converged lease
// each interval, plus any lease explicitly Signal()ed in between.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileAll(ctx)
		case leaseID := <-r.signal:
			r.reconcileOne(ctx, leaseID)
		}
	}
}

func (r *Reconciler) reconcileAll(ctx context.Context) {
	leases, err := r.store.ListNonConverged(ctx)
	if err != nil {
		r.log.Error("reconciler: list non-converged leases", "error", err)
		return
	}
	for _, l := range leases {
		r.step(ctx, l)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, leaseID string) {
	lease, err := r.store.GetLease(ctx, leaseID)
	if err != nil {
		r.log.Error("reconciler: get lease", "lease_id", leaseID, "error", err)
		return
	}
	r.step(ctx, lease)
}

// step performs at most one state transition for the given lease and
// persists the result plus a LeaseEvent row.
func (r *Reconciler) step(ctx context.Context, lease *models.SandboxLease) {
	if lease.Converged() {
		return
	}

	p, ok := r.providers.Get(lease.Provider)
	if !ok {
		r.transition(ctx, lease, models.ObservedError, "provider_missing", lease.Provider)
		return
	}

	switch {
	case lease.DesiredState == models.DesiredActive &&
		(lease.ObservedState == models.ObservedUnknown || lease.ObservedState == models.ObservedDestroyed):
		// Resolver.Resolve always creates the abstract terminal row before
		// the lease reaches this case, so GetOrCreateTerminal here is a
		// pure lookup; the instance is hydrated from whatever cwd/env the
		// terminal last persisted (§4.2 step 4).
		term, err := r.store.GetOrCreateTerminal(ctx, lease.SessionID, "")
		if err != nil {
			r.transition(ctx, lease, models.ObservedError, "terminal_lookup_failed", err.Error())
			return
		}
		instanceID, err := p.Create(ctx, provider.CreateSpec{
			SessionID:     lease.SessionID,
			Cwd:           term.Cwd,
			EnvDelta:      term.EnvDelta,
			HydrationBlob: term.HydrationBlob,
		})
		if err != nil {
			r.transition(ctx, lease, models.ObservedError, "create_failed", err.Error())
			return
		}
		lease.InstanceID = instanceID
		r.transition(ctx, lease, models.ObservedProvisioning, "create", instanceID)

	case lease.DesiredState == models.DesiredActive && lease.ObservedState == models.ObservedProvisioning:
		state, err := p.Status(ctx, lease.InstanceID)
		if err != nil {
			r.transition(ctx, lease, models.ObservedError, "status_failed", err.Error())
			return
		}
		r.transition(ctx, lease, state, "status", string(state))

	case lease.DesiredState == models.DesiredPaused && lease.ObservedState == models.ObservedActive:
		if err := p.Pause(ctx, lease.InstanceID); err != nil {
			r.transition(ctx, lease, models.ObservedError, "pause_failed", err.Error())
			return
		}
		r.transition(ctx, lease, models.ObservedPaused, "pause", "")

	case lease.DesiredState == models.DesiredActive && lease.ObservedState == models.ObservedPaused:
		if err := p.Resume(ctx, lease.InstanceID); err != nil {
			r.transition(ctx, lease, models.ObservedError, "resume_failed", err.Error())
			return
		}
		r.transition(ctx, lease, models.ObservedActive, "resume", "")

	case lease.DesiredState == models.DesiredDestroyed && lease.ObservedState != models.ObservedDestroyed:
		if err := p.Destroy(ctx, lease.InstanceID); err != nil {
			r.transition(ctx, lease, models.ObservedError, "destroy_failed", err.Error())
			return
		}
		r.transition(ctx, lease, models.ObservedDestroyed, "destroy", "")
	}
}

func (r *Reconciler) transition(ctx context.Context, lease *models.SandboxLease, newState models.SandboxObservedState, eventType, payload string) {
	lease.ObservedState = newState
	lease.UpdatedAt = time.Now().UTC()
	if newState == models.ObservedError {
		lease.LastError = payload
	}
	if err := r.store.UpdateLease(ctx, lease); err != nil {
		r.log.Error("reconciler: update lease", "lease_id", lease.ID, "error", err)
	}

	payloadJSON, _ := json.Marshal(map[string]string{"detail": payload})
	evt := &models.LeaseEvent{
		ID:        uuid.NewString(),
		LeaseID:   lease.ID,
		Provider:  lease.Provider,
		Type:      eventType,
		Payload:   string(payloadJSON),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.RecordLeaseEvent(ctx, evt); err != nil {
		r.log.Error("reconciler: record lease event", "lease_id", lease.ID, "error", err)
	}
}

// CurrentLease returns the latest persisted view of a lease, used by
// Resolver.awaitConvergence to poll without duplicating reconcile logic.
func (r *Reconciler) CurrentLease(ctx context.Context, leaseID string) (*models.SandboxLease, error) {
	return r.store.GetLease(ctx, leaseID)
}

// Destroy sets a lease's desired state to destroyed and reconciles it
// immediately, used by Resolver.DeleteThread's cascade.
func (r *Reconciler) Destroy(ctx context.Context, lease *models.SandboxLease) error {
	lease.DesiredState = models.DesiredDestroyed
	if err := r.store.UpdateLease(ctx, lease); err != nil {
		return err
	}
	r.step(ctx, lease)
	return nil
}
