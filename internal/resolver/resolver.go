// Package resolver implements Leon's five-layer resource chain
// (thread -> session -> abstract_terminal -> lease -> instance), the lease
// reconciler that drives desired/observed convergence, and periodic orphan
// detection (§4.2 Resource Resolver).
package resolver

import (
	"context"
	"time"

	"github.com/leon-agent/leon/internal/errs"
	"github.com/leon-agent/leon/internal/models"
)

// Store is the persistence boundary the resolver needs: sessions,
// abstract terminals, and leases, keyed the way the chain walks them.
// Grounded on internal/sessions/store.go's Store interface shape
// (Create/Get/GetOrCreate), generalized from one table to the chain's
// three.
type Store interface {
	GetOrCreateSession(ctx context.Context, threadID string, policy models.SessionPolicy) (*models.ChatSession, error)
	GetOrCreateTerminal(ctx context.Context, sessionID string, defaultCwd string) (*models.AbstractTerminal, error)
	UpdateTerminal(ctx context.Context, t *models.AbstractTerminal) error
	GetOrCreateLease(ctx context.Context, sessionID, provider string) (*models.SandboxLease, error)
	GetLease(ctx context.Context, leaseID string) (*models.SandboxLease, error)
	UpdateLease(ctx context.Context, l *models.SandboxLease) error
	RecordLeaseEvent(ctx context.Context, e *models.LeaseEvent) error

	// ListNonConverged returns every lease whose observed state has not
	// yet reached its desired state, for the reconciler's tick loop.
	ListNonConverged(ctx context.Context) ([]*models.SandboxLease, error)

	// ListLeasesWithInstance returns every lease that has a provider
	// instance id assigned, converged or not, for orphan detection.
	ListLeasesWithInstance(ctx context.Context) ([]*models.SandboxLease, error)

	// SessionsForThread lists every session ever bound to a thread, for
	// thread-delete cleanup (§4.2 "Thread-delete cleanup").
	SessionsForThread(ctx context.Context, threadID string) ([]*models.ChatSession, error)
	LeaseBySession(ctx context.Context, sessionID string) (*models.SandboxLease, error)
	DeleteThreadCascade(ctx context.Context, threadID string) error
}

// Handle is the resolved, ready-to-use physical terminal returned by
// Resolve (§4.2 step 4: "Return a handle").
type Handle struct {
	ThreadID string
	Session  *models.ChatSession
	Terminal *models.AbstractTerminal
	Lease    *models.SandboxLease
}

// Config bounds how long Resolve waits for a lease to converge.
type Config struct {
	ConvergeTimeout time.Duration
	ConvergePoll    time.Duration
	DefaultProvider string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConvergeTimeout: 30 * time.Second,
		ConvergePoll:    250 * time.Millisecond,
		DefaultProvider: "firecracker",
	}
}

// Resolver implements the chain and delegates convergence to a
// Reconciler (reconciler.go).
type Resolver struct {
	store       Store
	reconciler  *Reconciler
	cfg         Config
}

// New wires a Resolver to its store and reconciler.
func New(store Store, reconciler *Reconciler, cfg Config) *Resolver {
	if cfg.ConvergeTimeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Resolver{store: store, reconciler: reconciler, cfg: cfg}
}

// Resolve walks the five-layer chain for threadID, creating any missing
// intermediate rows, and blocks (up to cfg.ConvergeTimeout) for the lease
// to reach an active observed state before returning a handle (§4.2 steps
// 1-4).
func (r *Resolver) Resolve(ctx context.Context, threadID string) (*Handle, error) {
	session, err := r.store.GetOrCreateSession(ctx, threadID, models.DefaultSessionPolicy())
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientUpstream, "resolver.Resolve", "load session", err)
	}

	terminal, err := r.store.GetOrCreateTerminal(ctx, session.ID, session.Policy.DefaultCwd)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientUpstream, "resolver.Resolve", "load terminal", err)
	}

	lease, err := r.store.GetOrCreateLease(ctx, session.ID, r.cfg.DefaultProvider)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientUpstream, "resolver.Resolve", "load lease", err)
	}

	if lease.ObservedState != models.ObservedActive {
		r.reconciler.Signal(lease.ID)
		lease, err = r.awaitConvergence(ctx, lease.ID)
		if err != nil {
			return nil, err
		}
	}

	return &Handle{ThreadID: threadID, Session: session, Terminal: terminal, Lease: lease}, nil
}

// UpdateTerminal persists a mutated abstract terminal (new cwd, env delta,
// or provider hydration blob), bumping its Version. Called by
// internal/toolexec after an exec that changed terminal state (§3
// PhysicalTerminalRuntime, "version bumped on any mutation").
func (r *Resolver) UpdateTerminal(ctx context.Context, t *models.AbstractTerminal) error {
	if err := r.store.UpdateTerminal(ctx, t); err != nil {
		return errs.Wrap(errs.KindTransientUpstream, "resolver.UpdateTerminal", "persist terminal", err)
	}
	return nil
}

// awaitConvergence polls the store for the lease to reach its desired
// state, returning errs.ErrSandboxUnavailable on timeout (§4.2 step 3).
func (r *Resolver) awaitConvergence(ctx context.Context, leaseID string) (*models.SandboxLease, error) {
	deadline := time.Now().Add(r.cfg.ConvergeTimeout)
	ticker := time.NewTicker(r.cfg.ConvergePoll)
	defer ticker.Stop()

	for {
		lease, err := r.reconciler.CurrentLease(ctx, leaseID)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransientUpstream, "resolver.Resolve", "poll lease", err)
		}
		if lease.Converged() {
			if lease.ObservedState != models.ObservedActive {
				return nil, errs.ErrSandboxUnavailable
			}
			return lease, nil
		}
		if time.Now().After(deadline) {
			return nil, errs.ErrSandboxUnavailable
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeleteThread tears down every resource a thread owns. The provider-facing
// destroy calls happen first so a failed cascade never leaves compute
// running unowned; the store's DeleteThreadCascade then drops the rows in
// one transaction: run events -> runs -> queued messages -> summaries ->
// checkpoints -> abstract terminals -> leases -> sessions -> thread row.
func (r *Resolver) DeleteThread(ctx context.Context, threadID string) error {
	sessions, err := r.store.SessionsForThread(ctx, threadID)
	if err != nil {
		return errs.Wrap(errs.KindTransientUpstream, "resolver.DeleteThread", "list sessions", err)
	}
	for _, s := range sessions {
		lease, err := r.store.LeaseBySession(ctx, s.ID)
		if err != nil {
			continue // no lease for this session; nothing to destroy
		}
		if err := r.reconciler.Destroy(ctx, lease); err != nil {
			return errs.Wrap(errs.KindTransientUpstream, "resolver.DeleteThread", "destroy lease", err)
		}
	}
	return r.store.DeleteThreadCascade(ctx, threadID)
}
