package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/provider"
)

// Orphan is a provider instance with no corresponding lease row (§4.2
// "Orphan detection").
type Orphan struct {
	Provider   string
	InstanceID string
}

// OrphanScanner periodically queries every lister-capable provider for its
// instances and reports the ones no lease references. New code: nothing in
// the teacher does cross-checking against a provider's own inventory
// (Daytona/Firecracker are driven entirely from Leon's side), so this is a
// supplemented feature grounded directly on §4.2's prose rather than a
// teacher analog; its own tick loop is shaped like Reconciler.Run's.
type OrphanScanner struct {
	store     Store
	providers *provider.Registry
	names     []string
	interval  time.Duration
	log       *slog.Logger
}

// NewOrphanScanner wires a scanner to the providers it should check. names
// lists every registered provider name worth scanning (only those
// implementing provider.InstanceLister actually produce results).
func NewOrphanScanner(store Store, providers *provider.Registry, names []string, interval time.Duration, log *slog.Logger) *OrphanScanner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &OrphanScanner{store: store, providers: providers, names: names, interval: interval, log: log}
}

// Run ticks until ctx is cancelled, logging every orphan it finds each
// pass. Callers wanting programmatic access should call Scan directly
// instead (e.g. from an operator CLI command).
func (s *OrphanScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			orphans, err := s.Scan(ctx)
			if err != nil {
				s.log.Error("orphan scan failed", "error", err)
				continue
			}
			for _, o := range orphans {
				s.log.Warn("orphan sandbox instance detected", "provider", o.Provider, "instance_id", o.InstanceID)
			}
		}
	}
}

// Scan performs one pass: for each lister-capable provider, enumerate its
// instances and report every id with no matching lease row.
func (s *OrphanScanner) Scan(ctx context.Context) ([]Orphan, error) {
	known, err := s.knownInstances(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []Orphan
	for _, name := range s.names {
		p, ok := s.providers.Get(name)
		if !ok {
			continue
		}
		lister, ok := p.(provider.InstanceLister)
		if !ok {
			continue
		}
		ids, err := lister.ListInstances(ctx)
		if err != nil {
			s.log.Error("list instances failed", "provider", name, "error", err)
			continue
		}
		for _, id := range ids {
			if !known[name+"/"+id] {
				orphans = append(orphans, Orphan{Provider: name, InstanceID: id})
			}
		}
	}
	return orphans, nil
}

func (s *OrphanScanner) knownInstances(ctx context.Context) (map[string]bool, error) {
	leases, err := s.store.ListLeasesWithInstance(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(leases))
	for _, l := range leases {
		if l.InstanceID != "" {
			known[l.Provider+"/"+l.InstanceID] = true
		}
	}
	return known, nil
}

// Adopt creates a session+lease pointing at an orphaned instance so Leon
// starts managing it (§4.2 "Operators may adopt"), rather than leaving it
// to Destroy. The lease is recorded as already active+active -- the
// reconciler takes no action on it until its desired state changes.
func (s *OrphanScanner) Adopt(ctx context.Context, o Orphan, threadID string) error {
	session, err := s.store.GetOrCreateSession(ctx, threadID, models.DefaultSessionPolicy())
	if err != nil {
		return err
	}
	lease, err := s.store.GetOrCreateLease(ctx, session.ID, o.Provider)
	if err != nil {
		return err
	}
	lease.InstanceID = o.InstanceID
	lease.ObservedState = models.ObservedActive
	return s.store.UpdateLease(ctx, lease)
}

// Destroy calls provider.destroy on an orphan with no local lease side
// effect (§4.2 "or destroy").
func (s *OrphanScanner) Destroy(ctx context.Context, o Orphan) error {
	p, ok := s.providers.Get(o.Provider)
	if !ok {
		return nil
	}
	return p.Destroy(ctx, o.InstanceID)
}
