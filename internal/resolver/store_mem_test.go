package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/leon-agent/leon/internal/models"
	"github.com/leon-agent/leon/internal/provider"
)

var errMemStoreNotFound = errors.New("resolver test store: not found")

// memStore is a minimal in-memory Store double for exercising the
// resolver/reconciler without a real sqlite-backed store.
type memStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.ChatSession // by thread id
	terminals map[string]*models.AbstractTerminal
	leases    map[string]*models.SandboxLease
	events    []*models.LeaseEvent
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[string]*models.ChatSession),
		terminals: make(map[string]*models.AbstractTerminal),
		leases:    make(map[string]*models.SandboxLease),
	}
}

func (m *memStore) GetOrCreateSession(ctx context.Context, threadID string, policy models.SessionPolicy) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[threadID]; ok {
		return s, nil
	}
	s := &models.ChatSession{ID: "session-" + uuid.NewString(), ThreadID: threadID, Policy: policy, Active: true}
	m.sessions[threadID] = s
	return s, nil
}

func (m *memStore) GetOrCreateTerminal(ctx context.Context, sessionID string, defaultCwd string) (*models.AbstractTerminal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.terminals[sessionID]; ok {
		return t, nil
	}
	t := &models.AbstractTerminal{ID: "term-" + uuid.NewString(), SessionID: sessionID, Cwd: defaultCwd}
	m.terminals[sessionID] = t
	return t, nil
}

func (m *memStore) UpdateTerminal(ctx context.Context, t *models.AbstractTerminal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminals[t.SessionID] = t
	return nil
}

func (m *memStore) GetOrCreateLease(ctx context.Context, sessionID, provider string) (*models.SandboxLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leases {
		if l.SessionID == sessionID {
			return l, nil
		}
	}
	l := &models.SandboxLease{
		ID:            "lease-" + uuid.NewString(),
		SessionID:     sessionID,
		Provider:      provider,
		DesiredState:  models.DesiredActive,
		ObservedState: models.ObservedUnknown,
	}
	m.leases[l.ID] = l
	return l, nil
}

func (m *memStore) GetLease(ctx context.Context, leaseID string) (*models.SandboxLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[leaseID]
	if !ok {
		return nil, errMemStoreNotFound
	}
	return l, nil
}

func (m *memStore) UpdateLease(ctx context.Context, l *models.SandboxLease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[l.ID] = l
	return nil
}

func (m *memStore) RecordLeaseEvent(ctx context.Context, e *models.LeaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) ListNonConverged(ctx context.Context) ([]*models.SandboxLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SandboxLease
	for _, l := range m.leases {
		if !l.Converged() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) ListLeasesWithInstance(ctx context.Context) ([]*models.SandboxLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SandboxLease
	for _, l := range m.leases {
		if l.InstanceID != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) SessionsForThread(ctx context.Context, threadID string) ([]*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChatSession
	if s, ok := m.sessions[threadID]; ok {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) LeaseBySession(ctx context.Context, sessionID string) (*models.SandboxLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leases {
		if l.SessionID == sessionID {
			return l, nil
		}
	}
	return nil, errMemStoreNotFound
}

func (m *memStore) DeleteThreadCascade(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, threadID)
	delete(m.sessions, threadID)
	return nil
}

// fakeProvider is an in-memory SandboxProvider test double. Create always
// lands in Provisioning; Status reports whatever nextStatus is set to, so
// tests can drive the reconciler through provisioning -> active/error.
type fakeProvider struct {
	mu             sync.Mutex
	name           string
	createErr      error
	nextStatus     models.SandboxObservedState
	statusErr      error
	pauseErr       error
	resumeErr      error
	destroyErr     error
	destroyed      []string
	lastCreateSpec provider.CreateSpec
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, nextStatus: models.ObservedActive}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Create(ctx context.Context, spec provider.CreateSpec) (string, error) {
	p.mu.Lock()
	p.lastCreateSpec = spec
	p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	return "inst-" + uuid.NewString(), nil
}

func (p *fakeProvider) Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return models.ObservedError, p.statusErr
	}
	return p.nextStatus, nil
}

func (p *fakeProvider) Pause(ctx context.Context, instanceID string) error {
	return p.pauseErr
}

func (p *fakeProvider) Resume(ctx context.Context, instanceID string) error {
	return p.resumeErr
}

func (p *fakeProvider) Destroy(ctx context.Context, instanceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = append(p.destroyed, instanceID)
	return p.destroyErr
}

var _ provider.SandboxProvider = (*fakeProvider)(nil)
