// Package manager implements the Tunnel Manager registry: a named map from
// network name to *tunnel.Tunnel, dispatching control-plane operations to
// the right tunnel and serializing conflicting operations per-network
// (tunnel.Tunnel already serializes its own lifecycle calls, so the
// registry itself only needs to protect the map).
package manager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/netconfig"
	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/platform"
	"github.com/harmony-wg/agent/internal/tunnel"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// Manager owns the named registry of tunnels. Tunnels are registered once
// at startup and never removed: a Stopped tunnel stays in the registry
// rather than being deleted on disconnect.
type Manager struct {
	logger *slog.Logger
	plat   platform.Capability

	mu      sync.RWMutex
	tunnels map[string]*tunnel.Tunnel
}

func New(logger *slog.Logger, plat platform.Capability) *Manager {
	return &Manager{
		logger:  logger,
		plat:    plat,
		tunnels: make(map[string]*tunnel.Tunnel),
	}
}

// Register adds a tunnel to the registry under its network name. Calling
// Register twice for the same name replaces the prior entry, which callers
// should only do via Reload.
func (m *Manager) Register(name string, t *tunnel.Tunnel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tunnels[name] = t
}

// RegisterFromConfig builds and registers a tunnel.Tunnel for every network
// in cfg, replacing any prior registration for the same name.
func (m *Manager) RegisterFromConfig(cfg *netconfig.Config) {
	for name, nc := range cfg.Networks {
		m.Register(name, tunnel.New(m.logger, m.plat, nc))
	}
}

func (m *Manager) lookup(name string) (*tunnel.Tunnel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tunnels[name]
	if !ok {
		return nil, agenterr.Newf(agenterr.KindNetworkNotFound, "network %q is not registered", name)
	}
	return t, nil
}

// Start brings the named tunnel up.
func (m *Manager) Start(ctx context.Context, name string) error {
	t, err := m.lookup(name)
	if err != nil {
		return err
	}
	return t.Start(ctx)
}

// Stop tears the named tunnel down.
func (m *Manager) Stop(ctx context.Context, name string) error {
	t, err := m.lookup(name)
	if err != nil {
		return err
	}
	return t.Stop(ctx)
}

// Reload applies new configuration to the named tunnel (stop-then-start).
func (m *Manager) Reload(ctx context.Context, name string, cfg *netconfig.NetworkConfig) error {
	t, err := m.lookup(name)
	if err != nil {
		return err
	}
	return t.Reload(ctx, cfg)
}

// Status returns the named tunnel's stats snapshot. Status never modifies
// state.
func (m *Manager) Status(name string) (tunnel.Stats, error) {
	t, err := m.lookup(name)
	if err != nil {
		return tunnel.Stats{}, err
	}
	return t.Stats()
}

// StatusAll returns every registered tunnel's stats snapshot, keyed by
// network name.
func (m *Manager) StatusAll() map[string]tunnel.Stats {
	m.mu.RLock()
	names := make([]string, 0, len(m.tunnels))
	tunnels := make([]*tunnel.Tunnel, 0, len(m.tunnels))
	for name, t := range m.tunnels {
		names = append(names, name)
		tunnels = append(tunnels, t)
	}
	m.mu.RUnlock()

	out := make(map[string]tunnel.Stats, len(names))
	for i, name := range names {
		s, err := tunnels[i].Stats()
		if err != nil {
			m.logger.Warn("failed to read tunnel stats", "network", name, "error", err)
			continue
		}
		out[name] = s
	}
	return out
}

// AddPeer, RemovePeer, and UpdateEndpoint dispatch to the named tunnel's
// running engine.
func (m *Manager) AddPeer(name string, p peerconfig.PeerConfig) error {
	t, err := m.lookup(name)
	if err != nil {
		return err
	}
	return t.AddPeer(p)
}

func (m *Manager) RemovePeer(name string, pub wgkey.PublicKey) error {
	t, err := m.lookup(name)
	if err != nil {
		return err
	}
	return t.RemovePeer(pub)
}

func (m *Manager) UpdateEndpoint(name string, pub wgkey.PublicKey, endpoint string) error {
	t, err := m.lookup(name)
	if err != nil {
		return err
	}
	return t.UpdateEndpoint(pub, endpoint)
}

// AutoStart starts every registered, enabled tunnel. Failures are logged but
// do not abort the remaining networks — each network still attempts to
// start regardless of an earlier one's failure.
func (m *Manager) AutoStart(ctx context.Context) {
	m.mu.RLock()
	type entry struct {
		name string
		t    *tunnel.Tunnel
	}
	entries := make([]entry, 0, len(m.tunnels))
	for name, t := range m.tunnels {
		entries = append(entries, entry{name, t})
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if !e.t.Enabled() {
			m.logger.Info("network disabled, skipping auto-start", "network", e.name)
			continue
		}
		if err := e.t.Start(ctx); err != nil {
			m.logger.Error("auto-start failed", "network", e.name, "error", err)
			continue
		}
		m.logger.Info("auto-start succeeded", "network", e.name)
	}
}

// ShutdownAll stops every tunnel that is Active, Starting or in Error, in
// parallel, and awaits completion before returning.
// shutdownConcurrency bounds how many tunnels ShutdownAll stops at once, the
// same buffered-channel semaphore idiom used where the pack has no direct
// import of golang.org/x/sync/errgroup to reach for instead (it's present
// only as an indirect dependency in the pack's go.mod files, never imported
// by any of their own code).
const shutdownConcurrency = 8

func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.RLock()
	tunnels := make([]*tunnel.Tunnel, 0, len(m.tunnels))
	for _, t := range m.tunnels {
		tunnels = append(tunnels, t)
	}
	m.mu.RUnlock()

	sem := make(chan struct{}, shutdownConcurrency)
	var wg sync.WaitGroup
	for _, t := range tunnels {
		if st := t.State(); !st.CanStop() && st != tunnel.Error {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t *tunnel.Tunnel) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := t.Stop(ctx); err != nil {
				m.logger.Warn("shutdown: failed to stop tunnel", "network", t.Name(), "error", err)
			}
		}(t)
	}
	wg.Wait()
}
