package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/netconfig"
	"github.com/harmony-wg/agent/internal/tunnel"
)

func newTestManager() *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, nil)
}

func TestLookupUnknownNetworkReturnsNetworkNotFound(t *testing.T) {
	m := newTestManager()

	_, err := m.Status("nonexistent")
	var agentErr *agenterr.Error
	if !errors.As(err, &agentErr) || agentErr.Kind != agenterr.KindNetworkNotFound {
		t.Fatalf("expected network_not_found, got %v", err)
	}

	if err := m.Start(context.Background(), "nonexistent"); !errors.As(err, &agentErr) || agentErr.Kind != agenterr.KindNetworkNotFound {
		t.Fatalf("expected network_not_found from Start, got %v", err)
	}
}

func TestStatusNeverModifiesState(t *testing.T) {
	m := newTestManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &netconfig.NetworkConfig{Name: "home", Interface: "wg-test"}
	tun := tunnel.New(logger, nil, cfg)
	m.Register("home", tun)

	before := tun.State()
	if _, err := m.Status("home"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if tun.State() != before {
		t.Fatalf("Status mutated state from %v to %v", before, tun.State())
	}
}

func TestRegisterFromConfigRegistersEveryNetwork(t *testing.T) {
	m := newTestManager()
	cfg := &netconfig.Config{
		Networks: map[string]*netconfig.NetworkConfig{
			"home":   {Name: "home", Interface: "wg-home"},
			"office": {Name: "office", Interface: "wg-office"},
		},
	}
	m.RegisterFromConfig(cfg)

	all := m.StatusAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 networks, got %d: %v", len(all), all)
	}
}

func TestAutoStartSkipsDisabledNetworks(t *testing.T) {
	m := newTestManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	disabled := tunnel.New(logger, nil, &netconfig.NetworkConfig{Name: "disabled", EnableWireguard: false})
	m.Register("disabled", disabled)

	m.AutoStart(context.Background())

	if disabled.State() != tunnel.Uninitialized {
		t.Fatalf("expected disabled network to remain Uninitialized, got %v", disabled.State())
	}
}

func TestShutdownAllSkipsTunnelsThatCannotStop(t *testing.T) {
	m := newTestManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stopped := tunnel.New(logger, nil, &netconfig.NetworkConfig{Name: "idle", Interface: "wg-idle"})
	m.Register("idle", stopped)

	// Must not panic or block even though the tunnel was never started.
	m.ShutdownAll(context.Background())

	if stopped.State() != tunnel.Uninitialized {
		t.Fatalf("expected untouched state, got %v", stopped.State())
	}
}
