package tunnel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/netconfig"
	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/wgkey"
)

func TestStateTransitionPredicates(t *testing.T) {
	cases := []struct {
		state    State
		canStart bool
		canStop  bool
	}{
		{Uninitialized, true, false},
		{Starting, false, true},
		{Active, false, true},
		{Stopping, false, false},
		{Stopped, true, false},
		{Error, true, false},
	}
	for _, c := range cases {
		if got := c.state.CanStart(); got != c.canStart {
			t.Errorf("%v.CanStart() = %v, want %v", c.state, got, c.canStart)
		}
		if got := c.state.CanStop(); got != c.canStop {
			t.Errorf("%v.CanStop() = %v, want %v", c.state, got, c.canStop)
		}
	}
}

func TestStateStringCollapsesUninitializedToStopped(t *testing.T) {
	if Uninitialized.String() != "stopped" {
		t.Errorf("Uninitialized.String() = %q, want %q", Uninitialized.String(), "stopped")
	}
	if Stopped.String() != "stopped" {
		t.Errorf("Stopped.String() = %q, want %q", Stopped.String(), "stopped")
	}
}

func newTestTunnel(name string) *Tunnel {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &netconfig.NetworkConfig{Name: name, Interface: "wg-test", EnableWireguard: true}
	return New(logger, nil, cfg)
}

func TestOperationsRequireActiveEngine(t *testing.T) {
	tun := newTestTunnel("office")
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	peer := peerconfig.PeerConfig{
		Name:       "laptop",
		PublicKey:  priv.PublicKey(),
		AllowedIPs: []netip.Prefix{netip.MustParsePrefix("10.0.0.2/32")},
	}

	if err := tun.AddPeer(peer); !errors.Is(err, agenterr.New(agenterr.KindInvalidState, "")) {
		t.Errorf("expected invalid_state adding peer to inactive tunnel, got %v", err)
	}
	if err := tun.RemovePeer(peer.PublicKey); !errors.Is(err, agenterr.New(agenterr.KindInvalidState, "")) {
		t.Errorf("expected invalid_state removing peer from inactive tunnel, got %v", err)
	}
	if err := tun.UpdateEndpoint(peer.PublicKey, "203.0.113.5:51820"); !errors.Is(err, agenterr.New(agenterr.KindInvalidState, "")) {
		t.Errorf("expected invalid_state updating endpoint on inactive tunnel, got %v", err)
	}
}

func TestStatsOnUninitializedTunnel(t *testing.T) {
	tun := newTestTunnel("office")
	stats, err := tun.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.State != Uninitialized {
		t.Errorf("expected Uninitialized state, got %v", stats.State)
	}
	if stats.TotalPeers != 0 {
		t.Errorf("expected zero peers, got %d", stats.TotalPeers)
	}
}

func TestDedupeRoutes(t *testing.T) {
	priv1, _ := wgkey.GeneratePrivateKey()
	priv2, _ := wgkey.GeneratePrivateKey()
	shared := netip.MustParsePrefix("10.0.0.0/24")
	peers := []peerconfig.PeerConfig{
		{Name: "a", PublicKey: priv1.PublicKey(), AllowedIPs: []netip.Prefix{shared, netip.MustParsePrefix("192.168.1.1/32")}},
		{Name: "b", PublicKey: priv2.PublicKey(), AllowedIPs: []netip.Prefix{shared}},
	}

	routes := dedupeRoutes(peers)
	if len(routes) != 2 {
		t.Fatalf("expected 2 deduplicated routes, got %d: %v", len(routes), routes)
	}
}

func TestStartFromActiveIsInvalidState(t *testing.T) {
	tun := newTestTunnel("office")
	tun.setState(Active)

	err := tun.Start(context.Background())
	if err == nil {
		t.Fatal("expected error starting an already-active tunnel")
	}
	var agentErr *agenterr.Error
	if !errors.As(err, &agentErr) || agentErr.Kind != agenterr.KindInvalidState {
		t.Errorf("expected invalid_state, got %v", err)
	}
}

func TestStopFromStoppedIsInvalidState(t *testing.T) {
	tun := newTestTunnel("office")
	tun.setState(Stopped)

	err := tun.Stop(context.Background())
	if err == nil {
		t.Fatal("expected error stopping an already-stopped tunnel")
	}
	var agentErr *agenterr.Error
	if !errors.As(err, &agentErr) || agentErr.Kind != agenterr.KindInvalidState {
		t.Errorf("expected invalid_state, got %v", err)
	}
}
