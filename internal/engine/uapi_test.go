package engine

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/wgkey"
)

func mustPeer(t *testing.T, name string, keepalive *uint16) peerconfig.PeerConfig {
	t.Helper()
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return peerconfig.PeerConfig{
		Name:                    name,
		PublicKey:               priv.PublicKey(),
		AllowedIPs:              []netip.Prefix{netip.MustParsePrefix("10.0.0.2/32")},
		PersistentKeepaliveSecs: keepalive,
	}
}

func TestBuildFullConfig(t *testing.T) {
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	peer := mustPeer(t, "laptop", nil)

	out := buildFullConfig(priv, 51820, []peerconfig.PeerConfig{peer})

	if !strings.HasPrefix(out, "private_key="+priv.HexString()+"\n") {
		t.Errorf("expected private_key prefix, got %q", out)
	}
	if !strings.Contains(out, "listen_port=51820\n") {
		t.Errorf("missing listen_port: %q", out)
	}
	if !strings.Contains(out, "replace_peers=true\n") {
		t.Errorf("missing replace_peers: %q", out)
	}
	if !strings.Contains(out, "public_key="+peer.PublicKey.HexString()+"\n") {
		t.Errorf("missing peer public_key: %q", out)
	}
	if !strings.Contains(out, "allowed_ip=10.0.0.2/32\n") {
		t.Errorf("missing allowed_ip: %q", out)
	}
	if !strings.Contains(out, "persistent_keepalive_interval=25\n") {
		t.Errorf("expected default keepalive 25: %q", out)
	}
	if strings.Contains(out, "endpoint=") {
		t.Errorf("unexpected endpoint for peer with none: %q", out)
	}
}

func TestBuildAddPeerConfigWithEndpoint(t *testing.T) {
	peer := mustPeer(t, "phone", nil)
	ep := netip.MustParseAddrPort("203.0.113.5:51820")
	peer.Endpoint = &ep

	out := buildAddPeerConfig(peer)

	if !strings.Contains(out, "endpoint=203.0.113.5:51820\n") {
		t.Errorf("missing endpoint: %q", out)
	}
	if !strings.Contains(out, "replace_allowed_ips=true\n") {
		t.Errorf("missing replace_allowed_ips: %q", out)
	}
}

func TestBuildRemovePeerConfig(t *testing.T) {
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub := priv.PublicKey()

	out := buildRemovePeerConfig(pub)

	want := "public_key=" + pub.HexString() + "\nremove=true\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestBuildUpdateEndpointConfig(t *testing.T) {
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub := priv.PublicKey()

	out := buildUpdateEndpointConfig(pub, "198.51.100.9:51820")

	want := "public_key=" + pub.HexString() + "\nendpoint=198.51.100.9:51820\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if strings.Contains(out, "allowed_ip=") {
		t.Errorf("update endpoint must not touch allowed IPs: %q", out)
	}
}

func TestBuildFullConfigCustomKeepalive(t *testing.T) {
	ka := uint16(10)
	peer := mustPeer(t, "server", &ka)
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	out := buildFullConfig(priv, 0, []peerconfig.PeerConfig{peer})

	if !strings.Contains(out, "persistent_keepalive_interval=10\n") {
		t.Errorf("expected custom keepalive 10: %q", out)
	}
}
