package engine

import (
	"fmt"
	"strings"

	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// buildFullConfig renders the complete UAPI IpcSet configuration string for
// initial device setup: private key, listen port, and every peer, each with
// its allowed IPs and keepalive interval. Grounded on
// kakuremichi-kakuremichi-agent/internal/wireguard/device.go's
// configureDevice, generalized to an arbitrary peer set.
func buildFullConfig(priv wgkey.PrivateKey, listenPort uint16, peers []peerconfig.PeerConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "private_key=%s\n", priv.HexString())
	fmt.Fprintf(&b, "listen_port=%d\n", listenPort)
	b.WriteString("replace_peers=true\n")
	for _, p := range peers {
		writePeerBlock(&b, p, true)
	}
	return b.String()
}

// buildAddPeerConfig renders an incremental UAPI fragment adding (or
// updating) a single peer without disturbing the rest of the device's
// configuration.
func buildAddPeerConfig(p peerconfig.PeerConfig) string {
	var b strings.Builder
	writePeerBlock(&b, p, true)
	return b.String()
}

// buildRemovePeerConfig renders the UAPI fragment removing one peer.
func buildRemovePeerConfig(pub wgkey.PublicKey) string {
	var b strings.Builder
	fmt.Fprintf(&b, "public_key=%s\n", pub.HexString())
	b.WriteString("remove=true\n")
	return b.String()
}

// buildUpdateEndpointConfig renders the UAPI fragment updating a known
// peer's endpoint without touching its allowed IPs.
func buildUpdateEndpointConfig(pub wgkey.PublicKey, endpoint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "public_key=%s\n", pub.HexString())
	fmt.Fprintf(&b, "endpoint=%s\n", endpoint)
	return b.String()
}

func writePeerBlock(b *strings.Builder, p peerconfig.PeerConfig, replaceAllowedIPs bool) {
	fmt.Fprintf(b, "public_key=%s\n", p.PublicKey.HexString())
	if p.Endpoint != nil {
		fmt.Fprintf(b, "endpoint=%s\n", p.Endpoint.String())
	}
	if replaceAllowedIPs {
		b.WriteString("replace_allowed_ips=true\n")
	}
	for _, ip := range p.AllowedIPs {
		fmt.Fprintf(b, "allowed_ip=%s\n", ip.String())
	}
	fmt.Fprintf(b, "persistent_keepalive_interval=%d\n", p.KeepaliveOrDefault())
}
