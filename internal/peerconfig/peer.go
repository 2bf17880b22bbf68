// Package peerconfig holds the validated PeerConfig value type, grounded on
// original_source/src/wireguard/peer.rs's PeerConfig (with endpoint treated
// as optional, unlike the original's non-optional String, since a peer
// behind NAT may have none and rely on the remote side initiating).
package peerconfig

import (
	"net/netip"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// DefaultKeepaliveSecs is the default persistent_keepalive_secs applied
// when a peer omits one.
const DefaultKeepaliveSecs = 25

// PeerConfig is one named peer in a NetworkConfig's ordered peer list.
type PeerConfig struct {
	Name                    string
	PublicKey               wgkey.PublicKey
	Endpoint                *netip.AddrPort // nil: peer must initiate
	AllowedIPs              []netip.Prefix
	PersistentKeepaliveSecs *uint16
}

// Validate enforces a peer's invariants: public key is 32 bytes (guaranteed
// by the wgkey.PublicKey type itself), allowed-IP entries parse as valid
// CIDRs (guaranteed by the []netip.Prefix type), and keepalive, if set, is
// in [1, 65535].
func (p PeerConfig) Validate() error {
	if p.Name == "" {
		return agenterr.New(agenterr.KindConfigError, "peer name must not be empty")
	}
	if p.PublicKey.IsZero() {
		return agenterr.Newf(agenterr.KindConfigError, "peer %q: public key required", p.Name)
	}
	if len(p.AllowedIPs) == 0 {
		return agenterr.Newf(agenterr.KindConfigError, "peer %q: at least one allowed_ips entry required", p.Name)
	}
	if p.PersistentKeepaliveSecs != nil && *p.PersistentKeepaliveSecs < 1 {
		return agenterr.Newf(agenterr.KindConfigError, "peer %q: persistent_keepalive_secs must be in [1, 65535]", p.Name)
	}
	return nil
}

// KeepaliveOrDefault returns the peer's configured keepalive interval, or
// DefaultKeepaliveSecs when unset. Used both for UAPI configuration and for
// the "active" formula (last_handshake within 3×keepalive).
func (p PeerConfig) KeepaliveOrDefault() uint16 {
	if p.PersistentKeepaliveSecs != nil {
		return *p.PersistentKeepaliveSecs
	}
	return DefaultKeepaliveSecs
}
