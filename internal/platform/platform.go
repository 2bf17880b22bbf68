// Package platform defines the Platform Capability abstraction: one
// implementation per OS, selected at build time via Go build tags so that
// no dynamic dispatch is introduced in the data-plane hot path.
package platform

import (
	"net/netip"

	"golang.zx2c4.com/wireguard/tun"
)

// TUNHandle is the result of OpenTUN: a read/write handle of raw IP frames
// plus the name the OS actually assigned the interface (which may differ
// from the requested hint).
type TUNHandle struct {
	Device tun.Device
	Name   string
}

// Capability is the abstract surface the core depends on.
type Capability interface {
	// OpenTUN creates the virtual network interface and returns a handle
	// for raw IP frame I/O plus the OS-assigned interface name.
	OpenTUN(nameHint string, mtu int) (TUNHandle, error)

	// SetAddress assigns an interface address. Idempotent.
	SetAddress(ifaceName string, addr netip.Prefix) error

	// AddRoute adds a route for cidr via ifaceName. Idempotent where
	// possible.
	AddRoute(ifaceName string, cidr netip.Prefix) error

	// DelRoute removes a route. A missing route is not an error.
	DelRoute(ifaceName string, cidr netip.Prefix) error

	// ApplyDNS applies resolver configuration for the interface,
	// best-effort where the resolver integration is not available.
	ApplyDNS(ifaceName string, servers []netip.Addr) error

	// ClearDNS undoes ApplyDNS.
	ClearDNS(ifaceName string) error

	// Capabilities reports which of the above operations are actually
	// effective on this host.
	Capabilities() []string
}
