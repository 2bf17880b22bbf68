//go:build linux

package platform

import (
	"net"
	"net/netip"
	"os/exec"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/harmony-wg/agent/internal/agenterr"
)

// linuxCapability is grounded on felartu-wgrest/handlers/api_device.go's
// netlink usage (netlink.LinkByName, netlink.AddrAdd, netlink.LinkSetUp,
// netlink.LinkDel), adapted from managing a kernel WireGuard link to
// managing the real TUN-backed interface that tun.CreateTUN already created
// (this agent's engine is strictly userspace).
type linuxCapability struct{}

func New() Capability {
	return linuxCapability{}
}

func (linuxCapability) OpenTUN(nameHint string, mtu int) (TUNHandle, error) {
	dev, err := tun.CreateTUN(nameHint, mtu)
	if err != nil {
		return TUNHandle{}, agenterr.Wrap(agenterr.KindPlatformError, err, "create tun device")
	}
	name, err := dev.Name()
	if err != nil || name == "" {
		name = nameHint
	}
	return TUNHandle{Device: dev, Name: name}, nil
}

func (linuxCapability) SetAddress(ifaceName string, addr netip.Prefix) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "lookup interface "+ifaceName)
	}
	nlAddr, err := netlink.ParseAddr(addr.String())
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "parse address "+addr.String())
	}
	if err := netlink.AddrReplace(link, nlAddr); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "set address on "+ifaceName)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "bring up "+ifaceName)
	}
	return nil
}

func (linuxCapability) AddRoute(ifaceName string, cidr netip.Prefix) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "lookup interface "+ifaceName)
	}
	_, ipNet, err := net.ParseCIDR(cidr.String())
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "parse route "+cidr.String())
	}
	route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: ipNet}
	if err := netlink.RouteReplace(route); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "add route "+cidr.String())
	}
	return nil
}

func (linuxCapability) DelRoute(ifaceName string, cidr netip.Prefix) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		// Interface already gone: the route is gone with it.
		return nil
	}
	_, ipNet, err := net.ParseCIDR(cidr.String())
	if err != nil {
		return nil
	}
	route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: ipNet}
	_ = netlink.RouteDel(route)
	return nil
}

func (linuxCapability) ApplyDNS(ifaceName string, servers []netip.Addr) error {
	if len(servers) == 0 {
		return nil
	}
	args := append([]string{"dns", ifaceName}, addrStrings(servers)...)
	// Best-effort: resolvectl (systemd-resolved) is not guaranteed to be
	// present.
	_ = exec.Command("resolvectl", args...).Run()
	return nil
}

func (linuxCapability) ClearDNS(ifaceName string) error {
	_ = exec.Command("resolvectl", "revert", ifaceName).Run()
	return nil
}

func (linuxCapability) Capabilities() []string {
	caps := []string{"tun", "address", "routes"}
	if _, err := exec.LookPath("resolvectl"); err == nil {
		caps = append(caps, "dns")
	}
	return caps
}

func addrStrings(addrs []netip.Addr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
