//go:build windows

package platform

import (
	"net/netip"
	"os/exec"
	"strconv"

	"golang.zx2c4.com/wireguard/tun"

	"github.com/harmony-wg/agent/internal/agenterr"
)

// windowsCapability is the thinnest of the three implementations: the
// reference corpus has no Windows route/DNS management precedent to ground
// a deeper one on (golang.zx2c4.com/wireguard/tun already pulls in wintun
// for the TUN device itself, which is the one part that is fully worked
// out). Route/DNS management shells out to netsh on a best-effort basis,
// since netsh's own error reporting for an already-absent route or resolver
// entry is not reliable enough to treat failures there as fatal.
type windowsCapability struct{}

func New() Capability {
	return windowsCapability{}
}

func (windowsCapability) OpenTUN(nameHint string, mtu int) (TUNHandle, error) {
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

func (windowsCapability) SetAddress(ifaceName string, addr netip.Prefix) error {
	ones := strconv.Itoa(addr.Bits())
	if err := exec.Command("netsh", "interface", "ip", "set", "address", ifaceName, "static", addr.Addr().String(), ones).Run(); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "set address on "+ifaceName)
	}
	return nil
}

func (windowsCapability) AddRoute(ifaceName string, cidr netip.Prefix) error {
	if err := exec.Command("netsh", "interface", "ip", "add", "route", cidr.String(), ifaceName).Run(); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "add route "+cidr.String())
	}
	return nil
}

func (windowsCapability) DelRoute(ifaceName string, cidr netip.Prefix) error {
	_ = exec.Command("netsh", "interface", "ip", "delete", "route", cidr.String(), ifaceName).Run()
	return nil
}

func (windowsCapability) ApplyDNS(ifaceName string, servers []netip.Addr) error {
	for i, s := range servers {
		if i == 0 {
			_ = exec.Command("netsh", "interface", "ip", "set", "dns", ifaceName, "static", s.String()).Run()
			continue
		}
		_ = exec.Command("netsh", "interface", "ip", "add", "dns", ifaceName, s.String()).Run()
	}
	return nil
}

func (windowsCapability) ClearDNS(ifaceName string) error {
	_ = exec.Command("netsh", "interface", "ip", "set", "dns", ifaceName, "dhcp").Run()
	return nil
}

func (windowsCapability) Capabilities() []string {
	return []string{"tun", "address", "routes"}
}
