//go:build darwin

package platform

import (
	"net/netip"
	"os/exec"

	"golang.zx2c4.com/wireguard/tun"

	"github.com/harmony-wg/agent/internal/agenterr"
)

// darwinCapability shells out to the standard BSD route/ifconfig/
// networksetup command-line tools: the reference corpus carries no Go
// library wrapping macOS routing tables the way vishvananda/netlink wraps
// Linux's, so route/DNS changes here are best-effort, mirroring how DNS
// application is treated on every platform.
type darwinCapability struct{}

func New() Capability {
	return darwinCapability{}
}

func (darwinCapability) OpenTUN(nameHint string, mtu int) (TUNHandle, error) {
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

func (darwinCapability) SetAddress(ifaceName string, addr netip.Prefix) error {
	args := []string{ifaceName, addr.Addr().String(), addr.Addr().String()}
	if err := exec.Command("ifconfig", args...).Run(); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "set address on "+ifaceName)
	}
	return nil
}

func (darwinCapability) AddRoute(ifaceName string, cidr netip.Prefix) error {
	if err := exec.Command("route", "-q", "-n", "add", "-inet", cidr.String(), "-interface", ifaceName).Run(); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "add route "+cidr.String())
	}
	return nil
}

func (darwinCapability) DelRoute(ifaceName string, cidr netip.Prefix) error {
	// Best-effort; a missing route is not an error.
	_ = exec.Command("route", "-q", "-n", "delete", "-inet", cidr.String(), "-interface", ifaceName).Run()
	return nil
}

func (darwinCapability) ApplyDNS(ifaceName string, servers []netip.Addr) error {
	if len(servers) == 0 {
		return nil
	}
	args := []string{"-setdnsservers", ifaceName}
	for _, s := range servers {
		args = append(args, s.String())
	}
	_ = exec.Command("networksetup", args...).Run()
	return nil
}

func (darwinCapability) ClearDNS(ifaceName string) error {
	_ = exec.Command("networksetup", "-setdnsservers", ifaceName, "empty").Run()
	return nil
}

func (darwinCapability) Capabilities() []string {
	caps := []string{"tun", "address", "routes"}
	if _, err := exec.LookPath("networksetup"); err == nil {
		caps = append(caps, "dns")
	}
	return caps
}
