package netconfig

import (
	"fmt"
	"net"
	"net/netip"
)

// resolveEndpoint handles a peer endpoint given as "hostname:port" rather
// than "ip:port" — netip.ParseAddrPort only accepts the latter, but spec
// §6.1's "host:port" wording allows either.
func resolveEndpoint(hostport string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return netip.AddrPort{}, err
	}
	ips, err := net.LookupHost(host)
	if err != nil || len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("resolve host %q: %w", host, err)
	}
	addr, err := netip.ParseAddr(ips[0])
	if err != nil {
		return netip.AddrPort{}, err
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return netip.AddrPortFrom(addr, port), nil
}
