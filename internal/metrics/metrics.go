// Package metrics renders the Prometheus-compatible text exposition format.
// It reads but never mutates tunnel/engine state.
package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// NetworkState is one of the five externally visible tunnel states.
type NetworkState int

const (
	StateDisconnected NetworkState = 0
	StateConnecting   NetworkState = 1
	StateConnected    NetworkState = 2
	StateDegraded     NetworkState = 3
	StateFailed       NetworkState = 4
)

// NetworkSnapshot is one network's contribution to a metrics scrape.
type NetworkSnapshot struct {
	Name        string
	State       NetworkState
	TxBytes     uint64
	RxBytes     uint64
	PeersTotal  int
	PeersActive int
}

// Render produces the full text exposition body: one wg_agent_info line
// plus five per-network series, each with HELP/TYPE comment pairs grounded
// on original_source/src/main.rs's metrics() handler style.
func Render(agentVersion string, networks []NetworkSnapshot) string {
	sorted := make([]NetworkSnapshot, len(networks))
	copy(sorted, networks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder

	b.WriteString("# HELP wg_agent_info Static agent build information.\n")
	b.WriteString("# TYPE wg_agent_info gauge\n")
	fmt.Fprintf(&b, "wg_agent_info{version=%q} 1\n", agentVersion)

	b.WriteString("# HELP wg_network_state Tunnel state: 0=disconnected 1=connecting 2=connected 3=degraded 4=failed.\n")
	b.WriteString("# TYPE wg_network_state gauge\n")
	for _, n := range sorted {
		fmt.Fprintf(&b, "wg_network_state{network=%q} %d\n", n.Name, n.State)
	}

	b.WriteString("# HELP wg_bytes_transmitted Total bytes transmitted on the tunnel.\n")
	b.WriteString("# TYPE wg_bytes_transmitted counter\n")
	for _, n := range sorted {
		fmt.Fprintf(&b, "wg_bytes_transmitted{network=%q} %d\n", n.Name, n.TxBytes)
	}

	b.WriteString("# HELP wg_bytes_received Total bytes received on the tunnel.\n")
	b.WriteString("# TYPE wg_bytes_received counter\n")
	for _, n := range sorted {
		fmt.Fprintf(&b, "wg_bytes_received{network=%q} %d\n", n.Name, n.RxBytes)
	}

	b.WriteString("# HELP wg_peers_total Configured peer count.\n")
	b.WriteString("# TYPE wg_peers_total gauge\n")
	for _, n := range sorted {
		fmt.Fprintf(&b, "wg_peers_total{network=%q} %d\n", n.Name, n.PeersTotal)
	}

	b.WriteString("# HELP wg_peers_active Peers with a handshake within 3x their keepalive interval.\n")
	b.WriteString("# TYPE wg_peers_active gauge\n")
	for _, n := range sorted {
		fmt.Fprintf(&b, "wg_peers_active{network=%q} %d\n", n.Name, n.PeersActive)
	}

	return b.String()
}

// Classify maps a tunnel's lifecycle state and peer health into the
// five-value wg_network_state domain. Uninitialized/Stopped collapse to
// disconnected, Starting/Stopping collapse to the transitional connecting
// value, and an Active tunnel with configured peers but none actively
// handshaking is reported as degraded rather than connected.
func Classify(isActive, isTransitional, isError bool, peersTotal, peersActive int) NetworkState {
	switch {
	case isError:
		return StateFailed
	case isTransitional:
		return StateConnecting
	case isActive:
		if peersTotal > 0 && peersActive == 0 {
			return StateDegraded
		}
		return StateConnected
	default:
		return StateDisconnected
	}
}
