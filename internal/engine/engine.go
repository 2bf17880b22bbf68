// Package engine wraps golang.zx2c4.com/wireguard/device.Device, the real
// userspace WireGuard implementation, rather than reimplementing Noise-IK
// handshakes, replay windows, and allowed-IP routing by hand. Engine
// supplies the surface device.Device does not: UAPI configuration
// translation, incremental peer commands, per-peer stats polling, and a
// counting TUN wrapper for the aggregate byte counters reported in status.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// Config is the initial peer set and listen parameters an Engine is built
// from. New zeroes its copy of the private key as soon as the UAPI
// configuration string has been rendered from it, per wgkey's destruction
// convention.
type Config struct {
	PrivateKey wgkey.PrivateKey
	ListenPort uint16
	Peers      []peerconfig.PeerConfig
}

// PeerStats is one peer's snapshot, rendered from an IpcGet poll.
type PeerStats struct {
	Name          string
	PublicKey     string
	Endpoint      string
	TxBytes       uint64
	RxBytes       uint64
	LastHandshake time.Time
	KeepaliveSecs uint16
}

// Stats is an Engine-wide snapshot of traffic counters and peer health.
type Stats struct {
	TotalPeers  int
	ActivePeers int
	TxBytes     uint64
	RxBytes     uint64
	PerPeer     map[string]PeerStats

	// TunTxBytes/TunRxBytes count plaintext packet bytes crossing the TUN
	// device itself, distinct from TxBytes/RxBytes above (the encrypted
	// wire-protocol counters IpcGet reports per peer) — the gap between the
	// two is WireGuard's own encapsulation overhead.
	TunTxBytes uint64
	TunRxBytes uint64
}

// Engine owns one device.Device and the counting TUN it was built from. It
// drives peer configuration and stats collection, leaving the per-packet
// encapsulate/decapsulate/timer work to device.Device itself.
type Engine struct {
	logger *slog.Logger

	// mu guards peers and is held across each peer mutation's IpcSet call, so
	// peer mutations never interleave with each other. Stats copies peers
	// under mu and then calls IpcGet without holding it.
	mu    sync.Mutex
	peers map[string]peerconfig.PeerConfig // keyed by public key base64

	dev       *device.Device
	counting  *countingTUN
	ifaceName string
}

// New brings up a WireGuard device over an already-opened TUN handle.
// Opening the TUN device itself is the platform capability's job
// (Tunnel.Start calls platform.Capability.OpenTUN); New only consumes the
// result.
func New(logger *slog.Logger, tunDev tun.Device, ifaceName string, cfg Config) (*Engine, error) {
	ct := newCountingTUN(tunDev)
	bind := conn.NewDefaultBind()
	devLogger := device.NewLogger(device.LogLevelError, fmt.Sprintf("(%s) ", ifaceName))
	dev := device.NewDevice(ct, bind, devLogger)

	e := &Engine{
		logger:    logger,
		peers:     make(map[string]peerconfig.PeerConfig, len(cfg.Peers)),
		dev:       dev,
		counting:  ct,
		ifaceName: ifaceName,
	}

	uapi := buildFullConfig(cfg.PrivateKey, cfg.ListenPort, cfg.Peers)
	cfg.PrivateKey.Zero()

	if err := dev.IpcSet(uapi); err != nil {
		dev.Close()
		return nil, agenterr.Wrap(agenterr.KindPlatformError, err, "configure wireguard device")
	}
	for _, p := range cfg.Peers {
		e.peers[p.PublicKey.Base64()] = p
	}

	if err := dev.Up(); err != nil {
		dev.Close()
		return nil, agenterr.Wrap(agenterr.KindPlatformError, err, "bring wireguard device up")
	}

	logger.Info("engine started", "interface", ifaceName, "peers", len(e.peers))
	return e, nil
}

// AddPeer adds or replaces a single peer without disturbing the rest of the
// device's configuration.
func (e *Engine) AddPeer(p peerconfig.PeerConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dev.IpcSet(buildAddPeerConfig(p)); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "add peer "+p.Name)
	}
	e.peers[p.PublicKey.Base64()] = p
	return nil
}

// RemovePeer tears down one peer's session.
func (e *Engine) RemovePeer(pub wgkey.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dev.IpcSet(buildRemovePeerConfig(pub)); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "remove peer "+pub.Base64())
	}
	delete(e.peers, pub.Base64())
	return nil
}

// UpdateEndpoint rebinds a known peer's remote address without touching its
// allowed IPs, matching the original roaming-endpoint semantics.
func (e *Engine) UpdateEndpoint(pub wgkey.PublicKey, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.peers[pub.Base64()]; !ok {
		return agenterr.Newf(agenterr.KindNetworkNotFound, "unknown peer %s", pub.Base64())
	}
	if err := e.dev.IpcSet(buildUpdateEndpointConfig(pub, endpoint)); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "update endpoint for "+pub.Base64())
	}
	return nil
}

// Shutdown tears the device and its TUN handle down. Safe to call once;
// device.Device.Close is itself idempotent-safe against double close in the
// underlying library, but callers should still only call this once.
func (e *Engine) Shutdown() {
	e.dev.Close()
	e.logger.Info("engine stopped", "interface", e.ifaceName)
}

// Done returns a channel that closes when the underlying TUN device hits a
// fatal error (closed out from under the engine, e.g. interface deleted).
func (e *Engine) Done() <-chan struct{} {
	return e.counting.Done()
}

// Err returns the error that triggered Done, if any.
func (e *Engine) Err() error {
	return e.counting.FatalErr()
}

// Stats polls the device via IpcGet and renders the aggregate and per-peer
// counters reported in network status.
func (e *Engine) Stats() (Stats, error) {
	e.mu.Lock()
	peers := make(map[string]peerconfig.PeerConfig, len(e.peers))
	for k, v := range e.peers {
		peers[k] = v
	}
	e.mu.Unlock()

	body, err := e.dev.IpcGet()
	if err != nil {
		return Stats{}, agenterr.Wrap(agenterr.KindPlatformError, err, "read device stats")
	}
	wire := parseIpcGet(body)

	keepaliveWindow := func(secs uint16) time.Duration {
		if secs == 0 {
			secs = peerconfig.DefaultKeepaliveSecs
		}
		return 3 * time.Duration(secs) * time.Second
	}

	now := time.Now()
	out := Stats{
		TotalPeers: len(peers),
		PerPeer:    make(map[string]PeerStats, len(peers)),
		TunTxBytes: e.counting.TxBytes(),
		TunRxBytes: e.counting.RxBytes(),
	}
	for key, p := range peers {
		ws := wire[key]
		ps := PeerStats{
			Name:          p.Name,
			PublicKey:     key,
			Endpoint:      ws.endpoint,
			TxBytes:       ws.txBytes,
			RxBytes:       ws.rxBytes,
			LastHandshake: ws.lastHandshake,
			KeepaliveSecs: p.KeepaliveOrDefault(),
		}
		out.PerPeer[key] = ps
		out.TxBytes += ps.TxBytes
		out.RxBytes += ps.RxBytes
		if !ps.LastHandshake.IsZero() && now.Sub(ps.LastHandshake) <= keepaliveWindow(ps.KeepaliveSecs) {
			out.ActivePeers++
		}
	}
	return out, nil
}

// InterfaceName returns the platform-assigned TUN interface name.
func (e *Engine) InterfaceName() string {
	return e.ifaceName
}
