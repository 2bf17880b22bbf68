// Package tunnel implements the per-network lifecycle state machine:
// Uninitialized/Starting/Active/Stopping/Stopped/Error, serialized
// start/stop/reload, and lock-free concurrent stats reads. Grounded on
// original_source/src/wireguard/tunnel.rs's Tunnel/TunnelState, translated
// from tokio::sync::RwLock to a plain sync.Mutex guarding the state field
// the way the rest of this codebase favors explicit locking over async
// runtimes.
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/engine"
	"github.com/harmony-wg/agent/internal/netconfig"
	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/platform"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// State is one of a tunnel's lifecycle states.
type State int

const (
	Uninitialized State = iota
	Starting
	Active
	Stopping
	Stopped
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "stopped" // collapsed into the externally visible "stopped" value
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// CanStart reports whether start() is valid from this state. Error is
// included, matching original_source's can_start — a tunnel that failed to
// start should be retryable without an intervening explicit reset.
func (s State) CanStart() bool {
	return s == Uninitialized || s == Stopped || s == Error
}

// CanStop reports whether stop() is valid from this state. Starting is
// included so a tunnel wedged mid-startup can still be torn down.
func (s State) CanStop() bool {
	return s == Active || s == Starting
}

// StartTimeout bounds how long Start may take; configurable, defaults to 10s.
var StartTimeout = 10 * time.Second

// StopTimeout bounds task drain on Stop; defaults to 5s.
var StopTimeout = 5 * time.Second

// Stats is the externally visible snapshot of one tunnel.
type Stats struct {
	State       State
	Interface   string
	TotalPeers  int
	ActivePeers int
	TxBytes     uint64
	RxBytes     uint64
	PerPeer     map[string]engine.PeerStats
}

// Tunnel manages one network's full lifecycle: opening/closing its TUN
// device, applying addresses/routes/DNS, and owning the engine that runs
// while it is Active.
type Tunnel struct {
	logger *slog.Logger
	plat   platform.Capability

	lifecycleMu sync.Mutex // serializes start/stop/reload

	mu        sync.RWMutex // guards the fields below for concurrent stats reads
	state     State
	cfg       *netconfig.NetworkConfig
	eng       *engine.Engine
	ifaceName string
	appliedRoutes []netip.Prefix

	watchCancel context.CancelFunc
}

// New constructs a Tunnel in the Uninitialized state. It does not open any
// OS resources; call Start for that.
func New(logger *slog.Logger, plat platform.Capability, cfg *netconfig.NetworkConfig) *Tunnel {
	return &Tunnel{
		logger: logger,
		plat:   plat,
		state:  Uninitialized,
		cfg:    cfg,
	}
}

// Name is the network name this tunnel was configured under.
func (t *Tunnel) Name() string {
	return t.cfg.Name
}

// Enabled reports the static enable_wireguard flag; a disabled network must
// produce no OS-level side effects.
func (t *Tunnel) Enabled() bool {
	return t.cfg.EnableWireguard
}

// State returns the current lifecycle state without blocking on any
// in-flight start/stop.
func (t *Tunnel) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tunnel) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// startOutcome carries doStart's result across the goroutine boundary so
// Start can select between it finishing and the start timeout expiring.
type startOutcome struct {
	eng           *engine.Engine
	ifaceName     string
	appliedRoutes []netip.Prefix
	err           error
}

// Start brings the tunnel up: pre-checks, opens TUN via the platform
// capability, builds the engine, applies address/routes/DNS, then
// transitions to Active. Any failure transitions to Error and best-effort
// rewinds partial platform side effects. The whole sequence runs on a
// goroutine so it can be bounded by StartTimeout even though none of the
// platform/engine calls it makes accept a context themselves — the same
// tokio::time::timeout-around-blocking-work idiom original_source's
// device.rs::stop uses, applied to startup instead of shutdown.
func (t *Tunnel) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if !t.State().CanStart() {
		return agenterr.Newf(agenterr.KindInvalidState, "cannot start tunnel %q in state %s", t.cfg.Name, t.State())
	}
	if !t.cfg.EnableWireguard {
		return agenterr.Newf(agenterr.KindConfigError, "network %q is disabled", t.cfg.Name)
	}
	t.setState(Starting)

	ctx, cancel := context.WithTimeout(ctx, StartTimeout)
	defer cancel()

	outcomeCh := make(chan startOutcome, 1)
	go func() {
		outcomeCh <- t.doStart()
	}()

	select {
	case outcome := <-outcomeCh:
		if outcome.err != nil {
			t.setState(Error)
			return outcome.err
		}

		watchCtx, watchCancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.eng = outcome.eng
		t.ifaceName = outcome.ifaceName
		t.appliedRoutes = outcome.appliedRoutes
		t.state = Active
		t.watchCancel = watchCancel
		t.mu.Unlock()

		go t.watchFatal(watchCtx, outcome.eng)

		t.logger.Info("tunnel started", "network", t.cfg.Name, "interface", outcome.ifaceName)
		return nil

	case <-ctx.Done():
		t.setState(Error)
		// doStart is still running; when it finishes, tear down whatever it
		// managed to bring up since Start already gave up waiting on it.
		go func() {
			outcome := <-outcomeCh
			if outcome.err == nil && outcome.eng != nil {
				outcome.eng.Shutdown()
			}
		}()
		return agenterr.Wrap(agenterr.KindPlatformError, ctx.Err(), fmt.Sprintf("start tunnel %q: timed out", t.cfg.Name))
	}
}

// doStart runs the blocking pre-check/TUN/engine/route sequence and reports
// its result on the channel Start selects against.
func (t *Tunnel) doStart() startOutcome {
	if err := t.precheck(); err != nil {
		return startOutcome{err: err}
	}

	priv, err := netconfig.LoadPrivateKeyFile(t.cfg.PrivateKeyPath)
	if err != nil {
		return startOutcome{err: err}
	}

	handle, err := t.plat.OpenTUN(t.cfg.Interface, int(t.cfg.MTU))
	if err != nil {
		priv.Zero()
		return startOutcome{err: err}
	}

	if t.cfg.Address != nil {
		if err := t.plat.SetAddress(handle.Name, *t.cfg.Address); err != nil {
			priv.Zero()
			handle.Device.Close()
			return startOutcome{err: agenterr.Wrap(agenterr.KindPlatformError, err, "set address")}
		}
	}

	eng, err := engine.New(t.logger, handle.Device, handle.Name, engine.Config{
		PrivateKey: priv,
		ListenPort: t.cfg.ListenPort,
		Peers:      t.cfg.Peers,
	})
	if err != nil {
		handle.Device.Close()
		return startOutcome{err: err}
	}

	routes := dedupeRoutes(t.cfg.Peers)
	var applied []netip.Prefix
	for _, r := range routes {
		if err := t.plat.AddRoute(handle.Name, r); err != nil {
			t.logger.Warn("failed to configure route", "interface", handle.Name, "route", r.String(), "error", err)
			continue
		}
		applied = append(applied, r)
	}

	if len(t.cfg.DNS) > 0 {
		if err := t.plat.ApplyDNS(handle.Name, t.cfg.DNS); err != nil {
			t.logger.Warn("failed to apply dns", "interface", handle.Name, "error", err)
		}
	}

	return startOutcome{eng: eng, ifaceName: handle.Name, appliedRoutes: applied}
}

// watchFatal transitions the tunnel to Error if the engine's TUN handle
// dies out from under it (a read/write EOF on a device closed externally).
func (t *Tunnel) watchFatal(ctx context.Context, eng *engine.Engine) {
	select {
	case <-eng.Done():
		t.logger.Error("engine reported fatal error", "network", t.cfg.Name, "error", eng.Err())
		t.setState(Error)
	case <-ctx.Done():
	}
}

// Stop tears the tunnel down: signals the engine to shut down (which closes
// the TUN device), then clears DNS, removes routes, and transitions to
// Stopped. Stop from Error must still attempt cleanup.
func (t *Tunnel) Stop(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	current := t.State()
	if !current.CanStop() && current != Error {
		return agenterr.Newf(agenterr.KindInvalidState, "cannot stop tunnel %q in state %s", t.cfg.Name, current)
	}
	t.setState(Stopping)

	ctx, cancel := context.WithTimeout(ctx, StopTimeout)
	defer cancel()

	t.mu.Lock()
	eng := t.eng
	ifaceName := t.ifaceName
	routes := t.appliedRoutes
	watchCancel := t.watchCancel
	t.eng = nil
	t.appliedRoutes = nil
	t.watchCancel = nil
	t.mu.Unlock()

	if watchCancel != nil {
		watchCancel()
	}
	if eng != nil {
		// eng.Shutdown blocks on the device close and takes no context, so
		// bound the wait by hand and move on if it overruns StopTimeout —
		// the same timeout-then-warn idiom original_source's
		// device.rs::stop uses around its task-drain await.
		done := make(chan struct{})
		go func() {
			eng.Shutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			t.logger.Warn("timeout waiting for engine shutdown, proceeding with teardown", "network", t.cfg.Name)
		}
	}

	if ifaceName != "" {
		if err := t.plat.ClearDNS(ifaceName); err != nil {
			t.logger.Warn("failed to clear dns", "interface", ifaceName, "error", err)
		}
		for _, r := range routes {
			if err := t.plat.DelRoute(ifaceName, r); err != nil {
				t.logger.Warn("failed to remove route", "interface", ifaceName, "route", r.String(), "error", err)
			}
		}
	}

	t.setState(Stopped)
	t.logger.Info("tunnel stopped", "network", t.cfg.Name)
	return nil
}

// Reload applies a new configuration by stopping and restarting the tunnel.
// This does not preserve handshake state, matching original_source's
// stop-then-start approach rather than an in-place peer diff.
func (t *Tunnel) Reload(ctx context.Context, cfg *netconfig.NetworkConfig) error {
	if t.State().CanStop() {
		if err := t.Stop(ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()

	return t.Start(ctx)
}

// Stats renders the externally visible status snapshot. It takes a
// read lock only, so it never blocks behind an in-flight start/stop.
func (t *Tunnel) Stats() (Stats, error) {
	t.mu.RLock()
	state := t.state
	eng := t.eng
	ifaceName := t.ifaceName
	t.mu.RUnlock()

	s := Stats{State: state, Interface: ifaceName}
	if eng == nil {
		return s, nil
	}
	es, err := eng.Stats()
	if err != nil {
		return s, err
	}
	s.TotalPeers = es.TotalPeers
	s.ActivePeers = es.ActivePeers
	s.TxBytes = es.TxBytes
	s.RxBytes = es.RxBytes
	s.PerPeer = es.PerPeer
	return s, nil
}

// AddPeer, RemovePeer, and UpdateEndpoint proxy to the running engine; they
// fail with invalid_state when the tunnel is not Active.
func (t *Tunnel) AddPeer(p peerconfig.PeerConfig) error {
	eng, err := t.requireActive()
	if err != nil {
		return err
	}
	return eng.AddPeer(p)
}

func (t *Tunnel) RemovePeer(pub wgkey.PublicKey) error {
	eng, err := t.requireActive()
	if err != nil {
		return err
	}
	return eng.RemovePeer(pub)
}

func (t *Tunnel) UpdateEndpoint(pub wgkey.PublicKey, endpoint string) error {
	eng, err := t.requireActive()
	if err != nil {
		return err
	}
	return eng.UpdateEndpoint(pub, endpoint)
}

func (t *Tunnel) requireActive() (*engine.Engine, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != Active || t.eng == nil {
		return nil, agenterr.Newf(agenterr.KindInvalidState, "tunnel %q is not active", t.cfg.Name)
	}
	return t.eng, nil
}

// precheck validates conditions required before any OS resource is touched:
// a non-empty interface name, a configured private key path, and valid
// peers. The key file's readability and mode are checked afterwards, by
// netconfig.LoadPrivateKeyFile in doStart.
func (t *Tunnel) precheck() error {
	if t.cfg.Interface == "" {
		return agenterr.New(agenterr.KindConfigError, "interface name cannot be empty")
	}
	if t.cfg.PrivateKeyPath == "" {
		return agenterr.New(agenterr.KindConfigError, "private_key_path is required to start a tunnel")
	}
	for _, p := range t.cfg.Peers {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// dedupeRoutes collects one route per distinct allowed-IP CIDR across all
// peers, deduplicating across the whole peer set.
func dedupeRoutes(peers []peerconfig.PeerConfig) []netip.Prefix {
	seen := make(map[string]struct{})
	var out []netip.Prefix
	for _, p := range peers {
		for _, ip := range p.AllowedIPs {
			key := ip.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ip)
		}
	}
	return out
}
