// Package netconfig loads and validates the static configuration tree: an
// agent-level block plus a named set of per-network configurations.
// Grounded on kakuremichi-kakuremichi-agent's internal/config.LoadConfig
// layering (.env via godotenv -> environment variable), generalized from a
// single flat tunnel to an agent:/networks: tree, with
// the YAML parsing choice grounded on nyiyui-qanms's use of
// gopkg.in/yaml.v3 (the only precedent found for structured Go config
// serialization). No command-line flag overrides any setting loaded here.
package netconfig

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/allowedip"
	"github.com/harmony-wg/agent/internal/peerconfig"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// DefaultControlSocketPath is the standard POSIX control-socket location.
const DefaultControlSocketPath = "/var/run/wg-agent.sock"

// DefaultMetricsAddr is the bind address for the metrics/health HTTP
// collaborator when the config omits one.
const DefaultMetricsAddr = "127.0.0.1:9090"

const (
	defaultMTU       = 1280
	minMTU           = 576
	maxMTU           = 1500
	defaultInterface = "wg0"
)

// AgentConfig holds the process-wide settings from the `agent:` block.
type AgentConfig struct {
	ControlSocketPath string
	MetricsAddr       string
}

// NetworkConfig is one network's fully parsed and validated configuration.
type NetworkConfig struct {
	Name            string
	EnableWireguard bool
	Interface       string
	MTU             uint16
	Address         *netip.Prefix
	PrivateKeyPath  string
	ListenPort      uint16
	DNS             []netip.Addr
	Peers           []peerconfig.PeerConfig
}

// Config is the fully parsed and validated static configuration tree.
type Config struct {
	Agent    AgentConfig
	Networks map[string]*NetworkConfig
}

type rawConfig struct {
	Agent    rawAgent              `yaml:"agent"`
	Networks map[string]rawNetwork `yaml:"networks"`
}

type rawAgent struct {
	ControlSocketPath string `yaml:"control_socket_path"`
	MetricsAddr       string `yaml:"metrics_addr"`
}

type rawNetwork struct {
	EnableWireguard bool      `yaml:"enable_wireguard" json:"enable_wireguard"`
	Interface       string    `yaml:"interface" json:"interface"`
	MTU             *uint16   `yaml:"mtu" json:"mtu"`
	Address         string    `yaml:"address" json:"address"`
	PrivateKeyPath  string    `yaml:"private_key_path" json:"private_key_path"`
	ListenPort      uint16    `yaml:"listen_port" json:"listen_port"`
	DNS             []string  `yaml:"dns" json:"dns"`
	Peers           []rawPeer `yaml:"peers" json:"peers"`
}

type rawPeer struct {
	Name                    string   `yaml:"name" json:"name"`
	PublicKey               string   `yaml:"public_key" json:"public_key"`
	Endpoint                string   `yaml:"endpoint" json:"endpoint"`
	AllowedIPs              []string `yaml:"allowed_ips" json:"allowed_ips"`
	PersistentKeepaliveSecs *uint16  `yaml:"persistent_keepalive_secs" json:"persistent_keepalive_secs"`
}

// Load reads and validates the configuration file at path, layering
// environment overrides (via an optional .env file and process environment
// variables) on top of the agent-level settings.
func Load(path string) (*Config, error) {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindConfigError, err, fmt.Sprintf("read config file %q", path))
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, agenterr.Wrap(agenterr.KindConfigError, err, "parse config yaml")
	}

	cfg := &Config{
		Agent: AgentConfig{
			ControlSocketPath: firstNonEmpty(raw.Agent.ControlSocketPath, DefaultControlSocketPath),
			MetricsAddr:       firstNonEmpty(raw.Agent.MetricsAddr, DefaultMetricsAddr),
		},
		Networks: make(map[string]*NetworkConfig, len(raw.Networks)),
	}
	applyEnvOverrides(&cfg.Agent)

	for name, rn := range raw.Networks {
		nc, err := buildNetwork(name, rn)
		if err != nil {
			return nil, err
		}
		cfg.Networks[name] = nc
	}

	return cfg, nil
}

func applyEnvOverrides(a *AgentConfig) {
	a.ControlSocketPath = getEnv("WG_AGENT_CONTROL_SOCKET_PATH", a.ControlSocketPath)
	a.MetricsAddr = getEnv("WG_AGENT_METRICS_ADDR", a.MetricsAddr)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func buildNetwork(name string, rn rawNetwork) (*NetworkConfig, error) {
	nc := &NetworkConfig{
		Name:            name,
		EnableWireguard: rn.EnableWireguard,
		Interface:       firstNonEmpty(rn.Interface, defaultInterface),
		MTU:             defaultMTU,
		PrivateKeyPath:  rn.PrivateKeyPath,
		ListenPort:      rn.ListenPort,
	}

	if rn.MTU != nil {
		nc.MTU = *rn.MTU
	}
	if nc.MTU < minMTU || nc.MTU > maxMTU {
		return nil, agenterr.Newf(agenterr.KindConfigError,
			"network %q: mtu %d out of range [%d, %d]", name, nc.MTU, minMTU, maxMTU)
	}

	if !nc.EnableWireguard {
		// A disabled network still needs a syntactically valid tree (it may
		// be enabled later via reload); producing no OS-level side effects
		// while disabled is enforced in internal/tunnel, not here.
	}

	if rn.Address != "" {
		prefix, err := netip.ParsePrefix(rn.Address)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindConfigError, err, fmt.Sprintf("network %q: invalid address %q", name, rn.Address))
		}
		nc.Address = &prefix
	}

	if nc.EnableWireguard {
		if nc.PrivateKeyPath == "" {
			return nil, agenterr.Newf(agenterr.KindConfigError, "network %q: private_key_path is required when enabled", name)
		}
		if err := checkKeyFilePermissions(nc.PrivateKeyPath); err != nil {
			return nil, err
		}
	}

	for _, s := range rn.DNS {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindConfigError, err, fmt.Sprintf("network %q: invalid dns server %q", name, s))
		}
		nc.DNS = append(nc.DNS, addr)
	}

	table := allowedip.New()
	for _, rp := range rn.Peers {
		pc, err := buildPeer(name, rp)
		if err != nil {
			return nil, err
		}
		for _, prefix := range pc.AllowedIPs {
			if err := table.Insert(prefix, pc.PublicKey); err != nil {
				return nil, err
			}
		}
		if err := pc.Validate(); err != nil {
			return nil, err
		}
		nc.Peers = append(nc.Peers, pc)
	}

	return nc, nil
}

func buildPeer(networkName string, rp rawPeer) (peerconfig.PeerConfig, error) {
	pub, err := wgkey.ParsePublicKey(rp.PublicKey)
	if err != nil {
		return peerconfig.PeerConfig{}, agenterr.Wrap(agenterr.KindConfigError, err,
			fmt.Sprintf("network %q: peer %q: invalid public_key", networkName, rp.Name))
	}

	pc := peerconfig.PeerConfig{
		Name:                    rp.Name,
		PublicKey:               pub,
		PersistentKeepaliveSecs: rp.PersistentKeepaliveSecs,
	}

	if rp.Endpoint != "" {
		ep, err := netip.ParseAddrPort(rp.Endpoint)
		if err != nil {
			resolved, rerr := resolveEndpoint(rp.Endpoint)
			if rerr != nil {
				return peerconfig.PeerConfig{}, agenterr.Wrap(agenterr.KindConfigError, err,
					fmt.Sprintf("network %q: peer %q: invalid endpoint %q", networkName, rp.Name, rp.Endpoint))
			}
			ep = resolved
		}
		pc.Endpoint = &ep
	}

	for _, cidr := range rp.AllowedIPs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return peerconfig.PeerConfig{}, agenterr.Wrap(agenterr.KindConfigError, err,
				fmt.Sprintf("network %q: peer %q: invalid allowed_ips entry %q", networkName, rp.Name, cidr))
		}
		pc.AllowedIPs = append(pc.AllowedIPs, prefix)
	}

	return pc, nil
}

// DecodeNetworkJSON builds a NetworkConfig from a control request's JSON
// "config" payload (used by the reload action), applying the same
// validation buildNetwork applies to the static configuration file.
func DecodeNetworkJSON(name string, data []byte) (*NetworkConfig, error) {
	var raw rawNetwork
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, agenterr.Wrap(agenterr.KindConfigError, err, "parse network config")
	}
	return buildNetwork(name, raw)
}

// LoadPrivateKeyFile re-validates a key file's permissions and parses its
// contents. Tunnel.Start calls this at launch time as a readable,
// mode-protected pre-check, even though Load already checked permissions
// once, since the file on disk may have changed between config load and
// tunnel start.
func LoadPrivateKeyFile(path string) (wgkey.PrivateKey, error) {
	if err := checkKeyFilePermissions(path); err != nil {
		return wgkey.PrivateKey{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return wgkey.PrivateKey{}, agenterr.Wrap(agenterr.KindConfigError, err, fmt.Sprintf("read private key file %q", path))
	}
	priv, err := wgkey.ParsePrivateKey(strings.TrimSpace(string(data)))
	if err != nil {
		return wgkey.PrivateKey{}, agenterr.Wrap(agenterr.KindConfigError, err, fmt.Sprintf("parse private key file %q", path))
	}
	return priv, nil
}

// checkKeyFilePermissions treats a missing or wrong-permission key file as a
// config_error (diverging from original_source's Permission-kind
// classification).
func checkKeyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return agenterr.Wrap(agenterr.KindConfigError, err, fmt.Sprintf("private key file %q", path))
	}
	if runtime.GOOS == "windows" {
		// Windows has no POSIX permission bits to check.
		return nil
	}
	if info.Mode().Perm()&0o077 != 0 {
		return agenterr.Newf(agenterr.KindConfigError,
			"private key file %q must not be readable by group or other (mode %04o)", path, info.Mode().Perm())
	}
	return nil
}
