package netconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harmony-wg/agent/internal/wgkey"
)

func writeKeyFile(t *testing.T, dir string, mode os.FileMode) string {
	t.Helper()
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(dir, "private.key")
	if err := os.WriteFile(path, []byte(priv.HexString()), mode); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func samplePeerYAML(t *testing.T) string {
	t.Helper()
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return priv.PublicKey().Base64()
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, 0o600)
	pub := samplePeerYAML(t)

	yamlContent := `
agent:
  control_socket_path: /tmp/test.sock
networks:
  n1:
    enable_wireguard: true
    interface: wg0
    mtu: 1420
    private_key_path: ` + keyPath + `
    peers:
      - name: a
        public_key: "` + pub + `"
        endpoint: "203.0.113.1:51820"
        allowed_ips: ["10.0.0.0/24"]
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.ControlSocketPath != "/tmp/test.sock" {
		t.Fatalf("unexpected control socket path: %s", cfg.Agent.ControlSocketPath)
	}
	n1, ok := cfg.Networks["n1"]
	if !ok {
		t.Fatalf("expected network n1")
	}
	if n1.MTU != 1420 {
		t.Fatalf("expected mtu 1420, got %d", n1.MTU)
	}
	if len(n1.Peers) != 1 || n1.Peers[0].Name != "a" {
		t.Fatalf("expected one peer named a, got %+v", n1.Peers)
	}
}

func TestLoadRejectsMTUOutOfRange(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, 0o600)
	yamlContent := `
networks:
  n1:
    enable_wireguard: true
    mtu: 9000
    private_key_path: ` + keyPath + `
`
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(yamlContent), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for out-of-range mtu")
	}
}

func TestLoadRejectsMTUBelowMinimum(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, 0o600)
	yamlContent := `
networks:
  n1:
    enable_wireguard: true
    mtu: 500
    private_key_path: ` + keyPath + `
`
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(yamlContent), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for mtu below minimum")
	}
}

func TestLoadRejectsBadKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, 0o644)
	yamlContent := `
networks:
  n1:
    enable_wireguard: true
    private_key_path: ` + keyPath + `
`
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(yamlContent), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for 0644 key file")
	}
}

func TestLoadRejectsDuplicateAllowedIP(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, 0o600)
	pub1 := samplePeerYAML(t)
	pub2 := samplePeerYAML(t)

	yamlContent := `
networks:
  n1:
    enable_wireguard: true
    private_key_path: ` + keyPath + `
    peers:
      - name: a
        public_key: "` + pub1 + `"
        allowed_ips: ["10.0.0.0/24"]
      - name: b
        public_key: "` + pub2 + `"
        allowed_ips: ["10.0.0.0/24"]
`
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(yamlContent), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for duplicate allowed-ip prefix across peers")
	}
}

func TestLoadDisabledNetworkSkipsKeyCheck(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
networks:
  n1:
    enable_wireguard: false
`
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(yamlContent), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Networks["n1"].EnableWireguard {
		t.Fatalf("expected network to remain disabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
