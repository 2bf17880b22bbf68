package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/harmony-wg/agent/internal/wgkey"
)

// peerWireStats is one peer's section of an IpcGet response, in the field
// names the UAPI configuration protocol uses.
type peerWireStats struct {
	publicKey     wgkey.PublicKey
	endpoint      string
	lastHandshake time.Time
	txBytes       uint64
	rxBytes       uint64
}

// parseIpcGet parses the UAPI "get" response format: a flat key=value
// stream, one pair per line, with a new "public_key=" line starting each
// peer's section. Grounded on the field names
// golang.zx2c4.com/wireguard/device's UapiGet emits; sections without a
// parseable public key are skipped rather than erroring, since a transient
// device reconfiguration mid-poll should not break stats collection.
func parseIpcGet(body string) map[string]peerWireStats {
	result := make(map[string]peerWireStats)
	var cur *peerWireStats

	flush := func() {
		if cur != nil && !cur.publicKey.IsZero() {
			result[cur.publicKey.Base64()] = *cur
		}
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "public_key":
			flush()
			pub, err := wgkey.ParsePublicKeyHex(value)
			if err != nil {
				cur = nil
				continue
			}
			cur = &peerWireStats{publicKey: pub}
		case "endpoint":
			if cur != nil {
				cur.endpoint = value
			}
		case "last_handshake_time_sec":
			if cur != nil {
				if sec, err := strconv.ParseInt(value, 10, 64); err == nil && sec > 0 {
					cur.lastHandshake = time.Unix(sec, 0)
				}
			}
		case "tx_bytes":
			if cur != nil {
				if v, err := strconv.ParseUint(value, 10, 64); err == nil {
					cur.txBytes = v
				}
			}
		case "rx_bytes":
			if cur != nil {
				if v, err := strconv.ParseUint(value, 10, 64); err == nil {
					cur.rxBytes = v
				}
			}
		}
	}
	flush()
	return result
}
