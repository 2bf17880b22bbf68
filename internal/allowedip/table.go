// Package allowedip implements a longest-prefix-match structure over peer
// allowed-IP CIDRs. It is positioned as a config-time validator: the live
// per-packet routing decision is made inside device.Device itself (see
// internal/engine), so Table's job is to reject configurations where two
// peers claim an identical CIDR and to answer ownership queries (Lookup),
// which only this package's tests call.
package allowedip

import (
	"bytes"
	"net/netip"

	"github.com/google/btree"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/wgkey"
)

// entry is one peer's allowed-IP prefix, ordered by its masked network
// address so the backing btree can find an existing identical prefix in
// O(log n).
type entry struct {
	prefix netip.Prefix
	owner  wgkey.PublicKey
}

func (e entry) Less(than btree.Item) bool {
	o := than.(entry)
	am, bm := e.prefix.Masked(), o.prefix.Masked()
	if c := bytes.Compare(am.Addr().AsSlice(), bm.Addr().AsSlice()); c != 0 {
		return c < 0
	}
	return am.Bits() < bm.Bits()
}

// Table holds every peer's allowed-IP prefixes for one tunnel.
type Table struct {
	tree    *btree.BTree
	entries []entry
}

func New() *Table {
	return &Table{tree: btree.New(16)}
}

// Insert adds one peer's allowed-IP prefix. It returns a *agenterr.Error
// (KindConfigError) if an identical prefix already belongs to a different
// peer; inserting the same prefix for the same peer twice is a no-op.
func (t *Table) Insert(prefix netip.Prefix, owner wgkey.PublicKey) error {
	e := entry{prefix: prefix.Masked(), owner: owner}
	if existing := t.tree.Get(e); existing != nil {
		if ee := existing.(entry); !ee.owner.Equal(owner) {
			return agenterr.Newf(agenterr.KindConfigError,
				"allowed-ip %s is claimed by more than one peer", prefix)
		}
		return nil
	}
	t.tree.ReplaceOrInsert(e)
	t.entries = append(t.entries, e)
	return nil
}

// Lookup returns the owning peer for the longest prefix covering ip.
func (t *Table) Lookup(ip netip.Addr) (wgkey.PublicKey, bool) {
	var best entry
	found := false
	for _, e := range t.entries {
		if !e.prefix.Contains(ip) {
			continue
		}
		if !found || e.prefix.Bits() > best.prefix.Bits() {
			best = e
			found = true
		}
	}
	if !found {
		return wgkey.PublicKey{}, false
	}
	return best.owner, true
}

// Len reports the number of distinct prefixes held.
func (t *Table) Len() int {
	return len(t.entries)
}
