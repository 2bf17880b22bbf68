package allowedip

import (
	"net/netip"
	"testing"

	"github.com/harmony-wg/agent/internal/wgkey"
)

func genKey(t *testing.T) wgkey.PublicKey {
	t.Helper()
	priv, err := wgkey.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return priv.PublicKey()
}

func TestInsertAndLookupExactMatch(t *testing.T) {
	tbl := New()
	peer := genKey(t)
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), peer); err != nil {
		t.Fatalf("insert: %v", err)
	}
	owner, ok := tbl.Lookup(netip.MustParseAddr("10.0.0.5"))
	if !ok || !owner.Equal(peer) {
		t.Fatalf("expected lookup to find the inserted peer")
	}
}

func TestLookupPicksLongestPrefix(t *testing.T) {
	tbl := New()
	broad := genKey(t)
	narrow := genKey(t)
	if err := tbl.Insert(netip.MustParsePrefix("0.0.0.0/0"), broad); err != nil {
		t.Fatalf("insert broad: %v", err)
	}
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), narrow); err != nil {
		t.Fatalf("insert narrow: %v", err)
	}

	owner, ok := tbl.Lookup(netip.MustParseAddr("10.0.0.5"))
	if !ok || !owner.Equal(narrow) {
		t.Fatalf("expected the more specific /24 prefix to win")
	}

	owner, ok = tbl.Lookup(netip.MustParseAddr("8.8.8.8"))
	if !ok || !owner.Equal(broad) {
		t.Fatalf("expected the /0 default route to win for unmatched addresses")
	}
}

func TestInsertRejectsIdenticalPrefixFromDifferentPeer(t *testing.T) {
	tbl := New()
	a := genKey(t)
	b := genKey(t)
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), b); err == nil {
		t.Fatalf("expected config error for duplicate identical prefix")
	}
}

func TestInsertSamePrefixSamePeerIsNoop(t *testing.T) {
	tbl := New()
	a := genKey(t)
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), a); err != nil {
		t.Fatalf("expected no error re-inserting same owner: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", tbl.Len())
	}
}

func TestLookupNoMatch(t *testing.T) {
	tbl := New()
	if err := tbl.Insert(netip.MustParsePrefix("10.0.0.0/24"), genKey(t)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, ok := tbl.Lookup(netip.MustParseAddr("192.168.1.1")); ok {
		t.Fatalf("expected no match for unrelated address")
	}
}
