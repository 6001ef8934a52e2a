package dyndns_test

import (
	"errors"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/Travis-Britz/dyndns"
)

func TestAssemble(t *testing.T) {
	v4 := netip.MustParseAddr("203.0.113.5")
	v6 := netip.MustParseAddr("2001:db8::1")

	sets, err := dyndns.Assemble([]netip.Addr{v6, v4}, 120)
	if err != nil {
		t.Fatalf("Assemble: %s", err)
	}
	if !slices.Equal(sets.A.Records, []netip.Addr{v4}) || !slices.Equal(sets.AAAA.Records, []netip.Addr{v6}) {
		t.Fatalf("Unexpected partition: %+v", sets)
	}
	for _, rs := range []dyndns.RecordSet{sets.A, sets.AAAA} {
		if rs.TTL != 120 {
			t.Errorf("%s: expected ttl 120; got %d", rs.Type, rs.TTL)
		}
		if rs.Metadata[dyndns.MetadataCreatedBy] != dyndns.CreatedBy {
			t.Errorf("%s: unexpected createdBy %q", rs.Type, rs.Metadata[dyndns.MetadataCreatedBy])
		}
		if _, err := time.Parse(time.RFC3339, rs.Metadata[dyndns.MetadataUpdated]); err != nil {
			t.Errorf("%s: updated is not RFC 3339: %s", rs.Type, err)
		}
	}
	if sets.A.Type != dyndns.TypeA || sets.AAAA.Type != dyndns.TypeAAAA {
		t.Errorf("Unexpected types %s, %s", sets.A.Type, sets.AAAA.Type)
	}
}

func TestAssembleOneFamily(t *testing.T) {
	sets, err := dyndns.Assemble([]netip.Addr{netip.MustParseAddr("2001:db8::1")}, dyndns.DefaultTTL)
	if err != nil {
		t.Fatalf("Assemble: %s", err)
	}
	if !sets.A.Empty() || sets.A.Metadata == nil {
		t.Errorf("Expected an empty A set that still carries metadata; got %+v", sets.A)
	}
	nonEmpty := sets.NonEmpty()
	if len(nonEmpty) != 1 || nonEmpty[0].Type != dyndns.TypeAAAA {
		t.Errorf("Expected only the AAAA set to be non-empty; got %+v", nonEmpty)
	}
}

func TestAssembleEmpty(t *testing.T) {
	for _, in := range [][]netip.Addr{nil, {netip.Addr{}}} {
		_, err := dyndns.Assemble(in, dyndns.DefaultTTL)
		if !errors.Is(err, dyndns.ErrDiscovery) {
			t.Errorf("Assemble(%v): expected ErrDiscovery; got %v", in, err)
		}
	}
}
