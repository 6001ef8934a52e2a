package dyndns

import (
	"fmt"
	"net/netip"
	"time"
)

// RecordType is the DNS type of a RecordSet.
type RecordType string

const (
	TypeA    RecordType = "A"
	TypeAAAA RecordType = "AAAA"
)

const (
	// DefaultTTL is the record set TTL in seconds when none is configured.
	DefaultTTL int64 = 3600

	// CreatedBy is the provenance tag written to record set metadata.
	CreatedBy = "dyndns (Go)"

	MetadataCreatedBy = "createdBy"
	MetadataUpdated   = "updated"
)

// now is replaced in tests.
var now = time.Now

// RecordSet is every record of one type for one name, published as a unit.
type RecordSet struct {
	Type     RecordType        `json:"type"`
	Records  []netip.Addr      `json:"records"`
	TTL      int64             `json:"ttl"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Empty reports whether the set holds no records.
func (rs RecordSet) Empty() bool { return len(rs.Records) == 0 }

// RecordSets is the output of Assemble.
type RecordSets struct {
	A    RecordSet
	AAAA RecordSet
}

// NonEmpty returns the sets that hold records, A before AAAA.
func (r RecordSets) NonEmpty() []RecordSet {
	var sets []RecordSet
	for _, rs := range []RecordSet{r.A, r.AAAA} {
		if !rs.Empty() {
			sets = append(sets, rs)
		}
	}
	return sets
}

// Assemble partitions addrs into an A set and an AAAA set.
//
// Addresses are not filtered here; anything that is neither IPv4 nor IPv6 is skipped.
// Both sets get ttl and fresh metadata even when empty.
// It is an ErrDiscovery for both sets to be empty.
func Assemble(addrs []netip.Addr, ttl int64) (RecordSets, error) {
	sets := RecordSets{
		A:    RecordSet{Type: TypeA, TTL: ttl, Records: []netip.Addr{}},
		AAAA: RecordSet{Type: TypeAAAA, TTL: ttl, Records: []netip.Addr{}},
	}
	for _, a := range addrs {
		switch {
		case a.Is4():
			sets.A.Records = append(sets.A.Records, a)
		case a.Is6():
			sets.AAAA.Records = append(sets.AAAA.Records, a)
		}
	}
	if sets.A.Empty() && sets.AAAA.Empty() {
		return RecordSets{}, fmt.Errorf("%w: no IP address found", ErrDiscovery)
	}
	sets.A.Metadata = metadata()
	sets.AAAA.Metadata = metadata()
	return sets, nil
}

func metadata() map[string]string {
	return map[string]string{
		MetadataCreatedBy: CreatedBy,
		MetadataUpdated:   now().UTC().Format(time.RFC3339),
	}
}
