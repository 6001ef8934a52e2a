package dyndns

import (
	"fmt"
	"net/netip"
	"strings"
)

// Family limits the addresses taken from one interface to an IP version.
type Family int

const (
	Any Family = iota
	IPv4
	IPv6
)

func (f Family) String() string {
	switch f {
	case Any:
		return "Any"
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily parses "Any", "IPv4" or "IPv6", ignoring case.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any", "":
		return Any, nil
	case "ipv4", "inet", "4":
		return IPv4, nil
	case "ipv6", "inet6", "6":
		return IPv6, nil
	}
	return Any, fmt.Errorf("%w: unknown address family %q (expected IPv4, IPv6 or Any)", ErrConfiguration, s)
}

func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(text []byte) error {
	v, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Allows reports whether addr satisfies the family constraint.
func (f Family) Allows(addr netip.Addr) bool {
	switch f {
	case Any:
		return true
	case IPv4:
		return addr.Is4()
	case IPv6:
		return addr.Is6()
	}
	return false
}

// ResolveFamilies pairs names[i] with families[i].
//
// An empty families list means Any for every name;
// otherwise both lists must be the same length.
// A name given more than once keeps the family of its last occurrence.
func ResolveFamilies(names []string, families []Family) (map[string]Family, error) {
	if len(families) != 0 && len(families) != len(names) {
		return nil, fmt.Errorf("%w: got %d interface address families for %d interface names; give one per interface name or none to default to Any",
			ErrConfiguration, len(families), len(names))
	}
	requested := make(map[string]Family, len(names))
	for i, name := range names {
		f := Any
		if len(families) != 0 {
			f = families[i]
		}
		requested[name] = f
	}
	return requested, nil
}
