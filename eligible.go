package dyndns

import "net/netip"

var (
	teredo         = netip.MustParsePrefix("2001::/32")
	siteLocal6     = netip.MustParsePrefix("fec0::/10")
	uniqueLocal6   = netip.MustParsePrefix("fc00::/7")
	linkLocal4     = netip.MustParsePrefix("169.254.0.0/16")
	loopback4      = netip.MustParsePrefix("127.0.0.0/8")
	linkLocal6     = netip.MustParsePrefix("fe80::/10")
	multicast6     = netip.MustParsePrefix("ff00::/8")
	ipv4MappedIPv6 = netip.MustParsePrefix("::ffff:0:0/96")
)

// IsTeredo reports whether addr is in the Teredo tunneling prefix 2001::/32.
func IsTeredo(addr netip.Addr) bool { return teredo.Contains(addr) }

// IsIPv4Mapped reports whether addr is an IPv4 address embedded in IPv6 (::ffff:0:0/96).
func IsIPv4Mapped(addr netip.Addr) bool { return ipv4MappedIPv6.Contains(addr) }

// IsSiteLocal reports whether addr is a deprecated IPv6 site-local address (fec0::/10).
func IsSiteLocal(addr netip.Addr) bool { return siteLocal6.Contains(addr) }

// IsUniqueLocal reports whether addr is an IPv6 unique local address (fc00::/7).
func IsUniqueLocal(addr netip.Addr) bool { return uniqueLocal6.Contains(addr) }

// IsLinkLocal reports whether addr is link-local, 169.254.0.0/16 or fe80::/10.
func IsLinkLocal(addr netip.Addr) bool {
	return linkLocal4.Contains(addr) || linkLocal6.Contains(addr)
}

// IsLoopback reports whether addr is 127.0.0.0/8 or ::1.
func IsLoopback(addr netip.Addr) bool {
	return loopback4.Contains(addr) || addr == netip.IPv6Loopback()
}

// IsMulticast6 reports whether addr is an IPv6 multicast address (ff00::/8).
func IsMulticast6(addr netip.Addr) bool { return multicast6.Contains(addr) }

// Eligible reports whether a unicast address may be published in public DNS.
//
// It is a pure function of its argument and is defined for every value;
// the zero UnicastAddress is not eligible.
//
// Unique local addresses are matched on all of fc00::/7, not only the
// fc00::/16 and fd00::/16 blocks, so an address such as fd12::1 is ineligible.
// Loopback covers ::1 as well as 127.0.0.0/8.
func Eligible(u UnicastAddress) bool {
	a := u.Addr
	if !a.IsValid() || u.Transient || u.DNSIneligible {
		return false
	}
	// Zones are stripped so that fe80::1%eth0 is judged like fe80::1.
	a = a.WithZone("")
	switch {
	case IsIPv4Mapped(a),
		IsTeredo(a),
		IsSiteLocal(a),
		IsLinkLocal(a),
		IsMulticast6(a),
		IsLoopback(a),
		IsUniqueLocal(a):
		return false
	}
	return true
}

// EligibleAddr is Eligible for an address that carries no source flags.
func EligibleAddr(addr netip.Addr) bool {
	return Eligible(UnicastAddress{Addr: addr})
}
