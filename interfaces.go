package dyndns

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// NetworkInterface is one named interface as reported by an InterfaceSource.
// Values are built fresh by every enumeration and are not modified afterwards.
type NetworkInterface struct {
	Name string
	IPv4 *IPConfig // nil when the interface has no IPv4 configuration
	IPv6 *IPConfig // nil when the interface has no IPv6 configuration

	unicast []UnicastAddress
}

// IPConfig is the configuration of one address family on an interface.
type IPConfig struct {
	Address     []string // CIDR notation, e.g. 203.0.113.5/24
	Gateway     string
	Method      string
	Nameservers []string
	Ready       bool
}

// UnicastAddress is one address assigned to an interface.
type UnicastAddress struct {
	Addr netip.Addr
	Bits int // prefix length, -1 when unknown

	// Transient marks temporary addresses (e.g. IPv6 privacy addresses).
	Transient bool
	// DNSIneligible marks addresses the source says must not be registered in DNS.
	DNSIneligible bool
}

// UnicastAddresses returns the addresses of the interface, IPv4 block first.
// The returned slice is a copy.
func (ni NetworkInterface) UnicastAddresses() []UnicastAddress {
	return slices.Clone(ni.unicast)
}

// NewNetworkInterface builds an interface from its address blocks,
// parsing every CIDR entry of ipv4 and then ipv6.
// Entries without a prefix length are accepted as bare addresses.
func NewNetworkInterface(name string, ipv4, ipv6 *IPConfig) (NetworkInterface, error) {
	ni := NetworkInterface{Name: name, IPv4: ipv4, IPv6: ipv6}
	for _, block := range []*IPConfig{ipv4, ipv6} {
		if block == nil {
			continue
		}
		for _, cidr := range block.Address {
			u, err := parseUnicast(cidr)
			if err != nil {
				return NetworkInterface{}, err
			}
			ni.unicast = append(ni.unicast, u)
		}
	}
	return ni, nil
}

// StaticSource is an InterfaceSource that always returns the same interfaces.
type StaticSource []NetworkInterface

func (s StaticSource) Interfaces(context.Context) ([]NetworkInterface, error) {
	return slices.Clone(s), nil
}

// parseUnicast splits "address/prefixlen" and parses both halves.
func parseUnicast(cidr string) (UnicastAddress, error) {
	s, bits, found := strings.Cut(strings.TrimSpace(cidr), "/")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return UnicastAddress{}, fmt.Errorf("%w: invalid address %q: %w", ErrEnumeration, cidr, err)
	}
	u := UnicastAddress{Addr: addr, Bits: -1}
	if found {
		n, err := strconv.Atoi(bits)
		if err != nil || n < 0 || n > addr.BitLen() {
			return UnicastAddress{}, fmt.Errorf("%w: invalid prefix length in %q", ErrEnumeration, cidr)
		}
		u.Bits = n
	}
	return u, nil
}
