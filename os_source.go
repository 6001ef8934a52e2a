package dyndns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/jackpal/gateway"
)

// gateway lookups are swapped out in tests.
var (
	discoverGateway   = gateway.DiscoverGateway
	discoverInterface = gateway.DiscoverInterface
)

// OSSource enumerates the interfaces known to the operating system's network stack.
type OSSource struct {
	logger *slog.Logger
}

func (s *OSSource) SetLogger(logger *slog.Logger) { s.logger = logger }

// Interfaces implements InterfaceSource.
//
// Addresses are taken as the OS reports them, so no CIDR parsing is involved.
// The gateway of the interface holding the default route is filled in when it can be found.
func (s *OSSource) Interfaces(ctx context.Context) ([]NetworkInterface, error) {
	logger := s.logger
	if logger == nil {
		logger = discard
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: listing OS interfaces: %w", ErrEnumeration, err)
	}

	gw, gwIface := defaultRoute(logger)

	result := make([]NetworkInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("%w: looking up addresses for interface %s: %w", ErrEnumeration, iface.Name, err)
		}
		ni := NetworkInterface{Name: iface.Name}
		up := iface.Flags&net.FlagUp != 0
		for _, a := range addrs {
			u, ok := unicastFromOS(a)
			if !ok {
				logger.Debug("skipping unrecognised interface address",
					slog.String("interface", iface.Name),
					slog.String("addr", a.String()),
				)
				continue
			}
			block := &ni.IPv6
			if u.Addr.Is4() {
				block = &ni.IPv4
			}
			if *block == nil {
				*block = &IPConfig{Ready: up}
			}
			(*block).Address = append((*block).Address, netip.PrefixFrom(u.Addr, u.Bits).String())
			if u.Addr == gwIface && gw.IsValid() && gw.Is4() == u.Addr.Is4() {
				(*block).Gateway = gw.String()
			}
			ni.unicast = append(ni.unicast, u)
		}
		result = append(result, ni)
	}
	logger.Debug("enumerated OS interfaces", slog.Int("count", len(result)))
	return result, nil
}

// defaultRoute returns the default gateway and the local address of the interface that reaches it.
// Failures are not fatal: the gateway is informational only.
func defaultRoute(logger *slog.Logger) (gw, local netip.Addr) {
	if ip, err := discoverGateway(); err != nil {
		logger.Debug("default gateway not found", slog.String("error", err.Error()))
	} else if a, ok := netip.AddrFromSlice(ip); ok {
		gw = a.Unmap()
	}
	if ip, err := discoverInterface(); err != nil {
		logger.Debug("default route interface not found", slog.String("error", err.Error()))
	} else if a, ok := netip.AddrFromSlice(ip); ok {
		local = a.Unmap()
	}
	return gw, local
}

func unicastFromOS(a net.Addr) (UnicastAddress, bool) {
	var (
		ip   net.IP
		bits = -1
	)
	switch v := a.(type) {
	case *net.IPNet:
		ip = v.IP
		bits, _ = v.Mask.Size()
	case *net.IPAddr:
		ip = v.IP
	default:
		return UnicastAddress{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return UnicastAddress{}, false
	}
	addr = addr.Unmap()
	if addr.Is4() && bits > 32 {
		bits -= 96
	}
	if bits < 0 || bits > addr.BitLen() {
		bits = addr.BitLen()
	}
	return UnicastAddress{Addr: addr, Bits: bits}, true
}
