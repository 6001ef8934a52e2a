package dyndns

import (
	"context"
	"iter"
	"log/slog"
	"net/netip"
)

// Discoverer turns "which interfaces, which families" into the addresses to publish.
type Discoverer struct {
	// Source enumerates interfaces when any are requested; nil means the OS.
	Source InterfaceSource
	// Echo is asked when no interfaces are requested; nil means EchoResolver().
	Echo Resolver

	logger *slog.Logger
}

func (d *Discoverer) SetLogger(logger *slog.Logger) { d.logger = logger }

// Addresses yields the public addresses selected by requested.
//
// An empty map asks Echo, which yields exactly one address.
// Otherwise Source is enumerated once and, for every interface named in requested,
// each eligible unicast address allowed by that interface's family is yielded,
// in enumeration order and then address order.
// Interfaces that are not requested are skipped, and duplicates are not removed.
// Yielded addresses never carry an IPv6 zone.
//
// The sequence stops after the first error, which is yielded with a zero address.
// Each iteration enumerates afresh.
func (d *Discoverer) Addresses(ctx context.Context, requested map[string]Family) iter.Seq2[netip.Addr, error] {
	return func(yield func(netip.Addr, error) bool) {
		logger := d.logger
		if logger == nil {
			logger = discard
		}

		if len(requested) == 0 {
			echo := d.Echo
			if echo == nil {
				e, err := EchoResolver()
				if err != nil {
					yield(netip.Addr{}, err)
					return
				}
				echo = e
			}
			addrs, err := echo.Resolve(ctx)
			if err != nil {
				yield(netip.Addr{}, err)
				return
			}
			for _, a := range addrs {
				if !yield(a.WithZone(""), nil) {
					return
				}
			}
			return
		}

		source := d.Source
		if source == nil {
			source = &OSSource{logger: logger}
		}
		ifaces, err := source.Interfaces(ctx)
		if err != nil {
			yield(netip.Addr{}, err)
			return
		}
		for _, iface := range ifaces {
			family, ok := requested[iface.Name]
			if !ok {
				continue
			}
			for _, u := range iface.UnicastAddresses() {
				if !Eligible(u) {
					logger.Debug("skipping ineligible address",
						slog.String("interface", iface.Name),
						slog.String("addr", u.Addr.String()),
					)
					continue
				}
				if !family.Allows(u.Addr) {
					continue
				}
				// a zone is meaningless in a DNS record
				if !yield(u.Addr.WithZone(""), nil) {
					return
				}
			}
		}
	}
}

// Collect drains an address sequence, stopping at the first error.
func Collect(seq iter.Seq2[netip.Addr, error]) ([]netip.Addr, error) {
	var addrs []netip.Addr
	for a, err := range seq {
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}
