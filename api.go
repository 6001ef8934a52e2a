package dyndns

import (
	"context"
	"net/netip"
)

// Resolver returns the addresses that should be published.
type Resolver interface {
	Resolve(context.Context) ([]netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to a Resolver.
type ResolverFunc func(context.Context) ([]netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) ([]netip.Addr, error) {
	return f(ctx)
}

// InterfaceSource enumerates network interfaces.
//
// Every call must enumerate afresh.
// An error means no interfaces were returned at all; sources never return partial results.
type InterfaceSource interface {
	Interfaces(context.Context) ([]NetworkInterface, error)
}

// Publisher creates or replaces one record set in a hosted zone
// and returns the record set as confirmed by the DNS provider.
type Publisher interface {
	Publish(ctx context.Context, zone, name string, set RecordSet) (RecordSet, error)
}
