package dyndns_test

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"testing"

	"github.com/Travis-Britz/dyndns"
)

func staticInterface(t *testing.T, name string, v4, v6 []string) dyndns.NetworkInterface {
	t.Helper()
	var ipv4, ipv6 *dyndns.IPConfig
	if v4 != nil {
		ipv4 = &dyndns.IPConfig{Address: v4, Ready: true}
	}
	if v6 != nil {
		ipv6 = &dyndns.IPConfig{Address: v6, Ready: true}
	}
	ni, err := dyndns.NewNetworkInterface(name, ipv4, ipv6)
	if err != nil {
		t.Fatalf("NewNetworkInterface: %s", err)
	}
	return ni
}

// countingResolver records how often it was asked.
type countingResolver struct {
	calls int
	addrs []netip.Addr
	err   error
}

func (r *countingResolver) Resolve(context.Context) ([]netip.Addr, error) {
	r.calls++
	return r.addrs, r.err
}

func TestDiscoverFamily(t *testing.T) {
	d := dyndns.Discoverer{
		Source: dyndns.StaticSource{
			staticInterface(t, "eth0", []string{"203.0.113.5/24"}, []string{"2001:db8::1/64"}),
		},
		Echo: &countingResolver{},
	}
	got, err := dyndns.Collect(d.Addresses(context.Background(), map[string]dyndns.Family{"eth0": dyndns.IPv4}))
	if err != nil {
		t.Fatalf("Collect: %s", err)
	}
	if want := []netip.Addr{netip.MustParseAddr("203.0.113.5")}; !slices.Equal(got, want) {
		t.Fatalf("Expected %v; got %v", want, got)
	}
}

func TestDiscoverOrderAndFilter(t *testing.T) {
	echo := &countingResolver{}
	d := dyndns.Discoverer{
		Source: dyndns.StaticSource{
			staticInterface(t, "wlan0", []string{"198.51.100.9/24"}, nil),
			staticInterface(t, "docker0", []string{"192.0.2.77/24"}, nil),
			staticInterface(t, "eth0",
				[]string{"127.0.0.1/8", "169.254.3.3/16", "203.0.113.5/24"},
				[]string{"fe80::1/64", "fd00::1/64", "2001::1/32", "2001:db8::1/64", "2001:db8::1/64"}),
		},
		Echo: echo,
	}
	requested := map[string]dyndns.Family{"eth0": dyndns.Any, "wlan0": dyndns.Any}
	got, err := dyndns.Collect(d.Addresses(context.Background(), requested))
	if err != nil {
		t.Fatalf("Collect: %s", err)
	}
	want := []netip.Addr{
		netip.MustParseAddr("198.51.100.9"),
		netip.MustParseAddr("203.0.113.5"),
		netip.MustParseAddr("2001:db8::1"),
		netip.MustParseAddr("2001:db8::1"),
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Expected %v; got %v", want, got)
	}
	if echo.calls != 0 {
		t.Errorf("Expected the echo service not to be asked; got %d calls", echo.calls)
	}
}

func TestDiscoverEcho(t *testing.T) {
	echo := &countingResolver{addrs: []netip.Addr{netip.MustParseAddr("198.51.100.7")}}
	d := dyndns.Discoverer{Source: failingSource{}, Echo: echo}

	got, err := dyndns.Collect(d.Addresses(context.Background(), nil))
	if err != nil {
		t.Fatalf("Collect: %s", err)
	}
	if len(got) != 1 || got[0] != netip.MustParseAddr("198.51.100.7") {
		t.Fatalf("Unexpected addresses %v", got)
	}
	if echo.calls != 1 {
		t.Errorf("Expected exactly one echo call; got %d", echo.calls)
	}
}

func TestDiscoverEchoError(t *testing.T) {
	d := dyndns.Discoverer{Echo: &countingResolver{err: dyndns.ErrNetwork}}
	_, err := dyndns.Collect(d.Addresses(context.Background(), map[string]dyndns.Family{}))
	if !errors.Is(err, dyndns.ErrNetwork) {
		t.Fatalf("Expected ErrNetwork; got %v", err)
	}
}

type failingSource struct{}

func (failingSource) Interfaces(context.Context) ([]dyndns.NetworkInterface, error) {
	return nil, errors.Join(dyndns.ErrEnumeration, errors.New("permission denied"))
}

func TestDiscoverSourceError(t *testing.T) {
	d := dyndns.Discoverer{Source: failingSource{}}
	var n int
	var last error
	for _, err := range d.Addresses(context.Background(), map[string]dyndns.Family{"eth0": dyndns.Any}) {
		n++
		last = err
	}
	if n != 1 || !errors.Is(last, dyndns.ErrEnumeration) {
		t.Fatalf("Expected a single ErrEnumeration; got %d items, last error %v", n, last)
	}
}

func TestDiscoverUnknownInterface(t *testing.T) {
	d := dyndns.Discoverer{Source: dyndns.StaticSource{staticInterface(t, "eth0", []string{"203.0.113.5/24"}, nil)}}
	got, err := dyndns.Collect(d.Addresses(context.Background(), map[string]dyndns.Family{"eth1": dyndns.Any}))
	if err != nil || len(got) != 0 {
		t.Fatalf("Expected nothing for an absent interface; got %v, %v", got, err)
	}
}

func TestDiscoverEarlyStop(t *testing.T) {
	d := dyndns.Discoverer{Source: dyndns.StaticSource{
		staticInterface(t, "eth0", []string{"203.0.113.5/24", "203.0.113.6/24"}, nil),
	}}
	var got []netip.Addr
	for a := range d.Addresses(context.Background(), map[string]dyndns.Family{"eth0": dyndns.Any}) {
		got = append(got, a)
		break
	}
	if len(got) != 1 {
		t.Fatalf("Expected the sequence to stop after one address; got %v", got)
	}
}

func TestDiscoverStripsZone(t *testing.T) {
	d := dyndns.Discoverer{
		Source: dyndns.StaticSource{
			staticInterface(t, "eth0", nil, []string{"2001:db8::5%eth0/64", "fe80::5%eth0/64"}),
		},
	}
	got, err := dyndns.Collect(d.Addresses(context.Background(), map[string]dyndns.Family{"eth0": dyndns.Any}))
	if err != nil {
		t.Fatalf("Collect: %s", err)
	}
	sets, err := dyndns.Assemble(got, 60)
	if err != nil {
		t.Fatalf("Assemble: %s", err)
	}
	if want := []netip.Addr{netip.MustParseAddr("2001:db8::5")}; !slices.Equal(sets.AAAA.Records, want) {
		t.Fatalf("Expected %v; got %v", want, sets.AAAA.Records)
	}

	echo := &countingResolver{addrs: []netip.Addr{netip.MustParseAddr("2001:db8::9%1")}}
	d.Echo = echo
	got, err = dyndns.Collect(d.Addresses(context.Background(), nil))
	if err != nil {
		t.Fatalf("Collect: %s", err)
	}
	if len(got) != 1 || got[0].Zone() != "" {
		t.Fatalf("Expected a bare echo address; got %v", got)
	}
}
