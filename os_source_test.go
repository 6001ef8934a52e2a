package dyndns

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
)

func TestUnicastFromOS(t *testing.T) {
	tests := []struct {
		in       net.Addr
		want     string
		wantBits int
	}{
		{&net.IPNet{IP: net.ParseIP("203.0.113.5"), Mask: net.CIDRMask(24, 32)}, "203.0.113.5", 24},
		// 16-byte IPv4 with a 16-byte mask, as some platforms report
		{&net.IPNet{IP: net.ParseIP("198.51.100.1"), Mask: net.CIDRMask(120, 128)}, "198.51.100.1", 24},
		{&net.IPNet{IP: net.ParseIP("2001:db8::1"), Mask: net.CIDRMask(64, 128)}, "2001:db8::1", 64},
		{&net.IPAddr{IP: net.ParseIP("2001:db8::2")}, "2001:db8::2", 128},
	}
	for _, tt := range tests {
		u, ok := unicastFromOS(tt.in)
		if !ok {
			t.Errorf("unicastFromOS(%v) not ok", tt.in)
			continue
		}
		if u.Addr != netip.MustParseAddr(tt.want) || u.Bits != tt.wantBits {
			t.Errorf("unicastFromOS(%v) = %v/%d; want %s/%d", tt.in, u.Addr, u.Bits, tt.want, tt.wantBits)
		}
	}

	if _, ok := unicastFromOS(&net.UnixAddr{Name: "/tmp/sock", Net: "unix"}); ok {
		t.Error("expected non-IP addresses to be rejected")
	}
}

func TestDefaultRoute(t *testing.T) {
	defer func(g, i func() (net.IP, error)) { discoverGateway, discoverInterface = g, i }(discoverGateway, discoverInterface)

	discoverGateway = func() (net.IP, error) { return net.ParseIP("192.0.2.1"), nil }
	discoverInterface = func() (net.IP, error) { return net.ParseIP("192.0.2.10"), nil }
	gw, local := defaultRoute(discard)
	if gw != netip.MustParseAddr("192.0.2.1") || local != netip.MustParseAddr("192.0.2.10") {
		t.Errorf("defaultRoute = %v, %v", gw, local)
	}

	discoverGateway = func() (net.IP, error) { return nil, errors.New("no route") }
	discoverInterface = func() (net.IP, error) { return nil, errors.New("no route") }
	gw, local = defaultRoute(discard)
	if gw.IsValid() || local.IsValid() {
		t.Errorf("expected no default route; got %v, %v", gw, local)
	}
}

func TestOSSource(t *testing.T) {
	defer func(g, i func() (net.IP, error)) { discoverGateway, discoverInterface = g, i }(discoverGateway, discoverInterface)
	discoverGateway = func() (net.IP, error) { return nil, errors.New("offline") }
	discoverInterface = func() (net.IP, error) { return nil, errors.New("offline") }

	ifaces, err := (&OSSource{}).Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces: %s", err)
	}
	for _, ni := range ifaces {
		for _, u := range ni.UnicastAddresses() {
			if u.Addr.IsLoopback() && Eligible(u) {
				t.Errorf("%s: loopback address %s reported eligible", ni.Name, u.Addr)
			}
			block := ni.IPv6
			if u.Addr.Is4() {
				block = ni.IPv4
			}
			if block == nil || len(block.Address) == 0 {
				t.Errorf("%s: address %s missing from its block", ni.Name, u.Addr)
			}
		}
	}
}
