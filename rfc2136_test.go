package dyndns_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/Travis-Britz/dyndns"
)

const testTSIGSecret = "c2VjcmV0LWtleS1mb3ItdGVzdHM="

type updateServer struct {
	addr string

	mu      sync.Mutex
	msgs    []*dns.Msg
	tsigErr []error
}

func (s *updateServer) received() ([]*dns.Msg, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs, s.tsigErr
}

// startUpdateServer runs a name server on loopback that answers every UPDATE with rcode.
func startUpdateServer(t *testing.T, rcode int) *updateServer {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	us := &updateServer{addr: pc.LocalAddr().String()}
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		TsigSecret:        map[string]string{"dyndns-key.": testTSIGSecret},
		NotifyStartedFunc: func() { close(started) },
		// the default accept func rejects UPDATE
		MsgAcceptFunc: func(dh dns.Header) dns.MsgAcceptAction {
			if dh.Bits&(1<<15) != 0 {
				return dns.MsgIgnore
			}
			return dns.MsgAccept
		},
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			us.mu.Lock()
			us.msgs = append(us.msgs, r.Copy())
			if r.IsTsig() != nil {
				us.tsigErr = append(us.tsigErr, w.TsigStatus())
			}
			us.mu.Unlock()

			m := new(dns.Msg)
			m.SetRcode(r, rcode)
			if tsig := r.IsTsig(); tsig != nil && w.TsigStatus() == nil {
				m.SetTsig(tsig.Hdr.Name, tsig.Algorithm, 300, time.Now().Unix())
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() { srv.Shutdown() })
	return us
}

func TestRFC2136Publish(t *testing.T) {
	srv := startUpdateServer(t, dns.RcodeSuccess)
	p, err := dyndns.NewRFC2136Publisher(dyndns.RFC2136Config{
		Server:      srv.addr,
		TSIGKeyName: "DynDNS-Key",
		TSIGSecret:  testTSIGSecret,
	})
	if err != nil {
		t.Fatalf("NewRFC2136Publisher: %s", err)
	}

	set := dyndns.RecordSet{
		Type:     dyndns.TypeAAAA,
		TTL:      300,
		Records:  []netip.Addr{netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("2001:db8::2")},
		Metadata: map[string]string{dyndns.MetadataCreatedBy: dyndns.CreatedBy},
	}
	got, err := p.Publish(context.Background(), "example.org", "home", set)
	if err != nil {
		t.Fatalf("Publish: %s", err)
	}
	if got.Metadata != nil || len(got.Records) != 2 || got.TTL != 300 {
		t.Errorf("Unexpected confirmed set %+v", got)
	}

	msgs, tsigErrs := srv.received()
	if len(msgs) != 1 {
		t.Fatalf("Expected one UPDATE; got %d", len(msgs))
	}
	for _, err := range tsigErrs {
		if err != nil {
			t.Errorf("TSIG verification failed: %s", err)
		}
	}
	if len(tsigErrs) != 1 {
		t.Errorf("Expected a signed update")
	}

	m := msgs[0]
	if m.Opcode != dns.OpcodeUpdate {
		t.Errorf("Expected opcode UPDATE; got %s", dns.OpcodeToString[m.Opcode])
	}
	if len(m.Question) != 1 || m.Question[0].Name != "example.org." || m.Question[0].Qtype != dns.TypeSOA {
		t.Errorf("Unexpected zone section %v", m.Question)
	}
	if len(m.Ns) != 3 {
		t.Fatalf("Expected a delete and two inserts; got %v", m.Ns)
	}
	del := m.Ns[0].Header()
	if del.Class != dns.ClassANY || del.Rrtype != dns.TypeAAAA || del.Name != "home.example.org." {
		t.Errorf("Expected the AAAA RRset to be deleted first; got %v", m.Ns[0])
	}
	for i, rr := range m.Ns[1:] {
		aaaa, ok := rr.(*dns.AAAA)
		if !ok {
			t.Fatalf("Expected AAAA record; got %v", rr)
		}
		if aaaa.Hdr.Ttl != 300 || aaaa.Hdr.Class != dns.ClassINET {
			t.Errorf("Unexpected header %v", aaaa.Hdr)
		}
		if want := set.Records[i].String(); aaaa.AAAA.String() != want {
			t.Errorf("Expected %s; got %s", want, aaaa.AAAA)
		}
	}
}

func TestRFC2136PublishUnsignedApex(t *testing.T) {
	srv := startUpdateServer(t, dns.RcodeSuccess)
	p, err := dyndns.NewRFC2136Publisher(dyndns.RFC2136Config{Server: srv.addr})
	if err != nil {
		t.Fatal(err)
	}
	set := dyndns.RecordSet{Type: dyndns.TypeA, TTL: 60, Records: []netip.Addr{netip.MustParseAddr("203.0.113.5")}}
	if _, err := p.Publish(context.Background(), "example.org.", "@", set); err != nil {
		t.Fatalf("Publish: %s", err)
	}
	msgs, tsigErrs := srv.received()
	if len(tsigErrs) != 0 {
		t.Errorf("Expected an unsigned update")
	}
	a, ok := msgs[0].Ns[1].(*dns.A)
	if !ok || a.Hdr.Name != "example.org." || a.A.String() != "203.0.113.5" {
		t.Errorf("Unexpected insert %v", msgs[0].Ns[1])
	}
}

func TestRFC2136Refused(t *testing.T) {
	srv := startUpdateServer(t, dns.RcodeRefused)
	p, err := dyndns.NewRFC2136Publisher(dyndns.RFC2136Config{Server: srv.addr})
	if err != nil {
		t.Fatal(err)
	}
	set := dyndns.RecordSet{Type: dyndns.TypeA, TTL: 60, Records: []netip.Addr{netip.MustParseAddr("203.0.113.5")}}
	_, err = p.Publish(context.Background(), "example.org", "home", set)
	if !errors.Is(err, dyndns.ErrPublish) {
		t.Fatalf("Expected ErrPublish; got %v", err)
	}
}

func TestRFC2136MismatchedFamily(t *testing.T) {
	p, err := dyndns.NewRFC2136Publisher(dyndns.RFC2136Config{Server: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	set := dyndns.RecordSet{Type: dyndns.TypeA, TTL: 60, Records: []netip.Addr{netip.MustParseAddr("2001:db8::1")}}
	if _, err := p.Publish(context.Background(), "example.org", "home", set); !errors.Is(err, dyndns.ErrPublish) {
		t.Fatalf("Expected ErrPublish; got %v", err)
	}
}

func TestNewRFC2136PublisherConfig(t *testing.T) {
	tests := map[string]dyndns.RFC2136Config{
		"no server":     {},
		"bad secret":    {Server: "ns1", TSIGKeyName: "k", TSIGSecret: "not base64!"},
		"empty secret":  {Server: "ns1", TSIGKeyName: "k"},
		"bad algorithm": {Server: "ns1", TSIGKeyName: "k", TSIGSecret: testTSIGSecret, TSIGAlgorithm: "md5"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := dyndns.NewRFC2136Publisher(cfg); !errors.Is(err, dyndns.ErrConfiguration) {
				t.Fatalf("Expected ErrConfiguration; got %v", err)
			}
		})
	}
}
