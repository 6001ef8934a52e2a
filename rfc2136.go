package dyndns

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// RFC2136Config configures an RFC2136Publisher.
type RFC2136Config struct {
	// Server is the primary name server, host or host:port (port 53 by default).
	Server string
	// TSIG key name, base64 secret and algorithm (hmac-sha256 by default).
	// Updates are unsigned when TSIGKeyName is empty.
	TSIGKeyName   string
	TSIGSecret    string
	TSIGAlgorithm string
	// UseTCP sends updates over TCP instead of UDP.
	UseTCP bool
	// Timeout for one exchange; 10s by default.
	Timeout time.Duration
}

// RFC2136Publisher sends record sets to a name server as RFC 2136 dynamic updates.
type RFC2136Publisher struct {
	server  string
	client  *dns.Client
	keyName string
	keyAlg  string
	logger  *slog.Logger
}

// NewRFC2136Publisher validates cfg and constructs the publisher.
func NewRFC2136Publisher(cfg RFC2136Config) (*RFC2136Publisher, error) {
	if cfg.Server == "" {
		return nil, fmt.Errorf("%w: rfc2136 server is required", ErrConfiguration)
	}
	server := cfg.Server
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &RFC2136Publisher{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
		logger: discard,
	}
	if cfg.UseTCP {
		p.client.Net = "tcp"
	}
	if cfg.TSIGKeyName != "" {
		if _, err := base64.StdEncoding.DecodeString(cfg.TSIGSecret); err != nil || cfg.TSIGSecret == "" {
			return nil, fmt.Errorf("%w: tsig secret must be non-empty base64", ErrConfiguration)
		}
		alg, err := tsigAlgorithm(cfg.TSIGAlgorithm)
		if err != nil {
			return nil, err
		}
		p.keyName = strings.ToLower(dns.Fqdn(cfg.TSIGKeyName))
		p.keyAlg = alg
		p.client.TsigSecret = map[string]string{p.keyName: cfg.TSIGSecret}
	}
	return p, nil
}

func (p *RFC2136Publisher) SetLogger(logger *slog.Logger) { p.logger = logger }

// Publish implements Publisher.
// One UPDATE message deletes the RRset of set.Type at name and inserts set.Records,
// so the server applies the replacement atomically.
// Record set metadata has no place in DNS and is dropped.
func (p *RFC2136Publisher) Publish(ctx context.Context, zone, name string, set RecordSet) (RecordSet, error) {
	fqdnZone := dns.Fqdn(zone)
	owner := dns.Fqdn(recordFQDN(name, zone))

	var rrtype uint16
	switch set.Type {
	case TypeA:
		rrtype = dns.TypeA
	case TypeAAAA:
		rrtype = dns.TypeAAAA
	default:
		return RecordSet{}, fmt.Errorf("%w: unsupported record type %q", ErrPublish, set.Type)
	}

	rrs, err := toRRs(owner, rrtype, uint32(set.TTL), set.Records)
	if err != nil {
		return RecordSet{}, err
	}

	msg := new(dns.Msg)
	msg.SetUpdate(fqdnZone)
	msg.RemoveRRset([]dns.RR{&dns.ANY{Hdr: dns.RR_Header{Name: owner, Rrtype: rrtype, Class: dns.ClassINET}}})
	msg.Insert(rrs)
	if p.keyName != "" {
		msg.SetTsig(p.keyName, p.keyAlg, 300, time.Now().Unix())
	}

	p.logger.Info("sending dns update",
		slog.String("server", p.server),
		slog.String("zone", fqdnZone),
		slog.String("name", owner),
		slog.String("type", string(set.Type)),
		slog.Int("records", len(rrs)),
	)
	resp, _, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return RecordSet{}, fmt.Errorf("%w: dns update to %s: %w", ErrPublish, p.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return RecordSet{}, fmt.Errorf("%w: dns update to %s: server returned %s", ErrPublish, p.server, dns.RcodeToString[resp.Rcode])
	}
	out := set
	out.Metadata = nil
	return out, nil
}

func toRRs(owner string, rrtype uint16, ttl uint32, addrs []netip.Addr) ([]dns.RR, error) {
	hdr := dns.RR_Header{Name: owner, Rrtype: rrtype, Class: dns.ClassINET, Ttl: ttl}
	rrs := make([]dns.RR, 0, len(addrs))
	for _, a := range addrs {
		switch {
		case rrtype == dns.TypeA && a.Is4():
			rrs = append(rrs, &dns.A{Hdr: hdr, A: net.IP(a.AsSlice())})
		case rrtype == dns.TypeAAAA && a.Is6():
			rrs = append(rrs, &dns.AAAA{Hdr: hdr, AAAA: net.IP(a.WithZone("").AsSlice())})
		default:
			return nil, fmt.Errorf("%w: %s cannot be published as %s", ErrPublish, a, dns.TypeToString[rrtype])
		}
	}
	return rrs, nil
}

func tsigAlgorithm(alg string) (string, error) {
	switch strings.ToLower(strings.TrimSuffix(strings.TrimSpace(alg), ".")) {
	case "", "hmac-sha256", "sha256":
		return dns.HmacSHA256, nil
	case "hmac-sha512", "sha512":
		return dns.HmacSHA512, nil
	case "hmac-sha1", "sha1":
		return dns.HmacSHA1, nil
	}
	return "", fmt.Errorf("%w: unsupported tsig algorithm %q", ErrConfiguration, alg)
}
