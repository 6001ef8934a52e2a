package dyndns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultEchoURL answers a plain GET with the caller's public IP address.
const DefaultEchoURL = "https://ifconfig.me"

// maxEchoBody bounds how much of an echo response is read.
const maxEchoBody = 1 << 10

// EchoResolver constructs a resolver which asks external web services for the "public" IP address.
//
// Each serviceURL must speak http and return status "200 OK",
// with a valid IPv4 or IPv6 address as the first line of the response body.
// A transport failure or any other status is an ErrNetwork;
// a body that is not an IP address is an ErrDiscovery.
// Nothing is retried.
//
// With no serviceURL, DefaultEchoURL is used.
// With exactly one, the resolver makes exactly one request and returns its answer.
// With several, it requests from up to three of them and only succeeds if the first two non-error responses agree,
// which protects the DNS records from a single misbehaving service.
func EchoResolver(serviceURL ...string) (*Echo, error) {
	if len(serviceURL) == 0 {
		serviceURL = []string{DefaultEchoURL}
	}
	var URLs []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing echo URL: %w", ErrConfiguration, err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return nil, fmt.Errorf("%w: echo URL %q must be http or https", ErrConfiguration, u)
		}
		URLs = append(URLs, pu)
	}
	return &Echo{serviceURLs: URLs}, nil
}

// Echo is the Resolver returned by EchoResolver.
type Echo struct {
	httpClient  *http.Client
	serviceURLs []*url.URL
	logger      *slog.Logger
}

func (e *Echo) SetHTTPClient(c *http.Client) { e.httpClient = c }
func (e *Echo) SetLogger(logger *slog.Logger) { e.logger = logger }

// Resolve implements Resolver. It returns exactly one address.
func (e *Echo) Resolve(ctx context.Context) ([]netip.Addr, error) {
	if len(e.serviceURLs) == 0 {
		return nil, fmt.Errorf("%w: no echo service URLs were provided", ErrConfiguration)
	}
	if len(e.serviceURLs) == 1 {
		ip, err := e.lookup(ctx, e.serviceURLs[0])
		if err != nil {
			return nil, err
		}
		return []netip.Addr{ip}, nil
	}
	return e.consensus(ctx)
}

// consensus calls out to three of the service urls.
// It only returns a nil error if the first two non-error responses had matching IPs.
func (e *Echo) consensus(ctx context.Context) ([]netip.Addr, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		addr netip.Addr
		err  error
	}

	const useCount = 3
	results := make(chan result, useCount)

	var wg sync.WaitGroup
	wg.Add(useCount)
	for i := 0; i < useCount; i++ {
		u := e.serviceURLs[i%len(e.serviceURLs)]
		go func() {
			defer wg.Done()
			r := result{}
			r.addr, r.err = e.lookup(ctx, u)
			results <- r
		}()
	}
	go func() { wg.Wait(); close(results) }()

	resultCount := 0
	var errs []error
	var ip netip.Addr
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		resultCount++
		if !ip.IsValid() {
			ip = r.addr
			continue
		}
		if ip == r.addr {
			return []netip.Addr{ip}, nil
		}
		return nil, fmt.Errorf("%w: echo services did not agree on our IP (%s, %s)", ErrDiscovery, ip, r.addr)
	}
	// not enough agreeing answers; the error kind follows the individual failures
	return nil, fmt.Errorf("not enough echo services responded without errors: %w", errors.Join(errs...))
}

func (e *Echo) lookup(ctx context.Context, u *url.URL) (netip.Addr, error) {
	logger := e.logger
	if logger == nil {
		logger = discard
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: creating request: %w", ErrNetwork, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	// some services answer browsers with HTML
	req.Header.Set("User-Agent", "curl/8 (dyndns)")
	req.Header.Set("Accept", "text/plain")

	httpclient := e.httpClient
	if httpclient == nil {
		httpclient = cleanhttp.DefaultClient()
	}

	logger.Debug("querying echo service", slog.String("url", u.String()))
	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: http request failed: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("%w: %s returned %s", ErrNetwork, u.Redacted(), resp.Status)
	}

	line, err := bufio.NewReader(io.LimitReader(resp.Body, maxEchoBody)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return netip.Addr{}, fmt.Errorf("%w: reading response body: %w", ErrNetwork, err)
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s did not return an IP address: %w", ErrDiscovery, u.Redacted(), err)
	}
	logger.Debug("echo service answered", slog.String("url", u.String()), slog.String("ip", ip.String()))
	return ip, nil
}
