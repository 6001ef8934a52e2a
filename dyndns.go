package dyndns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
)

var discard = slog.New(slog.DiscardHandler)

// New constructs a Client that publishes to record name in zone.
//
// Without options the client asks DefaultEchoURL for the public address,
// uses DefaultTTL, and has no Publisher: one of UsingAzure, UsingCloudflare,
// UsingRFC2136 or UsingPublisher is required unless WithDryRun(true) is given.
func New(zone, record string, options ...Option) (*Client, error) {
	c := &Client{
		zone:   zone,
		record: record,
		ttl:    DefaultTTL,
		out:    io.Discard,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("dyndns.New: option %d returned an error: %w", i, err)
		}
	}

	if !c.dryRun {
		if c.zone == "" || c.record == "" {
			return nil, fmt.Errorf("dyndns.New: %w: zone and record name are required", ErrConfiguration)
		}
		if c.Publisher == nil {
			return nil, fmt.Errorf("dyndns.New: %w: no DNS provider was registered - use dyndns.UsingAzure or similar", ErrConfiguration)
		}
	}

	// dependencies registered before WithLogger or UsingHTTPClient still receive them
	c.propagate()
	return c, nil
}

// Option configures a Client.
type Option func(*Client) error

// Client runs the discover, assemble and publish pipeline once per Run.
type Client struct {
	Publisher
	discoverer Discoverer
	requested  map[string]Family

	zone       string
	record     string
	ttl        int64
	dryRun     bool
	out        io.Writer
	httpClient *http.Client
	logger     *slog.Logger
	observer   RunObserver
}

// RunObserver is told the outcome of every Run.
type RunObserver interface {
	ObserveRun(Result, error)
}

// UsingPublisher registers any Publisher implementation.
func UsingPublisher(p Publisher) Option {
	return func(c *Client) error {
		c.Publisher = p
		return nil
	}
}

// UsingAzure publishes to Azure DNS.
func UsingAzure(cfg AzureConfig) Option {
	return func(c *Client) (err error) {
		if c.Publisher, err = NewAzurePublisher(cfg); err != nil {
			return fmt.Errorf("dyndns.UsingAzure: %w", err)
		}
		return nil
	}
}

// UsingCloudflare publishes to Cloudflare DNS with an API token.
func UsingCloudflare(token string) Option {
	return func(c *Client) (err error) {
		if c.Publisher, err = NewCloudflarePublisher(token, nil); err != nil {
			return fmt.Errorf("dyndns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingRFC2136 publishes with RFC 2136 dynamic updates.
func UsingRFC2136(cfg RFC2136Config) Option {
	return func(c *Client) (err error) {
		if c.Publisher, err = NewRFC2136Publisher(cfg); err != nil {
			return fmt.Errorf("dyndns.UsingRFC2136: %w", err)
		}
		return nil
	}
}

// UsingInterfaces takes addresses from the named interfaces instead of the echo service.
// families pairs with names by position; nil means Any for every interface.
func UsingInterfaces(names []string, families []Family) Option {
	return func(c *Client) (err error) {
		c.requested, err = ResolveFamilies(names, families)
		return err
	}
}

// UsingInterfaceSource replaces the operating system as the source of interfaces.
func UsingInterfaceSource(src InterfaceSource) Option {
	return func(c *Client) error {
		c.discoverer.Source = src
		return nil
	}
}

// UsingHostManager enumerates interfaces with "ha network info",
// or with command and args when command is not empty.
func UsingHostManager(command string, args ...string) Option {
	return func(c *Client) error {
		c.discoverer.Source = &HostSource{Command: command, Args: args}
		return nil
	}
}

// UsingEchoResolver sets the echo services asked when no interfaces are requested.
func UsingEchoResolver(serviceURL ...string) Option {
	return func(c *Client) error {
		e, err := EchoResolver(serviceURL...)
		if err != nil {
			return err
		}
		c.discoverer.Echo = e
		return nil
	}
}

// UsingResolver replaces the echo service with any Resolver.
func UsingResolver(r Resolver) Option {
	return func(c *Client) error {
		c.discoverer.Echo = r
		return nil
	}
}

// WithTTL sets the record set TTL in seconds.
func WithTTL(ttl int64) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: ttl must be positive, got %d", ErrConfiguration, ttl)
		}
		c.ttl = ttl
		return nil
	}
}

// WithDryRun makes Run write the discovered addresses to the output instead of publishing them.
func WithDryRun(dryRun bool) Option {
	return func(c *Client) error {
		c.dryRun = dryRun
		return nil
	}
}

// WithOutput sets where Run reports its results. The default discards them.
func WithOutput(w io.Writer) Option {
	return func(c *Client) error {
		if w == nil {
			w = io.Discard
		}
		c.out = w
		return nil
	}
}

// WithLogger sets the logger handed to the client and every dependency that accepts one.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics reports every Run to o.
func WithMetrics(o RunObserver) Option {
	return func(c *Client) error {
		c.observer = o
		return nil
	}
}

// UsingHTTPClient sets the HTTP client for the echo resolver and for a DNS provider that accepts one.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = httpclient
		return nil
	}
}

func (c *Client) propagate() {
	if c.logger == nil {
		c.logger = discard
	}
	type setLogger interface {
		SetLogger(*slog.Logger)
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}

	if c.discoverer.Source == nil {
		c.discoverer.Source = &OSSource{}
	}
	if c.discoverer.Echo == nil {
		// no URLs: cannot fail
		c.discoverer.Echo, _ = EchoResolver()
	}

	c.discoverer.SetLogger(c.logger)
	for _, dep := range []any{c.discoverer.Source, c.discoverer.Echo, c.Publisher} {
		if l, ok := dep.(setLogger); ok {
			l.SetLogger(c.logger)
		}
		if h, ok := dep.(setHTTPClient); ok && c.httpClient != nil {
			h.SetHTTPClient(c.httpClient)
		}
	}
}

// Result reports what one Run did.
type Result struct {
	Addresses []netip.Addr
	Sets      RecordSets
	// Published holds the record sets as confirmed by the provider; empty on a dry run.
	Published []RecordSet
}

// Run discovers the current addresses, assembles them into record sets
// and publishes every non-empty set, A before AAAA.
// The first error ends the run; nothing is retried.
//
// On a dry run the addresses are written to the output, one per line, and the provider is never called.
// Otherwise each confirmed record set is written to the output as a line of JSON.
func (c *Client) Run(ctx context.Context) (result Result, err error) {
	if c.observer != nil {
		defer func() { c.observer.ObserveRun(result, err) }()
	}
	return c.run(ctx)
}

func (c *Client) run(ctx context.Context) (Result, error) {
	addrs, err := Collect(c.discoverer.Addresses(ctx, c.requested))
	if err != nil {
		return Result{}, fmt.Errorf("error getting IPs: %w", err)
	}
	c.logger.Info("discovered addresses", slog.Any("addresses", addrs))

	sets, err := Assemble(addrs, c.ttl)
	if err != nil {
		return Result{}, err
	}
	result := Result{Addresses: addrs, Sets: sets}

	if c.dryRun {
		for _, set := range []RecordSet{sets.A, sets.AAAA} {
			for _, a := range set.Records {
				fmt.Fprintln(c.out, a)
			}
		}
		c.logger.Info("dry run: not updating DNS")
		return result, nil
	}

	enc := json.NewEncoder(c.out)
	for _, set := range sets.NonEmpty() {
		confirmed, err := c.Publish(ctx, c.zone, c.record, set)
		if err != nil {
			return result, fmt.Errorf("error updating %s %s.%s: %w", set.Type, c.record, c.zone, err)
		}
		result.Published = append(result.Published, confirmed)
		if err := enc.Encode(confirmed); err != nil {
			return result, fmt.Errorf("writing result: %w", err)
		}
	}
	return result, nil
}

// Resolve implements Resolver with the client's discovery settings.
func (c *Client) Resolve(ctx context.Context) ([]netip.Addr, error) {
	return Collect(c.discoverer.Addresses(ctx, c.requested))
}
