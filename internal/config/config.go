// Package config builds the dyndns command's Options from flags, an optional
// configuration file and the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Travis-Britz/dyndns"
	"golang.org/x/net/idna"
)

// Providers the command can publish to.
const (
	ProviderAzure      = "azure"
	ProviderCloudflare = "cloudflare"
	ProviderRFC2136    = "rfc2136"
)

const (
	DefaultProvider    = ProviderAzure
	DefaultHostCommand = "/usr/bin/ha network info"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Options is everything the command can be told.
type Options struct {
	ConfigFile string
	Provider   string

	ResourceGroup  string
	Zone           string
	Record         string
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string

	CloudflareKeyFile string
	CloudflareToken   string

	RFC2136Server string
	TSIGKeyName   string
	TSIGSecret    string
	TSIGAlgorithm string
	RFC2136TCP    bool

	InterfaceNames    []string
	InterfaceFamilies []dyndns.Family
	TTL               int64
	DryRun            bool
	Hassio            bool
	HostCommand       string
	EchoURLs          []string

	LogLevel    string
	LogFormat   string
	MetricsFile string
}

// Default returns the options in effect when nothing is configured.
func Default() Options {
	return Options{
		Provider:    DefaultProvider,
		TTL:         dyndns.DefaultTTL,
		HostCommand: DefaultHostCommand,
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
	}
}

// BindFlags registers every option on fs. Short names come first and
// each has a long alias writing to the same field.
func (o *Options) BindFlags(fs *flag.FlagSet) {
	str := func(p *string, short, long, usage string) {
		if short != "" {
			fs.StringVar(p, short, *p, usage)
		}
		fs.StringVar(p, long, *p, usage)
	}
	boolean := func(p *bool, short, long, usage string) {
		if short != "" {
			fs.BoolVar(p, short, *p, usage)
		}
		fs.BoolVar(p, long, *p, usage)
	}

	str(&o.ConfigFile, "f", "config-file", "Path to configuration file (JSON, YAML or TOML)")
	str(&o.ResourceGroup, "g", "resource-group", "Azure resource group where Azure DNS is located")
	str(&o.Zone, "z", "zone", "DNS zone name")
	str(&o.Record, "r", "record", "DNS record name to be created/updated")
	str(&o.SubscriptionID, "s", "subscription-id", "Azure subscription ID")
	str(&o.TenantID, "t", "tenant-id", "Azure tenant ID (or set AZURE_TENANT_ID)")
	str(&o.ClientID, "c", "client-id", "Azure service principal client ID (or set AZURE_CLIENT_ID)")
	str(&o.ClientSecret, "x", "client-secret", "Azure service principal client secret (or set AZURE_CLIENT_SECRET)")

	names := (*stringList)(&o.InterfaceNames)
	fs.Var(names, "i", "Network interface to obtain addresses from; repeatable. If empty, ask the echo service.")
	fs.Var(names, "interface-name", "Alias for -i")
	families := (*familyList)(&o.InterfaceFamilies)
	fs.Var(families, "a", "Address family (IPv4, IPv6 or Any) for the interface at the same position; repeatable")
	fs.Var(families, "interface-address-family", "Alias for -a")

	fs.Int64Var(&o.TTL, "l", o.TTL, "Time-to-live for the DNS records, in seconds")
	fs.Int64Var(&o.TTL, "ttl", o.TTL, "Time-to-live for the DNS records, in seconds")
	boolean(&o.DryRun, "d", "dry-run", "Display the IP addresses to be updated instead of updating them")
	boolean(&o.Hassio, "h", "hassio", "Use the host manager (ha network info) to enumerate interfaces")

	str(&o.Provider, "", "provider", "DNS provider: azure, cloudflare or rfc2136")
	str(&o.HostCommand, "", "host-command", "Host manager command used with -hassio")
	fs.Var((*stringList)(&o.EchoURLs), "echo-url", "Public IP echo service; repeatable. Several URLs must agree. (default "+dyndns.DefaultEchoURL+")")
	str(&o.CloudflareKeyFile, "", "cloudflare-key-file", "Path to a file holding the Cloudflare API token (or set CLOUDFLARE_API_TOKEN)")
	str(&o.RFC2136Server, "", "rfc2136-server", "Name server receiving RFC 2136 updates, host[:port]")
	str(&o.TSIGKeyName, "", "tsig-key", "TSIG key name for RFC 2136 updates")
	str(&o.TSIGSecret, "", "tsig-secret", "Base64 TSIG secret (or set DYNDNS_TSIG_SECRET)")
	str(&o.TSIGAlgorithm, "", "tsig-algorithm", "TSIG algorithm: hmac-sha256, hmac-sha512 or hmac-sha1")
	boolean(&o.RFC2136TCP, "", "rfc2136-tcp", "Send RFC 2136 updates over TCP")
	str(&o.LogLevel, "", "log-level", "Log level: debug, info, warn or error")
	str(&o.LogFormat, "", "log-format", "Log format: text or json")
	str(&o.MetricsFile, "", "metrics-file", "Write Prometheus metrics to this file for the node_exporter textfile collector")
}

// Parse reads the command line, then the configuration file named by -f,
// then the environment, and returns normalised, validated options.
func Parse(name string, args []string, output io.Writer) (Options, error) {
	o := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	o.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("%w: unexpected arguments: %s", dyndns.ErrConfiguration, strings.Join(fs.Args(), " "))
	}

	if o.ConfigFile != "" {
		if err := LoadFile(o.ConfigFile, &o); err != nil {
			return o, err
		}
	}
	o.ApplyEnv(os.Getenv)
	if err := o.Normalize(); err != nil {
		return o, err
	}
	return o, o.Validate()
}

// ApplyEnv fills credentials that were not configured from the environment.
func (o *Options) ApplyEnv(getenv func(string) string) {
	fallback := func(p *string, key string) {
		if *p == "" {
			*p = getenv(key)
		}
	}
	fallback(&o.TenantID, "AZURE_TENANT_ID")
	fallback(&o.ClientID, "AZURE_CLIENT_ID")
	fallback(&o.ClientSecret, "AZURE_CLIENT_SECRET")
	fallback(&o.SubscriptionID, "AZURE_SUBSCRIPTION_ID")
	fallback(&o.CloudflareToken, "CLOUDFLARE_API_TOKEN")
	fallback(&o.TSIGSecret, "DYNDNS_TSIG_SECRET")
}

// Normalize lower-cases the provider and converts the zone and record names to ASCII.
func (o *Options) Normalize() error {
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	var errs []error
	var err error
	if o.Zone, err = toASCII(o.Zone); err != nil {
		errs = append(errs, fmt.Errorf("%w: zone %q: %w", dyndns.ErrConfiguration, o.Zone, err))
	}
	if o.Record, err = toASCII(o.Record); err != nil {
		errs = append(errs, fmt.Errorf("%w: record %q: %w", dyndns.ErrConfiguration, o.Record, err))
	}
	return errors.Join(errs...)
}

// toASCII converts each label of an internationalised name to its A-label.
// The apex marker "@" and wildcard labels pass through unchanged.
func toASCII(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "@" {
		return name, nil
	}
	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	for i, label := range labels {
		if label == "*" {
			continue
		}
		a, err := idna.Lookup.ToASCII(label)
		if err != nil {
			return name, err
		}
		labels[i] = a
	}
	return strings.Join(labels, "."), nil
}

// Validate reports every configuration problem at once.
func (o Options) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{dyndns.ErrConfiguration}, args...)...))
	}

	if !o.DryRun {
		if o.Zone == "" {
			bad("zone is required")
		}
		if o.Record == "" {
			bad("record is required")
		}
	}
	if o.TTL <= 0 {
		bad("ttl must be positive, got %d", o.TTL)
	}
	if len(o.InterfaceFamilies) != 0 && len(o.InterfaceFamilies) != len(o.InterfaceNames) {
		bad("the number of --interface-address-family parameters (%d) must be equal to the number of --interface-name parameters (%d), or be 0 to default to Any",
			len(o.InterfaceFamilies), len(o.InterfaceNames))
	}
	if o.Hassio && len(strings.Fields(o.HostCommand)) == 0 {
		bad("host command must not be empty")
	}

	switch o.Provider {
	case ProviderAzure:
		if !o.DryRun {
			if o.SubscriptionID == "" {
				bad("azure subscription ID is required")
			}
			if o.ResourceGroup == "" {
				bad("azure resource group is required")
			}
		}
	case ProviderCloudflare:
	case ProviderRFC2136:
		if !o.DryRun && o.RFC2136Server == "" {
			bad("rfc2136 server is required")
		}
	default:
		bad("unknown provider %q (expected %s, %s or %s)", o.Provider, ProviderAzure, ProviderCloudflare, ProviderRFC2136)
	}

	switch strings.ToLower(o.LogFormat) {
	case "text", "json":
	default:
		bad("unknown log format %q", o.LogFormat)
	}
	return errors.Join(errs...)
}

// HostArgs splits HostCommand into a command and its arguments.
func (o Options) HostArgs() (string, []string) {
	f := strings.Fields(o.HostCommand)
	if len(f) == 0 {
		return "", nil
	}
	return f[0], f[1:]
}

type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

type familyList []dyndns.Family

func (l *familyList) String() string {
	if l == nil {
		return ""
	}
	s := make([]string, len(*l))
	for i, f := range *l {
		s[i] = f.String()
	}
	return strings.Join(s, ",")
}

func (l *familyList) Set(s string) error {
	f, err := dyndns.ParseFamily(s)
	if err != nil {
		return err
	}
	*l = append(*l, f)
	return nil
}
