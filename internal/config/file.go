package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Travis-Britz/dyndns"
	"gopkg.in/yaml.v3"
)

// fileOptions is the configuration file structure.
// Pointers distinguish a value that is absent from one set to its zero value.
type fileOptions struct {
	Provider       *string `json:"provider" yaml:"provider" toml:"provider"`
	ResourceGroup  *string `json:"resourceGroup" yaml:"resourceGroup" toml:"resourceGroup"`
	Zone           *string `json:"zoneName" yaml:"zoneName" toml:"zoneName"`
	Record         *string `json:"recordName" yaml:"recordName" toml:"recordName"`
	SubscriptionID *string `json:"subscriptionId" yaml:"subscriptionId" toml:"subscriptionId"`
	TenantID       *string `json:"tenantId" yaml:"tenantId" toml:"tenantId"`
	ClientID       *string `json:"clientId" yaml:"clientId" toml:"clientId"`
	ClientSecret   *string `json:"clientSecret" yaml:"clientSecret" toml:"clientSecret"`

	InterfaceNames    []string `json:"interfaceName" yaml:"interfaceName" toml:"interfaceName"`
	InterfaceFamilies []familyValue `json:"interfaceAddressFamilies" yaml:"interfaceAddressFamilies" toml:"interfaceAddressFamilies"`
	// misspelled key written by earlier releases, which stored numbers
	LegacyFamilies []familyValue `json:"iterfaceAddressFamilies" yaml:"iterfaceAddressFamilies" toml:"iterfaceAddressFamilies"`

	TTL         *int64   `json:"ttl" yaml:"ttl" toml:"ttl"`
	DryRun      *bool    `json:"dryRun" yaml:"dryRun" toml:"dryRun"`
	Hassio      *bool    `json:"hassio" yaml:"hassio" toml:"hassio"`
	HostCommand *string  `json:"hostCommand" yaml:"hostCommand" toml:"hostCommand"`
	EchoURLs    []string `json:"echoUrl" yaml:"echoUrl" toml:"echoUrl"`

	CloudflareKeyFile *string `json:"cloudflareKeyFile" yaml:"cloudflareKeyFile" toml:"cloudflareKeyFile"`

	RFC2136 *fileRFC2136 `json:"rfc2136" yaml:"rfc2136" toml:"rfc2136"`

	LogLevel    *string `json:"logLevel" yaml:"logLevel" toml:"logLevel"`
	LogFormat   *string `json:"logFormat" yaml:"logFormat" toml:"logFormat"`
	MetricsFile *string `json:"metricsFile" yaml:"metricsFile" toml:"metricsFile"`
}

type fileRFC2136 struct {
	Server        *string `json:"server" yaml:"server" toml:"server"`
	TSIGKeyName   *string `json:"tsigKey" yaml:"tsigKey" toml:"tsigKey"`
	TSIGSecret    *string `json:"tsigSecret" yaml:"tsigSecret" toml:"tsigSecret"`
	TSIGAlgorithm *string `json:"tsigAlgorithm" yaml:"tsigAlgorithm" toml:"tsigAlgorithm"`
	TCP           *bool   `json:"tcp" yaml:"tcp" toml:"tcp"`
}

// envVarPattern matches ${VAR} or ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} with the value of VAR,
// or with default for ${VAR:-default} when VAR is unset or empty.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}

// LoadFile reads the configuration file at path into o.
// The format follows the extension: .yaml or .yml, .toml, anything else is JSON.
// Every value present in the file replaces the one in o.
func LoadFile(path string, o *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading config file: %w", dyndns.ErrConfiguration, err)
	}
	var f fileOptions
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return fmt.Errorf("%w: parsing config file %s: %w", dyndns.ErrConfiguration, path, err)
	}
	return f.apply(o)
}

// familyValue is an address family written either by name ("IPv6")
// or by number (0 Any, 1 IPv4, 2 IPv6).
type familyValue dyndns.Family

func (v *familyValue) setName(s string) error {
	fam, err := dyndns.ParseFamily(InterpolateEnvVars(s))
	if err != nil {
		return err
	}
	*v = familyValue(fam)
	return nil
}

func (v *familyValue) setNumber(n int64) error {
	switch n {
	case 0:
		*v = familyValue(dyndns.Any)
	case 1:
		*v = familyValue(dyndns.IPv4)
	case 2:
		*v = familyValue(dyndns.IPv6)
	default:
		return fmt.Errorf("%w: unknown address family number %d (expected 0, 1 or 2)", dyndns.ErrConfiguration, n)
	}
	return nil
}

func (v *familyValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return v.setName(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: address family must be a name or a number, got %s", dyndns.ErrConfiguration, b)
	}
	return v.setNumber(n)
}

func (v *familyValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: address family must be a name or a number", dyndns.ErrConfiguration, node.Line)
	}
	if node.ShortTag() == "!!int" {
		n, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", dyndns.ErrConfiguration, node.Line, err)
		}
		return v.setNumber(n)
	}
	return v.setName(node.Value)
}

func (v *familyValue) UnmarshalTOML(data any) error {
	switch d := data.(type) {
	case string:
		return v.setName(d)
	case int64:
		return v.setNumber(d)
	}
	return fmt.Errorf("%w: address family must be a name or a number, got %T", dyndns.ErrConfiguration, data)
}

func (f *fileOptions) apply(o *Options) error {
	str := func(dst *string, src *string) {
		if src != nil {
			*dst = InterpolateEnvVars(*src)
		}
	}
	list := func(src []string) []string {
		out := make([]string, len(src))
		for i, s := range src {
			out[i] = InterpolateEnvVars(s)
		}
		return out
	}

	str(&o.Provider, f.Provider)
	str(&o.ResourceGroup, f.ResourceGroup)
	str(&o.Zone, f.Zone)
	str(&o.Record, f.Record)
	str(&o.SubscriptionID, f.SubscriptionID)
	str(&o.TenantID, f.TenantID)
	str(&o.ClientID, f.ClientID)
	str(&o.ClientSecret, f.ClientSecret)
	str(&o.HostCommand, f.HostCommand)
	str(&o.CloudflareKeyFile, f.CloudflareKeyFile)
	str(&o.LogLevel, f.LogLevel)
	str(&o.LogFormat, f.LogFormat)
	str(&o.MetricsFile, f.MetricsFile)

	if f.InterfaceNames != nil {
		o.InterfaceNames = list(f.InterfaceNames)
	}
	families := f.InterfaceFamilies
	if families == nil {
		families = f.LegacyFamilies
	}
	if families != nil {
		o.InterfaceFamilies = make([]dyndns.Family, 0, len(families))
		for _, v := range families {
			o.InterfaceFamilies = append(o.InterfaceFamilies, dyndns.Family(v))
		}
	}
	if f.EchoURLs != nil {
		o.EchoURLs = list(f.EchoURLs)
	}
	if f.TTL != nil {
		o.TTL = *f.TTL
	}
	if f.DryRun != nil {
		o.DryRun = *f.DryRun
	}
	if f.Hassio != nil {
		o.Hassio = *f.Hassio
	}
	if r := f.RFC2136; r != nil {
		str(&o.RFC2136Server, r.Server)
		str(&o.TSIGKeyName, r.TSIGKeyName)
		str(&o.TSIGSecret, r.TSIGSecret)
		str(&o.TSIGAlgorithm, r.TSIGAlgorithm)
		if r.TCP != nil {
			o.RFC2136TCP = *r.TCP
		}
	}
	return nil
}
