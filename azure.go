package dyndns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/dns/armdns"
)

// AzureConfig configures an AzurePublisher.
type AzureConfig struct {
	SubscriptionID string
	ResourceGroup  string

	// Service principal. When any of these is empty the default Azure credential chain
	// (environment, workload identity, managed identity, Azure CLI) is used instead.
	TenantID     string
	ClientID     string
	ClientSecret string

	// Credential overrides the settings above.
	Credential azcore.TokenCredential
	// ClientOptions are passed to the record set client.
	ClientOptions *arm.ClientOptions
}

// AzurePublisher writes record sets to an Azure DNS zone.
type AzurePublisher struct {
	client        *armdns.RecordSetsClient
	resourceGroup string
	logger        *slog.Logger
}

// NewAzurePublisher constructs a Publisher for Azure DNS.
func NewAzurePublisher(cfg AzureConfig) (*AzurePublisher, error) {
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: azure subscription ID is required", ErrConfiguration)
	}
	if cfg.ResourceGroup == "" {
		return nil, fmt.Errorf("%w: azure resource group is required", ErrConfiguration)
	}

	cred := cfg.Credential
	if cred == nil {
		var err error
		if cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
			cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		} else {
			cred, err = azidentity.NewDefaultAzureCredential(nil)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: creating azure credential: %w", ErrConfiguration, err)
		}
	}

	opts := &arm.ClientOptions{}
	if cfg.ClientOptions != nil {
		*opts = *cfg.ClientOptions
	}
	// failed runs are repeated by the scheduler, not here
	opts.Retry.MaxRetries = -1

	client, err := armdns.NewRecordSetsClient(cfg.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: creating azure dns client: %w", ErrConfiguration, err)
	}
	return &AzurePublisher{
		client:        client,
		resourceGroup: cfg.ResourceGroup,
		logger:        discard,
	}, nil
}

func (p *AzurePublisher) SetLogger(logger *slog.Logger) { p.logger = logger }

// Publish implements Publisher with a single CreateOrUpdate call,
// which replaces every record of set.Type at name.
func (p *AzurePublisher) Publish(ctx context.Context, zone, name string, set RecordSet) (RecordSet, error) {
	props := &armdns.RecordSetProperties{
		TTL:      to.Ptr(set.TTL),
		Metadata: make(map[string]*string, len(set.Metadata)),
	}
	for k, v := range set.Metadata {
		props.Metadata[k] = to.Ptr(v)
	}

	var recordType armdns.RecordType
	switch set.Type {
	case TypeA:
		recordType = armdns.RecordTypeA
		props.ARecords = []*armdns.ARecord{}
		for _, a := range set.Records {
			props.ARecords = append(props.ARecords, &armdns.ARecord{IPv4Address: to.Ptr(a.String())})
		}
	case TypeAAAA:
		recordType = armdns.RecordTypeAAAA
		props.AaaaRecords = []*armdns.AaaaRecord{}
		for _, a := range set.Records {
			props.AaaaRecords = append(props.AaaaRecords, &armdns.AaaaRecord{IPv6Address: to.Ptr(a.String())})
		}
	default:
		return RecordSet{}, fmt.Errorf("%w: unsupported record type %q", ErrPublish, set.Type)
	}

	p.logger.Info("updating azure dns record set",
		slog.String("resource_group", p.resourceGroup),
		slog.String("zone", zone),
		slog.String("name", name),
		slog.String("type", string(set.Type)),
		slog.Int("records", len(set.Records)),
	)
	resp, err := p.client.CreateOrUpdate(ctx, p.resourceGroup, zone, name, recordType, armdns.RecordSet{Properties: props}, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return RecordSet{}, fmt.Errorf("%w: azure dns %s %s.%s: %s (HTTP %d)", ErrPublish, set.Type, name, zone, respErr.ErrorCode, respErr.StatusCode)
		}
		return RecordSet{}, fmt.Errorf("%w: azure dns %s %s.%s: %w", ErrPublish, set.Type, name, zone, err)
	}
	return fromAzureRecordSet(set.Type, resp.RecordSet)
}

func fromAzureRecordSet(t RecordType, rs armdns.RecordSet) (RecordSet, error) {
	out := RecordSet{Type: t, Records: []netip.Addr{}}
	props := rs.Properties
	if props == nil {
		return out, nil
	}
	if props.TTL != nil {
		out.TTL = *props.TTL
	}
	if len(props.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(props.Metadata))
		for k, v := range props.Metadata {
			if v != nil {
				out.Metadata[k] = *v
			}
		}
	}
	var values []*string
	switch t {
	case TypeA:
		for _, r := range props.ARecords {
			if r != nil {
				values = append(values, r.IPv4Address)
			}
		}
	case TypeAAAA:
		for _, r := range props.AaaaRecords {
			if r != nil {
				values = append(values, r.IPv6Address)
			}
		}
	}
	for _, v := range values {
		if v == nil {
			continue
		}
		a, err := netip.ParseAddr(*v)
		if err != nil {
			return RecordSet{}, fmt.Errorf("%w: azure dns returned an invalid address %q: %w", ErrPublish, *v, err)
		}
		out.Records = append(out.Records, a)
	}
	return out, nil
}
