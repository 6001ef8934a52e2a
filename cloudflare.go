package dyndns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"sort"
	"strings"

	"github.com/cloudflare/cloudflare-go"
)

// NewCloudflarePublisher constructs a Publisher for Cloudflare DNS using an API token
// with Zone:Read and DNS:Edit permissions.
func NewCloudflarePublisher(token string, httpClient *http.Client) (*CloudflarePublisher, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: cloudflare api token is required", ErrConfiguration)
	}
	var opts []cloudflare.Option
	if httpClient != nil {
		opts = append(opts, cloudflare.HTTPClient(httpClient))
	}
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cloudflare api client: %w", ErrConfiguration, err)
	}
	return &CloudflarePublisher{api: api, logger: discard}, nil
}

// CloudflarePublisher implements Publisher.
//
// It should be constructed using NewCloudflarePublisher.
type CloudflarePublisher struct {
	api    *cloudflare.API
	logger *slog.Logger
}

func (cf *CloudflarePublisher) SetLogger(logger *slog.Logger) { cf.logger = logger }

func (cf *CloudflarePublisher) SetHTTPClient(c *http.Client) {
	if cf.api == nil {
		return
	}
	_ = cloudflare.HTTPClient(c)(cf.api)
}

// Publish makes the records of set.Type at name equal to set.Records.
// Cloudflare has no record sets, so records missing from set are deleted,
// new ones are created, and existing ones are left alone.
// The metadata travels in each new record's comment.
func (cf *CloudflarePublisher) Publish(ctx context.Context, zone, name string, set RecordSet) (RecordSet, error) {
	if cf.api == nil {
		return RecordSet{}, errors.New("dyndns.CloudflarePublisher should be constructed with dyndns.NewCloudflarePublisher")
	}
	fqdn := recordFQDN(name, zone)

	zid, err := cf.api.ZoneIDByName(zone)
	if err != nil {
		return RecordSet{}, fmt.Errorf("%w: unable to get zone ID for %s: %w", ErrPublish, zone, err)
	}
	cf.logger.Debug("got zone ID", slog.String("zone", zone), slog.String("zone_id", zid))

	records, err := cf.list(ctx, zid, fqdn, set.Type)
	if err != nil {
		return RecordSet{}, err
	}
	cf.logger.Debug("found existing records", slog.String("name", fqdn), slog.Int("count", len(records)))

	stale, missing, err := diffRecords(records, set.Records)
	if err != nil {
		return RecordSet{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	for _, r := range stale {
		cf.logger.Info("deleting DNS record", slog.String("name", fqdn), slog.String("content", r.Content))
		if err := cf.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), r.ID); err != nil {
			return RecordSet{}, fmt.Errorf("%w: unable to delete DNS record %s: %w", ErrPublish, r.ID, err)
		}
	}
	for _, a := range missing {
		cf.logger.Info("creating DNS record", slog.String("name", fqdn), slog.String("content", a.String()))
		_, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
			Type:    string(set.Type),
			Name:    fqdn,
			Content: a.String(),
			ZoneID:  zid,
			TTL:     int(set.TTL),
			Comment: metadataComment(set.Metadata),
		})
		if err != nil {
			return RecordSet{}, fmt.Errorf("%w: error creating DNS record: %w", ErrPublish, err)
		}
	}

	confirmed, err := cf.list(ctx, zid, fqdn, set.Type)
	if err != nil {
		return RecordSet{}, err
	}
	out := RecordSet{Type: set.Type, Records: []netip.Addr{}, TTL: set.TTL, Metadata: set.Metadata}
	for _, r := range confirmed {
		a, err := netip.ParseAddr(r.Content)
		if err != nil {
			return RecordSet{}, fmt.Errorf("%w: error parsing IP from content: %w", ErrPublish, err)
		}
		out.Records = append(out.Records, a)
		out.TTL = int64(r.TTL)
	}
	return out, nil
}

func (cf *CloudflarePublisher) list(ctx context.Context, zid, fqdn string, t RecordType) ([]cloudflare.DNSRecord, error) {
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: string(t),
		Name: fqdn,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s records for %s: %w", ErrPublish, t, fqdn, err)
	}
	return records, nil
}

// diffRecords returns the existing records whose content is not wanted
// and the wanted addresses that have no record yet.
func diffRecords(existing []cloudflare.DNSRecord, want []netip.Addr) (stale []cloudflare.DNSRecord, missing []netip.Addr, err error) {
	wanted := map[netip.Addr]bool{}
	for _, a := range want {
		wanted[a] = true
	}
	have := map[netip.Addr]bool{}
	for _, r := range existing {
		a, err := netip.ParseAddr(r.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("error parsing IP from content %q: %w", r.Content, err)
		}
		if wanted[a] && !have[a] {
			have[a] = true
			continue
		}
		stale = append(stale, r)
	}
	for _, a := range want {
		if have[a] {
			continue
		}
		have[a] = true
		missing = append(missing, a)
	}
	return stale, missing, nil
}

// recordFQDN joins a zone-relative record name with its zone. "@" is the apex.
func recordFQDN(name, zone string) string {
	zone = strings.TrimSuffix(zone, ".")
	name = strings.TrimSuffix(name, ".")
	switch {
	case name == "" || name == "@":
		return zone
	case name == zone || strings.HasSuffix(name, "."+zone):
		return name
	}
	return name + "." + zone
}

// metadataComment renders metadata as "k=v; k=v" in key order.
func metadataComment(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+md[k])
	}
	return strings.Join(parts, "; ")
}
