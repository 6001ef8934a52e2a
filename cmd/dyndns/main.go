// Command dyndns publishes this host's public addresses as the A and AAAA
// record sets of one DNS name, then exits. Run it from cron or a systemd timer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Travis-Britz/dyndns"
	"github.com/Travis-Britz/dyndns/internal/config"
	"github.com/Travis-Britz/dyndns/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "dyndns:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := config.Parse("dyndns", args, stderr)
	if err != nil {
		return err
	}
	logger := setupLogger(stderr, opts.LogLevel, opts.LogFormat)
	logger.Debug("config is valid",
		slog.String("provider", opts.Provider),
		slog.String("zone", opts.Zone),
		slog.String("record", opts.Record),
		slog.Any("interfaces", opts.InterfaceNames),
		slog.Bool("dry_run", opts.DryRun),
	)

	clientOpts, err := clientOptions(ctx, opts, logger, stdout)
	if err != nil {
		return err
	}

	var m *metrics.Run
	if opts.MetricsFile != "" {
		m = metrics.New()
		clientOpts = append(clientOpts, dyndns.WithMetrics(m))
	}

	client, err := dyndns.New(opts.Zone, opts.Record, clientOpts...)
	if err != nil {
		return fmt.Errorf("error creating dyndns.Client: %w", err)
	}
	_, runErr := client.Run(ctx)

	if m != nil {
		if err := m.WriteFile(opts.MetricsFile); err != nil {
			logger.Warn("unable to write metrics", slog.String("path", opts.MetricsFile), slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}

func clientOptions(ctx context.Context, opts config.Options, logger *slog.Logger, stdout io.Writer) ([]dyndns.Option, error) {
	o := []dyndns.Option{
		dyndns.WithTTL(opts.TTL),
		dyndns.WithDryRun(opts.DryRun),
		dyndns.WithOutput(stdout),
		dyndns.WithLogger(logger),
	}
	if len(opts.InterfaceNames) > 0 {
		o = append(o, dyndns.UsingInterfaces(opts.InterfaceNames, opts.InterfaceFamilies))
	}
	if opts.Hassio {
		cmd, args := opts.HostArgs()
		o = append(o, dyndns.UsingHostManager(cmd, args...))
	}
	if len(opts.EchoURLs) > 0 {
		o = append(o, dyndns.UsingEchoResolver(opts.EchoURLs...))
	}
	if opts.DryRun {
		return o, nil
	}

	switch opts.Provider {
	case config.ProviderAzure:
		o = append(o, dyndns.UsingAzure(dyndns.AzureConfig{
			SubscriptionID: opts.SubscriptionID,
			ResourceGroup:  opts.ResourceGroup,
			TenantID:       opts.TenantID,
			ClientID:       opts.ClientID,
			ClientSecret:   opts.ClientSecret,
		}))
	case config.ProviderCloudflare:
		token, err := cloudflareToken(ctx, opts.CloudflareToken, opts.CloudflareKeyFile, logger, stdout)
		if err != nil {
			return nil, err
		}
		o = append(o, dyndns.UsingCloudflare(token))
	case config.ProviderRFC2136:
		o = append(o, dyndns.UsingRFC2136(dyndns.RFC2136Config{
			Server:        opts.RFC2136Server,
			TSIGKeyName:   opts.TSIGKeyName,
			TSIGSecret:    opts.TSIGSecret,
			TSIGAlgorithm: opts.TSIGAlgorithm,
			UseTCP:        opts.RFC2136TCP,
		}))
	}
	return o, nil
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
