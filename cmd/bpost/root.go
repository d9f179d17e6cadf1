package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/bpost-geocoder/internal/adapter/bpost"
	"github.com/couchcryptid/bpost-geocoder/internal/adapter/httptrace"
	"github.com/couchcryptid/bpost-geocoder/internal/observability"
)

// clientFlags are the persistent flags shared by every subcommand.
type clientFlags struct {
	endpoint      string
	apiKey        string
	requireAPIKey bool
	timeout       time.Duration
	trace         bool
	logLevel      string
	headers       map[string]string
}

func newRootCmd() *cobra.Command {
	flags := &clientFlags{}

	root := &cobra.Command{
		Use:   "bpost",
		Short: "Validate Belgian addresses with the bpost address validation service",
		Long: `
bpost sends addresses to the bpost validateAddresses endpoint and prints the
validated matches with their coordinates. Only Belgian addresses can match.
`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.endpoint, "endpoint", bpost.LegacyEndpoint, "validateAddresses endpoint URL")
	pf.StringVar(&flags.apiKey, "api-key", os.Getenv("BPOST_API_KEY"), "API key sent as x-api-key (default $BPOST_API_KEY)")
	pf.BoolVar(&flags.requireAPIKey, "require-api-key", false, "fail before calling bpost when no API key is set")
	pf.DurationVar(&flags.timeout, "timeout", 10*time.Second, "HTTP timeout")
	pf.BoolVar(&flags.trace, "trace", false, "log HTTP requests and responses to stderr")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringToStringVar(&flags.headers, "header", nil, "extra request header as name=value, repeatable")

	root.AddCommand(newGeocodeCmd(flags), newReverseCmd(flags))
	return root
}

// newClient builds a client from the persistent flags, logging to stderr.
func (f *clientFlags) newClient(cmd *cobra.Command) *bpost.Client {
	level := observability.ParseLevel(f.logLevel)
	if f.trace {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var transport http.RoundTripper = http.DefaultTransport
	if len(f.headers) > 0 {
		transport = &httptrace.HeaderTransport{Transport: transport, Headers: f.headers}
	}
	if f.trace {
		transport = httptrace.NewLoggingTransport(transport, logger, true)
	}
	httpClient := bpost.NewHTTPClient(f.timeout, transport)

	return bpost.NewClient(bpost.Options{
		Endpoint:      f.endpoint,
		APIKey:        f.apiKey,
		RequireAPIKey: f.requireAPIKey,
		HTTPClient:    httpClient,
		Logger:        logger,
	})
}
