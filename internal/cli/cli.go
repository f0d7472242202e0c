// Package cli wires the flag surface onto a TestConfig, validates it, and
// dispatches to the text report or the interactive TUI.
package cli

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bpowers/loadgen/internal/bodyfile"
	"github.com/bpowers/loadgen/internal/config"
	"github.com/bpowers/loadgen/internal/driver"
	"github.com/bpowers/loadgen/internal/logging"
	"github.com/bpowers/loadgen/internal/metrics"
	"github.com/bpowers/loadgen/internal/report"
	"github.com/bpowers/loadgen/internal/tui"
)

var log = logging.For("cli")

// options holds every flag's raw value before it is parsed/validated into a
// config.TestConfig.
type options struct {
	requests   int
	concurrent int
	duration   string
	timeout    int
	rateLimit  float64
	method     string
	headers    []string
	accept     string
	auth       string
	bodyStr    string
	bodyFile   string
	contentTyp string
	proxy      string

	disableCompression bool
	disableKeepAlive   bool
	disableRedirects   bool

	output string
	quiet  bool
}

// NewRootCommand builds the single root cobra.Command for the binary.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "loadgen <url>",
		Short: "HTTP(S) load-generation engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0])
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.requests, "requests", "n", 200, "number of requests to issue; 0 = unbounded")
	flags.IntVarP(&opts.concurrent, "concurrent", "c", 50, "number of concurrent workers")
	flags.StringVarP(&opts.duration, "duration", "z", "0", `duration, e.g. "10s", "5m", "2h"; "0" = unbounded`)
	flags.IntVarP(&opts.timeout, "timeout", "t", 20, "per-request timeout in seconds; 0 = none")
	flags.Float64VarP(&opts.rateLimit, "rate-limit", "q", 0, "per-worker rate limit in requests/sec; 0 = off")
	flags.StringVarP(&opts.method, "method", "m", "GET", "HTTP method")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, `custom header, "Name: Value"; repeatable`)
	flags.StringVarP(&opts.accept, "accept", "A", "", "Accept header value")
	flags.StringVarP(&opts.auth, "auth", "a", "", "basic auth, user:password")
	flags.StringVarP(&opts.bodyStr, "body", "d", "", "request body as a literal string")
	flags.StringVarP(&opts.bodyFile, "body-file", "D", "", "request body read from a file; ignored if -d is also given")
	flags.StringVarP(&opts.contentTyp, "content-type", "T", "text/html", "Content-Type, applied only when a body is present")
	flags.StringVarP(&opts.proxy, "proxy", "x", "", "proxy address, host:port")
	flags.BoolVar(&opts.disableCompression, "disable-compression", false, "disable compression")
	flags.BoolVar(&opts.disableKeepAlive, "disable-keepalive", false, "disable HTTP keep-alive")
	flags.BoolVar(&opts.disableRedirects, "disable-redirects", false, "don't follow redirects")
	flags.StringVarP(&opts.output, "output", "o", "ui", "output mode: ui|hey")
	flags.BoolVar(&opts.quiet, "quiet", false, "only log warnings and errors")

	return cmd
}

func run(ctx context.Context, opts *options, rawURL string) error {
	if opts.quiet {
		logging.SetLevel(logrus.WarnLevel)
	}

	cfg, err := buildConfig(opts, rawURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received interrupt, shutting down")
		cancel()
	}()

	agg := metrics.New(cfg)
	d, err := driver.New(cfg, agg)
	if err != nil {
		return err
	}

	switch opts.output {
	case "hey":
		go func() {
			<-ctx.Done()
			d.Stop()
		}()
		d.Run(ctx)
		return report.Write(os.Stdout, agg.Snapshot())
	case "ui", "":
		return tui.Run(ctx, cfg, agg, d)
	default:
		return errors.Errorf("unsupported output mode %q", opts.output)
	}
}

func buildConfig(opts *options, rawURL string) (*config.TestConfig, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing URL %q", rawURL)
	}

	method, err := ParseMethod(opts.method)
	if err != nil {
		return nil, err
	}

	duration, err := ParseDuration(opts.duration)
	if err != nil {
		return nil, err
	}

	headers := make([]config.Header, 0, len(opts.headers)+1)
	for _, raw := range opts.headers {
		h, err := ParseHeader(raw)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	if opts.accept != "" {
		headers = append(headers, config.Header{Name: "Accept", Value: opts.accept})
	}

	var basicAuth *config.BasicAuth
	if opts.auth != "" {
		basicAuth, err = ParseBasicAuth(opts.auth)
		if err != nil {
			return nil, err
		}
	}

	body, err := resolveBody(opts)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		headers = append(headers, config.Header{Name: "Content-Type", Value: opts.contentTyp})
	}

	cfg := &config.TestConfig{
		URL:                u,
		Method:             method,
		Headers:            headers,
		Body:               body,
		BasicAuth:          basicAuth,
		Proxy:              opts.proxy,
		Requests:           opts.requests,
		Duration:           duration,
		Concurrent:         opts.concurrent,
		RateLimit:          opts.rateLimit,
		Timeout:            time.Duration(opts.timeout) * time.Second,
		DisableCompression: opts.disableCompression,
		DisableKeepAlive:   opts.disableKeepAlive,
		DisableRedirects:   opts.disableRedirects,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveBody picks the request body when -d and/or -D were given: a
// literal -d string always takes precedence over -D's file path when both
// are supplied.
func resolveBody(opts *options) ([]byte, error) {
	if opts.bodyStr != "" {
		return []byte(opts.bodyStr), nil
	}
	if opts.bodyFile != "" {
		return bodyfile.Load(opts.bodyFile)
	}
	return nil, nil
}
