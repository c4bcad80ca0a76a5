package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"destsync/internal/catalog"
	"destsync/internal/config"
	"destsync/internal/destination"
	"destsync/internal/feed"
	"destsync/internal/metrics"
	"destsync/internal/metrics/datadog"
	"destsync/internal/metrics/prompush"
	"destsync/internal/naming"
	"destsync/internal/storage"
	"destsync/internal/typing"
)

type options struct {
	configPath     string
	input          string
	validate       bool
	metricsBackend string
	pushgatewayURL string
	statsdAddr     string
	verbose        bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("destsync", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "pipeline.yaml", "pipeline config path (.json, .yaml or .yml)")
	fs.StringVar(&o.input, "input", "-", "feed to load: a file path, an http(s) URL, or - for stdin")
	fs.BoolVar(&o.validate, "validate", false, "validate the configuration and exit")
	fs.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (default env METRICS_BACKEND)")
	fs.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (default env PUSHGATEWAY_URL, then http://localhost:9091)")
	fs.StringVar(&o.statsdAddr, "statsd-addr", "", "DogStatsD address (default env DD_DOGSTATSD_URL, then 127.0.0.1:8125)")
	fs.BoolVar(&o.verbose, "v", false, "enable debug logs")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return options{}, fmt.Errorf("unexpected arguments")
	}
	return o, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run executes one sync. A nil error means every record was persisted and
// finalization committed.
func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	p, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", o.configPath)
	}
	if o.validate {
		fmt.Fprintf(stdout, "configuration is valid: %s\n", o.configPath)
		return nil
	}

	log, err := newLogger(o.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("job", p.Job))

	if flush := setupMetrics(o, p.Job, log); flush != nil {
		defer flush()
	}

	repo, err := storage.New(ctx, storage.Config{Kind: p.Destination.Kind, DSN: p.Destination.DSN})
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer repo.Close()

	targets, err := destination.Resolve(p.Catalog.Streams, destination.NamingConfig{
		Convention:            naming.ForKind(p.Destination.Kind),
		RawSchema:             p.Destination.RawSchema,
		DefaultSchema:         p.Destination.DefaultSchema,
		RequireExplicitSchema: p.Destination.RequireExplicitSchema,
	})
	if err != nil {
		return err
	}
	typer := typing.New(repo, destination.StreamConfigs(targets), typing.Options{
		Disabled: p.Destination.DisableTypeDedupe,
		Logger:   log,
	})

	c := destination.NewConsumer(repo, typer, targets, destination.Options{
		Job:               p.Job,
		MemoryBudgetBytes: p.Runtime.MemoryBudgetBytes,
		MemoryFraction:    p.Runtime.MemoryBudgetFraction,
		Scheduler: destination.SchedulerConfig{
			Workers:           p.Runtime.FlushWorkers,
			OptimalBatchBytes: p.Runtime.OptimalBatchBytes,
			FlushInterval:     p.Runtime.FlushInterval.Std(),
		},
		Logger: log,
	})
	log.Info("starting sync",
		zap.String("kind", repo.Kind()),
		zap.Int("streams", len(targets)),
		zap.Int64("memory_budget_bytes", c.Budget()),
	)
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	pumpErr := pump(ctx, o.input, c, p.Job, log)
	if pumpErr != nil {
		log.Error("feed failed", zap.Error(pumpErr))
	}
	res, closeErr := c.Close(ctx, pumpErr == nil)
	writeSummary(stdout, targets, res)

	switch {
	case closeErr != nil && pumpErr != nil && !errors.Is(pumpErr, closeErr):
		return errors.Join(pumpErr, closeErr)
	case closeErr != nil:
		return closeErr
	case pumpErr != nil:
		return pumpErr
	}
	log.Info("sync complete", zap.Bool("finalized", res.Finalized))
	return nil
}

func pump(ctx context.Context, input string, sink feed.Sink, job string, log *zap.Logger) error {
	src, err := feed.OpenSource(input, feed.HTTPConfig{})
	if err != nil {
		return err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	r := &feed.Reader{Job: job, Log: log.Named("feed")}
	_, err = r.Pump(ctx, rc, sink)
	return err
}

func writeSummary(w io.Writer, targets []destination.WriteTarget, res destination.Result) {
	keys := make([]catalog.StreamKey, 0, len(targets))
	for _, t := range targets {
		keys = append(keys, t.Key())
	}
	catalog.SortKeys(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STREAM\tRECORDS\tBYTES\tFLUSHES\tSTATUS")
	for _, k := range keys {
		s := res.Summaries[k]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", k, s.RecordsWritten, s.BytesWritten, s.Flushes, s.Status)
	}
	_ = tw.Flush()
}

// setupMetrics installs the selected backend and returns its flush func, or
// nil when metrics stay disabled. Flag wins over env.
func setupMetrics(o options, job string, log *zap.Logger) func() {
	name := o.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	var (
		b   metrics.Backend
		err error
	)
	switch name {
	case "pushgateway", "prompush":
		url := firstNonEmpty(o.pushgatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err = prompush.NewBackend(job, url)
		log.Info("metrics backend", zap.String("backend", "pushgateway"), zap.String("url", url))
	case "datadog":
		addr := firstNonEmpty(o.statsdAddr, os.Getenv("DD_DOGSTATSD_URL"), "127.0.0.1:8125")
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "destsync.",
			GlobalTags: []string{"job:" + job},
		})
		log.Info("metrics backend", zap.String("backend", "datadog"), zap.String("addr", addr))
	case "", "none":
		return nil
	default:
		log.Warn("unknown metrics backend; metrics disabled", zap.String("backend", name))
		return nil
	}
	if err != nil {
		log.Warn("metrics backend init failed; using nop", zap.Error(err))
		return nil
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", zap.Error(err))
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
