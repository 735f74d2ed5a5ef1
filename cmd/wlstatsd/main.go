package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/haukened/wlstats/internal/workload/common/clock"
	"github.com/haukened/wlstats/internal/workload/common/log"
	"github.com/haukened/wlstats/internal/workload/config"
	"github.com/haukened/wlstats/internal/workload/gateways/promexport"
	"github.com/haukened/wlstats/internal/workload/gateways/table"
	"github.com/haukened/wlstats/internal/workload/repos/registry"
	"github.com/haukened/wlstats/internal/workload/services/aggregator"
	"github.com/haukened/wlstats/internal/workload/services/extractor"
)

const (
	version = "0.1.0-dev"
	appName = "wlstatsd"

	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Application holds all the components of the workload statistics daemon.
type Application struct {
	config     *config.AppConfig
	logger     log.Logger
	clock      clock.Clock
	registry   *registry.Registry
	extractor  *extractor.Extractor
	aggregator *aggregator.Aggregator
	table      *table.Table
	feed       *feedGate
	metrics    *http.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":             appName,
		"version":         version,
		"env":             cfg.Env,
		"log_level":       cfg.LogLevel,
		"name_cache_size": cfg.NameCacheSize,
		"metrics_enabled": cfg.MetricsEnabled,
		"metrics_addr":    cfg.MetricsAddr,
	}, "initializing component...")

	app, err := buildApplication(cfg, log.GetLogger())
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Component failed to initialize properly")
	}
	log.Info(nil, "Component initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdin); err != nil {
		log.Error(map[string]any{"error": err}, "Component failed to deinitialize properly")
		os.Exit(1)
	}

	log.Info(nil, "Component deinitialized")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig, logger log.Logger) (*Application, error) {
	reg := registry.New(log.Named(logger, "registry"))

	ext, err := extractor.New(cfg.NameCacheSize, log.Named(logger, "extractor"))
	if err != nil {
		return nil, fmt.Errorf("failed to create workload extractor: %w", err)
	}

	clk := clock.RealClock{}
	agg := aggregator.New(aggregator.Options{
		Clock:     clk,
		Extractor: ext,
		Logger:    log.Named(logger, "aggregator"),
		Registry:  reg,
	})

	app := &Application{
		config:     cfg,
		logger:     logger,
		clock:      clk,
		registry:   reg,
		extractor:  ext,
		aggregator: agg,
		table:      table.New(reg, log.Named(logger, "table")),
		feed:       newFeedGate(agg),
	}

	if cfg.MetricsEnabled {
		srv, err := buildMetricsServer(cfg, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics endpoint: %w", err)
		}
		app.metrics = srv
	}

	return app, nil
}

func buildMetricsServer(cfg *config.AppConfig, reg *registry.Registry) (*http.Server, error) {
	promReg := prometheus.NewRegistry()
	if err := promReg.Register(promexport.NewCollector(reg, cfg.Namespace)); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}

// Run feeds query completions from events into the aggregator and serves
// metrics until ctx is cancelled, then tears everything down.
func (app *Application) Run(ctx context.Context, events io.Reader) error {
	serveErr := make(chan error, 1)
	if app.metrics != nil {
		go func() {
			app.logger.Info(map[string]any{"address": app.metrics.Addr}, "Metrics endpoint started")
			if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	go func() {
		n, err := consume(ctx, events, app.feed, app.clock, app.logger)
		fields := map[string]any{"events": n}
		if err != nil {
			fields["error"] = err
			app.logger.Warn(fields, "Query event feed failed")
			return
		}
		app.logger.Info(fields, "Query event feed closed")
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info(nil, "Shutdown initiated")
	case runErr = <-serveErr:
		app.logger.Error(map[string]any{"error": runErr}, "Metrics endpoint failed")
	}

	return multierr.Append(runErr, app.shutdown())
}

// shutdown stops the event feed and the metrics endpoint, logs the final
// table and releases the registry.
func (app *Application) shutdown() error {
	app.feed.close()

	var err error
	if app.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if serr := app.metrics.Shutdown(ctx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("metrics shutdown: %w", serr))
		}
	}

	dumpTable(app.table, app.logger)

	size, hits, misses := app.extractor.MemoStats()
	app.logger.Debug(map[string]any{
		"size":   size,
		"hits":   hits,
		"misses": misses,
	}, "Workload name memo statistics")

	if cerr := app.registry.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("registry close: %w", cerr))
	}
	return err
}

// dumpTable logs every populated row of t, one entry per workload.
func dumpTable(t *table.Table, logger log.Logger) int {
	h := t.Open()
	defer h.Close()

	rows := 0
	for h.Next() == nil {
		s := h.Row().Stats()
		logger.Info(map[string]any{
			"table":             t.Name(),
			"position":          int(h.Position()),
			"workload":          s.Name,
			"count_queries":     s.QueryCount,
			"sum_rows_examined": s.RowsExamined,
			"sum_rows_sent":     s.RowsSent,
			"sum_rows_affected": s.RowsAffected,
			"sum_duration_us":   s.DurationMicros,
		}, "Workload statistics")
		rows++
	}
	return rows
}
