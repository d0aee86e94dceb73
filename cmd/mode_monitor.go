package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hashmap-kz/pgreplmon/cmd/cmdutils"
	"github.com/hashmap-kz/pgreplmon/cmd/loops"
	"github.com/hashmap-kz/pgreplmon/config"
	"github.com/hashmap-kz/pgreplmon/internal/collector"
	"github.com/hashmap-kz/pgreplmon/internal/httpsrv"
	"github.com/hashmap-kz/pgreplmon/internal/metrics"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/report"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

func newProber(cfg *config.Config) *pg.Prober {
	return pg.NewProber(&pg.ProberOpts{
		Timeout:          cfg.Collect.ProbeTimeoutParsed,
		ConsistencyTable: cfg.Collect.ConsistencyTable,
	})
}

// RunMonitorMode runs the collector, the HTTP server and the optional summary
// reporter until SIGINT/SIGTERM. Only a bind failure or a server error is
// returned; database trouble is reported through the endpoints.
func RunMonitorMode(ctx context.Context, cfg *config.Config) error {
	// setup context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	store := snapshot.NewStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coll := collector.NewCollector(newProber(cfg), store, &collector.Opts{
		Primary:  cfg.PrimaryEndpoint(),
		Standby:  cfg.StandbyEndpoint(),
		Interval: cfg.Collect.IntervalParsed,
		Metrics:  metrics.NewProm(reg),
	})

	var reporter *report.SummaryReporter
	if cfg.Report.Cron != "" {
		var err error
		reporter, err = report.NewSummaryReporter(&report.SummaryReporterOpts{
			Cron:  cfg.Report.Cron,
			Store: store,
		})
		if err != nil {
			return err
		}
	}

	handlers := httpsrv.InitHTTPHandlers(&httpsrv.HTTPHandlersOpts{
		Store:       store,
		SelfMetrics: reg,
		Verbose:     cfg.HTTP.Verbose,
		RateLimit:   cfg.HTTP.RateLimit,
		RateBurst:   cfg.HTTP.RateBurst,
	})
	srv := loops.NewHTTPSrv(cmdutils.ListenAddr(cfg.HTTP.ListenAddr, cfg.HTTP.Port), handlers)

	// bind before anything starts: a taken port is fatal
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	if err := services.StartAndAwaitRunning(ctx, coll); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start collector: %w", err)
	}

	// Use WaitGroup to wait for all goroutines to finish
	var wg sync.WaitGroup
	var serveErr error

	// HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("http server panicked",
					slog.Any("panic", r),
					slog.String("goroutine", "http-server"),
				)
				cancel()
			}
		}()

		if err := srv.Serve(ctx, ln); err != nil {
			slog.Error("http server failed", slog.Any("err", err))
			serveErr = err
			cancel()
		}
	}()

	if reporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("summary reporter panicked",
						slog.Any("panic", r),
						slog.String("goroutine", "summary-reporter"),
					)
				}
			}()
			if err := reporter.Run(ctx); err != nil {
				slog.Error("summary reporter failed", slog.Any("err", err))
			}
		}()
	}

	// Wait for signal (context cancellation)
	<-ctx.Done()
	slog.Info("shutting down, waiting for goroutines...")

	if err := services.StopAndAwaitTerminated(context.Background(), coll); err != nil {
		slog.Error("collector stopped with error", slog.Any("err", err))
	}

	// Wait for all goroutines to finish
	wg.Wait()
	slog.Info("all components shut down cleanly")
	return serveErr
}
