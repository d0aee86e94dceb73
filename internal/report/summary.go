// Package report logs a periodic one-line summary of the cluster state.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hashmap-kz/pgreplmon/internal/health"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/render"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

// POSIX compatible cron syntax: "* * * * *". Without support of seconds.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return s, nil
}

type SummaryReporterOpts struct {
	Cron   string
	Store  *snapshot.Store
	Logger *slog.Logger
}

type SummaryReporter struct {
	l     *slog.Logger
	spec  string
	store *snapshot.Store
}

func NewSummaryReporter(opts *SummaryReporterOpts) (*SummaryReporter, error) {
	if _, err := ParseSchedule(opts.Cron); err != nil {
		return nil, err
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &SummaryReporter{
		l:     l.With(slog.String("component", "summary-reporter")),
		spec:  opts.Cron,
		store: opts.Store,
	}, nil
}

func (r *SummaryReporter) log() *slog.Logger {
	if r.l != nil {
		return r.l
	}
	return slog.With(slog.String("component", "summary-reporter"))
}

// Run schedules the summary and blocks until ctx is done.
func (r *SummaryReporter) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(r.spec, func() { r.Report(ctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	r.log().Info("summary reporter started", slog.String("cron", r.spec))
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		r.log().Warn("summary job did not finish in time")
	}
	r.log().Debug("summary reporter stopped")
	return nil
}

// Report logs the latest snapshot once.
func (r *SummaryReporter) Report(ctx context.Context) {
	snap := r.store.Load()
	if snap == nil {
		r.log().Info("replication summary: no data collected yet")
		return
	}

	level := slog.LevelInfo
	switch health.Evaluate(snap).Combined.Tier {
	case health.TierWarning:
		level = slog.LevelWarn
	case health.TierCritical:
		level = slog.LevelError
	}
	r.log().LogAttrs(ctx, level, "replication summary", Summary(snap)...)
}

// Summary flattens a snapshot into log attributes. Unknown readings are left out.
func Summary(s *snapshot.Snapshot) []slog.Attr {
	sc := health.Evaluate(s)
	attrs := []slog.Attr{
		slog.String("status", string(sc.Combined.Tier)),
		slog.Int("score", sc.Combined.Score),
		slog.Group("primary", nodeAttrs(s.Primary, sc.Primary)...),
		slog.Group("standby", nodeAttrs(s.Standby, sc.Standby)...),
		slog.Time("collected_at", s.CollectedAt),
	}
	if s.DataConsistent != nil {
		attrs = append(attrs, slog.Bool("data_consistent", *s.DataConsistent))
	}
	return attrs
}

func nodeAttrs(r pg.Result, sc health.Score) []any {
	attrs := []any{
		slog.Bool("up", r.Reachable),
		slog.Int("score", sc.Score),
	}
	if r.LagBytes != nil {
		attrs = append(attrs, slog.Float64("lag_mb", render.LagMB(*r.LagBytes)))
	}
	if r.LagSeconds != nil {
		attrs = append(attrs, slog.Float64("lag_seconds", *r.LagSeconds))
	}
	if r.ReplicationConnections != nil {
		attrs = append(attrs, slog.Int64("connections", *r.ReplicationConnections))
	}
	if r.InRecovery != nil {
		attrs = append(attrs, slog.Bool("in_recovery", *r.InRecovery))
	}
	return attrs
}
