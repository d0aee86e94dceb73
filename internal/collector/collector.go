package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/grafana/dskit/services"
	"golang.org/x/sync/errgroup"

	"github.com/hashmap-kz/pgreplmon/internal/metrics"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

const DefaultInterval = 15 * time.Second

type Prober interface {
	Probe(ctx context.Context, ep pg.Endpoint) pg.Result
}

type Opts struct {
	Primary  pg.Endpoint
	Standby  pg.Endpoint
	Interval time.Duration
	Metrics  metrics.MonitorMetrics
	Logger   *slog.Logger
}

// Collector probes primary and standby on a fixed interval and publishes one
// Snapshot per cycle. It is the only writer of the Store.
type Collector struct {
	*services.BasicService
	l        *slog.Logger
	prober   Prober
	store    *snapshot.Store
	primary  pg.Endpoint
	standby  pg.Endpoint
	interval time.Duration
	metrics  metrics.MonitorMetrics
	now      func() time.Time
}

func NewCollector(prober Prober, store *snapshot.Store, opts *Opts) *Collector {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}

	c := &Collector{
		l:        l.With(slog.String("component", "collector")),
		prober:   prober,
		store:    store,
		primary:  opts.Primary,
		standby:  opts.Standby,
		interval: interval,
		metrics:  m,
		now:      time.Now,
	}
	c.BasicService = services.NewBasicService(nil, c.running, nil).
		WithName("collector")
	return c
}

func (c *Collector) log() *slog.Logger {
	if c.l != nil {
		return c.l
	}
	return slog.With(slog.String("component", "collector"))
}

// running collects immediately, then on every tick, until ctx is canceled.
// A failed probe never stops the loop and there is no backoff.
func (c *Collector) running(ctx context.Context) error {
	c.log().Info("collector started", slog.Duration("interval", c.interval))

	c.CollectOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log().Info("context is done, collector exiting")
			return nil
		case <-ticker.C:
			c.CollectOnce(ctx)
		}
	}
}

// CollectOnce probes both endpoints concurrently, waits for both, and
// publishes the resulting Snapshot. It returns nil without publishing when ctx
// is canceled mid-cycle, so readers keep the last complete snapshot.
func (c *Collector) CollectOnce(ctx context.Context) *snapshot.Snapshot {
	var primary, standby pg.Result

	var g errgroup.Group
	g.Go(func() error {
		primary = c.probe(ctx, c.primary)
		return nil
	})
	g.Go(func() error {
		standby = c.probe(ctx, c.standby)
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		c.log().Debug("collection interrupted, snapshot discarded")
		return nil
	}

	prev := c.store.Load()
	snap := snapshot.New(primary, standby, c.now())
	c.store.Publish(snap)

	c.metrics.IncCollectCycles()
	c.metrics.SetLastCollect(snap.CollectedAt)
	c.logTransitions(prev, snap)

	c.log().Debug("snapshot published",
		slog.Bool("primary_up", snap.Primary.Reachable),
		slog.Bool("standby_up", snap.Standby.Reachable),
		slog.Time("collected_at", snap.CollectedAt),
	)
	return snap
}

func (c *Collector) probe(ctx context.Context, ep pg.Endpoint) pg.Result {
	start := time.Now()
	res := c.prober.Probe(ctx, ep)
	c.metrics.ObserveProbe(string(ep.Role), res.Reachable, time.Since(start))
	return res
}

func (c *Collector) logTransitions(prev, cur *snapshot.Snapshot) {
	if prev == nil {
		return
	}
	for _, pair := range [][2]pg.Result{
		{prev.Primary, cur.Primary},
		{prev.Standby, cur.Standby},
	} {
		before, after := pair[0], pair[1]
		switch {
		case before.Reachable && !after.Reachable:
			c.log().Warn("instance became unreachable", slog.String("instance", string(after.Role)))
		case !before.Reachable && after.Reachable:
			c.log().Info("instance is reachable again", slog.String("instance", string(after.Role)))
		}
	}
	if cur.DataConsistent != nil && !*cur.DataConsistent &&
		(prev.DataConsistent == nil || *prev.DataConsistent) {
		c.log().Warn("row counts differ between primary and standby",
			slog.Int64("primary_rows", *cur.Primary.RowCount),
			slog.Int64("standby_rows", *cur.Standby.RowCount),
		)
	}
}
