package render

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/hashmap-kz/pgreplmon/internal/health"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

const (
	ContentTypeProm = "text/plain; version=0.0.4; charset=utf-8"

	InstanceCluster = "cluster"

	// ClientAddrAll labels the aggregate sync-state series.
	ClientAddrAll = "all"
)

var (
	instanceLabel = []string{"instance"}

	descPrimaryUp = prometheus.NewDesc("pg_primary_up",
		"Whether the primary server is up (1) or down (0)", nil, nil)
	descStandbyUp = prometheus.NewDesc("pg_standby_up",
		"Whether the standby server is up (1) or down (0)", nil, nil)
	descLagBytes = prometheus.NewDesc("pg_replication_lag_bytes",
		"Replication lag in bytes", instanceLabel, nil)
	descLagSeconds = prometheus.NewDesc("pg_replication_lag_seconds",
		"Replication lag in seconds", instanceLabel, nil)
	descLagMB = prometheus.NewDesc("pg_replication_lag_mb",
		"Replication lag in megabytes", instanceLabel, nil)
	descHealthScore = prometheus.NewDesc("pg_replication_health_score",
		"Replication health score (0-100)", instanceLabel, nil)
	descConnections = prometheus.NewDesc("pg_replication_connections",
		"Number of replication connections", instanceLabel, nil)
	descSyncState = prometheus.NewDesc("pg_replication_sync_state",
		"Replication sync state (1=sync, 0=async)", []string{"instance", "client_addr"}, nil)
	descWalSenders = prometheus.NewDesc("pg_wal_senders",
		"Number of WAL sender processes", instanceLabel, nil)
	descWalReceivers = prometheus.NewDesc("pg_wal_receivers",
		"Number of WAL receiver processes", instanceLabel, nil)
	descWalGeneration = prometheus.NewDesc("pg_wal_generation_rate",
		"Current WAL position in bytes", instanceLabel, nil)
	descSlotsTotal = prometheus.NewDesc("pg_replication_slots_total",
		"Total number of replication slots", instanceLabel, nil)
	descSlotsActive = prometheus.NewDesc("pg_replication_slots_active",
		"Number of active replication slots", instanceLabel, nil)
	descSlotsInactive = prometheus.NewDesc("pg_replication_slots_inactive",
		"Number of inactive replication slots", instanceLabel, nil)
	descConsistency = prometheus.NewDesc("pg_data_consistency_check",
		"Data consistency between primary and standby (1=consistent, 0=inconsistent)", instanceLabel, nil)
)

// snapshotCollector exposes one Snapshot as const gauges. It lives only for
// the duration of a single render.
type snapshotCollector struct {
	snap   *snapshot.Snapshot
	scores health.Scores
}

var _ prometheus.Collector = (*snapshotCollector)(nil)

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snap
	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}

	gauge(descPrimaryUp, boolToFloat(s.Primary.Reachable))
	gauge(descStandbyUp, boolToFloat(s.Standby.Reachable))

	for _, node := range []struct {
		role  pg.Role
		res   pg.Result
		score health.Score
	}{
		{pg.RolePrimary, s.Primary, c.scores.Primary},
		{pg.RoleStandby, s.Standby, c.scores.Standby},
	} {
		inst := string(node.role)
		r := node.res

		gauge(descHealthScore, float64(node.score.Score), inst)
		if r.LagBytes != nil {
			gauge(descLagBytes, float64(*r.LagBytes), inst)
			gauge(descLagMB, LagMB(*r.LagBytes), inst)
		}
		if r.LagSeconds != nil {
			gauge(descLagSeconds, *r.LagSeconds, inst)
		}
		if r.ReplicationConnections != nil {
			gauge(descConnections, float64(*r.ReplicationConnections), inst)
		}
		if r.WalSenders != nil {
			gauge(descWalSenders, float64(*r.WalSenders), inst)
		}
		if r.WalReceivers != nil {
			gauge(descWalReceivers, float64(*r.WalReceivers), inst)
		}
		if r.WalPosition != nil {
			gauge(descWalGeneration, float64(*r.WalPosition), inst)
		}
		if r.Slots != nil {
			gauge(descSlotsTotal, float64(r.Slots.Total), inst)
			gauge(descSlotsActive, float64(r.Slots.Active), inst)
			gauge(descSlotsInactive, float64(r.Slots.Inactive), inst)
		}
		for _, st := range syncSeries(r) {
			gauge(descSyncState, boolToFloat(st.Synchronous), inst, st.ClientAddr)
		}
	}

	gauge(descHealthScore, float64(c.scores.Combined.Score), InstanceCluster)
	if s.DataConsistent != nil {
		gauge(descConsistency, boolToFloat(*s.DataConsistent), InstanceCluster)
	}
}

// syncSeries folds the per-connection sync flags into one series per client
// address, plus an aggregate that is 1 when any connection is synchronous.
// Two walsenders from the same host collapse into one series.
func syncSeries(r pg.Result) []pg.SyncState {
	if r.SyncStates == nil {
		return nil
	}
	out := make([]pg.SyncState, 0, len(r.SyncStates)+1)
	idx := make(map[string]int, len(r.SyncStates))
	anySync := false
	for _, st := range r.SyncStates {
		anySync = anySync || st.Synchronous
		if i, ok := idx[st.ClientAddr]; ok {
			out[i].Synchronous = out[i].Synchronous || st.Synchronous
			continue
		}
		if st.ClientAddr == ClientAddrAll {
			continue
		}
		idx[st.ClientAddr] = len(out)
		out = append(out, st)
	}
	return append(out, pg.SyncState{ClientAddr: ClientAddrAll, Synchronous: anySync})
}

// Prometheus renders s in the text exposition format. Extra gatherers (the
// process self-metrics) are merged into the same output. A nil snapshot
// renders only the extra gatherers.
func Prometheus(s *snapshot.Snapshot, sc health.Scores, extra ...prometheus.Gatherer) ([]byte, error) {
	gatherers := make(prometheus.Gatherers, 0, len(extra)+1)
	if s != nil {
		reg := prometheus.NewPedanticRegistry()
		if err := reg.Register(&snapshotCollector{snap: s, scores: sc}); err != nil {
			return nil, fmt.Errorf("register snapshot collector: %w", err)
		}
		gatherers = append(gatherers, reg)
	}
	gatherers = append(gatherers, extra...)

	families, err := gatherers.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
