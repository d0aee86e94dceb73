package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics describes the monitor's own activity. Cluster state is not
// exported from here; it is rendered from the published snapshot.
type MonitorMetrics interface {
	IncCollectCycles()
	ObserveProbe(instance string, reachable bool, d time.Duration)
	SetLastCollect(t time.Time)
}

// noop

type monitorMetricsNoop struct{}

var _ MonitorMetrics = monitorMetricsNoop{}

func NewNoop() MonitorMetrics { return monitorMetricsNoop{} }

func (monitorMetricsNoop) IncCollectCycles()                              {}
func (monitorMetricsNoop) ObserveProbe(_ string, _ bool, _ time.Duration) {}
func (monitorMetricsNoop) SetLastCollect(_ time.Time)                     {}

// prom

type monitorMetricsProm struct {
	collectCycles  prometheus.Counter
	probeDuration  *prometheus.HistogramVec
	probeFailures  *prometheus.CounterVec
	lastCollection prometheus.Gauge
}

var _ MonitorMetrics = &monitorMetricsProm{}

// NewProm registers the monitor metrics on reg, which is exposed next to the
// snapshot gauges on /metrics.
func NewProm(reg prometheus.Registerer) MonitorMetrics {
	m := &monitorMetricsProm{
		collectCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgreplmon_collect_cycles_total",
			Help: "Total number of completed collection cycles.",
		}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pgreplmon_probe_duration_seconds",
			Help:    "Duration of a single database probe.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 11),
		}, []string{"instance"}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgreplmon_probe_unreachable_total",
			Help: "Number of probes that could not reach the database.",
		}, []string{"instance"}),
		lastCollection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgreplmon_last_collect_timestamp_seconds",
			Help: "Unix time of the last published snapshot.",
		}),
	}
	reg.MustRegister(m.collectCycles, m.probeDuration, m.probeFailures, m.lastCollection)
	return m
}

func (m *monitorMetricsProm) IncCollectCycles() {
	m.collectCycles.Inc()
}

func (m *monitorMetricsProm) ObserveProbe(instance string, reachable bool, d time.Duration) {
	m.probeDuration.WithLabelValues(instance).Observe(d.Seconds())
	if !reachable {
		m.probeFailures.WithLabelValues(instance).Inc()
	}
}

func (m *monitorMetricsProm) SetLastCollect(t time.Time) {
	m.lastCollection.Set(float64(t.UnixNano()) / 1e9)
}
