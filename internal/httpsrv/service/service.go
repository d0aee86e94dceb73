package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashmap-kz/pgreplmon/internal/health"
	"github.com/hashmap-kz/pgreplmon/internal/render"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

// MonitorService answers every request from the latest published Snapshot.
// Nothing here ever talks to a database.
type MonitorService interface {
	// Health returns the report and whether it is servable with 200.
	Health() (*render.HealthReport, bool)
	Ready() (bool, string)
	Live() (bool, string)
	Metrics() ([]byte, error)
}

type monitorSvc struct {
	store *snapshot.Store
	self  prometheus.Gatherer
}

var _ MonitorService = &monitorSvc{}

type MonitorServiceOpts struct {
	Store *snapshot.Store
	// SelfMetrics is appended to /metrics when set.
	SelfMetrics prometheus.Gatherer
}

func NewMonitorService(opts *MonitorServiceOpts) MonitorService {
	return &monitorSvc{
		store: opts.Store,
		self:  opts.SelfMetrics,
	}
}

func (s *monitorSvc) Health() (*render.HealthReport, bool) {
	snap := s.store.Load()
	if snap == nil {
		return render.NoDataReport(), false
	}
	scores := health.Evaluate(snap)
	return render.NewHealthReport(snap, scores), scores.Combined.Tier != health.TierCritical
}

func (s *monitorSvc) Ready() (bool, string) {
	return render.Ready(s.store.Load())
}

func (s *monitorSvc) Live() (bool, string) {
	return render.Live(s.store.Load())
}

func (s *monitorSvc) Metrics() ([]byte, error) {
	var extra []prometheus.Gatherer
	if s.self != nil {
		extra = append(extra, s.self)
	}

	snap := s.store.Load()
	var scores health.Scores
	if snap != nil {
		scores = health.Evaluate(snap)
	}
	return render.Prometheus(snap, scores, extra...)
}
