// Package render turns a Snapshot and its scores into response bodies.
// Every renderer is a pure function of its inputs.
package render

import (
	"encoding/json"
	"math"
	"time"

	"github.com/hashmap-kz/pgreplmon/internal/health"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

// StatusNoData is reported by /health before the first collection completes.
const StatusNoData = "unknown"

const bytesPerMiB = 1 << 20

type NodeReport struct {
	Up         bool        `json:"up"`
	Host       string      `json:"host"`
	Port       int         `json:"port"`
	InRecovery *bool       `json:"in_recovery,omitempty"`
	Score      int         `json:"score"`
	Status     health.Tier `json:"status"`
}

// ReplicationReport carries the lag seen by the primary, or the standby's own
// apply lag when the primary could not report one. Unknown values are null.
type ReplicationReport struct {
	LagBytes        *int64   `json:"lag_bytes"`
	LagSeconds      *float64 `json:"lag_seconds"`
	LagMB           *float64 `json:"lag_mb"`
	Connections     *int64   `json:"connections"`
	SyncConnections *int64   `json:"sync_connections"`
}

type Checks struct {
	PrimaryAvailable          bool `json:"primary_available"`
	StandbyAvailable          bool `json:"standby_available"`
	ReplicationLagAcceptable  bool `json:"replication_lag_acceptable"`
	ReplicationTimeAcceptable bool `json:"replication_time_acceptable"`
}

type HealthReport struct {
	Status         string            `json:"status"`
	HealthScore    int               `json:"health_score"`
	Timestamp      time.Time         `json:"timestamp"`
	Primary        NodeReport        `json:"primary"`
	Standby        NodeReport        `json:"standby"`
	Replication    ReplicationReport `json:"replication"`
	Checks         Checks            `json:"checks"`
	DataConsistent *bool             `json:"data_consistent"`
}

// LagMB converts bytes to MiB rounded to two decimals.
func LagMB(bytes int64) float64 {
	return math.Round(float64(bytes)/bytesPerMiB*100) / 100
}

func NewHealthReport(s *snapshot.Snapshot, sc health.Scores) *HealthReport {
	lagBytes, lagSeconds := replicationLag(s)

	var lagMB *float64
	if lagBytes != nil {
		v := LagMB(*lagBytes)
		lagMB = &v
	}

	return &HealthReport{
		Status:      string(sc.Combined.Tier),
		HealthScore: sc.Combined.Score,
		Timestamp:   s.CollectedAt.UTC(),
		Primary:     nodeReport(s.Primary, sc.Primary),
		Standby:     nodeReport(s.Standby, sc.Standby),
		Replication: ReplicationReport{
			LagBytes:        lagBytes,
			LagSeconds:      lagSeconds,
			LagMB:           lagMB,
			Connections:     s.Primary.ReplicationConnections,
			SyncConnections: s.Primary.SyncConnections,
		},
		Checks: Checks{
			PrimaryAvailable:          s.Primary.Reachable,
			StandbyAvailable:          s.Standby.Reachable,
			ReplicationLagAcceptable:  lagBytes != nil && *lagBytes < health.LagBytesCritical,
			ReplicationTimeAcceptable: lagSeconds != nil && *lagSeconds < health.LagSecondsCrit,
		},
		DataConsistent: s.DataConsistent,
	}
}

// NoDataReport is served while the Store is still empty.
func NoDataReport() *HealthReport {
	return &HealthReport{
		Status:    StatusNoData,
		Timestamp: time.Now().UTC(),
		Primary:   NodeReport{Status: StatusNoData},
		Standby:   NodeReport{Status: StatusNoData},
	}
}

// JSON renders the health report for s.
func JSON(s *snapshot.Snapshot, sc health.Scores) ([]byte, error) {
	return json.Marshal(NewHealthReport(s, sc))
}

func nodeReport(r pg.Result, sc health.Score) NodeReport {
	return NodeReport{
		Up:         r.Reachable,
		Host:       r.Host,
		Port:       r.Port,
		InRecovery: r.InRecovery,
		Score:      sc.Score,
		Status:     sc.Tier,
	}
}

func replicationLag(s *snapshot.Snapshot) (*int64, *float64) {
	lagBytes, lagSeconds := s.Primary.LagBytes, s.Primary.LagSeconds
	if lagBytes == nil {
		lagBytes = s.Standby.LagBytes
	}
	if lagSeconds == nil {
		lagSeconds = s.Standby.LagSeconds
	}
	return lagBytes, lagSeconds
}
