package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/pgreplmon/internal/health"
	"github.com/hashmap-kz/pgreplmon/internal/pg"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }
func u64(v uint64) *uint64   { return &v }
func boolp(v bool) *bool     { return &v }

var collectedAt = time.Date(2026, 10, 19, 8, 15, 30, 0, time.UTC)

func healthySnapshot() *snapshot.Snapshot {
	return snapshot.New(
		pg.Result{
			Role:                   pg.RolePrimary,
			Host:                   "pg-primary",
			Port:                   5432,
			Reachable:              true,
			LagBytes:               i64(500),
			LagSeconds:             f64(0.2),
			ReplicationConnections: i64(1),
			SyncConnections:        i64(1),
			SyncStates:             []pg.SyncState{{ClientAddr: "172.18.0.3", Synchronous: true}},
			WalSenders:             i64(1),
			Slots:                  &pg.SlotCounts{Total: 1, Active: 1},
			RowCount:               i64(42),
			WalPosition:            u64(50331648),
		},
		pg.Result{
			Role:         pg.RoleStandby,
			Host:         "pg-standby",
			Port:         5433,
			Reachable:    true,
			LagBytes:     i64(500),
			LagSeconds:   f64(0.2),
			WalReceivers: i64(1),
			Slots:        &pg.SlotCounts{},
			InRecovery:   boolp(true),
			RowCount:     i64(42),
		},
		collectedAt,
	)
}

func primaryDownSnapshot() *snapshot.Snapshot {
	return snapshot.New(
		pg.Result{Role: pg.RolePrimary, Host: "pg-primary", Port: 5432},
		pg.Result{
			Role:       pg.RoleStandby,
			Host:       "pg-standby",
			Port:       5433,
			Reachable:  true,
			LagBytes:   i64(0),
			LagSeconds: f64(0),
			InRecovery: boolp(true),
		},
		collectedAt,
	)
}

func TestLagMB(t *testing.T) {
	tests := []struct {
		bytes int64
		want  float64
	}{
		{0, 0},
		{500, 0},
		{1 << 20, 1},
		{1_572_864, 1.5},
		{10_485_761, 10},
		{1_053_819, 1.01},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, LagMB(tt.bytes), 1e-9, "bytes=%d", tt.bytes)
	}
}

func TestNewHealthReport_HealthyPair(t *testing.T) {
	s := healthySnapshot()
	r := NewHealthReport(s, health.Evaluate(s))

	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, 100, r.HealthScore)
	assert.Equal(t, collectedAt, r.Timestamp)
	assert.Equal(t, NodeReport{Up: true, Host: "pg-primary", Port: 5432, Score: 100, Status: health.TierHealthy}, r.Primary)
	assert.True(t, r.Standby.Up)
	assert.Equal(t, boolp(true), r.Standby.InRecovery)
	assert.Equal(t, i64(500), r.Replication.LagBytes)
	assert.Equal(t, f64(0.2), r.Replication.LagSeconds)
	assert.Equal(t, f64(0), r.Replication.LagMB)
	assert.Equal(t, i64(1), r.Replication.Connections)
	assert.Equal(t, Checks{true, true, true, true}, r.Checks)
	assert.Equal(t, boolp(true), r.DataConsistent)
}

func TestNewHealthReport_PrimaryDownFallsBackToStandbyLag(t *testing.T) {
	s := primaryDownSnapshot()
	r := NewHealthReport(s, health.Evaluate(s))

	assert.Equal(t, "warning", r.Status)
	assert.Equal(t, 50, r.HealthScore)
	assert.False(t, r.Primary.Up)
	assert.Equal(t, 5432, r.Primary.Port)
	assert.Equal(t, i64(0), r.Replication.LagBytes)
	assert.Nil(t, r.Replication.Connections)
	assert.False(t, r.Checks.PrimaryAvailable)
	assert.True(t, r.Checks.StandbyAvailable)
	assert.True(t, r.Checks.ReplicationLagAcceptable)
	assert.Nil(t, r.DataConsistent)
}

func TestNewHealthReport_LagChecks(t *testing.T) {
	tests := []struct {
		name     string
		bytes    *int64
		seconds  *float64
		wantLag  bool
		wantTime bool
	}{
		{name: "unknown lag is not acceptable", wantLag: false, wantTime: false},
		{name: "just under the limits", bytes: i64(10_485_759), seconds: f64(29.9), wantLag: true, wantTime: true},
		{name: "exactly at the limits", bytes: i64(10_485_760), seconds: f64(30), wantLag: false, wantTime: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot.New(
				pg.Result{Role: pg.RolePrimary, Reachable: true, LagBytes: tt.bytes, LagSeconds: tt.seconds},
				pg.Result{Role: pg.RoleStandby},
				collectedAt,
			)
			r := NewHealthReport(s, health.Evaluate(s))
			assert.Equal(t, tt.wantLag, r.Checks.ReplicationLagAcceptable)
			assert.Equal(t, tt.wantTime, r.Checks.ReplicationTimeAcceptable)
		})
	}
}

func TestJSON_UnknownLagIsNull(t *testing.T) {
	s := snapshot.New(pg.Result{Role: pg.RolePrimary}, pg.Result{Role: pg.RoleStandby}, collectedAt)

	body, err := JSON(s, health.Evaluate(s))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	repl := raw["replication"].(map[string]any)
	assert.Contains(t, repl, "lag_bytes")
	assert.Nil(t, repl["lag_bytes"])
	assert.Nil(t, repl["lag_seconds"])
	assert.Nil(t, repl["lag_mb"])
	assert.Equal(t, "2026-10-19T08:15:30Z", raw["timestamp"])
}

func TestJSON_RoundTrip(t *testing.T) {
	for _, s := range []*snapshot.Snapshot{healthySnapshot(), primaryDownSnapshot()} {
		want := NewHealthReport(s, health.Evaluate(s))

		body, err := JSON(s, health.Evaluate(s))
		require.NoError(t, err)

		var got HealthReport
		require.NoError(t, json.Unmarshal(body, &got))

		assert.Equal(t, want.Replication.LagBytes, got.Replication.LagBytes)
		assert.Equal(t, want.Replication.LagSeconds, got.Replication.LagSeconds)
		assert.Equal(t, want.Checks, got.Checks)
		assert.Equal(t, want.Primary.Up, got.Primary.Up)
		assert.Equal(t, want.Standby.Up, got.Standby.Up)
		assert.Equal(t, want.DataConsistent, got.DataConsistent)
		assert.True(t, want.Timestamp.Equal(got.Timestamp))
	}
}

func TestPrometheus_HealthyPair(t *testing.T) {
	s := healthySnapshot()
	out, err := Prometheus(s, health.Evaluate(s))
	require.NoError(t, err)
	text := string(out)

	for _, line := range []string{
		"# HELP pg_primary_up Whether the primary server is up (1) or down (0)",
		"# TYPE pg_primary_up gauge",
		"pg_primary_up 1",
		"pg_standby_up 1",
		`pg_replication_lag_bytes{instance="primary"} 500`,
		`pg_replication_lag_bytes{instance="standby"} 500`,
		`pg_replication_lag_seconds{instance="primary"} 0.2`,
		`pg_replication_lag_mb{instance="primary"} 0`,
		`pg_replication_health_score{instance="cluster"} 100`,
		`pg_replication_health_score{instance="primary"} 100`,
		`pg_replication_health_score{instance="standby"} 100`,
		`pg_replication_connections{instance="primary"} 1`,
		`pg_replication_sync_state{client_addr="172.18.0.3",instance="primary"} 1`,
		`pg_replication_sync_state{client_addr="all",instance="primary"} 1`,
		`pg_wal_senders{instance="primary"} 1`,
		`pg_wal_receivers{instance="standby"} 1`,
		`pg_wal_generation_rate{instance="primary"} 5.0331648e+07`,
		`pg_replication_slots_total{instance="primary"} 1`,
		`pg_replication_slots_inactive{instance="standby"} 0`,
		`pg_data_consistency_check{instance="cluster"} 1`,
	} {
		assert.Contains(t, text, line+"\n")
	}

	// every family carries HELP and TYPE gauge
	for _, l := range strings.Split(strings.TrimSpace(text), "\n") {
		if strings.HasPrefix(l, "# TYPE ") {
			assert.True(t, strings.HasSuffix(l, " gauge"), l)
		}
	}
}

func TestPrometheus_AbsentFieldsAreOmitted(t *testing.T) {
	s := primaryDownSnapshot()
	out, err := Prometheus(s, health.Evaluate(s))
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "pg_primary_up 0\n")
	assert.Contains(t, text, `pg_replication_health_score{instance="primary"} 50`+"\n")
	assert.Contains(t, text, `pg_replication_lag_bytes{instance="standby"} 0`+"\n")
	assert.NotContains(t, text, `pg_replication_lag_bytes{instance="primary"}`)
	assert.NotContains(t, text, "pg_replication_connections")
	assert.NotContains(t, text, "pg_replication_sync_state")
	assert.NotContains(t, text, "pg_data_consistency_check")
}

func TestPrometheus_Idempotent(t *testing.T) {
	s := healthySnapshot()
	s.Primary.SyncStates = []pg.SyncState{
		{ClientAddr: "10.0.0.9", Synchronous: false},
		{ClientAddr: "10.0.0.2", Synchronous: true},
		{ClientAddr: "local", Synchronous: false},
	}
	sc := health.Evaluate(s)

	first, err := Prometheus(s, sc)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Prometheus(s, sc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPrometheus_DuplicateClientAddrCollapses(t *testing.T) {
	s := healthySnapshot()
	s.Primary.SyncStates = []pg.SyncState{
		{ClientAddr: "10.0.0.2", Synchronous: false},
		{ClientAddr: "10.0.0.2", Synchronous: true},
	}

	out, err := Prometheus(s, health.Evaluate(s))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(out), `client_addr="10.0.0.2"`))
	assert.Contains(t, string(out), `pg_replication_sync_state{client_addr="10.0.0.2",instance="primary"} 1`)
}

func TestPrometheus_NoSyncConnections(t *testing.T) {
	s := healthySnapshot()
	s.Primary.SyncStates = []pg.SyncState{}

	out, err := Prometheus(s, health.Evaluate(s))
	require.NoError(t, err)
	assert.Contains(t, string(out), `pg_replication_sync_state{client_addr="all",instance="primary"} 0`)
}

func TestPrometheus_MergesExtraGatherers(t *testing.T) {
	self := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "pgreplmon_test_total", Help: "test"})
	self.MustRegister(c)
	c.Inc()

	out, err := Prometheus(nil, health.Scores{}, self)
	require.NoError(t, err)
	assert.Contains(t, string(out), "pgreplmon_test_total 1\n")
	assert.NotContains(t, string(out), "pg_primary_up")

	s := healthySnapshot()
	out, err = Prometheus(s, health.Evaluate(s), self)
	require.NoError(t, err)
	assert.Contains(t, string(out), "pgreplmon_test_total 1\n")
	assert.Contains(t, string(out), "pg_primary_up 1\n")
}

func TestReadyAndLive(t *testing.T) {
	tests := []struct {
		primary, standby bool
		ready, live      bool
	}{
		{true, true, true, true},
		{true, false, false, true},
		{false, true, false, false},
		{false, false, false, false},
	}
	for _, tt := range tests {
		s := snapshot.New(
			pg.Result{Role: pg.RolePrimary, Reachable: tt.primary},
			pg.Result{Role: pg.RoleStandby, Reachable: tt.standby},
			collectedAt,
		)

		ok, body := Ready(s)
		assert.Equal(t, tt.ready, ok)
		if ok {
			assert.Equal(t, TextOK, body)
		} else {
			assert.Equal(t, TextNotReady, body)
		}

		ok, body = Live(s)
		assert.Equal(t, tt.live, ok)
		if ok {
			assert.Equal(t, TextOK, body)
		} else {
			assert.Equal(t, TextNotAlive, body)
		}
	}

	ok, body := Ready(nil)
	assert.False(t, ok)
	assert.Equal(t, TextNotReady, body)
	ok, body = Live(nil)
	assert.False(t, ok)
	assert.Equal(t, TextNotAlive, body)
}
