package pg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeRow assigns canned values to scan destinations of the same type.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.vals))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		v := reflect.ValueOf(r.vals[i])
		if !v.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: cannot assign %s to %s", v.Type(), dv.Elem().Type())
		}
		dv.Elem().Set(v)
	}
	return nil
}

type fakeConn struct {
	mu      sync.Mutex
	rows    map[string]fakeRow
	pingErr error
	issued  []string
	closed  bool
}

func (c *fakeConn) Ping(_ context.Context) error {
	return c.pingErr
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued = append(c.issued, sql)
	row, ok := c.rows[sql]
	if !ok {
		return fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
	}
	return row
}

func (c *fakeConn) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func dialTo(conn *fakeConn) DialFunc {
	return func(_ context.Context, _ Endpoint) (Conn, error) {
		return conn, nil
	}
}

var (
	primaryEP = Endpoint{Role: RolePrimary, Host: "pg-primary", Port: 5432, Database: "testdb", User: "postgres", Password: "secret"}
	standbyEP = Endpoint{Role: RoleStandby, Host: "pg-standby", Port: 5433, Database: "testdb", User: "postgres", Password: "secret"}
)

func primaryRows() map[string]fakeRow {
	return map[string]fakeRow{
		queryPrimaryLag:            {vals: []any{int64(500), 0.2}},
		queryConnections:           {vals: []any{int64(1), int64(1)}},
		querySyncStates:            {vals: []any{[]string{"10.0.0.3"}, []bool{true}}},
		queryWalSenders:            {vals: []any{int64(1)}},
		querySlots:                 {vals: []any{int64(2), int64(1), int64(1)}},
		queryCurrentWalLSN:         {vals: []any{"0/3000060"}},
		rowCountQuery("test_data"): {vals: []any{int64(42)}},
	}
}

func standbyRows() map[string]fakeRow {
	return map[string]fakeRow{
		queryStandbyLag:            {vals: []any{int64(0), 1.5}},
		queryWalReceivers:          {vals: []any{int64(1)}},
		querySlots:                 {vals: []any{int64(0), int64(0), int64(0)}},
		queryInRecovery:            {vals: []any{true}},
		rowCountQuery("test_data"): {vals: []any{int64(42)}},
	}
}

func assertAllAbsent(t *testing.T, res Result) {
	t.Helper()
	assert.False(t, res.Reachable)
	assert.Nil(t, res.LagBytes)
	assert.Nil(t, res.LagSeconds)
	assert.Nil(t, res.ReplicationConnections)
	assert.Nil(t, res.SyncConnections)
	assert.Empty(t, res.SyncStates)
	assert.Nil(t, res.WalSenders)
	assert.Nil(t, res.WalReceivers)
	assert.Nil(t, res.Slots)
	assert.Nil(t, res.InRecovery)
	assert.Nil(t, res.RowCount)
	assert.Nil(t, res.WalPosition)
}

func TestProbe_DialFailure(t *testing.T) {
	p := NewProber(&ProberOpts{
		Logger: newTestLogger(t),
		Dial: func(_ context.Context, _ Endpoint) (Conn, error) {
			return nil, errors.New("connection refused")
		},
	})

	res := p.Probe(context.Background(), primaryEP)

	assertAllAbsent(t, res)
	assert.Equal(t, RolePrimary, res.Role)
	assert.Equal(t, "pg-primary", res.Host)
	assert.Equal(t, 5432, res.Port)
}

func TestProbe_PingFailureClosesConnection(t *testing.T) {
	conn := &fakeConn{rows: primaryRows(), pingErr: errors.New("password authentication failed")}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(conn), ConsistencyTable: "test_data"})

	res := p.Probe(context.Background(), primaryEP)

	assertAllAbsent(t, res)
	assert.True(t, conn.closed)
	assert.Empty(t, conn.issued)
}

func TestProbe_Primary(t *testing.T) {
	conn := &fakeConn{rows: primaryRows()}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(conn), ConsistencyTable: "test_data"})

	res := p.Probe(context.Background(), primaryEP)

	require.True(t, res.Reachable)
	require.NotNil(t, res.LagBytes)
	assert.Equal(t, int64(500), *res.LagBytes)
	require.NotNil(t, res.LagSeconds)
	assert.InDelta(t, 0.2, *res.LagSeconds, 1e-9)
	require.NotNil(t, res.ReplicationConnections)
	assert.Equal(t, int64(1), *res.ReplicationConnections)
	require.NotNil(t, res.SyncConnections)
	assert.Equal(t, int64(1), *res.SyncConnections)
	assert.Equal(t, []SyncState{{ClientAddr: "10.0.0.3", Synchronous: true}}, res.SyncStates)
	require.NotNil(t, res.WalSenders)
	assert.Equal(t, int64(1), *res.WalSenders)
	assert.Equal(t, &SlotCounts{Total: 2, Active: 1, Inactive: 1}, res.Slots)
	require.NotNil(t, res.WalPosition)
	assert.Equal(t, uint64(0x3000060), *res.WalPosition)
	require.NotNil(t, res.RowCount)
	assert.Equal(t, int64(42), *res.RowCount)

	// standby-only fields
	assert.Nil(t, res.WalReceivers)
	assert.Nil(t, res.InRecovery)
	assert.True(t, conn.closed)
}

func TestProbe_Standby(t *testing.T) {
	conn := &fakeConn{rows: standbyRows()}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(conn), ConsistencyTable: "test_data"})

	res := p.Probe(context.Background(), standbyEP)

	require.True(t, res.Reachable)
	require.NotNil(t, res.LagBytes)
	assert.Equal(t, int64(0), *res.LagBytes)
	require.NotNil(t, res.LagSeconds)
	assert.InDelta(t, 1.5, *res.LagSeconds, 1e-9)
	require.NotNil(t, res.InRecovery)
	assert.True(t, *res.InRecovery)
	require.NotNil(t, res.WalReceivers)
	assert.Equal(t, int64(1), *res.WalReceivers)
	assert.Equal(t, &SlotCounts{}, res.Slots)
	require.NotNil(t, res.RowCount)
	assert.Equal(t, int64(42), *res.RowCount)

	// primary-only fields
	assert.Nil(t, res.ReplicationConnections)
	assert.Nil(t, res.SyncConnections)
	assert.Empty(t, res.SyncStates)
	assert.Nil(t, res.WalSenders)
	assert.Nil(t, res.WalPosition)
}

func TestProbe_QueryFailuresAreIsolated(t *testing.T) {
	rows := primaryRows()
	rows[querySlots] = fakeRow{err: errors.New("permission denied for view pg_replication_slots")}
	rows[queryConnections] = fakeRow{err: errors.New("canceling statement due to statement timeout")}
	conn := &fakeConn{rows: rows}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(conn), ConsistencyTable: "test_data"})

	res := p.Probe(context.Background(), primaryEP)

	assert.True(t, res.Reachable)
	assert.Nil(t, res.Slots)
	assert.Nil(t, res.ReplicationConnections)
	assert.Nil(t, res.SyncConnections)

	assert.NotNil(t, res.LagBytes)
	assert.NotNil(t, res.WalSenders)
	assert.NotNil(t, res.RowCount)
	assert.Len(t, res.SyncStates, 1)
}

func TestProbe_MalformedLSNLeavesPositionUnset(t *testing.T) {
	rows := primaryRows()
	rows[queryCurrentWalLSN] = fakeRow{vals: []any{"not-an-lsn"}}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(&fakeConn{rows: rows})})

	res := p.Probe(context.Background(), primaryEP)

	assert.True(t, res.Reachable)
	assert.Nil(t, res.WalPosition)
}

func TestProbe_MismatchedSyncStateArrays(t *testing.T) {
	rows := primaryRows()
	rows[querySyncStates] = fakeRow{vals: []any{[]string{"10.0.0.3", "10.0.0.4"}, []bool{true}}}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(&fakeConn{rows: rows})})

	res := p.Probe(context.Background(), primaryEP)

	assert.True(t, res.Reachable)
	assert.Nil(t, res.SyncStates)
}

func TestProbe_NegativeLagIsClamped(t *testing.T) {
	rows := standbyRows()
	rows[queryStandbyLag] = fakeRow{vals: []any{int64(-16), -0.003}}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(&fakeConn{rows: rows})})

	res := p.Probe(context.Background(), standbyEP)

	require.NotNil(t, res.LagBytes)
	require.NotNil(t, res.LagSeconds)
	assert.Equal(t, int64(0), *res.LagBytes)
	assert.Equal(t, 0.0, *res.LagSeconds)
}

func TestProbe_NoConsistencyTableSkipsRowCount(t *testing.T) {
	conn := &fakeConn{rows: standbyRows()}
	p := NewProber(&ProberOpts{Logger: newTestLogger(t), Dial: dialTo(conn)})

	res := p.Probe(context.Background(), standbyEP)

	assert.Nil(t, res.RowCount)
	assert.NotContains(t, conn.issued, rowCountQuery("test_data"))
}

func TestProbe_BoundedByTimeout(t *testing.T) {
	p := NewProber(&ProberOpts{
		Logger:  newTestLogger(t),
		Timeout: 50 * time.Millisecond,
		Dial: func(ctx context.Context, _ Endpoint) (Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	start := time.Now()
	res := p.Probe(context.Background(), standbyEP)

	assert.False(t, res.Reachable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPrimaryLagQuery_SlowestReplica(t *testing.T) {
	assert.Contains(t, queryPrimaryLag, "min(replay_lsn)")
	assert.Contains(t, queryPrimaryLag, "extract(epoch from max(replay_lag))")
	assert.NotContains(t, queryPrimaryLag, "pg_last_xact_replay_timestamp")
}

func TestRowCountQuery(t *testing.T) {
	assert.Equal(t, `select count(*) from "test_data"`, rowCountQuery("test_data"))
	assert.Equal(t, `select count(*) from "public"."test_data"`, rowCountQuery("public.test_data"))
	assert.Equal(t, `select count(*) from "x""; drop table t; --"`, rowCountQuery(`x"; drop table t; --`))
}

func TestEndpoint_ConnString(t *testing.T) {
	ep := Endpoint{Role: RoleStandby, Host: "db", Port: 5433, Database: "testdb", User: "postgres", Password: "p@ss:w/rd"}

	u, err := url.Parse(ep.ConnString())
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5433", u.Host)
	assert.Equal(t, "/testdb", u.Path)
	assert.Equal(t, "postgres", u.User.Username())
	pass, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss:w/rd", pass)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, DefaultApplicationName, u.Query().Get("application_name"))
}

func TestEndpoint_StringHidesPassword(t *testing.T) {
	s := primaryEP.String()
	assert.NotContains(t, s, "secret")
	assert.Equal(t, "primary(postgres@pg-primary:5432/testdb)", s)
}
