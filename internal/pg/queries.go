package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
)

// Primary: distance from the current WAL position to the slowest replica.
// Time lag is the slowest replica's replay_lag; pg_last_xact_replay_timestamp()
// is always NULL on a primary. No replicas yields 0/0 (COALESCE), not NULL.
const queryPrimaryLag = `
select coalesce(pg_wal_lsn_diff(pg_current_wal_lsn(), min(replay_lsn)), 0)::bigint as lag_bytes,
       coalesce(extract(epoch from max(replay_lag)), 0)::float8                   as lag_seconds
from pg_catalog.pg_stat_replication
`

// Standby: internal apply backlog and age of the last replayed transaction.
const queryStandbyLag = `
select coalesce(pg_wal_lsn_diff(pg_last_wal_receive_lsn(), pg_last_wal_replay_lsn()), 0)::bigint as lag_bytes,
       coalesce(extract(epoch from (now() - pg_last_xact_replay_timestamp())), 0)::float8         as lag_seconds
`

const queryConnections = `
select count(*)                                        as connection_count,
       count(*) filter (where sync_state = 'sync')     as sync_count
from pg_catalog.pg_stat_replication
`

const querySyncStates = `
select coalesce(array_agg(coalesce(host(client_addr), 'local') order by client_addr nulls first, pid), '{}'::text[]),
       coalesce(array_agg(coalesce(sync_state = 'sync', false) order by client_addr nulls first, pid), '{}'::bool[])
from pg_catalog.pg_stat_replication
`

const queryWalSenders = `select count(*) from pg_catalog.pg_stat_replication`

const queryWalReceivers = `select count(*) from pg_catalog.pg_stat_wal_receiver`

const querySlots = `
select count(*)                            as total_slots,
       count(*) filter (where active)      as active_slots,
       count(*) filter (where not active)  as inactive_slots
from pg_catalog.pg_replication_slots
`

const queryInRecovery = `select pg_is_in_recovery()`

const queryCurrentWalLSN = `select pg_current_wal_lsn()::text`

type probeQuery struct {
	name  string
	roles []Role
	run   func(ctx context.Context, conn Conn, res *Result) error
}

func (q probeQuery) appliesTo(role Role) bool {
	for _, r := range q.roles {
		if r == role {
			return true
		}
	}
	return false
}

// rowCountQuery builds the consistency-check count for a possibly schema-qualified table.
func rowCountQuery(table string) string {
	ident := pgx.Identifier(strings.Split(table, "."))
	return "select count(*) from " + ident.Sanitize()
}

func nonNegativeInt(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func nonNegativeFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func probeQueries(consistencyTable string) []probeQuery {
	both := []Role{RolePrimary, RoleStandby}
	primary := []Role{RolePrimary}
	standby := []Role{RoleStandby}

	queries := []probeQuery{
		{
			name:  "lag",
			roles: primary,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				return scanLag(ctx, conn, queryPrimaryLag, res)
			},
		},
		{
			name:  "lag",
			roles: standby,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				return scanLag(ctx, conn, queryStandbyLag, res)
			},
		},
		{
			name:  "connections",
			roles: primary,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var total, sync int64
				if err := conn.QueryRow(ctx, queryConnections).Scan(&total, &sync); err != nil {
					return err
				}
				res.ReplicationConnections = &total
				res.SyncConnections = &sync
				return nil
			},
		},
		{
			name:  "sync-states",
			roles: primary,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var addrs []string
				var syncs []bool
				if err := conn.QueryRow(ctx, querySyncStates).Scan(&addrs, &syncs); err != nil {
					return err
				}
				if len(addrs) != len(syncs) {
					return fmt.Errorf("sync states: %d addresses for %d flags", len(addrs), len(syncs))
				}
				states := make([]SyncState, 0, len(addrs))
				for i := range addrs {
					states = append(states, SyncState{ClientAddr: addrs[i], Synchronous: syncs[i]})
				}
				res.SyncStates = states
				return nil
			},
		},
		{
			name:  "wal-senders",
			roles: primary,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var n int64
				if err := conn.QueryRow(ctx, queryWalSenders).Scan(&n); err != nil {
					return err
				}
				res.WalSenders = &n
				return nil
			},
		},
		{
			name:  "wal-receivers",
			roles: standby,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var n int64
				if err := conn.QueryRow(ctx, queryWalReceivers).Scan(&n); err != nil {
					return err
				}
				res.WalReceivers = &n
				return nil
			},
		},
		{
			name:  "slots",
			roles: both,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var s SlotCounts
				if err := conn.QueryRow(ctx, querySlots).Scan(&s.Total, &s.Active, &s.Inactive); err != nil {
					return err
				}
				res.Slots = &s
				return nil
			},
		},
		{
			name:  "in-recovery",
			roles: standby,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var inRecovery bool
				if err := conn.QueryRow(ctx, queryInRecovery).Scan(&inRecovery); err != nil {
					return err
				}
				res.InRecovery = &inRecovery
				return nil
			},
		},
		{
			name:  "wal-position",
			roles: primary,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var lsnText string
				if err := conn.QueryRow(ctx, queryCurrentWalLSN).Scan(&lsnText); err != nil {
					return err
				}
				lsn, err := pglogrepl.ParseLSN(lsnText)
				if err != nil {
					return fmt.Errorf("parse lsn %q: %w", lsnText, err)
				}
				pos := uint64(lsn)
				res.WalPosition = &pos
				return nil
			},
		},
	}

	if consistencyTable != "" {
		countSQL := rowCountQuery(consistencyTable)
		queries = append(queries, probeQuery{
			name:  "row-count",
			roles: both,
			run: func(ctx context.Context, conn Conn, res *Result) error {
				var n int64
				if err := conn.QueryRow(ctx, countSQL).Scan(&n); err != nil {
					return err
				}
				res.RowCount = &n
				return nil
			},
		})
	}

	return queries
}

func scanLag(ctx context.Context, conn Conn, query string, res *Result) error {
	var lagBytes int64
	var lagSeconds float64
	if err := conn.QueryRow(ctx, query).Scan(&lagBytes, &lagSeconds); err != nil {
		return err
	}
	lagBytes = nonNegativeInt(lagBytes)
	lagSeconds = nonNegativeFloat(lagSeconds)
	res.LagBytes = &lagBytes
	res.LagSeconds = &lagSeconds
	return nil
}
