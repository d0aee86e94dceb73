package pg

// SyncState is one row of pg_stat_replication as seen by the primary.
type SyncState struct {
	ClientAddr  string `json:"client_addr"`
	Synchronous bool   `json:"synchronous"`
}

type SlotCounts struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// Result is the outcome of probing one Endpoint at one point in time.
//
// Nil means unknown: a zero lag is a valid reading and is never used as a
// placeholder. When Reachable is false every measurement field is nil.
type Result struct {
	Role Role   `json:"role"`
	Host string `json:"host"`
	Port int    `json:"port"`

	Reachable bool `json:"reachable"`

	LagBytes   *int64   `json:"lag_bytes,omitempty"`
	LagSeconds *float64 `json:"lag_seconds,omitempty"`

	ReplicationConnections *int64      `json:"replication_connections,omitempty"`
	SyncConnections        *int64      `json:"sync_connections,omitempty"`
	SyncStates             []SyncState `json:"sync_states,omitempty"`

	WalSenders   *int64 `json:"wal_senders,omitempty"`
	WalReceivers *int64 `json:"wal_receivers,omitempty"`

	Slots *SlotCounts `json:"slots,omitempty"`

	InRecovery *bool  `json:"in_recovery,omitempty"`
	RowCount   *int64 `json:"row_count,omitempty"`

	// WalPosition is the current WAL LSN in bytes (primary only).
	WalPosition *uint64 `json:"wal_position,omitempty"`
}

// Unreachable returns a result with only the identity fields set.
func Unreachable(ep Endpoint) Result {
	return Result{
		Role: ep.Role,
		Host: ep.Host,
		Port: ep.Port,
	}
}
