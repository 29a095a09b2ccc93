package models

import "time"

// SystemSettings holds the cluster-wide knobs that gate resource accounting
// and host-path policy.
type SystemSettings struct {
	ReservedCPUMillis   int64 `json:"reserved_cpu_millis"`
	ReservedMemoryBytes int64 `json:"reserved_memory_bytes"`
	ReservedStorageBytes int64 `json:"reserved_storage_bytes"`

	FairShareCPUMillis   int64 `json:"fair_share_cpu_millis"`
	FairShareMemoryBytes int64 `json:"fair_share_memory_bytes"`
	FairShareStorageBytes int64 `json:"fair_share_storage_bytes"`

	HostPathWhitelist    []string `json:"host_path_whitelist"`
	UnrestrictedHostPath bool     `json:"unrestricted_host_path"`
}

// CacheInvalidation tracks the per-scaler flag set whenever an operation's
// effects must be observed by the scaler before further placements.
type CacheInvalidation struct {
	Scalers map[ScalerKind]bool `json:"scalers"`
}

// SystemInfo is the GET /api/system/ response: the current settings plus
// the caller-requested scaler's cache-invalidation flag, read and cleared
// atomically in the same call (spec §6).
type SystemInfo struct {
	Settings SystemSettings `json:"settings"`
	// ResetScaler echoes which scaler's flag this call cleared, empty if
	// the caller did not pass reset=.
	ResetScaler   ScalerKind `json:"reset_scaler,omitempty"`
	CacheWasStale bool       `json:"cache_was_stale"`
}

// LogChunk is one append-only execution-log fragment for a reaction's
// stage (worker stdout/stderr), distinct from the reaction's status log.
type LogChunk struct {
	Stage     int       `json:"stage"`
	Chunk     string    `json:"chunk"`
	Timestamp time.Time `json:"timestamp"`
}
