package raft

import "time"

// Config bundles the tunables named in the specification's timer table.
// Mirrors the teacher's *Config field on Raft, generalized to every timer
// the event loop (C6) drives instead of just heartbeat/election.
type Config struct {
	// ElectionTimeoutMin/Max bound the randomized election timeout sampled
	// on every reset ([T_lo, T_hi], e.g. 150-300ms).
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration

	// HeartbeatInterval is T_hb, much smaller than ElectionTimeoutMin.
	HeartbeatInterval time.Duration

	// BatchFlushInterval is T_batch: the leader flushes pendingBatch into
	// the log at least this often even if BatchSizeThreshold isn't hit.
	BatchFlushInterval time.Duration

	// BatchSizeThreshold flushes pendingBatch immediately once it grows to
	// this many buffered puts, trading latency for fewer larger batches.
	BatchSizeThreshold int

	// QuorumWindow is T_quorum: the partition detector's watchdog period.
	QuorumWindow time.Duration
}

// DefaultConfig returns the tunables suggested by the specification's
// example values.
func DefaultConfig() *Config {
	return &Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  20 * time.Millisecond,
		BatchFlushInterval: 10 * time.Millisecond,
		BatchSizeThreshold: 64,
		QuorumWindow:       300 * time.Millisecond,
	}
}
