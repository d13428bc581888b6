package raft

import (
	"errors"

	"go.uber.org/zap"
)

// Sentinel errors for internal control flow only; the wire protocol never
// surfaces a Go error (it crosses a process boundary and uses the
// fail/redirect reply types of spec.md §4.4 instead). Handlers branch on
// these with errors.Is/== to decide which reply to send or whether to log.
var (
	ErrNotLeader         = errors.New("raft: not the leader")
	ErrStaleTerm         = errors.New("raft: message carries a stale term")
	ErrMinorityPartition = errors.New("raft: leader isolated in minority partition")
)

// rejectIfStaleTerm reports whether term is behind currentTerm, the
// condition every RPC handler must reject before doing anything else
// (invariant 1: term monotonicity).
func (r *Raft) rejectIfStaleTerm(term uint64) error {
	if term < r.currentTerm {
		return ErrStaleTerm
	}
	return nil
}

// clientVisibility reports whether this replica can currently serve a
// client request as leader: nil if so, ErrMinorityPartition if it declared
// itself isolated in a minority partition (checkQuorumWindow) and has not
// since recognized or become a leader, otherwise ErrNotLeader if role isn't
// Leader.
func (r *Raft) clientVisibility() error {
	if r.inMinorityPartition {
		return ErrMinorityPartition
	}
	if r.role != Leader {
		return ErrNotLeader
	}
	return nil
}

// fatalf reports an invariant breach that must never happen if C1-C6 are
// implemented correctly, and exits the process. zap.Logger.Fatal already
// calls os.Exit(1) after logging, so there is no path back from this call.
func fatalf(logger *zap.Logger, msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
}
