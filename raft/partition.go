package raft

import (
	"time"

	"go.uber.org/zap"
)

// checkQuorumWindow is called by the event loop (C6) when the quorum
// window has expired; implements spec.md §4.5 verbatim.
func (r *Raft) checkQuorumWindow(now time.Time) {
	if r.role != Leader {
		return
	}
	if now.Before(r.quorumWindowStart.Add(r.config.QuorumWindow)) {
		return
	}

	if len(r.followersResponded)+1 < r.majority() {
		r.logger.Warn("quorum window expired without a majority responding, declaring minority partition",
			zap.Int("responded", len(r.followersResponded)+1), zap.Int("majority", r.majority()))
		r.inMinorityPartition = true
		if r.metrics != nil {
			r.metrics.MinorityPartitionEvents.Inc()
		}
		r.followersResponded = make(map[ReplicaID]bool)
		r.discardUncommittedWork()
		r.startElection()
		return
	}

	r.followersResponded = make(map[ReplicaID]bool)
	r.quorumWindowStart = now
}
