package raft

import (
	"time"

	"go.uber.org/zap"
)

// checkHeartbeatTimeout is called by the event loop (C6) on every timer
// tick; it only actually sends once the heartbeat interval has elapsed.
// A new put batch does not wait for it: flushBatch calls
// sendAppendEntriesTo for every peer directly as soon as the batch is
// appended.
func (r *Raft) checkHeartbeatTimeout(now time.Time) {
	if r.role != Leader {
		return
	}
	if now.Before(r.lastHeartbeatSent.Add(r.config.HeartbeatInterval)) {
		return
	}
	r.sendHeartbeats()
}

func (r *Raft) sendHeartbeats() {
	for _, p := range r.peers {
		r.sendAppendEntriesTo(p)
	}
	r.lastHeartbeatSent = time.Now()
}

// sendAppendEntriesTo sends the peer's pending suffix (possibly empty, in
// which case it's a pure heartbeat) per spec.md §4.3 "Leader sending".
func (r *Raft) sendAppendEntriesTo(p ReplicaID) {
	next := r.nextIndex[p]
	prevIndex := next - 1
	prevTerm := r.log.termAt(prevIndex)
	entries := r.log.slice(next)

	args := AppendEntriesArgs{
		Term:         r.currentTerm,
		Leader:       r.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entriesToWire(entries),
		LeaderCommit: r.log.commitIndex,
	}
	if r.metrics != nil {
		r.metrics.AppendEntriesSent.Inc()
	}
	r.send(p, MsgAppendEntries, args)
}

// handleAppendEntries implements spec.md §4.3 "Follower handling of
// AppendEntries" verbatim, steps 1-7.
func (r *Raft) handleAppendEntries(from ReplicaID, args AppendEntriesArgs) AppendEntriesReply {
	// 1. stale term: reject, do nothing else.
	if err := r.rejectIfStaleTerm(args.Term); err != nil {
		r.logger.Debug("rejecting append entries", zap.Error(err), zap.String("from", string(from)))
		return AppendEntriesReply{Term: r.currentTerm, Success: false}
	}

	// 2. newer term: step down first.
	if args.Term > r.currentTerm {
		r.stepDownToFollower(args.Term)
	}
	// A candidate seeing an AppendEntries at >= its term steps down too.
	if r.role == Candidate {
		r.role = Follower
	}

	// 3. recognize leader, reset timer, drain buffer by redirecting.
	r.recognizeLeader(args.Leader)
	r.drainBufferAsFollowerOrCandidate()

	// 4. log-matching check with fast-conflict hint.
	if !r.log.matchesAt(args.PrevLogIndex, args.PrevLogTerm) {
		reply := AppendEntriesReply{Term: r.currentTerm, Success: false}
		if args.PrevLogIndex >= int64(len(r.log.entries)) {
			reply.ConflictingTerm = -1
			reply.ConflictingFirstIndex = int64(len(r.log.entries))
		} else {
			ct := r.log.termAt(args.PrevLogIndex)
			reply.ConflictingTerm = int64(ct)
			reply.ConflictingFirstIndex = r.log.firstIndexOfTerm(ct)
		}
		if r.metrics != nil {
			r.metrics.AppendEntriesRejected.Inc()
		}
		r.logger.Debug("rejecting append entries, log mismatch",
			zap.Int64("prevLogIndex", args.PrevLogIndex), zap.Uint64("prevLogTerm", args.PrevLogTerm))
		return reply
	}

	// 5. apply the entries, truncating any conflicting suffix first. A
	// truncated entry may still be marked inFlight from when this replica
	// itself queued it as leader in an earlier term; clear that marker so
	// a later retry of the same (client,MID) isn't silently swallowed by
	// the dedup check in handleClientPut once this replica leads again.
	newEntries := entriesFromWire(args.Entries)
	for i, e := range newEntries {
		idx := args.PrevLogIndex + 1 + int64(i)
		if idx < int64(len(r.log.entries)) {
			if r.log.entries[idx].Term != e.Term {
				for _, discarded := range r.log.truncateFrom(idx) {
					delete(r.inFlight, dedupKey(discarded.Client, discarded.MID))
				}
				r.log.append(e)
			}
			continue
		}
		r.log.append(e)
	}

	// 6. advance commit index and apply.
	if args.LeaderCommit > r.log.commitIndex {
		newCommit := min64(args.LeaderCommit, r.log.lastIndex())
		r.log.commitIndex = newCommit
		r.log.applyUpTo(newCommit)
	}
	r.refreshMetrics()

	// 7. ok reply.
	return AppendEntriesReply{
		Term:          r.currentTerm,
		Success:       true,
		MatchIndex:    r.log.lastIndex(),
		HeartbeatOnly: len(newEntries) == 0,
	}
}

// handleAppendEntriesResponse implements spec.md §4.3 "Leader handling of
// AppendEntriesResponse". It trusts only what reply itself reports (Success,
// HeartbeatOnly, the conflict hints) and never a locally remembered copy of
// what was sent: the network is lossy and reordering, so a reply can arrive
// matched against a newer outbound request than the one it actually answers.
func (r *Raft) handleAppendEntriesResponse(from ReplicaID, reply AppendEntriesReply) {
	if reply.Term > r.currentTerm {
		r.stepDownToFollower(reply.Term)
		return
	}
	if r.role != Leader || reply.Term != r.currentTerm {
		return
	}

	r.followersResponded[from] = true

	if reply.Success {
		if !reply.HeartbeatOnly {
			r.matchIndex[from] = reply.MatchIndex
			r.nextIndex[from] = reply.MatchIndex + 1
			r.advanceCommitIndex()
		}
		return
	}

	// Reject: use the fast-conflict hint to skip nextIndex decrements.
	var newNext int64
	if reply.ConflictingTerm == -1 {
		newNext = reply.ConflictingFirstIndex
	} else if li := r.log.lastIndexOfTerm(uint64(reply.ConflictingTerm)); li != noIndex {
		newNext = min64(li+1, reply.ConflictingFirstIndex)
	} else {
		newNext = reply.ConflictingFirstIndex
	}
	if newNext < 0 {
		newNext = 0
	}
	r.nextIndex[from] = newNext
	r.sendAppendEntriesTo(from)
}

// advanceCommitIndex implements spec.md §4.3 "Commit advancement": a leader
// only ever commits by counting replicas for an entry from its own
// currentTerm, never a prior term, per the "commit-only-in-own-term" rule.
func (r *Raft) advanceCommitIndex() {
	for n := r.log.lastIndex(); n > r.log.commitIndex; n-- {
		if r.log.termAt(n) != r.currentTerm {
			continue
		}
		count := 1
		for _, p := range r.peers {
			if r.matchIndex[p] >= n {
				count++
			}
		}
		if count >= r.majority() {
			r.log.commitIndex = n
			applied := r.log.applyUpTo(n)
			r.replyToCommittedPuts(applied)
			r.unblockPendingGets()
			r.refreshMetrics()
			return
		}
	}
}
