package raft

import "time"

func dedupKey(client ReplicaID, mid string) string {
	return string(client) + "#" + mid
}

// handleClientGet implements spec.md §4.4 role policy for "get".
func (r *Raft) handleClientGet(from ReplicaID, req ClientRequest) {
	if err := r.clientVisibility(); err != nil {
		switch err {
		case ErrNotLeader:
			if r.leader != BroadcastID {
				r.replyRedirect("get", from, req.MID)
				return
			}
			r.buffer = append(r.buffer, clientRequest{kind: MsgGet, from: from, req: req, index: noIndex})
		case ErrMinorityPartition:
			r.countClient("get", "fail")
			r.replyFail(from, req.MID)
		}
		return
	}

	if idx := r.uncommittedIndexForKey(req.Key); idx != noIndex {
		r.buffer = append(r.buffer, clientRequest{kind: MsgGet, from: from, req: req, index: idx})
		return
	}
	r.countClient("get", "ok")
	r.replyOKGet(from, req.MID, req.Key)
}

// handleClientPut implements spec.md §4.4 role policy for "put", including
// the §4.4 last-paragraph MID-deduplication rule for retries.
func (r *Raft) handleClientPut(from ReplicaID, req ClientRequest) {
	if err := r.clientVisibility(); err != nil {
		switch err {
		case ErrNotLeader:
			if r.leader != BroadcastID {
				r.replyRedirect("put", from, req.MID)
				return
			}
			r.buffer = append(r.buffer, clientRequest{kind: MsgPut, from: from, req: req, index: noIndex})
		case ErrMinorityPartition:
			r.countClient("put", "fail")
			r.replyFail(from, req.MID)
		}
		return
	}

	key := dedupKey(from, req.MID)
	if reply, ok := r.answeredMIDs[key]; ok {
		r.countClient("put", "ok")
		r.send(from, MsgOK, reply)
		return
	}
	if r.inFlight[key] {
		return // already queued/appended; the original will trigger the reply
	}
	r.inFlight[key] = true
	r.pendingBatch = append(r.pendingBatch, clientRequest{kind: MsgPut, from: from, req: req, index: noIndex})
	if len(r.pendingBatch) >= r.config.BatchSizeThreshold {
		r.flushBatch()
	}
}

// checkBatchFlushTimeout is called by the event loop (C6) on every timer
// tick; it only actually flushes once the batch flush interval has
// elapsed (immediate threshold-triggered flushes happen in handleClientPut).
func (r *Raft) checkBatchFlushTimeout(now time.Time) {
	if r.role != Leader {
		return
	}
	if now.Before(r.lastBatchFlush.Add(r.config.BatchFlushInterval)) {
		return
	}
	if len(r.pendingBatch) == 0 {
		r.lastBatchFlush = now
		return
	}
	r.flushBatch()
}

// flushBatch turns every buffered put into one LogEntry, appends them all
// in order, and immediately broadcasts the new suffix, per spec.md §4.4
// "construct one LogEntry per buffered put ... broadcast an AppendEntries
// to every peer carrying the new suffix".
func (r *Raft) flushBatch() {
	if len(r.pendingBatch) == 0 {
		return
	}
	entries := make([]LogEntry, 0, len(r.pendingBatch))
	for _, cr := range r.pendingBatch {
		entries = append(entries, LogEntry{
			Term: r.currentTerm, Key: cr.req.Key, Value: cr.req.Value,
			Client: cr.from, MID: cr.req.MID,
		})
	}
	r.log.appendAll(entries)
	r.pendingBatch = nil
	r.lastBatchFlush = time.Now()
	r.refreshMetrics()

	for _, p := range r.peers {
		r.sendAppendEntriesTo(p)
	}
}

// uncommittedIndexForKey returns the highest uncommitted log index whose
// entry writes key, or noIndex if no uncommitted entry touches it.
func (r *Raft) uncommittedIndexForKey(key string) int64 {
	for i := r.log.lastIndex(); i > r.log.commitIndex; i-- {
		if r.log.at(i).Key == key {
			return i
		}
	}
	return noIndex
}

// replyToCommittedPuts sends the deferred ok reply for every newly-applied
// put entry; called only from the leader's commit-advancement path (C3),
// never from a follower applying the same entries later.
func (r *Raft) replyToCommittedPuts(applied []int64) {
	for _, idx := range applied {
		e := r.log.at(idx)
		reply := ClientReply{MID: e.MID}
		key := dedupKey(e.Client, e.MID)
		r.answeredMIDs[key] = reply
		delete(r.inFlight, key)
		r.countClient("put", "ok")
		r.send(e.Client, MsgOK, reply)
	}
}

// unblockPendingGets answers any buffered get whose watched index has now
// committed, per spec.md §4.4 "it will be answered when that entry commits".
func (r *Raft) unblockPendingGets() {
	if len(r.buffer) == 0 {
		return
	}
	remaining := r.buffer[:0:0]
	for _, cr := range r.buffer {
		if cr.kind == MsgGet && cr.index != noIndex && cr.index <= r.log.commitIndex {
			r.countClient("get", "ok")
			r.replyOKGet(cr.from, cr.req.MID, cr.req.Key)
			continue
		}
		remaining = append(remaining, cr)
	}
	r.buffer = remaining
}

// drainBufferAsFollowerOrCandidate redirects every buffered request once a
// leader becomes known, per spec.md §4.4 "on learning a leader, drain
// buffer by replying redirect to each".
func (r *Raft) drainBufferAsFollowerOrCandidate() {
	if r.leader == BroadcastID || len(r.buffer) == 0 {
		return
	}
	for _, cr := range r.buffer {
		kind := "get"
		if cr.kind == MsgPut {
			kind = "put"
		}
		r.replyRedirect(kind, cr.from, cr.req.MID)
	}
	r.buffer = nil
}

// drainBufferAsLeader re-dispatches every request buffered while the role
// was uncertain, now that this replica is the leader (spec.md §4.2 "Flush
// buffered client requests (serve as leader now)").
func (r *Raft) drainBufferAsLeader() {
	if len(r.buffer) == 0 {
		return
	}
	pending := r.buffer
	r.buffer = nil
	for _, cr := range pending {
		switch cr.kind {
		case MsgGet:
			r.handleClientGet(cr.from, cr.req)
		case MsgPut:
			r.handleClientPut(cr.from, cr.req)
		}
	}
}

// discardUncommittedWork drops anything this replica was holding as leader
// that never reached a commit: the pending put batch and any in-flight
// dedup markers for it. Clients simply retry (spec.md §7: "clients must
// always see a reply or be free to retry").
func (r *Raft) discardUncommittedWork() {
	for _, cr := range r.pendingBatch {
		delete(r.inFlight, dedupKey(cr.from, cr.req.MID))
	}
	r.pendingBatch = nil
}

func (r *Raft) replyRedirect(kind string, to ReplicaID, mid string) {
	r.countClient(kind, "redirect")
	r.send(to, MsgRedirect, ClientReply{MID: mid})
}

func (r *Raft) replyFail(to ReplicaID, mid string) {
	r.send(to, MsgFail, ClientReply{MID: mid})
}

func (r *Raft) replyOKGet(to ReplicaID, mid, key string) {
	r.send(to, MsgOK, ClientReply{MID: mid, Value: r.log.get(key)})
}

func (r *Raft) countClient(kind, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ClientRequests.WithLabelValues(kind, outcome).Inc()
}
