package raft

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Run is the single-threaded event loop (C6): on each iteration it computes
// the nearest timer deadline and blocks on either the inbox or that
// deadline. When the deadline fires, fireTimers checks the timers in the
// order (1) election timeout, (2) heartbeat, (3) batch flush, (4) quorum
// window. A timer firing and a datagram arriving are mutually exclusive per
// iteration (Go's select picks one ready case); when both are ready, select
// chooses between them at random, so an expired timer does not take
// precedence over a datagram already waiting in the inbox.
func (r *Raft) Run(ctx context.Context) {
	r.sendHello()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event loop stopped")
			return
		default:
		}

		deadline := r.nextDeadline()
		timer := time.NewTimer(time.Until(deadline))

		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case env, ok := <-r.transport.Inbox():
			timer.Stop()
			if !ok {
				return
			}
			r.mu.Lock()
			r.dispatch(env)
			r.mu.Unlock()

		case now := <-timer.C:
			r.mu.Lock()
			r.fireTimers(now)
			r.mu.Unlock()
		}
	}
}

func (r *Raft) nextDeadline() time.Time {
	d := r.electionDeadline
	if hb := r.lastHeartbeatSent.Add(r.config.HeartbeatInterval); hb.Before(d) {
		d = hb
	}
	if bf := r.lastBatchFlush.Add(r.config.BatchFlushInterval); bf.Before(d) {
		d = bf
	}
	if r.role == Leader {
		if qw := r.quorumWindowStart.Add(r.config.QuorumWindow); qw.Before(d) {
			d = qw
		}
	}
	return d
}

// fireTimers checks every timer in spec.md §4.6's priority order. Each
// check is individually guarded by its own deadline, so an early wakeup
// (the nearest of several deadlines) only fires the timer(s) actually due.
func (r *Raft) fireTimers(now time.Time) {
	r.checkElectionTimeout(now)
	r.checkHeartbeatTimeout(now)
	r.checkBatchFlushTimeout(now)
	r.checkQuorumWindow(now)
}

// dispatch decodes the envelope's body for its declared type and routes it
// to the owning component, per spec.md §4.6 priority (5).
func (r *Raft) dispatch(env Envelope) {
	switch env.Type {
	case MsgHello:
		// One-shot startup announcement, not part of the core protocol;
		// nothing to act on.

	case MsgGet, MsgPut:
		var req ClientRequest
		if err := json.Unmarshal(env.Body, &req); err != nil {
			r.logger.Warn("dropping malformed client request", zap.Error(err))
			return
		}
		if env.Type == MsgGet {
			r.handleClientGet(env.Src, req)
		} else {
			r.handleClientPut(env.Src, req)
		}

	case MsgRequestVote:
		var args RequestVoteArgs
		if err := json.Unmarshal(env.Body, &args); err != nil {
			r.logger.Warn("dropping malformed RequestVote", zap.Error(err))
			return
		}
		reply := r.handleRequestVote(env.Src, args)
		r.send(env.Src, MsgRequestVoteResponse, reply)

	case MsgRequestVoteResponse:
		var reply RequestVoteReply
		if err := json.Unmarshal(env.Body, &reply); err != nil {
			r.logger.Warn("dropping malformed RequestVoteResponse", zap.Error(err))
			return
		}
		r.handleRequestVoteResponse(env.Src, reply)

	case MsgAppendEntries:
		var args AppendEntriesArgs
		if err := json.Unmarshal(env.Body, &args); err != nil {
			r.logger.Warn("dropping malformed AppendEntries", zap.Error(err))
			return
		}
		reply := r.handleAppendEntries(env.Src, args)
		r.send(env.Src, MsgAppendEntriesResponse, reply)

	case MsgAppendEntriesResponse:
		var reply AppendEntriesReply
		if err := json.Unmarshal(env.Body, &reply); err != nil {
			r.logger.Warn("dropping malformed AppendEntriesResponse", zap.Error(err))
			return
		}
		r.handleAppendEntriesResponse(env.Src, reply)

	default:
		r.logger.Warn("dropping message of unknown type", zap.String("type", string(env.Type)))
	}
}

func (r *Raft) send(dst ReplicaID, typ MessageType, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to marshal outbound payload", zap.Error(err))
		return
	}
	r.transport.Send(dst, Envelope{
		Src: r.id, Dst: dst, Leader: r.leader, Type: typ, Body: body,
	})
}

func (r *Raft) broadcast(typ MessageType, payload interface{}) {
	for _, p := range r.peers {
		r.send(p, typ, payload)
	}
}

func (r *Raft) sendHello() {
	r.transport.Send(BroadcastID, Envelope{
		Src: r.id, Dst: BroadcastID, Leader: r.leader, Type: MsgHello,
	})
}
