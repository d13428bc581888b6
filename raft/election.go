package raft

import (
	"time"

	"go.uber.org/zap"
)

// checkElectionTimeout is called by the event loop (C6) whenever the
// election deadline has passed. Grounded on the teacher's
// handleFollowerHeartbeatTimeout/runCandidate timeout path, generalized to
// a single entry point usable from both Follower and Candidate (spec.md
// §4.2 "on timeout, while Follower or Candidate").
func (r *Raft) checkElectionTimeout(now time.Time) {
	if r.role == Leader {
		return
	}
	if now.Before(r.electionDeadline) {
		return
	}
	r.startElection()
}

func (r *Raft) startElection() {
	r.currentTerm++
	r.role = Candidate
	r.votedFor = r.id
	r.votesReceived = map[ReplicaID]bool{r.id: true}
	r.leader = BroadcastID
	r.resetElectionDeadline()
	if r.metrics != nil {
		r.metrics.ElectionsStarted.Inc()
	}
	r.refreshMetrics()

	r.logger.Info("starting election", zap.Uint64("term", r.currentTerm))

	args := RequestVoteArgs{
		Term:         r.currentTerm,
		CandidateID:  r.id,
		LastLogIndex: r.log.lastIndex(),
		LastLogTerm:  r.log.lastTerm(),
	}
	r.broadcast(MsgRequestVote, args)

	r.maybeBecomeLeader() // single-node cluster: majority of 1 is already met
}

// handleRequestVote answers a RequestVote per spec.md §4.2.
func (r *Raft) handleRequestVote(from ReplicaID, args RequestVoteArgs) RequestVoteReply {
	if args.Term > r.currentTerm {
		r.stepDownToFollower(args.Term)
	}

	if err := r.rejectIfStaleTerm(args.Term); err != nil {
		r.logger.Debug("rejecting vote request", zap.Error(err), zap.String("candidate", string(args.CandidateID)))
		return RequestVoteReply{Term: r.currentTerm, Granted: false}
	}

	alreadyVoted := r.votedFor != "" && r.votedFor != args.CandidateID
	upToDate := args.LastLogTerm > r.log.lastTerm() ||
		(args.LastLogTerm == r.log.lastTerm() && args.LastLogIndex >= r.log.lastIndex())

	if alreadyVoted || !upToDate {
		r.logger.Debug("rejecting vote request",
			zap.String("candidate", string(args.CandidateID)),
			zap.Bool("alreadyVoted", alreadyVoted), zap.Bool("upToDate", upToDate))
		return RequestVoteReply{Term: r.currentTerm, Granted: false}
	}

	r.votedFor = args.CandidateID
	r.resetElectionDeadline()
	r.logger.Info("granting vote", zap.String("candidate", string(args.CandidateID)), zap.Uint64("term", r.currentTerm))
	return RequestVoteReply{Term: r.currentTerm, Granted: true}
}

// handleRequestVoteResponse processes a vote reply; candidate-only logic,
// but safe to call regardless of current role (stale replies from a prior
// term/role are simply ignored).
func (r *Raft) handleRequestVoteResponse(from ReplicaID, reply RequestVoteReply) {
	if reply.Term > r.currentTerm {
		r.stepDownToFollower(reply.Term)
		return
	}
	if r.role != Candidate || reply.Term != r.currentTerm || !reply.Granted {
		return
	}
	r.votesReceived[from] = true
	r.maybeBecomeLeader()
}

func (r *Raft) maybeBecomeLeader() {
	if r.role != Candidate {
		return
	}
	if len(r.votesReceived) < r.majority() {
		return
	}

	r.role = Leader
	r.leader = r.id
	r.inMinorityPartition = false
	r.quorumWindowStart = time.Now()
	r.followersResponded = make(map[ReplicaID]bool)

	lastIdx := r.log.lastIndex()
	for _, p := range r.peers {
		r.nextIndex[p] = lastIdx + 1
		r.matchIndex[p] = noIndex
	}

	r.logger.Info("won election, becoming leader", zap.Uint64("term", r.currentTerm))
	r.refreshMetrics()

	r.sendHeartbeats()
	r.drainBufferAsLeader()
}
