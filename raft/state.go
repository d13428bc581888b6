package raft

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// clientRequest is a buffered get/put awaiting a leader, a commit, or a
// redirect decision. Grounded on the teacher's buffering of client RPCs
// while role/visibility is uncertain, generalized to both read and write.
type clientRequest struct {
	kind  MessageType // MsgGet or MsgPut
	from  ReplicaID
	req   ClientRequest
	index int64 // for a get waiting on an uncommitted put, the index to wait for
}

// Raft is a single replica's full volatile state (spec.md §3
// "ReplicaState"). All fields are owned and mutated exclusively by the
// single-threaded event loop (C6); nothing outside it may touch them.
type Raft struct {
	id    ReplicaID
	peers []ReplicaID // does not include id

	log *raftLog

	currentTerm uint64
	votedFor    ReplicaID // empty means none
	role        Role
	leader      ReplicaID // BroadcastID if none recognized

	// Leader-only.
	nextIndex  map[ReplicaID]int64
	matchIndex map[ReplicaID]int64

	// Candidate-only.
	votesReceived map[ReplicaID]bool

	// Timers, all driven off one monotonic clock (time.Now()/time.Since);
	// never wall-clock subtraction per spec.md §9.
	electionDeadline  time.Time
	lastHeartbeatSent time.Time
	lastBatchFlush    time.Time
	quorumWindowStart time.Time

	pendingBatch []clientRequest // leader: buffered puts awaiting the flush timer
	buffer       []clientRequest // follower/candidate, or leader awaiting a commit

	// Partition detector (C5) state, leader-only.
	followersResponded  map[ReplicaID]bool
	inMinorityPartition bool

	// answeredMIDs deduplicates client retries per spec.md §4.4: once a
	// leader has replied ok for a (client,MID), a retransmission gets the
	// same reply without reapplying or recommitting anything.
	answeredMIDs map[string]ClientReply

	// inFlight marks a (client,MID) that has been queued/appended but not
	// yet committed, so a duplicate retransmission arriving before the
	// first commit is dropped instead of producing a second log entry.
	inFlight map[string]bool

	transport Transport
	config    *Config
	metrics   *Metrics
	logger    *zap.Logger

	// mu is the one deliberate exception to "owned exclusively by the
	// event loop" (C8): it guards the admin surface's read-only accessors
	// below against the concurrently running HTTP goroutine. The event
	// loop takes it for the duration of each dispatch/timer step; nothing
	// else in the core ever touches it.
	mu sync.Mutex
}

// NewRaft constructs a replica in the Follower role with an empty log, per
// spec.md §3 "Lifecycle: log and kv are created empty at process start".
func NewRaft(id ReplicaID, peers []ReplicaID, transport Transport, config *Config, metrics *Metrics, logger *zap.Logger) *Raft {
	now := time.Now()
	r := &Raft{
		id:                 id,
		peers:              peers,
		log:                newRaftLog(),
		currentTerm:        0,
		votedFor:           "",
		role:               Follower,
		leader:             BroadcastID,
		nextIndex:          make(map[ReplicaID]int64),
		matchIndex:         make(map[ReplicaID]int64),
		votesReceived:      make(map[ReplicaID]bool),
		followersResponded: make(map[ReplicaID]bool),
		answeredMIDs:       make(map[string]ClientReply),
		inFlight:           make(map[string]bool),
		transport:          transport,
		config:             config,
		metrics:            metrics,
		logger:             logger.With(zap.String("replica", string(id))),
	}
	r.resetElectionDeadline()
	r.lastHeartbeatSent = now
	r.lastBatchFlush = now
	r.quorumWindowStart = now
	r.refreshMetrics()
	return r
}

func (r *Raft) majority() int {
	return (len(r.peers)+1)/2 + 1
}

// refreshMetrics snapshots gauges after any state transition. Cheap; safe
// to call liberally. It also asserts invariant 7 (commitIndex >=
// lastApplied) and exits the process through fatalf if it is broken.
func (r *Raft) refreshMetrics() {
	if r.log.commitIndex < r.log.lastApplied {
		fatalf(r.logger, "invariant violated: commitIndex fell behind lastApplied",
			zap.Int64("commitIndex", r.log.commitIndex), zap.Int64("lastApplied", r.log.lastApplied))
	}
	if r.metrics == nil {
		return
	}
	r.metrics.Term.Set(float64(r.currentTerm))
	r.metrics.Role.Set(float64(r.role))
	r.metrics.CommitIndex.Set(float64(r.log.commitIndex))
	r.metrics.LogLength.Set(float64(len(r.log.entries)))
}

// stepDownToFollower is invariant 1 (term monotonicity): any message
// carrying a higher term forces an immediate, unconditional transition.
func (r *Raft) stepDownToFollower(term uint64) {
	r.currentTerm = term
	r.votedFor = ""
	r.role = Follower
	r.leader = BroadcastID
	r.votesReceived = make(map[ReplicaID]bool)
	r.resetElectionDeadline()
	r.refreshMetrics()
}

// recognizeLeader marks leader as the current term's leader and clears any
// minority-partition flag (spec.md §4.5 "Clearing inMinorityPartition").
func (r *Raft) recognizeLeader(leader ReplicaID) {
	if r.leader != leader {
		if r.metrics != nil {
			r.metrics.LeaderChanges.Inc()
		}
	}
	r.leader = leader
	r.inMinorityPartition = false
	r.resetElectionDeadline()
}

func (r *Raft) resetElectionDeadline() {
	r.electionDeadline = time.Now().Add(randomDuration(r.config.ElectionTimeoutMin, r.config.ElectionTimeoutMax))
}

// StatusSnapshot is the read-only view exported for the admin surface (C8).
// It is the one deliberate point where state crosses out of the
// single-threaded loop; callers must treat it as a point-in-time copy.
type StatusSnapshot struct {
	ID                  ReplicaID
	Role                Role
	Term                uint64
	Leader              ReplicaID
	CommitIndex         int64
	LastApplied         int64
	LogLength           int
	InMinorityPartition bool
}

func (r *Raft) Snapshot() StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return StatusSnapshot{
		ID:                  r.id,
		Role:                r.role,
		Term:                r.currentTerm,
		Leader:              r.leader,
		CommitIndex:         r.log.commitIndex,
		LastApplied:         r.log.lastApplied,
		LogLength:           len(r.log.entries),
		InMinorityPartition: r.inMinorityPartition,
	}
}

// LogEntries returns a copy of the log, for the admin /log endpoint only.
func (r *Raft) LogEntries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.log.entries))
	copy(out, r.log.entries)
	return out
}

// Get returns the state machine's current value for key, for the admin
// /kv endpoint only; it bypasses the linearizable client path on purpose
// and must never be used by replica-to-replica or client-to-replica code.
func (r *Raft) Get(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.get(key)
}
