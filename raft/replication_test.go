package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplication_FastConflictHintSkipsNextIndexDecrements(t *testing.T) {
	leader := newStandaloneReplica(t, "L", []ReplicaID{"F"})
	leader.currentTerm = 3
	leader.role = Leader
	leader.nextIndex["F"] = 5
	leader.matchIndex["F"] = noIndex

	reply := AppendEntriesReply{
		Term: 3, Success: false, ConflictingTerm: -1, ConflictingFirstIndex: 2,
	}
	leader.handleAppendEntriesResponse("F", reply)

	require.Equal(t, int64(2), leader.nextIndex["F"])
}

func TestReplication_CommitOnlyInOwnTerm(t *testing.T) {
	leader := newStandaloneReplica(t, "L", []ReplicaID{"F1", "F2"})
	leader.role = Leader
	leader.currentTerm = 3

	// An entry from a prior term, replicated to every peer, must not be
	// committed by itself: commitIndex only advances by counting matchIndex
	// for an entry carrying currentTerm.
	leader.log.append(LogEntry{Term: 2, Key: "stale", Value: "v"})
	for _, p := range leader.peers {
		leader.matchIndex[p] = leader.log.lastIndex()
	}
	before := leader.log.commitIndex
	leader.advanceCommitIndex()
	require.Equal(t, before, leader.log.commitIndex)

	// Once a currentTerm entry sits on top, replicating it commits both.
	leader.log.append(LogEntry{Term: 3, Key: "fresh", Value: "w"})
	for _, p := range leader.peers {
		leader.matchIndex[p] = leader.log.lastIndex()
	}
	leader.advanceCommitIndex()
	require.Equal(t, leader.log.lastIndex(), leader.log.commitIndex)
}

func TestReplication_HandleAppendEntriesRejectsStaleTerm(t *testing.T) {
	r := newStandaloneReplica(t, "F", []ReplicaID{"L"})
	r.currentTerm = 5

	reply := r.handleAppendEntries("L", AppendEntriesArgs{Term: 3})
	require.False(t, reply.Success)
	require.Equal(t, uint64(5), reply.Term)
}

func TestReplication_LogMatchingRejectsOnMismatch(t *testing.T) {
	r := newStandaloneReplica(t, "F", []ReplicaID{"L"})
	r.log.append(LogEntry{Term: 1, Key: "a", Value: "1"})

	reply := r.handleAppendEntries("L", AppendEntriesArgs{
		Term: 1, Leader: "L", PrevLogIndex: 0, PrevLogTerm: 2, // log has term 1 at index 0, not 2
	})
	require.False(t, reply.Success)
	require.Equal(t, int64(1), reply.ConflictingTerm)
	require.Equal(t, int64(0), reply.ConflictingFirstIndex)
}

// newStandaloneReplica builds a Raft with a discarding fake transport, for
// tests exercising individual handlers without a running event loop.
func newStandaloneReplica(t *testing.T, id ReplicaID, peers []ReplicaID) *Raft {
	t.Helper()
	net := newFakeNetwork()
	transport := net.newTransport(id)
	for _, p := range peers {
		net.newTransport(p)
	}
	return NewRaft(id, peers, transport, DefaultConfig(), nil, nopLogger())
}
