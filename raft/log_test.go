package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRaftLog_MatchesAtEmptyPrefix(t *testing.T) {
	l := newRaftLog()
	require.True(t, l.matchesAt(noIndex, 0))
	require.False(t, l.matchesAt(0, 1))
}

func TestRaftLog_TruncateFromDropsConflictingSuffix(t *testing.T) {
	l := newRaftLog()
	l.append(LogEntry{Term: 1, Key: "a", Value: "1"})
	l.append(LogEntry{Term: 1, Key: "b", Value: "2"})
	l.append(LogEntry{Term: 2, Key: "c", Value: "3"})

	l.truncateFrom(1)
	require.Equal(t, int64(0), l.lastIndex())
	require.Equal(t, uint64(1), l.lastTerm())
}

func TestRaftLog_ApplyUpToIsIdempotentPastLastApplied(t *testing.T) {
	l := newRaftLog()
	l.append(LogEntry{Term: 1, Key: "a", Value: "1"})
	l.append(LogEntry{Term: 1, Key: "a", Value: "2"})

	applied := l.applyUpTo(1)
	require.Equal(t, []int64{0, 1}, applied)
	require.Equal(t, "2", l.get("a"))

	// Re-applying the same commit point does nothing further.
	applied = l.applyUpTo(1)
	require.Empty(t, applied)
}

func TestRaftLog_FirstAndLastIndexOfTerm(t *testing.T) {
	l := newRaftLog()
	l.append(LogEntry{Term: 1})
	l.append(LogEntry{Term: 1})
	l.append(LogEntry{Term: 2})

	require.Equal(t, int64(0), l.firstIndexOfTerm(1))
	require.Equal(t, int64(1), l.lastIndexOfTerm(1))
	require.Equal(t, noIndex, l.firstIndexOfTerm(9))
}
