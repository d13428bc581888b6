package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPartition_IsolatedLeaderStepsDownAndReelects(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.stop()
	leaderID := awaitLeader(t, c, 2*time.Second)

	c.transportOf(t, leaderID).setPartitioned(true)

	require.Eventually(t, func() bool {
		for id, r := range c.replicas {
			if id != leaderID && r.Snapshot().Role == Leader {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond, "majority side never re-elected a leader")

	newLeader := awaitLeader(t, c, time.Second)
	require.NotEqual(t, leaderID, newLeader)
}

func TestPartition_QuorumWindowClearsOnMajorityResponse(t *testing.T) {
	leader := newStandaloneReplica(t, "L", []ReplicaID{"F1", "F2"})
	leader.role = Leader
	leader.quorumWindowStart = time.Now().Add(-time.Hour)
	leader.followersResponded["F1"] = true

	leader.checkQuorumWindow(time.Now())
	require.False(t, leader.inMinorityPartition)
	require.Empty(t, leader.followersResponded)
}

func TestPartition_QuorumWindowExpiryWithoutMajorityDeclaresMinority(t *testing.T) {
	leader := newStandaloneReplica(t, "L", []ReplicaID{"F1", "F2"})
	leader.role = Leader
	leader.quorumWindowStart = time.Now().Add(-time.Hour)

	leader.checkQuorumWindow(time.Now())
	require.True(t, leader.inMinorityPartition)
}
