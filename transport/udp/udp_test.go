package udp

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"raftkv/raft"
)

func TestTransport_SendAndReceiveRoundTrip(t *testing.T) {
	logger := zap.NewNop()

	a, err := New(0, "A", map[raft.ReplicaID]*net.UDPAddr{}, logger)
	require.NoError(t, err)
	defer a.Close()

	b, err := New(0, "B", map[raft.ReplicaID]*net.UDPAddr{}, logger)
	require.NoError(t, err)
	defer b.Close()

	aAddr := a.conn.LocalAddr().(*net.UDPAddr)
	b.peers["A"] = aAddr
	bAddr := b.conn.LocalAddr().(*net.UDPAddr)
	a.peers["B"] = bAddr

	args := raft.AppendEntriesArgs{Term: 1, Leader: "B", PrevLogIndex: -1, LeaderCommit: -1}
	body, err := json.Marshal(args)
	require.NoError(t, err)

	b.Send("A", raft.Envelope{Src: "B", Dst: "A", Leader: "B", Type: raft.MsgAppendEntries, Body: body})

	select {
	case env := <-a.Inbox():
		require.Equal(t, raft.MsgAppendEntries, env.Type)
		require.Equal(t, raft.ReplicaID("B"), env.Src)
		var got raft.AppendEntriesArgs
		require.NoError(t, json.Unmarshal(env.Body, &got))
		require.Equal(t, args.Term, got.Term)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestTransport_MalformedDatagramIsDroppedNotDelivered(t *testing.T) {
	logger := zap.NewNop()
	a, err := New(0, "A", map[raft.ReplicaID]*net.UDPAddr{}, logger)
	require.NoError(t, err)
	defer a.Close()

	conn, err := net.DialUDP("udp", nil, a.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json"))
	require.NoError(t, err)

	select {
	case env := <-a.Inbox():
		t.Fatalf("expected no delivery for malformed datagram, got %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}
