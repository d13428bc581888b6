package raft

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// fakeTransport is an in-memory Transport backed by Go channels, wired
// peer-to-peer in the test process. It stands in for the real C7 so
// election/replication/partition scenarios run deterministically without
// real sockets.
type fakeTransport struct {
	id  ReplicaID
	net *fakeNetwork

	mu      sync.Mutex
	inbox   chan Envelope
	dropAll bool // simulates a full network partition for this replica
}

func (t *fakeTransport) Send(dst ReplicaID, env Envelope) {
	t.mu.Lock()
	dropped := t.dropAll
	t.mu.Unlock()
	if dropped {
		return
	}
	t.net.deliver(dst, env)
}

func (t *fakeTransport) Inbox() <-chan Envelope {
	return t.inbox
}

func (t *fakeTransport) setPartitioned(p bool) {
	t.mu.Lock()
	t.dropAll = p
	t.mu.Unlock()
}

// fakeNetwork holds every replica's inbox so Send can route by destination,
// including BroadcastID fan-out.
type fakeNetwork struct {
	mu        sync.Mutex
	transports map[ReplicaID]*fakeTransport
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{transports: make(map[ReplicaID]*fakeTransport)}
}

func (n *fakeNetwork) newTransport(id ReplicaID) *fakeTransport {
	t := &fakeTransport{id: id, net: n, inbox: make(chan Envelope, 256)}
	n.mu.Lock()
	n.transports[id] = t
	n.mu.Unlock()
	return t
}

func (n *fakeNetwork) deliver(dst ReplicaID, env Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if dst == BroadcastID {
		for id, t := range n.transports {
			if id == env.Src {
				continue
			}
			t.mu.Lock()
			dropped := t.dropAll
			t.mu.Unlock()
			if dropped {
				continue
			}
			select {
			case t.inbox <- env:
			default:
			}
		}
		return
	}
	t, ok := n.transports[dst]
	if !ok {
		return
	}
	t.mu.Lock()
	dropped := t.dropAll
	t.mu.Unlock()
	if dropped {
		return
	}
	select {
	case t.inbox <- env:
	default:
	}
}

// testCluster boots n in-process replicas over a fakeNetwork.
type testCluster struct {
	replicas map[ReplicaID]*Raft
	order    []ReplicaID
	net      *fakeNetwork
	client   *fakeTransport
	cancel   context.CancelFunc
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	logger := zap.NewNop()
	net := newFakeNetwork()
	config := DefaultConfig()
	config.ElectionTimeoutMin = 20 * time.Millisecond
	config.ElectionTimeoutMax = 40 * time.Millisecond
	config.HeartbeatInterval = 5 * time.Millisecond
	config.BatchFlushInterval = 3 * time.Millisecond
	config.QuorumWindow = 60 * time.Millisecond

	ids := make([]ReplicaID, n)
	for i := 0; i < n; i++ {
		ids[i] = ReplicaID(string(rune('A' + i)))
	}

	replicas := make(map[ReplicaID]*Raft, n)
	reg := prometheus.NewRegistry()
	for _, id := range ids {
		peers := make([]ReplicaID, 0, n-1)
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		transport := net.newTransport(id)
		metrics := NewMetrics(reg, id)
		replicas[id] = NewRaft(id, peers, transport, config, metrics, logger)
	}

	client := net.newTransport(ReplicaID("client"))

	ctx, cancel := context.WithCancel(context.Background())
	for _, r := range replicas {
		go r.Run(ctx)
	}

	return &testCluster{replicas: replicas, order: ids, net: net, client: client, cancel: cancel}
}

// sendClientRequest injects a client envelope directly onto the network,
// bypassing any replica's owning goroutine (a real client is an external
// process talking only through the wire, never through Go method calls).
func (c *testCluster) sendClientRequest(dst ReplicaID, typ MessageType, req ClientRequest) {
	body, err := json.Marshal(req)
	if err != nil {
		panic(err)
	}
	c.net.deliver(dst, Envelope{Src: "client", Dst: dst, Leader: BroadcastID, Type: typ, Body: body})
}

// awaitClientReply blocks on the client's inbox for one reply envelope.
// The replicas' startup hello broadcasts also reach the client's inbox
// through the fake network's fan-out; they are not replies and are skipped.
func (c *testCluster) awaitClientReply(t *testing.T, timeout time.Duration) Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case env := <-c.client.Inbox():
			if env.Type == MsgHello {
				continue
			}
			return env
		case <-deadline:
			t.Fatal("timed out waiting for a client reply")
			return Envelope{}
		}
	}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func decodeBody(env Envelope, v interface{}) error {
	return json.Unmarshal(env.Body, v)
}

func (c *testCluster) stop() {
	c.cancel()
}

func (c *testCluster) transportOf(t *testing.T, id ReplicaID) *fakeTransport {
	t.Helper()
	return c.replicas[id].transport.(*fakeTransport)
}

// awaitLeader polls until exactly one replica reports Leader, or fails.
func awaitLeader(t *testing.T, c *testCluster, timeout time.Duration) ReplicaID {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var leader ReplicaID
		found := 0
		for id, r := range c.replicas {
			if r.Snapshot().Role == Leader {
				leader = id
				found++
			}
		}
		if found == 1 {
			return leader
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no single leader emerged within %s", timeout)
	return ""
}
