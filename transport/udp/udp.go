// Package udp implements the concrete C7 transport: one UDP socket per
// replica, JSON-encoded datagrams, fire-and-forget sends. Apart from the
// cmd binaries, it is the one package in this repository that imports
// "net" — the core raft package only ever talks to the raft.Transport
// interface.
package udp

import (
	"net"

	"go.uber.org/zap"

	"raftkv/raft"
)

const maxDatagramSize = 64 * 1024

// Peer pairs a replica id with its UDP address. Broadcast has no entry of
// its own: Send handles raft.BroadcastID by sending to every known peer.
type Peer struct {
	ID   raft.ReplicaID
	Addr *net.UDPAddr
}

// Transport is the udp.Transport implementation of raft.Transport.
type Transport struct {
	conn   *net.UDPConn
	self   raft.ReplicaID
	peers  map[raft.ReplicaID]*net.UDPAddr
	inbox  chan raft.Envelope
	logger *zap.Logger
}

// New binds a UDP socket on port and wires peer addresses. peers maps a
// replica id to its UDP address; it need not include self.
func New(port int, self raft.ReplicaID, peers map[raft.ReplicaID]*net.UDPAddr, logger *zap.Logger) (*Transport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	t := &Transport{
		conn:   conn,
		self:   self,
		peers:  peers,
		inbox:  make(chan raft.Envelope, 256),
		logger: logger.With(zap.String("replica", string(self))),
	}
	go t.readLoop()
	return t, nil
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

// Inbox satisfies raft.Transport.
func (t *Transport) Inbox() <-chan raft.Envelope {
	return t.inbox
}

// Send satisfies raft.Transport: fire-and-forget, matching spec.md §5
// "never block waiting for any single peer" and §7's transient-network
// taxonomy (a write error is logged and swallowed, never surfaced).
func (t *Transport) Send(dst raft.ReplicaID, env raft.Envelope) {
	if dst == raft.BroadcastID {
		for id, addr := range t.peers {
			t.sendTo(id, addr, env)
		}
		return
	}
	addr, ok := t.peers[dst]
	if !ok {
		t.logger.Warn("send to unknown peer id", zap.String("dst", string(dst)))
		return
	}
	t.sendTo(dst, addr, env)
}

func (t *Transport) sendTo(dst raft.ReplicaID, addr *net.UDPAddr, env raft.Envelope) {
	raw, err := raft.EncodeEnvelope(env.Src, dst, env.Leader, env.Type, rawPayload(env.Body))
	if err != nil {
		t.logger.Error("failed to encode outbound envelope", zap.Error(err))
		return
	}
	if _, err := t.conn.WriteToUDP(raw, addr); err != nil {
		t.logger.Warn("transient send failure", zap.String("dst", string(dst)), zap.Error(err))
	}
}

// rawPayload lets Send re-encode an already-JSON payload without decoding
// it into a concrete Go type first.
type rawPayload []byte

func (p rawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	return p, nil
}

func (t *Transport) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			close(t.inbox)
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])

		env, err := raft.ParseEnvelope(raw)
		if err != nil {
			t.logger.Warn("dropping malformed datagram", zap.Error(err))
			continue
		}
		if env.Dst != t.self && env.Dst != raft.BroadcastID {
			continue // not addressed to us; a real NIC wouldn't deliver it either
		}
		t.inbox <- env
	}
}
