package raft

import "encoding/json"

// MessageType tags every wire message per spec.md §6.
type MessageType string

const (
	MsgGet                   MessageType = "get"
	MsgPut                   MessageType = "put"
	MsgOK                    MessageType = "ok"
	MsgFail                  MessageType = "fail"
	MsgRedirect              MessageType = "redirect"
	MsgHello                 MessageType = "hello"
	MsgRequestVote           MessageType = "RequestVote"
	MsgRequestVoteResponse   MessageType = "RequestVoteResponse"
	MsgAppendEntries         MessageType = "AppendEntries"
	MsgAppendEntriesResponse MessageType = "AppendEntriesResponse"
)

// Envelope is the decoded form of a single UDP datagram. The wire format is
// one flat JSON object per spec.md §6 (header fields and payload fields are
// siblings, not nested), so Body holds the entire raw datagram: handlers
// re-unmarshal it into whichever typed payload their message Type implies,
// and encoding/json silently ignores the header fields they don't declare.
type Envelope struct {
	Src    ReplicaID       `json:"src"`
	Dst    ReplicaID       `json:"dst"`
	Leader ReplicaID       `json:"leader"`
	Type   MessageType     `json:"type"`
	Body   json.RawMessage `json:"-"`
}

// ParseEnvelope decodes a single datagram's header, keeping the full raw
// bytes in Body for a second, type-directed decode.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	env.Body = raw
	return env, nil
}

// EncodeEnvelope flattens a header plus a typed payload into one JSON
// object, matching the wire shape ParseEnvelope expects.
func EncodeEnvelope(src, dst, leader ReplicaID, typ MessageType, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadBytes, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	fields["src"], _ = json.Marshal(src)
	fields["dst"], _ = json.Marshal(dst)
	fields["leader"], _ = json.Marshal(leader)
	fields["type"], _ = json.Marshal(typ)
	return json.Marshal(fields)
}

// ClientRequest is the payload of a get/put datagram from a client.
type ClientRequest struct {
	MID   string `json:"MID"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// ClientReply is the payload of an ok/fail/redirect datagram to a client.
type ClientReply struct {
	MID   string `json:"MID"`
	Value string `json:"value,omitempty"`
}

// RequestVoteArgs is the RequestVote RPC payload.
type RequestVoteArgs struct {
	Term         uint64    `json:"term"`
	CandidateID  ReplicaID `json:"candidateId"`
	LastLogIndex int64     `json:"lastLogIndex"`
	LastLogTerm  uint64    `json:"lastLogTerm"`
}

// RequestVoteReply is the RequestVoteResponse RPC payload.
type RequestVoteReply struct {
	Term    uint64 `json:"term"`
	Granted bool   `json:"granted"`
}

// WireEntry is the on-the-wire form of a LogEntry.
type WireEntry struct {
	Term   uint64    `json:"term"`
	Key    string    `json:"key"`
	Value  string    `json:"value"`
	Client ReplicaID `json:"client"`
	MID    string    `json:"mid"`
}

// AppendEntriesArgs is the AppendEntries RPC payload. An empty Entries is a
// heartbeat.
type AppendEntriesArgs struct {
	Term         uint64      `json:"term"`
	Leader       ReplicaID   `json:"leader"`
	PrevLogIndex int64       `json:"prevLogIndex"`
	PrevLogTerm  uint64      `json:"prevLogTerm"`
	Entries      []WireEntry `json:"entries"`
	LeaderCommit int64       `json:"leaderCommit"`
}

// AppendEntriesReply is the AppendEntriesResponse RPC payload.
type AppendEntriesReply struct {
	Term                  uint64 `json:"term"`
	Success               bool   `json:"success"`
	MatchIndex            int64  `json:"matchIndex"`
	ConflictingTerm       int64  `json:"conflictingTerm,omitempty"`
	ConflictingFirstIndex int64  `json:"conflictingFirstIndex,omitempty"`
	HeartbeatOnly         bool   `json:"heartbeatOnly,omitempty"`
}

func entryToWire(e LogEntry) WireEntry {
	return WireEntry{Term: e.Term, Key: e.Key, Value: e.Value, Client: e.Client, MID: e.MID}
}

func entryFromWire(w WireEntry) LogEntry {
	return LogEntry{Term: w.Term, Key: w.Key, Value: w.Value, Client: w.Client, MID: w.MID}
}

func entriesToWire(es []LogEntry) []WireEntry {
	out := make([]WireEntry, len(es))
	for i, e := range es {
		out[i] = entryToWire(e)
	}
	return out
}

func entriesFromWire(ws []WireEntry) []LogEntry {
	out := make([]LogEntry, len(ws))
	for i, w := range ws {
		out[i] = entryFromWire(w)
	}
	return out
}
