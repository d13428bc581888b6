package raft

// Transport is the narrow seam between the single-threaded core (C1-C6)
// and the concrete network (C7). Grounded on the teacher's Peer interface,
// generalized from a per-peer gRPC stub to a single fire-and-forget send
// plus one shared inbox, matching spec.md §5's "never block waiting for any
// single peer" and §1's "unreliable, unordered, possibly-duplicating
// datagram channel" framing.
type Transport interface {
	// Send addresses an Envelope to dst (or BroadcastID) and returns
	// immediately; delivery is not guaranteed, ordered, or deduplicated.
	Send(dst ReplicaID, env Envelope)

	// Inbox delivers every Envelope addressed to this replica (or
	// broadcast) as it arrives. The event loop (C6) is the only reader.
	Inbox() <-chan Envelope
}
