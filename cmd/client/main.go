// Command client is a minimal command-line client for exercising a
// raftkv cluster: it sends one get or put over UDP and prints the reply,
// following any redirect it receives until a leader answers or a small
// retry budget is exhausted.
//
// Usage:
//
//	client <replica-id=host:port>... get <key>
//	client <replica-id=host:port>... put <key> <value>
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"raftkv/raft"
)

const requestTimeout = 200 * time.Millisecond
const maxAttempts = 20

func main() {
	if len(os.Args) < 4 {
		usage()
	}

	var op, key, value string
	var replicaArgs []string
	switch os.Args[len(os.Args)-2] {
	case "get":
		op, key = "get", os.Args[len(os.Args)-1]
		replicaArgs = os.Args[1 : len(os.Args)-2]
	default:
		if len(os.Args) < 5 {
			usage()
		}
		op, key, value = "put", os.Args[len(os.Args)-2], os.Args[len(os.Args)-1]
		replicaArgs = os.Args[1 : len(os.Args)-3]
	}
	if len(replicaArgs) == 0 {
		usage()
	}

	replicas := make(map[raft.ReplicaID]*net.UDPAddr)
	var order []raft.ReplicaID
	for _, spec := range replicaArgs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 {
			usage()
		}
		addr, err := net.ResolveUDPAddr("udp", parts[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid address %q: %v\n", parts[1], err)
			os.Exit(2)
		}
		id := raft.ReplicaID(parts[0])
		replicas[id] = addr
		order = append(order, id)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open socket: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	mid := uuid.NewString()
	req := raft.ClientRequest{MID: mid, Key: key, Value: value}
	msgType := raft.MsgGet
	if op == "put" {
		msgType = raft.MsgPut
	}

	target := order[0]
	for attempt := 0; attempt < maxAttempts; attempt++ {
		addr := replicas[target]

		raw, err := raft.EncodeEnvelope("client", target, raft.BroadcastID, msgType, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
			os.Exit(1)
		}
		if _, err := conn.WriteToUDP(raw, addr); err != nil {
			target = nextTarget(order, target)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(requestTimeout))
		buf := make([]byte, 64*1024)
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			target = nextTarget(order, target)
			continue
		}

		env, err := raft.ParseEnvelope(buf[:n])
		if err != nil {
			target = nextTarget(order, target)
			continue
		}

		var reply raft.ClientReply
		_ = json.Unmarshal(env.Body, &reply)

		switch env.Type {
		case raft.MsgOK:
			if op == "get" {
				fmt.Println(reply.Value)
			} else {
				fmt.Println("ok")
			}
			return
		case raft.MsgFail:
			fmt.Fprintln(os.Stderr, "request failed: replica is in a minority partition, retrying")
			target = nextTarget(order, target)
		case raft.MsgRedirect:
			if addr, ok := replicas[env.Leader]; ok && addr != nil {
				target = env.Leader
			} else {
				target = nextTarget(order, target)
			}
		default:
			target = nextTarget(order, target)
		}
	}

	fmt.Fprintln(os.Stderr, "no replica answered after retrying")
	os.Exit(1)
}

func nextTarget(order []raft.ReplicaID, current raft.ReplicaID) raft.ReplicaID {
	for i, id := range order {
		if id == current {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: client <replica-id=host:port>... get <key>  |  client <replica-id=host:port>... put <key> <value>")
	os.Exit(2)
}
