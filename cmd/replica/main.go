// Command replica runs one raftkv replica: the single-threaded core bound
// to a real UDP transport and a read-only admin HTTP surface.
//
// Usage:
//
//	replica [-admin-addr host:port] <udp-port> <own-id> <peer-id=host:port>...
//
// Only the parameters the core consumes are positional, matching the CLI
// surface named in the specification; -admin-addr is the one addition this
// binary needs to also serve C8 and is parsed with the standard flag
// package, not a third-party CLI framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"raftkv/admin"
	"raftkv/raft"
	"raftkv/transport/udp"
)

func main() {
	adminAddr := flag.String("admin-addr", ":8080", "address for the read-only admin HTTP surface")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: replica [-admin-addr host:port] <udp-port> <own-id> <peer-id=host:port>...")
		os.Exit(2)
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid udp-port %q: %v\n", args[0], err)
		os.Exit(2)
	}
	ownID := raft.ReplicaID(args[1])

	peerAddrs := make(map[raft.ReplicaID]*net.UDPAddr)
	var peerIDs []raft.ReplicaID
	for _, spec := range args[2:] {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "invalid peer spec %q, want id=host:port\n", spec)
			os.Exit(2)
		}
		addr, err := net.ResolveUDPAddr("udp", parts[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid peer address %q: %v\n", parts[1], err)
			os.Exit(2)
		}
		id := raft.ReplicaID(parts[0])
		peerAddrs[id] = addr
		peerIDs = append(peerIDs, id)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := raft.DefaultConfig()
	metrics := raft.NewMetrics(prometheus.DefaultRegisterer, ownID)

	transport, err := udp.New(port, ownID, peerAddrs, logger)
	if err != nil {
		logger.Fatal("failed to bind udp transport", zap.Error(err))
	}
	defer transport.Close()

	r := raft.NewRaft(ownID, peerIDs, transport, config, metrics, logger)

	adminServer := admin.New(r, logger)
	go func() {
		if err := adminServer.Run(*adminAddr); err != nil {
			logger.Error("admin server exited", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("replica starting",
		zap.String("id", string(ownID)), zap.Int("udpPort", port), zap.String("adminAddr", *adminAddr))
	r.Run(ctx)
	logger.Info("replica stopped")
}
