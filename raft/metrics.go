package raft

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the admin surface (C8) exposes.
// The replication core only ever increments/sets these; it never reads them
// back, keeping the hot path free of any observability-induced branching.
type Metrics struct {
	Term                    prometheus.Gauge
	Role                    prometheus.Gauge
	CommitIndex             prometheus.Gauge
	LogLength               prometheus.Gauge
	ElectionsStarted        prometheus.Counter
	LeaderChanges           prometheus.Counter
	AppendEntriesSent       prometheus.Counter
	AppendEntriesRejected   prometheus.Counter
	ClientRequests          *prometheus.CounterVec
	MinorityPartitionEvents prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set on reg, tagging every
// collector with the owning replica's id so a shared registry (e.g. in
// tests that spin up several replicas) doesn't collide.
func NewMetrics(reg prometheus.Registerer, id ReplicaID) *Metrics {
	labels := prometheus.Labels{"replica": string(id)}
	m := &Metrics{
		Term: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_term", Help: "current term", ConstLabels: labels,
		}),
		Role: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_role", Help: "0=follower 1=candidate 2=leader", ConstLabels: labels,
		}),
		CommitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_commit_index", Help: "highest committed log index", ConstLabels: labels,
		}),
		LogLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_log_length", Help: "number of entries in the log", ConstLabels: labels,
		}),
		ElectionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raft_elections_started_total", Help: "elections this replica has started", ConstLabels: labels,
		}),
		LeaderChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raft_leader_changes_total", Help: "times this replica recognized a new leader", ConstLabels: labels,
		}),
		AppendEntriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raft_append_entries_sent_total", Help: "AppendEntries RPCs sent", ConstLabels: labels,
		}),
		AppendEntriesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raft_append_entries_rejected_total", Help: "AppendEntries RPCs rejected by a follower", ConstLabels: labels,
		}),
		ClientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raft_client_requests_total", Help: "client requests handled", ConstLabels: labels,
		}, []string{"type", "outcome"}),
		MinorityPartitionEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raft_minority_partition_total", Help: "times this replica declared itself a minority-partitioned leader", ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Term, m.Role, m.CommitIndex, m.LogLength, m.ElectionsStarted,
		m.LeaderChanges, m.AppendEntriesSent, m.AppendEntriesRejected,
		m.ClientRequests, m.MinorityPartitionEvents,
	} {
		_ = reg.Register(c)
	}

	return m
}
