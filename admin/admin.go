// Package admin implements the read-only observability surface (C8): a
// gin HTTP server exposing replica status, the log, the current state
// machine, and Prometheus metrics. Nothing in this package may mutate
// replica state; every handler goes through raft.Raft's read-only
// accessors (Snapshot, LogEntries, Get).
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"raftkv/raft"
)

// Replica is the subset of *raft.Raft the admin surface depends on,
// narrowed to its read-only accessors so this package cannot be tempted
// to reach into replica state directly.
type Replica interface {
	Snapshot() raft.StatusSnapshot
	LogEntries() []raft.LogEntry
	Get(key string) string
}

// Server wraps a gin.Engine bound to one replica's read-only views.
type Server struct {
	engine  *gin.Engine
	replica Replica
	logger  *zap.Logger
}

// New builds the admin HTTP server. It does not start listening; call
// Run to serve on addr.
func New(replica Replica, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, replica: replica, logger: logger}
	engine.GET("/status", s.handleStatus)
	engine.GET("/log", s.handleLog)
	engine.GET("/kv/:key", s.handleGet)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Run blocks serving on addr until the process exits or an unrecoverable
// listener error occurs.
func (s *Server) Run(addr string) error {
	s.logger.Info("admin server listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.replica.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"id":                  snap.ID,
		"role":                snap.Role.String(),
		"term":                snap.Term,
		"leader":              snap.Leader,
		"commitIndex":         snap.CommitIndex,
		"lastApplied":         snap.LastApplied,
		"logLength":           snap.LogLength,
		"inMinorityPartition": snap.InMinorityPartition,
	})
}

// logEntryView is the JSON-facing shape of a raft.LogEntry; index is
// computed by position since LogEntry itself carries no index field.
type logEntryView struct {
	Index  int64  `json:"index"`
	Term   uint64 `json:"term"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	Client string `json:"client"`
	MID    string `json:"mid"`
}

func (s *Server) handleLog(c *gin.Context) {
	entries := s.replica.LogEntries()
	out := make([]logEntryView, len(entries))
	for i, e := range entries {
		out[i] = logEntryView{
			Index: int64(i), Term: e.Term, Key: e.Key, Value: e.Value,
			Client: string(e.Client), MID: e.MID,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGet(c *gin.Context) {
	key := c.Param("key")
	c.JSON(http.StatusOK, gin.H{"key": key, "value": s.replica.Get(key)})
}
