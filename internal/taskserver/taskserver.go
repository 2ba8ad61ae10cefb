// Package taskserver implements the worker process's per-connection
// session handler: the state machine that answers SEND_TASK, SEND_HEART,
// READ_RESULT, TERMINATE, and QUERY_METRICS_* sessions opened by the
// coordinator, and the idle timer that self-terminates a worker nobody is
// using anymore.
package taskserver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spits-runtime/spits/internal/metrics"
	"github.com/spits-runtime/spits/internal/wire"
	"github.com/spits-runtime/spits/internal/workerpool"
	"github.com/spits-runtime/spits/pkg/types"
)

// Config holds the per-process tunables the task server needs.
type Config struct {
	JobID          types.JobID
	ConnectionTimeout time.Duration
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration
	IdleTimeout    time.Duration
}

// Server is the worker's task server: it owns the listener accept loop,
// the idle timer, and the per-connection verb dispatch, all talking to a
// single shared workerpool.Pool.
type Server struct {
	cfg  Config
	pool *workerpool.Pool
	reg  *metrics.Registry
	log  *slog.Logger

	ln *wire.Listener

	lastActivity atomic.Int64 // unix nanos
	shouldExit   chan struct{}
	exitOnce     sync.Once
}

// New wires a Server around an already-started pool.
func New(cfg Config, pool *workerpool.Pool, reg *metrics.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		pool:       pool,
		reg:        reg,
		log:        log,
		shouldExit: make(chan struct{}),
	}
	s.touch()
	return s
}

// Listen binds addr (port 0 picks an ephemeral port, the usual worker
// configuration) and wires the accept loop to handleSession.
func (s *Server) Listen(addr string) error {
	ln, err := wire.Listen(addr, s.handleSession, s.log)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until Close is called.
func (s *Server) Serve() error {
	return s.ln.Serve()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// ShouldExit is closed once the idle timer decides this worker has had no
// activity for IdleTimeout while its pool is empty, per the self-kill
// predicate in the specification's boundary cases.
func (s *Server) ShouldExit() <-chan struct{} {
	return s.shouldExit
}

func (s *Server) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Server) idleFor() time.Duration {
	last := time.Unix(0, s.lastActivity.Load())
	return time.Since(last)
}

func (s *Server) triggerExit() {
	s.exitOnce.Do(func() { close(s.shouldExit) })
}

// RunIdleTimer is the worker's single idle-timer goroutine: it closes
// ShouldExit once the pool has been empty and no session has touched the
// server for IdleTimeout. A worker with IdleTimeout <= 0 never self-exits.
func (s *Server) RunIdleTimer(ctx context.Context) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.pool.Empty() && s.idleFor() >= s.cfg.IdleTimeout {
				s.triggerExit()
				return
			}
		}
	}
}

func (s *Server) handleSession(ep *wire.Endpoint) {
	defer ep.Close()
	s.touch()

	peerID, matched, err := ep.Handshake(string(s.cfg.JobID), s.cfg.ConnectionTimeout)
	if err != nil {
		s.log.Debug("taskserver: handshake failed", "peer", ep.RemoteAddr(), "err", err)
		return
	}
	if !matched {
		s.log.Error("taskserver: jobid mismatch, closing session", "peer_jobid", peerID)
		return
	}

	for {
		verbRaw, err := ep.ReadInt64(s.cfg.ReceiveTimeout)
		if err != nil {
			return
		}
		s.touch()

		switch wire.Verb(verbRaw) {
		case wire.Terminate:
			s.log.Info("taskserver: received TERMINATE")
			s.triggerExit()
			return
		case wire.SendHeart:
			if err := ep.WriteInt64(int64(wire.SendMore), s.cfg.SendTimeout); err != nil {
				return
			}
		case wire.SendTask:
			if !s.handleSendTask(ep) {
				return
			}
		case wire.ReadResult:
			if !s.handleReadResult(ep) {
				return
			}
		case wire.QueryMetricsList:
			if !s.handleQueryMetricsList(ep) {
				return
			}
		case wire.QueryMetricsLast:
			if !s.handleQueryMetricsLast(ep) {
				return
			}
		case wire.QueryMetricsHistory:
			if !s.handleQueryMetricsHistory(ep) {
				return
			}
		default:
			s.log.Error("taskserver: unknown verb", "verb", wire.Verb(verbRaw))
			ep.WriteInt64(int64(wire.ResModuleError), s.cfg.SendTimeout)
			return
		}
	}
}

// handleSendTask admits one task into the pool, replying SEND_MORE if it
// was admitted, SEND_FULL if the pool was already at capacity, or
// SEND_RJCT if the queue admission lost a race against a concurrent
// producer (relevant only to a future multi-coordinator deployment; a
// single coordinator never actually races itself).
func (s *Server) handleSendTask(ep *wire.Endpoint) bool {
	taskIDRaw, err := ep.ReadInt64(s.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	runIDRaw, err := ep.ReadInt64(s.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	payload, err := ep.Read(s.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}

	if s.pool.Full() {
		return ep.WriteInt64(int64(wire.SendFull), s.cfg.SendTimeout) == nil
	}

	id := types.TaskID(taskIDRaw)
	runID := types.RunID(runIDRaw)
	if !s.pool.Put(id, runID, payload) {
		return ep.WriteInt64(int64(wire.SendRjct), s.cfg.SendTimeout) == nil
	}
	return ep.WriteInt64(int64(wire.SendMore), s.cfg.SendTimeout) == nil
}

// handleReadResult drains completed results from the pool, replying
// READ_RESULT followed by the result fields for each one, then READ_EMPTY
// once nothing is available. A result is only considered consumed once the
// whole reply has been written and the coordinator has acknowledged it with
// the next READ_RESULT; a write failure or a missing ACK requeues it.
func (s *Server) handleReadResult(ep *wire.Endpoint) bool {
	for {
		result, ok := s.pool.TryResult()
		if !ok {
			return ep.WriteInt64(int64(wire.ReadEmpty), s.cfg.SendTimeout) == nil
		}
		if !s.sendResult(ep, result) {
			return false
		}
		ack, err := ep.ReadInt64(s.cfg.ReceiveTimeout)
		if err != nil || wire.Verb(ack) != wire.ReadResult {
			s.pool.Requeue(result)
			return false
		}
		s.touch()
	}
}

func (s *Server) sendResult(ep *wire.Endpoint, result types.Result) bool {
	if err := ep.WriteInt64(int64(wire.ReadResult), s.cfg.SendTimeout); err != nil {
		s.pool.Requeue(result)
		return false
	}
	if err := ep.WriteInt64(int64(result.TaskID), s.cfg.SendTimeout); err != nil {
		s.pool.Requeue(result)
		return false
	}
	if err := ep.WriteInt64(int64(result.RunID), s.cfg.SendTimeout); err != nil {
		s.pool.Requeue(result)
		return false
	}
	if err := ep.WriteInt64(result.Status, s.cfg.SendTimeout); err != nil {
		s.pool.Requeue(result)
		return false
	}
	if err := ep.Write(result.Payload, s.cfg.SendTimeout); err != nil {
		s.pool.Requeue(result)
		return false
	}
	return true
}

func (s *Server) handleQueryMetricsList(ep *wire.Endpoint) bool {
	if s.reg == nil {
		return ep.Write([]byte(`{"metrics":[]}`), s.cfg.SendTimeout) == nil
	}
	data, err := s.reg.ListJSON()
	if err != nil {
		return ep.WriteInt64(int64(wire.ResModuleError), s.cfg.SendTimeout) == nil
	}
	return ep.Write(data, s.cfg.SendTimeout) == nil
}

func (s *Server) handleQueryMetricsLast(ep *wire.Endpoint) bool {
	name, err := ep.ReadString(s.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	if s.reg == nil {
		return ep.Write([]byte(`{}`), s.cfg.SendTimeout) == nil
	}
	data, err := s.reg.LastValuesJSON([]string{name})
	if err != nil {
		return ep.WriteInt64(int64(wire.ResModuleError), s.cfg.SendTimeout) == nil
	}
	return ep.Write(data, s.cfg.SendTimeout) == nil
}

func (s *Server) handleQueryMetricsHistory(ep *wire.Endpoint) bool {
	name, err := ep.ReadString(s.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	if s.reg == nil {
		return ep.Write([]byte(`{"name":"","samples":[]}`), s.cfg.SendTimeout) == nil
	}
	data, err := s.reg.HistoryJSON(name)
	if err != nil {
		return ep.WriteInt64(int64(wire.ResModuleError), s.cfg.SendTimeout) == nil
	}
	return ep.Write(data, s.cfg.SendTimeout) == nil
}
