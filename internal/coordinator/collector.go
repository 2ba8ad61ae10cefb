// File: collector.go
// Purpose: The single collector goroutine — opens PULL sessions against
// every known worker, drains results, and routes each through
// taskstate.Store and committer_commit_pit.

package coordinator

import (
	"context"
	"time"

	"github.com/spits-runtime/spits/internal/discovery"
	"github.com/spits-runtime/spits/internal/eventlog"
	"github.com/spits-runtime/spits/internal/taskstate"
	"github.com/spits-runtime/spits/internal/wire"
	"github.com/spits-runtime/spits/pkg/types"
)

func (c *Coordinator) collectorLoop(ctx context.Context) {
	defer c.wg.Done()

	for c.isRunning() {
		if ctx.Err() != nil {
			return
		}

		endpoints, err := discovery.Load(c.deps.WorkDir)
		if err != nil {
			c.log.Error("collector: discovery load failed", "err", err)
			c.sleepRecvBackoff()
			continue
		}

		drainedAny := false
		for _, ep := range endpoints {
			if !c.isRunning() {
				return
			}
			n := c.pullSession(ep)
			if n > 0 {
				drainedAny = true
			}
		}

		if !drainedAny {
			c.sleepRecvBackoff()
		}

		if c.store.Done() {
			return
		}
	}
}

func (c *Coordinator) sleepRecvBackoff() {
	select {
	case <-time.After(c.cfg.ReceiveBackoff):
	case <-c.stopCh:
	}
}

// pullSession opens one PULL session against ep and drains every result it
// currently holds, routing each one through the pending/completion state
// and, on acceptance, committer_commit_pit. It returns the number of
// results processed.
func (c *Coordinator) pullSession(ep types.Endpoint) int {
	conn, err := wire.Dial(ep.Addr(), c.cfg.ConnectionTimeout)
	if err != nil {
		c.log.Debug("pull: dial failed", "endpoint", ep, "err", err)
		return 0
	}
	defer conn.Close()

	_, matched, err := conn.Handshake(c.cfg.JobID, c.cfg.ConnectionTimeout)
	if err != nil {
		c.log.Debug("pull: handshake failed", "endpoint", ep, "err", err)
		return 0
	}
	if !matched {
		c.log.Error("pull: jobid mismatch, closing session", "endpoint", ep)
		return 0
	}

	drained := 0
	for {
		if err := conn.WriteInt64(int64(wire.ReadResult), c.cfg.SendTimeout); err != nil {
			return drained
		}

		reply, err := conn.ReadInt64(c.cfg.ReceiveTimeout)
		if err != nil {
			return drained
		}

		switch wire.Verb(reply) {
		case wire.ReadEmpty:
			return drained
		case wire.ReadResult:
			if !c.receiveOneResult(conn, ep) {
				return drained
			}
			drained++
		default:
			c.log.Error("pull: unexpected reply verb", "verb", wire.Verb(reply), "endpoint", ep)
			return drained
		}
	}
}

func (c *Coordinator) receiveOneResult(conn *wire.Endpoint, ep types.Endpoint) bool {
	taskIDRaw, err := conn.ReadInt64(c.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	runIDRaw, err := conn.ReadInt64(c.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	status, err := conn.ReadInt64(c.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}
	payload, err := conn.Read(c.cfg.ReceiveTimeout)
	if err != nil {
		return false
	}

	id := types.TaskID(taskIDRaw)
	runID := types.RunID(runIDRaw)
	if runID != c.runID {
		// A result from a prior or future run: the worker was dispatched
		// under a run that no longer matches the coordinator's current
		// one. Discard without touching the pending/completion maps.
		c.log.Debug("collector: stale-run result discarded", "taskid", id, "got_run", runID, "want_run", c.runID)
		if c.metrics != nil {
			c.metrics.RecordDiscarded()
		}
		return true
	}

	c.routeResult(id, status, payload, ep)
	return true
}

// routeResult applies the specification's duplicate-suppression and
// commit rules to one received result.
func (c *Coordinator) routeResult(id types.TaskID, status int64, payload []byte, ep types.Endpoint) {
	switch c.store.Accept(id) {
	case taskstate.ResultDuplicate:
		c.log.Debug("collector: duplicate result discarded", "taskid", id, "endpoint", ep)
		if c.metrics != nil {
			c.metrics.RecordDiscarded()
		}
		if c.evlog != nil {
			c.evlog.Append(eventlog.EventDiscarded, uint64(id), uint32(c.runID), status, "duplicate")
		}
		return
	case taskstate.ResultUnknownTask:
		c.log.Debug("collector: result for unknown taskid discarded", "taskid", id, "endpoint", ep)
		if c.metrics != nil {
			c.metrics.RecordDiscarded()
		}
		if c.evlog != nil {
			c.evlog.Append(eventlog.EventDiscarded, uint64(id), uint32(c.runID), status, "unknown-task")
		}
		return
	}

	if status != 0 && c.metrics != nil {
		c.metrics.RecordResultError()
	}

	if c.deps.Committer == nil {
		// No committer loaded: treat as committed with no side effects,
		// still removing the task from pending so the run can finish.
		latency := c.store.Commit(id, status, 0)
		c.recordCommitted(id, status, latency)
		return
	}

	commitStatus, err := c.deps.Committer.CommitPit(payload)
	if err != nil {
		c.log.Error("collector: commit_pit failed, dropping task", "taskid", id, "err", err)
		c.store.DropPending(id)
		if c.evlog != nil {
			c.evlog.Append(eventlog.EventCommitErr, uint64(id), uint32(c.runID), status, err.Error())
		}
		return
	}

	latency := c.store.Commit(id, status, commitStatus)
	c.recordCommitted(id, status, latency)
}

func (c *Coordinator) recordCommitted(id types.TaskID, status int64, latency time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordCommitted(latency.Seconds())
	}
	if c.evlog != nil {
		c.evlog.Append(eventlog.EventCommitted, uint64(id), uint32(c.runID), status, "")
	}
	c.store.GC()
}
