// File: generator.go
// Purpose: The single generator goroutine — pulls tasks from the native
// JobManager and pushes them out to workers over PUSH sessions, then
// switches to replaying the submission list once generation is exhausted.

package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/spits-runtime/spits/internal/discovery"
	"github.com/spits-runtime/spits/internal/eventlog"
	"github.com/spits-runtime/spits/internal/wire"
	"github.com/spits-runtime/spits/pkg/types"
)

func (c *Coordinator) generatorLoop(ctx context.Context) {
	defer c.wg.Done()

	for c.isRunning() {
		if ctx.Err() != nil {
			return
		}

		endpoints, err := discovery.Load(c.deps.WorkDir)
		if err != nil {
			c.log.Error("generator: discovery load failed", "err", err)
			c.sleepBackoff()
			continue
		}
		if c.metrics != nil {
			c.metrics.UpdateQueueStats(c.store.PendingCount(), len(endpoints))
		}
		if len(endpoints) == 0 {
			c.sleepBackoff()
			continue
		}

		dispatchedAny := false
		for _, ep := range endpoints {
			if !c.isRunning() {
				return
			}
			n := c.pushSession(ctx, ep)
			if n > 0 {
				dispatchedAny = true
			}
		}

		if !dispatchedAny {
			// Nothing accepted anything this round; give workers time to
			// drain before hammering them again.
			c.sleepBackoff()
		}

		if c.store.Done() {
			return
		}
	}
}

func (c *Coordinator) sleepBackoff() {
	select {
	case <-time.After(c.cfg.SendBackoff):
	case <-c.stopCh:
	}
}

// pushSession opens one PUSH session against ep, offering freshly
// generated tasks first and falling back to submission-list replay once
// job_manager_next_task is exhausted, until the worker signals SEND_FULL
// or there is nothing left to send. It returns the number of tasks the
// worker accepted.
func (c *Coordinator) pushSession(ctx context.Context, ep types.Endpoint) int {
	conn, err := wire.Dial(ep.Addr(), c.cfg.ConnectionTimeout)
	if err != nil {
		c.log.Debug("push: dial failed", "endpoint", ep, "err", err)
		return 0
	}
	defer conn.Close()

	_, matched, err := conn.Handshake(c.cfg.JobID, c.cfg.ConnectionTimeout)
	if err != nil {
		c.log.Debug("push: handshake failed", "endpoint", ep, "err", err)
		return 0
	}
	if !matched {
		c.log.Error("push: jobid mismatch, closing session", "endpoint", ep)
		return 0
	}

	accepted := 0
	for {
		if !c.isRunning() {
			return accepted
		}

		id, payload, ok := c.nextForDispatch(ctx)
		if !ok {
			return accepted
		}

		if err := conn.WriteInt64(int64(wire.SendTask), c.cfg.SendTimeout); err != nil {
			c.store.Requeue(id, payload)
			return accepted
		}
		if err := conn.WriteInt64(int64(id), c.cfg.SendTimeout); err != nil {
			c.store.Requeue(id, payload)
			return accepted
		}
		if err := conn.WriteInt64(int64(c.runID), c.cfg.SendTimeout); err != nil {
			c.store.Requeue(id, payload)
			return accepted
		}
		if err := conn.Write(payload, c.cfg.SendTimeout); err != nil {
			c.store.Requeue(id, payload)
			return accepted
		}

		reply, err := conn.ReadInt64(c.cfg.ReceiveTimeout)
		if err != nil {
			c.store.Requeue(id, payload)
			return accepted
		}

		switch wire.Verb(reply) {
		case wire.SendMore:
			accepted++
			if c.metrics != nil {
				c.metrics.RecordSent()
			}
			if c.evlog != nil {
				c.evlog.Append(eventlog.EventDispatched, uint64(id), uint32(c.runID), 0, ep.String())
			}
		case wire.SendFull:
			c.store.Requeue(id, payload)
			return accepted
		case wire.SendRjct:
			// This particular task was rejected; log and move on rather
			// than retrying against the same worker in this session.
			c.store.Requeue(id, payload)
			c.log.Debug("push: task rejected", "taskid", id, "endpoint", ep)
			return accepted
		default:
			c.store.Requeue(id, payload)
			c.log.Error("push: unexpected reply verb", "verb", wire.Verb(reply), "endpoint", ep)
			return accepted
		}
	}
}

// nextForDispatch returns the next task to offer a worker: a freshly
// generated one while job_manager_next_task still has more, then
// submission-list replay once generation is exhausted (§4.3's
// post-generation re-dispatch rule).
func (c *Coordinator) nextForDispatch(ctx context.Context) (types.TaskID, []byte, bool) {
	if !c.store.GenerationDone() {
		payload, gotTask, actualCtx, hasMore, err := c.generateOne(ctx)
		if err != nil {
			c.log.Error("generator: next_task failed", "err", err)
			return 0, nil, false
		}
		if gotTask {
			id := c.store.NextTaskID(payload)
			if c.metrics != nil {
				c.metrics.RecordGenerated()
			}
			if actualCtx != int64(id) {
				// The context-verification rule is evaluated by the
				// caller immediately after allocation, since the taskid
				// the native call should echo is only known once
				// NextTaskID has run.
				c.log.Error("generator: next_task ctx mismatch", "taskid", id, "ctx", actualCtx)
			}
			return id, payload, true
		}
		if !hasMore {
			c.store.MarkGenerationDone()
		}
	}

	id, payload, ok := c.store.NextResend()
	if !ok {
		if c.store.PendingCount() > 0 {
			c.log.Error("generator: submission list exhausted with tasks still pending, tasks lost", "pending", c.store.PendingCount())
		}
		return 0, nil, false
	}
	return id, payload, true
}

// generateOne calls job_manager_next_task with a placeholder expected
// context; the real context value is only meaningful once a taskid has
// been allocated for this task, so nextForDispatch performs the
// comparison after the fact rather than threading the taskid in here.
func (c *Coordinator) generateOne(ctx context.Context) (payload []byte, gotTask bool, actualCtx int64, hasMore bool, err error) {
	if c.deps.JobManager == nil {
		return nil, false, 0, false, fmt.Errorf("coordinator: no job manager loaded")
	}
	return c.deps.JobManager.NextTask(ctx, 0)
}
