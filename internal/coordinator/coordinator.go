// ============================================================================
// SPITS Coordinator - Job Manager Process Core
// ============================================================================
//
// Package: internal/coordinator
// File: coordinator.go
// Purpose: Owns the generator, collector, heartbeat, and control-server
//          loops that together implement the Job Manager side of the
//          runtime
//
// Design Philosophy:
//   The coordinator is a single process, single native job instance, at
//   most one per job (cross-coordinator coordination is an explicit
//   non-goal). Its four concurrent activities each observe a shared
//   running flag at their next suspension point rather than being
//   forcibly interrupted, matching the specification's cancellation model.
//
// Lifecycle:
//   INIT -> RUNNING -> DRAINING -> DONE
//   See Run below for the state transitions; CurrentPhase/Stats expose the
//   phase bookkeeping consumed by status dumps.
//
// Concurrency:
//   generator (1), collector (1), heartbeat (1), control-server accept
//   loop (1) + one handler per connection. The pending map, submission
//   list, and completion map live in taskstate.Store, which serializes
//   its own access; nothing here needs an additional lock around them.
//
// ============================================================================

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spits-runtime/spits/internal/discovery"
	"github.com/spits-runtime/spits/internal/eventlog"
	"github.com/spits-runtime/spits/internal/metrics"
	"github.com/spits-runtime/spits/internal/nativejob"
	"github.com/spits-runtime/spits/internal/statussnapshot"
	"github.com/spits-runtime/spits/internal/taskstate"
	"github.com/spits-runtime/spits/internal/wire"
	"github.com/spits-runtime/spits/pkg/config"
	"github.com/spits-runtime/spits/pkg/types"
)

// Phase names the four lifecycle states a status dump reports.
type Phase string

const (
	PhaseInit     Phase = "INIT"
	PhaseRunning  Phase = "RUNNING"
	PhaseDraining Phase = "DRAINING"
	PhaseDone     Phase = "DONE"
)

// Deps bundles everything the Coordinator needs but doesn't construct
// itself: the loaded native job roles and the working directory used for
// discovery file rendezvous.
type Deps struct {
	JobManager nativejob.JobManager
	Committer  nativejob.Committer
	WorkDir    string // resolved cwd; nodes.txt/nodes/ live here
	JobArgv    []string
}

// Coordinator is the Job Manager process's core state machine.
type Coordinator struct {
	cfg  config.Coordinator
	deps Deps

	store   *taskstate.Store
	runID   types.RunID
	log     *slog.Logger
	metrics *metrics.Collector
	reg     *metrics.Registry
	evlog   *eventlog.Log
	status  *statussnapshot.Manager

	phase atomic.Value // Phase
	running atomic.Bool

	controlLn *wire.Listener

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires a Coordinator from configuration and its dependencies. The
// caller is responsible for opening the event log and status manager
// (typically via internal/jobdir) and passing them in so the coordinator
// doesn't need to know the job directory layout.
func New(cfg config.Coordinator, deps Deps, reg *metrics.Registry, evlog *eventlog.Log, status *statussnapshot.Manager, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		cfg:     cfg,
		deps:    deps,
		store:   taskstate.New(),
		runID:   1,
		log:     log,
		metrics: metrics.NewCollector(),
		reg:     reg,
		evlog:   evlog,
		status:  status,
		stopCh:  make(chan struct{}),
	}
	c.phase.Store(PhaseInit)
	c.running.Store(true)
	return c
}

// Run starts the generator, collector, heartbeat, and control server, and
// blocks until the job completes or the process is asked to stop. It
// returns the committer's final status on success.
func (c *Coordinator) Run(ctx context.Context) (int64, error) {
	c.setPhase(PhaseRunning)

	c.wg.Add(3)
	go c.generatorLoop(ctx)
	go c.collectorLoop(ctx)
	go c.heartbeatLoop(ctx)

	if c.controlLn != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.controlLn.Serve(); err != nil {
				c.log.Error("control server stopped", "err", err)
			}
		}()
	}

	c.waitForDone(ctx)
	if !c.store.Done() {
		// Stopped or canceled before the job finished: no commit_job.
		c.Stop()
		c.wg.Wait()
		return 1, fmt.Errorf("coordinator: stopped with %d task(s) pending", c.store.PendingCount())
	}
	c.setPhase(PhaseDraining)

	// Draining -> Done: pending map is empty and generation is done.
	// Invoke committer_commit_job with the magic context and verify it's
	// echoed back, per §4.9. A native library that exports no committer
	// role (legal per §6.1's optional-symbol rule) has nothing to commit;
	// treat the job as committed with status 0, mirroring collector.go's
	// routeResult nil-Committer handling.
	var status int64
	if c.deps.Committer != nil {
		var actualCtx int64
		var err error
		status, actualCtx, err = c.deps.Committer.CommitJob(ctx, nativejob.MagicCommitJobCtx)
		if err != nil {
			return 1, fmt.Errorf("coordinator: commit_job: %w", err)
		}
		if actualCtx != nativejob.MagicCommitJobCtx {
			c.log.Error("commit_job ctx mismatch", "expected", nativejob.MagicCommitJobCtx, "actual", actualCtx)
			return 1, fmt.Errorf("coordinator: commit_job ctx mismatch: RES_MODULE_CTXER")
		}
	}

	c.setPhase(PhaseDone)
	c.Stop()
	c.wg.Wait()

	if c.deps.JobManager != nil {
		if err := c.deps.JobManager.Finalize(); err != nil {
			c.log.Error("job manager finalize failed", "err", err)
		}
	}
	if c.deps.Committer != nil {
		if err := c.deps.Committer.Finalize(); err != nil {
			c.log.Error("committer finalize failed", "err", err)
		}
	}

	return status, nil
}

// waitForDone polls the store until the job is complete or the
// coordinator is asked to stop. Polling here, rather than a condition
// variable, keeps the predicate (generation-done AND pending empty)
// evaluated the same way the generator and collector already observe it,
// with no extra synchronization primitive introduced. While it waits it
// writes the status dump (when a status manager is set) about once a second.
func (c *Coordinator) waitForDone(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var lastDump time.Time
	for {
		if c.store.Done() {
			return
		}
		if c.status != nil && time.Since(lastDump) >= time.Second {
			lastDump = time.Now()
			st := c.Stats()
			if err := c.status.Write(statussnapshot.Status{JobID: c.cfg.JobID, RunID: uint32(st.RunID), Phase: string(st.Phase),
				GenerationDone: st.GenerationDone, PendingTasks: st.PendingTasks, UpdatedAt: lastDump}); err != nil {
				c.log.Debug("status dump failed", "err", err)
			}
		}
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop sets the running flag false, observed by every loop at its next
// suspension point, and closes the control listener.
func (c *Coordinator) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stopCh)
	if c.controlLn != nil {
		c.controlLn.Close()
	}
	if c.cfg.KillTMs {
		c.killWorkers()
	}
}

func (c *Coordinator) killWorkers() {
	endpoints, err := discovery.ListNodes(c.deps.WorkDir)
	if err != nil {
		c.log.Error("killtms: list nodes failed", "err", err)
		return
	}
	for _, ep := range endpoints {
		c.sendTerminate(ep)
	}
}

func (c *Coordinator) sendTerminate(ep types.Endpoint) {
	conn, err := wire.Dial(ep.Addr(), c.cfg.ConnectionTimeout)
	if err != nil {
		c.log.Debug("killtms: dial failed", "endpoint", ep, "err", err)
		return
	}
	defer conn.Close()

	_, matched, err := conn.Handshake(c.cfg.JobID, c.cfg.ConnectionTimeout)
	if err != nil || !matched {
		return
	}
	_ = conn.WriteInt64(int64(wire.Terminate), c.cfg.SendTimeout)
}

func (c *Coordinator) isRunning() bool {
	return c.running.Load()
}

func (c *Coordinator) setPhase(p Phase) {
	c.phase.Store(p)
}

// CurrentPhase reports the coordinator's lifecycle phase, for the control
// server's QUERY_STATE handler and periodic status dumps.
func (c *Coordinator) CurrentPhase() Phase {
	return c.phase.Load().(Phase)
}

// RunID returns the coordinator's current run identifier.
func (c *Coordinator) RunID() types.RunID {
	return c.runID
}

// Stats is a snapshot of coordinator counters, for QUERY_STATE and the
// periodic status dump.
type Stats struct {
	Phase          Phase
	RunID          types.RunID
	GenerationDone bool
	PendingTasks   int
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Phase:          c.CurrentPhase(),
		RunID:          c.runID,
		GenerationDone: c.store.GenerationDone(),
		PendingTasks:   c.store.PendingCount(),
	}
}
