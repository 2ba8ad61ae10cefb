// Package workerpool implements the worker process's bounded task queue
// and its fixed pool of execution routines, each holding one native Worker
// handle for the process lifetime (the native library is not thread-safe
// per handle, so a handle is never shared across goroutines).
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/spits-runtime/spits/internal/metrics"
	"github.com/spits-runtime/spits/internal/nativejob"
	"github.com/spits-runtime/spits/pkg/types"
)

// incoming is one admitted task, queued for an execution routine to pick up.
type incoming struct {
	TaskID  types.TaskID
	RunID   types.RunID
	Payload []byte
}

// NewWorkerFunc constructs one native Worker handle; called once per
// execution routine at pool startup.
type NewWorkerFunc func() (nativejob.Worker, error)

// Pool is the worker's bounded MPMC task queue plus completion queue.
// Capacity is N_workers + overfill; admission is gated by Full(), which
// the task server consults to decide SEND_MORE vs SEND_FULL.
type Pool struct {
	tasks      chan incoming
	completion chan types.Result

	capacity  int
	inFlight  atomic.Int64 // queued + currently executing
	processed atomic.Int64 // tasks that produced a result, reported as tasks_processed

	log *slog.Logger
	met *metrics.Registry

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Pool with the given capacity (workers + overfill). The
// completion queue has the same capacity; a routine that finishes a task
// while it is full blocks until a PULL session drains it or the pool stops.
func New(capacity int, log *slog.Logger, met *metrics.Registry) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		tasks:      make(chan incoming, capacity),
		completion: make(chan types.Result, capacity),
		capacity:   capacity,
		log:        log,
		met:        met,
		stopCh:     make(chan struct{}),
	}
}

// Start spawns numWorkers execution routines, each constructing its own
// native Worker handle via newWorker and then looping: receive a task,
// run it, push the result onto the completion queue.
func (p *Pool) Start(ctx context.Context, numWorkers int, newWorker NewWorkerFunc) error {
	for i := 0; i < numWorkers; i++ {
		handle, err := newWorker()
		if err != nil {
			return fmt.Errorf("workerpool: create worker %d: %w", i, err)
		}
		p.wg.Add(1)
		go p.runLoop(ctx, i, handle)
	}
	return nil
}

func (p *Pool) runLoop(ctx context.Context, id int, handle nativejob.Worker) {
	defer p.wg.Done()
	defer func() {
		if err := handle.Finalize(); err != nil {
			p.log.Error("worker finalize failed", "worker", id, "err", err)
		}
	}()

	for {
		select {
		case <-p.stopCh:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(ctx, id, handle, task)
			p.inFlight.Add(-1)
		}
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, handle nativejob.Worker, task incoming) {
	status, resultPayload, gotResult, actualCtx, err := handle.Run(ctx, int64(task.TaskID), task.Payload)
	if err != nil {
		p.log.Error("worker_run failed", "worker", workerID, "taskid", task.TaskID, "err", err)
		status = -1
		gotResult = false
	}
	if gotResult && actualCtx != int64(task.TaskID) {
		p.log.Error("worker_run ctx mismatch, dropping result", "worker", workerID, "taskid", task.TaskID, "ctx", actualCtx)
		gotResult = false
	}
	if !gotResult {
		p.log.Error("worker_run produced no result, dropping task", "worker", workerID, "taskid", task.TaskID)
		return
	}

	if p.met != nil {
		p.met.SetInt("tasks_processed", p.processed.Add(1))
	}

	select {
	case p.completion <- types.Result{TaskID: task.TaskID, RunID: task.RunID, Status: status, Payload: resultPayload}:
	case <-p.stopCh:
	}
}

// Full reports whether the pool is at capacity: queued tasks plus
// currently executing tasks meets the configured capacity. This is the
// admission predicate the task server's SEND_TASK handler consults.
func (p *Pool) Full() bool {
	return p.inFlight.Load() >= int64(p.capacity)
}

// Empty reports whether nothing is queued or executing, used by the idle
// timer's self-kill predicate (§4.9, §8 boundary cases).
func (p *Pool) Empty() bool {
	return p.inFlight.Load() == 0
}

// Put attempts to admit one task. It returns false if the pool was full
// at the moment of the attempt (a benign race against a concurrent Put is
// possible with a bursty producer; the task server reacts to a failed Put
// by replying SEND_RJCT).
func (p *Pool) Put(taskID types.TaskID, runID types.RunID, payload []byte) bool {
	if p.Full() {
		return false
	}
	select {
	case p.tasks <- incoming{TaskID: taskID, RunID: runID, Payload: payload}:
		p.inFlight.Add(1)
		return true
	default:
		return false
	}
}

// TryResult performs a non-blocking receive from the completion queue,
// used by the PULL-session handler's drain loop.
func (p *Pool) TryResult() (types.Result, bool) {
	select {
	case r := <-p.completion:
		return r, true
	default:
		return types.Result{}, false
	}
}

// Requeue puts a drained-but-unacknowledged result back onto the
// completion queue, for when the coordinator's ACK never arrives
// (§4.5.2: "If the coordinator fails to send the ACK for a drained
// result, the worker re-queues it").
func (p *Pool) Requeue(r types.Result) {
	select {
	case p.completion <- r:
	default:
		p.log.Error("completion queue full on requeue, dropping result", "taskid", r.TaskID)
	}
}

// Stop halts all execution routines and waits for in-flight work to drain.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}
