// Package nativejob defines the boundary between the runtime and the
// user-supplied job binary: a generator, an executor, and a committer,
// each optionally backed by native code. Loading and invoking an actual
// shared library is an external collaborator's concern (the specification
// treats it as an opaque capability); this package specifies the Go-side
// contract those five entry points must satisfy and a loader that detects
// missing optional symbols gracefully, since the same compiled job is
// shared across coordinator and worker deployments.
//
// The native ABI expresses "one result per call" through a push callback
// invoked zero or one times. Go has no need to reify that as a channel or
// other concurrency primitive: per the specification's design notes, the
// right shape is a small, single-writer sink read once after the call
// returns. Rather than exposing the callback itself across this boundary,
// each method here returns the sink's contents directly — the callback and
// its verification live inside the concrete binding (e.g. the cgo glue a
// real deployment would supply), and the caller verifies the echoed
// context value against what it expected.
package nativejob

import "context"

// Metrics is the capability passed to every *_new call: scalar setters
// keyed by name, backed by internal/metrics's ring-buffer registry.
type Metrics interface {
	SetInt(name string, v int64)
	SetFloat(name string, v float32)
	SetDouble(name string, v float64)
	SetString(name string, v string)
	SetBytes(name string, v []byte)
}

// JobManager is the generator role: job_manager_new / job_manager_next_task
// / job_manager_finalize.
type JobManager interface {
	// NextTask requests the next task, passing expectedCtx as the context
	// the native push callback should echo back. gotTask reports whether
	// the callback fired at all; when it did, actualCtx is what it echoed
	// and the caller must verify it equals expectedCtx (the
	// context-verification rule: a mismatch is a fatal per-task error).
	// hasMore == false means generation is exhausted.
	NextTask(ctx context.Context, expectedCtx int64) (payload []byte, gotTask bool, actualCtx int64, hasMore bool, err error)
	Finalize() error
}

// Worker is the executor role: worker_new / worker_run / worker_finalize.
// One Worker handle is created per worker-pool execution routine and kept
// for the process lifetime; the native library is not thread-safe per
// handle, so callers must serialize Run calls on a given Worker.
type Worker interface {
	// Run executes one task, passing taskID as the context the native push
	// callback should echo back. gotResult mirrors JobManager.NextTask's
	// gotTask: the callback fired at most once.
	Run(ctx context.Context, taskID int64, payload []byte) (status int64, result []byte, gotResult bool, actualCtx int64, err error)
	Finalize() error
}

// Committer is the commit role: committer_new / committer_commit_pit /
// committer_commit_job / committer_finalize.
type Committer interface {
	CommitPit(payload []byte) (status int64, err error)
	// CommitJob is invoked once, at DRAINING->DONE, with the magic context
	// 0x12345678; actualCtx must equal it or the coordinator exits via
	// RES_MODULE_CTXER.
	CommitJob(ctx context.Context, expectedCtx int64) (status int64, actualCtx int64, err error)
	Finalize() error
}

// Binding is everything a loaded job binary can expose. Each field may be
// nil: a binary is free to implement only the roles a given process needs
// (a worker-only deployment need not provide a JobManager, for instance),
// and the runtime must not fail merely because an optional symbol is
// absent.
type Binding struct {
	Main func(argv []string, runnerCallback func(argv []string) (status int, jobInfo []byte)) (status int)

	NewJobManager func(argv []string, jobInfo []byte, metrics Metrics) (JobManager, error)
	NewWorker     func(argv []string, metrics Metrics) (Worker, error)
	NewCommitter  func(argv []string, jobInfo []byte, metrics Metrics) (Committer, error)
}

// MagicCommitJobCtx is the sentinel context value committer_commit_job is
// called with once generation and commit both finish (§4.9).
const MagicCommitJobCtx int64 = 0x12345678
