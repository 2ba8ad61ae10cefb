// Package types defines the wire-level data model shared by the coordinator
// and the worker: tasks, results, and the identifiers that tie a dispatch to
// a particular coordinator run.
package types

import "fmt"

// TaskID identifies a task within a single coordinator process. TaskIDs are
// strictly increasing starting at 1 within a RunID and are never reused.
type TaskID uint64

// RunID identifies one generate/commit cycle of a coordinator process and
// travels with every dispatched task and returned result. The coordinator
// starts at run 1 and never advances it: a process performs a single run.
type RunID uint32

// JobID is the opaque string every participant advertises during the
// handshake that opens a wire session. Two sides of a connection with
// mismatched JobIDs refuse to talk further.
type JobID string

// Task is the unit of work the generator hands to a worker.
type Task struct {
	TaskID  TaskID
	RunID   RunID
	Payload []byte
}

// Result is what a worker hands back after running a Task.
//
// Status == 0 means the native worker_run call reported success; any other
// value is carried through to the committer unchanged so counters reflect
// reality even when the task itself "failed".
type Result struct {
	TaskID  TaskID
	RunID   RunID
	Status  int64
	Payload []byte
}

func (t Task) String() string {
	return fmt.Sprintf("task{id=%d run=%d bytes=%d}", t.TaskID, t.RunID, len(t.Payload))
}

func (r Result) String() string {
	return fmt.Sprintf("result{id=%d run=%d status=%d bytes=%d}", r.TaskID, r.RunID, r.Status, len(r.Payload))
}

// Endpoint is a worker's advertised listening address, as parsed out of a
// discovery file line.
type Endpoint struct {
	Name string // discovery key: filename or nodes.txt alias
	Host string
	Port int
}

func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s(%s)", e.Name, e.Addr())
}
