// Package taskstate implements the coordinator's three owned structures:
// the pending-task map, the submission (replay) list, and the completion
// map. All three are exclusively owned by the coordinator and are mutated
// by both the generator and collector loops, so a single mutex protects
// them — the specification notes contention is low relative to network
// latency, so a single lock per structure (here, one lock for all three
// since they change together) is sufficient.
package taskstate

import (
	"sync"
	"time"

	"github.com/spits-runtime/spits/pkg/types"
)

// CommitState is the state field of a pending entry. Entries are created
// as Pending and removed from the pending map on a successful commit, so
// Committed is never stored in the map.
type CommitState int

const (
	// Pending means no result has been committed for this task yet.
	Pending CommitState = iota
	Committed
)

type pendingEntry struct {
	payload      []byte
	state        CommitState
	dispatchedAt time.Time
}

// Completion is what the completion map retains per taskid once a result
// has been processed, used to reject duplicate arrivals.
type Completion struct {
	Status       int64 // the result's own status
	CommitStatus int64 // committer_commit_pit's return value
}

// submissionEntry is one record in the ordered replay log.
type submissionEntry struct {
	TaskID  types.TaskID
	Payload []byte
}

// Store holds the coordinator's generated-but-uncommitted task state for a
// single run. A new Store is created per RunID; taskids are never reused
// within a run.
type Store struct {
	mu sync.Mutex

	nextTaskID types.TaskID
	pending    map[types.TaskID]*pendingEntry
	submission []submissionEntry
	completion map[types.TaskID]Completion

	generationDone bool
}

// New creates an empty Store ready for a fresh run.
func New() *Store {
	return &Store{
		pending:    make(map[types.TaskID]*pendingEntry),
		submission: make([]submissionEntry, 0, 64),
		completion: make(map[types.TaskID]Completion),
	}
}

// NextTaskID allocates the next strictly increasing taskid for this run,
// starting at 1, and records the task as pending.
func (s *Store) NextTaskID(payload []byte) types.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTaskID++
	id := s.nextTaskID
	s.pending[id] = &pendingEntry{payload: payload, state: Pending, dispatchedAt: time.Now()}
	s.submission = append(s.submission, submissionEntry{TaskID: id, Payload: payload})
	return id
}

// MarkGenerationDone sets the monotonic generation-done flag. It never
// clears within a run.
func (s *Store) MarkGenerationDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generationDone = true
}

// GenerationDone reports whether the generator has exhausted job_manager_next_task.
func (s *Store) GenerationDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationDone
}

// Done reports whether the job has finished: generation is done and no
// task remains pending.
func (s *Store) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationDone && len(s.pending) == 0
}

// PendingCount returns the number of tasks still awaiting commit.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// IsPending reports whether taskid still awaits commit.
func (s *Store) IsPending(id types.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// CommitResult is the outcome of routing a received result through the
// store, telling the collector exactly what happened so it can update
// metrics and logs precisely per §4.4.
type CommitResult int

const (
	// ResultAccepted means the result was new, the task was pending, and
	// the caller should proceed to invoke committer_commit_pit.
	ResultAccepted CommitResult = iota
	// ResultDuplicate means taskid was already present in the completion
	// map; the result is discarded without a commit_pit call.
	ResultDuplicate
	// ResultUnknownTask means taskid was never pending (already committed
	// and purged, or never existed in this run); discarded.
	ResultUnknownTask
)

// Accept decides whether a received (taskid, status) should proceed to
// commit. On ResultAccepted the caller must subsequently call Commit to
// remove the task from pending and record the completion, once
// committer_commit_pit has actually run.
func (s *Store) Accept(id types.TaskID) CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.completion[id]; ok {
		return ResultDuplicate
	}
	if _, ok := s.pending[id]; !ok {
		return ResultUnknownTask
	}
	return ResultAccepted
}

// Commit removes taskid from the pending map and records its completion
// status, to be called once committer_commit_pit has actually run for an
// Accept()ed result. It returns the elapsed time since the task was
// dispatched, for the tasks_committed latency histogram.
func (s *Store) Commit(id types.TaskID, status, commitStatus int64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latency time.Duration
	if entry, ok := s.pending[id]; ok && !entry.dispatchedAt.IsZero() {
		latency = time.Since(entry.dispatchedAt)
	}
	delete(s.pending, id)
	s.completion[id] = Completion{Status: status, CommitStatus: commitStatus}
	return latency
}

// DropPending removes a task from the pending map without recording a
// completion — used when committer_commit_pit itself fails: the
// specification says to record the error and remove the task so it is
// never re-dispatched, but not to retry.
func (s *Store) DropPending(id types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// NextResend pops the oldest still-pending entry from the submission list
// for re-dispatch, per the post-generation re-dispatch rule (§4.3.6). It
// returns ok == false if the submission list holds no still-pending entry,
// which the caller should treat as a critical "tasks lost" condition if the
// pending map is non-empty.
func (s *Store) NextResend() (id types.TaskID, payload []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.submission) > 0 {
		head := s.submission[0]
		s.submission = s.submission[1:]
		if entry, stillPending := s.pending[head.TaskID]; stillPending {
			return head.TaskID, entry.payload, true
		}
	}
	return 0, nil, false
}

// GC drops submission-list entries whose taskid is no longer pending,
// keeping the replay log bounded to live work (§4.3.5).
func (s *Store) GC() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.submission[:0]
	for _, entry := range s.submission {
		if _, stillPending := s.pending[entry.TaskID]; stillPending {
			kept = append(kept, entry)
		}
	}
	s.submission = kept
}

// Requeue appends a (taskid, payload) back onto the tail of the submission
// list, used when a dispatch attempt fails mid-session (worker vanished)
// and the task must survive for a later round's replay.
func (s *Store) Requeue(id types.TaskID, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submission = append(s.submission, submissionEntry{TaskID: id, Payload: payload})
}

// SubmissionLen reports the current replay log length, for diagnostics and
// tests asserting the "tasks lost" critical-log condition.
func (s *Store) SubmissionLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submission)
}
