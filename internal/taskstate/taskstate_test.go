package taskstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spits-runtime/spits/pkg/types"
)

func TestNextTaskIDIsStrictlyIncreasing(t *testing.T) {
	s := New()
	a := s.NextTaskID([]byte("one"))
	b := s.NextTaskID([]byte("two"))
	assert.Equal(t, types.TaskID(1), a)
	assert.Equal(t, types.TaskID(2), b)
	assert.True(t, s.IsPending(a))
	assert.True(t, s.IsPending(b))
	assert.Equal(t, 2, s.PendingCount())
}

func TestDoneRequiresGenerationDoneAndEmptyPending(t *testing.T) {
	s := New()
	assert.False(t, s.Done(), "a fresh store with generation not marked done must not be Done")

	id := s.NextTaskID([]byte("x"))
	s.MarkGenerationDone()
	assert.True(t, s.GenerationDone())
	assert.False(t, s.Done(), "a pending task must block Done even after generation is marked done")

	s.Commit(id, 0, 0)
	assert.True(t, s.Done())
}

func TestAcceptDuplicateAndUnknown(t *testing.T) {
	s := New()
	id := s.NextTaskID([]byte("x"))

	assert.Equal(t, ResultAccepted, s.Accept(id))
	s.Commit(id, 0, 0)

	assert.Equal(t, ResultDuplicate, s.Accept(id), "a taskid already in the completion map must be reported duplicate")
	assert.Equal(t, ResultUnknownTask, s.Accept(types.TaskID(999)), "a taskid never allocated in this run must be reported unknown")
}

func TestCommitRemovesFromPendingAndReportsLatency(t *testing.T) {
	s := New()
	id := s.NextTaskID([]byte("x"))

	latency := s.Commit(id, 0, 0)
	assert.GreaterOrEqual(t, latency.Nanoseconds(), int64(0))
	assert.False(t, s.IsPending(id))
	assert.Equal(t, 0, s.PendingCount())
}

func TestDropPendingRemovesWithoutCompletion(t *testing.T) {
	s := New()
	id := s.NextTaskID([]byte("x"))

	s.DropPending(id)
	assert.False(t, s.IsPending(id))
	// a subsequent Accept must treat this taskid as unknown, not duplicate,
	// since DropPending never records a completion.
	assert.Equal(t, ResultUnknownTask, s.Accept(id))
}

func TestNextResendSkipsAlreadyCommitted(t *testing.T) {
	s := New()
	a := s.NextTaskID([]byte("a"))
	b := s.NextTaskID([]byte("b"))
	s.Commit(a, 0, 0)

	id, payload, ok := s.NextResend()
	require.True(t, ok)
	assert.Equal(t, b, id)
	assert.Equal(t, []byte("b"), payload)

	_, _, ok = s.NextResend()
	assert.False(t, ok, "no still-pending entry remains in the submission list")
}

func TestGCDropsCommittedEntries(t *testing.T) {
	s := New()
	a := s.NextTaskID([]byte("a"))
	_ = s.NextTaskID([]byte("b"))
	s.Commit(a, 0, 0)

	assert.Equal(t, 2, s.SubmissionLen())
	s.GC()
	assert.Equal(t, 1, s.SubmissionLen())
}

func TestRequeueAppendsToSubmissionTail(t *testing.T) {
	s := New()
	id := s.NextTaskID([]byte("a"))
	s.GC()
	before := s.SubmissionLen()

	s.Requeue(id, []byte("a"))
	assert.Equal(t, before+1, s.SubmissionLen())

	gotID, gotPayload, ok := s.NextResend()
	require.True(t, ok)
	assert.Equal(t, id, gotID)
	assert.Equal(t, []byte("a"), gotPayload)
}
