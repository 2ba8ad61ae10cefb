package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spits-runtime/spits/internal/nativejob"
	"github.com/spits-runtime/spits/pkg/types"
)

// fakeWorker echoes the taskID it is given as its result's actualCtx, so
// execute's context-verification path always succeeds unless the test
// deliberately asks for a mismatch.
type fakeWorker struct {
	mismatch bool
	finalize int
}

func (w *fakeWorker) Run(ctx context.Context, taskID int64, payload []byte) (status int64, result []byte, gotResult bool, actualCtx int64, err error) {
	ctxEcho := taskID
	if w.mismatch {
		ctxEcho = taskID + 999
	}
	return 0, payload, true, ctxEcho, nil
}

func (w *fakeWorker) Finalize() error {
	w.finalize++
	return nil
}

func TestPutAdmitsIntoStartedPool(t *testing.T) {
	p := New(1, nil, nil)
	require.NoError(t, p.Start(context.Background(), 1, func() (nativejob.Worker, error) {
		return &fakeWorker{}, nil
	}))
	defer p.Stop()

	assert.True(t, p.Put(1, 1, []byte("a")))
	// the single in-flight slot may or may not have drained by now depending
	// on scheduling, so only assert the capacity invariant itself.
	assert.False(t, p.capacity < 1)
}

func TestFullAndEmptyReflectInFlightCount(t *testing.T) {
	p := New(2, nil, nil)
	assert.True(t, p.Empty())
	assert.False(t, p.Full())

	ok := p.Put(1, 1, []byte("x"))
	require.True(t, ok)
	assert.False(t, p.Empty())

	ok = p.Put(2, 1, []byte("y"))
	require.True(t, ok)
	assert.True(t, p.Full(), "capacity 2 with 2 queued tasks must report Full")

	ok = p.Put(3, 1, []byte("z"))
	assert.False(t, ok, "Put beyond capacity must fail")
}

func TestExecuteProducesResultOnCompletionQueue(t *testing.T) {
	p := New(2, nil, nil)
	require.NoError(t, p.Start(context.Background(), 1, func() (nativejob.Worker, error) {
		return &fakeWorker{}, nil
	}))
	defer p.Stop()

	require.True(t, p.Put(7, 3, []byte("payload")))

	var result types.Result
	var found bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := p.TryResult(); ok {
			result, found = r, true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, found, "execute should push a completed result within the deadline")
	assert.Equal(t, types.TaskID(7), result.TaskID)
	assert.Equal(t, types.RunID(3), result.RunID)
	assert.Equal(t, []byte("payload"), result.Payload)
}

func TestExecuteDropsResultOnContextMismatch(t *testing.T) {
	p := New(2, nil, nil)
	require.NoError(t, p.Start(context.Background(), 1, func() (nativejob.Worker, error) {
		return &fakeWorker{mismatch: true}, nil
	}))
	defer p.Stop()

	require.True(t, p.Put(5, 1, []byte("x")))

	time.Sleep(100 * time.Millisecond)
	_, found := p.TryResult()
	assert.False(t, found, "a context mismatch must drop the result rather than surface it")
}

func TestRequeuePutsResultBackOnCompletionQueue(t *testing.T) {
	p := New(1, nil, nil)
	r := types.Result{TaskID: 1, RunID: 1, Status: 0, Payload: []byte("x")}
	p.Requeue(r)

	got, ok := p.TryResult()
	require.True(t, ok)
	assert.Equal(t, r, got)
}
