package jobdir

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesLogsDir(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "job1")

	dir, err := Open(path)
	require.NoError(t, err)
	assert.DirExists(t, dir.LogsDir())
}

func TestWriteAndReadJob(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dir.WriteJob("./run-job --flag"))
	got, err := dir.ReadJob()
	require.NoError(t, err)
	assert.Equal(t, "./run-job --flag", got)
}

func TestFinishedDefaultsToNotStarted(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	status, err := dir.Finished()
	require.NoError(t, err)
	assert.Equal(t, FinishedNotStarted, status)
}

func TestSetFinishedAndMarkDone(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dir.SetFinished(FinishedRunning))
	status, err := dir.Finished()
	require.NoError(t, err)
	assert.Equal(t, FinishedRunning, status)

	require.NoError(t, dir.MarkDone())
	status, err = dir.Finished()
	require.NoError(t, err)
	assert.Greater(t, status, FinishedRunning)
}

func TestPidFileRoundTrip(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := PidRecord{PID: 4242, Cmdline: "./spits-task-manager --nw 4", AnnouncePath: "/job/nodes/abc"}
	require.NoError(t, dir.WritePidFile("TM-abc.pid", rec))

	got, err := dir.ReadPidFile("TM-abc.pid")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEventLogAndStatusPaths(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir.LogsDir(), "tasks.jsonl"), dir.EventLogPath())
	assert.Equal(t, filepath.Join(dir.Path, "status.json"), dir.StatusPath())
}
