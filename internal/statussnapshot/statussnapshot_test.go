package statussnapshot

// ============================================================================
// Status Snapshot test file
// Purpose: verify atomic writes, loading, and version checks
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	manager := NewManager("status.json")
	assert.NotNil(t, manager)
	assert.Equal(t, "status.json", manager.GetPath())
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	manager := NewManager(path)

	original := Status{
		JobID:          "job-001",
		RunID:          3,
		Phase:          "RUNNING",
		GenerationDone: false,
		PendingTasks:   5,
		TasksCommitted: 12,
		WorkersKnown:   2,
		LastEventSeq:   42,
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, manager.Write(original))

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, original.JobID, loaded.JobID)
	assert.Equal(t, original.RunID, loaded.RunID)
	assert.Equal(t, original.Phase, loaded.Phase)
	assert.Equal(t, original.PendingTasks, loaded.PendingTasks)
	assert.Equal(t, original.TasksCommitted, loaded.TasksCommitted)
	assert.Equal(t, schemaVersion, loaded.SchemaVer)
}

func TestLoadMissingFileReturnsInitPhase(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(filepath.Join(dir, "missing.json"))

	status, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "INIT", status.Phase)
	assert.False(t, manager.Exists())
}

func TestLoadCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	manager := NewManager(path)
	_, err := manager.Load()
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestLoadIncompatibleVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_ver": 99}`), 0o644))

	manager := NewManager(path)
	_, err := manager.Load()
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestExistsReflectsWrites(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(filepath.Join(dir, "status.json"))

	assert.False(t, manager.Exists())
	require.NoError(t, manager.Write(Status{JobID: "job-1"}))
	assert.True(t, manager.Exists())
}
