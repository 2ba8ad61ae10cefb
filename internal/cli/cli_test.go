package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spits-runtime/spits/pkg/config"
)

func TestLoadYAMLOverlayMissingPathIsNoop(t *testing.T) {
	cfg := config.DefaultCoordinator()
	require.NoError(t, LoadYAMLOverlay("", &cfg))
	assert.Equal(t, config.DefaultCoordinator(), cfg)
}

func TestLoadYAMLOverlayNonexistentFileIsNoop(t *testing.T) {
	cfg := config.DefaultCoordinator()
	require.NoError(t, LoadYAMLOverlay(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
	assert.Equal(t, config.DefaultCoordinator(), cfg)
}

func TestLoadYAMLOverlayOverridesOnlyPresentFields(t *testing.T) {
	cfg := config.DefaultCoordinator()
	cfg.JobID = "job-1"

	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\nkilltms: true\n"), 0o644))

	require.NoError(t, LoadYAMLOverlay(path, &cfg))
	assert.Equal(t, 7000, cfg.Port)
	assert.True(t, cfg.KillTMs)
	assert.Equal(t, "job-1", cfg.JobID, "fields absent from the overlay file must keep their prior value")
}

func TestBuildJobManagerCommandAppliesFlags(t *testing.T) {
	var captured config.Coordinator
	cmd := BuildJobManagerCommand(func(cfg config.Coordinator) error {
		captured = cfg
		return nil
	})
	cmd.SetArgs([]string{"--jobid", "job-xyz", "--port", "9999"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "job-xyz", captured.JobID)
	assert.Equal(t, 9999, captured.Port)
}

func TestBuildTaskManagerCommandAppliesFlags(t *testing.T) {
	var captured config.Worker
	cmd := BuildTaskManagerCommand(func(cfg config.Worker) error {
		captured = cfg
		return nil
	})
	cmd.SetArgs([]string{"--jobid", "job-xyz", "--nw", "3"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "job-xyz", captured.JobID)
	assert.Equal(t, 3, captured.NumWorkers)
}
