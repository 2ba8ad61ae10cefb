// Command spits-job-manager runs the SPITS coordinator for one job: it
// loads the job's native library, generates and dispatches tasks to
// workers discovered through the job directory, collects results, and
// commits the job once finished.
package main

import (
	"fmt"
	"os"

	"github.com/spits-runtime/spits/internal/cli"
	"github.com/spits-runtime/spits/internal/coordinator"
	"github.com/spits-runtime/spits/internal/eventlog"
	"github.com/spits-runtime/spits/internal/jobdir"
	"github.com/spits-runtime/spits/internal/metrics"
	"github.com/spits-runtime/spits/internal/nativejob"
	"github.com/spits-runtime/spits/internal/statussnapshot"
	"github.com/spits-runtime/spits/pkg/config"
)

func main() {
	cmd := cli.BuildJobManagerCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Coordinator) error {
	log := cli.NewLogger(cfg.LogPath, cfg.Verbose)

	dir, err := jobdir.Open(cfg.CWD)
	if err != nil {
		return fmt.Errorf("spits-job-manager: %w", err)
	}
	if err := dir.SetFinished(jobdir.FinishedRunning); err != nil {
		log.Error("write finished marker failed", "err", err)
	}

	evlog, err := eventlog.Open(dir.EventLogPath(), 0, 0)
	if err != nil {
		return fmt.Errorf("spits-job-manager: %w", err)
	}
	defer evlog.Close()

	status := statussnapshot.NewManager(dir.StatusPath())
	reg := metrics.NewRegistry(cfg.MetricBuffer)

	binding, err := nativejob.Load(cfg.BinaryPath)
	if err != nil {
		return fmt.Errorf("spits-job-manager: load native job: %w", err)
	}

	jm, committer, err := buildRoles(binding, reg)
	if err != nil {
		return fmt.Errorf("spits-job-manager: %w", err)
	}

	deps := coordinator.Deps{
		JobManager: jm,
		Committer:  committer,
		WorkDir:    cfg.CWD,
	}

	coord := coordinator.New(cfg, deps, reg, evlog, status, log)
	if err := coord.ListenControl(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		return fmt.Errorf("spits-job-manager: %w", err)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	if cfg.MetricsPort != 0 {
		go func() {
			if err := metrics.StartServer(cfg.MetricsPort); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	finalStatus, err := coord.Run(ctx)
	if err != nil {
		dir.SetFinished(1)
		return fmt.Errorf("spits-job-manager: %w", err)
	}

	if err := dir.MarkDone(); err != nil {
		log.Error("write finished timestamp failed", "err", err)
	}
	log.Info("job finished", "status", finalStatus)
	return nil
}

func buildRoles(binding *nativejob.Binding, reg *metrics.Registry) (nativejob.JobManager, nativejob.Committer, error) {
	var jm nativejob.JobManager
	var committer nativejob.Committer
	var err error

	if binding.NewJobManager != nil {
		jm, err = binding.NewJobManager(os.Args, nil, reg)
		if err != nil {
			return nil, nil, fmt.Errorf("job_manager_new: %w", err)
		}
	}
	if binding.NewCommitter != nil {
		committer, err = binding.NewCommitter(os.Args, nil, reg)
		if err != nil {
			return nil, nil, fmt.Errorf("committer_new: %w", err)
		}
	}
	return jm, committer, nil
}
