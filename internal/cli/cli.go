// ============================================================================
// SPITS CLI - Command Line Interfaces for the Five Process Entry Points
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Builds the Cobra command tree for each of the runtime's five
//          standalone binaries, with a shared YAML config-file overlay on
//          top of flag defaults.
//
// Every binary here is independent (no shared root command the way a
// single-binary server would have one): spits-job-manager and
// spits-task-manager are long-running processes, spits-create-job sets up
// a fresh job directory, and spits-job-status / spits-metric-values are
// read-only inspection tools: spits-job-status reads the job's status.json
// dump, while spits-metric-values queries the coordinator's control server.
//
// Configuration Precedence:
//   1. pkg/config's Default{Coordinator,Worker} provide baseline values
//   2. Explicit flags override those defaults
//   3. --config <path> overlays a YAML file last, field by field, so a
//      field set in the file wins over the same field given as a flag
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spits-runtime/spits/pkg/config"
)

// NewLogger builds the process logger: a slog.TextHandler writing to path
// (stderr if empty) at the level the 0/1/2 verbosity mapping selects.
func NewLogger(path string, verbose config.Verbosity) *slog.Logger {
	level := slog.LevelError
	switch verbose {
	case config.VerbosityInfo:
		level = slog.LevelInfo
	case config.VerbosityDebug:
		level = slog.LevelDebug
	}

	out := os.Stderr
	if path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// SignalContext returns a context canceled on SIGINT or SIGTERM, the
// shutdown trigger every long-running binary listens for.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// LoadYAMLOverlay reads the YAML file at path and unmarshals it onto
// target, which must be a pointer to a struct already populated with
// defaults: yaml.v3 only overwrites fields present in the file. A missing
// path is not an error, since --config is always optional.
func LoadYAMLOverlay(path string, target interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cli: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("cli: parse config %s: %w", path, err)
	}
	return nil
}

// BuildJobManagerCommand returns the root command for spits-job-manager.
// run is invoked once flags and any --config overlay have been applied to
// cfg; it owns starting the coordinator and blocking until the job ends.
func BuildJobManagerCommand(run func(cfg config.Coordinator) error) *cobra.Command {
	cfg := config.DefaultCoordinator()
	var configPath string

	cmd := &cobra.Command{
		Use:   "spits-job-manager",
		Short: "Run the SPITS coordinator for one job",
		Long: `spits-job-manager drives a single SPITS job to completion: it loads the
job's native library, generates tasks, dispatches them to workers found via
the job directory's discovery files, collects results, and commits the job
once every task has been accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadYAMLOverlay(configPath, &cfg); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file overlaid on top of flags")
	flags.StringVar(&cfg.JobID, "jobid", cfg.JobID, "job identity advertised during the handshake")
	flags.StringVar(&cfg.Name, "name", cfg.Name, "human-readable job name")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "control server TCP port")
	flags.BoolVar(&cfg.KillTMs, "killtms", cfg.KillTMs, "send TERMINATE to every known worker on exit")
	flags.StringVar(&cfg.LogPath, "log", cfg.LogPath, "log file path (stderr if empty)")
	flags.StringVar(&cfg.CWD, "cwd", cfg.CWD, "job working directory (holds nodes.txt, nodes/, logs/)")
	flags.DurationVar(&cfg.ConnectionTimeout, "ctimeout", cfg.ConnectionTimeout, "connection-establishment timeout")
	flags.DurationVar(&cfg.ReceiveTimeout, "rtimeout", cfg.ReceiveTimeout, "per-read timeout")
	flags.DurationVar(&cfg.SendTimeout, "stimeout", cfg.SendTimeout, "per-write timeout")
	flags.DurationVar(&cfg.HeartbeatTimeout, "htimeout", cfg.HeartbeatTimeout, "heartbeat round-trip timeout")
	flags.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between heartbeat rounds")
	flags.DurationVar(&cfg.SendBackoff, "sbackoff", cfg.SendBackoff, "generator sleep after a round dispatches nothing")
	flags.DurationVar(&cfg.ReceiveBackoff, "rbackoff", cfg.ReceiveBackoff, "collector sleep after a round drains nothing")
	flags.IntVar(&cfg.MetricBuffer, "metric-buffer", cfg.MetricBuffer, "per-metric ring buffer capacity")
	flags.IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "Prometheus /metrics listener port (0 disables it)")
	flags.StringVar(&cfg.BinaryPath, "binary", cfg.BinaryPath, "path to the job's native library")

	return cmd
}

// BuildTaskManagerCommand returns the root command for spits-task-manager.
func BuildTaskManagerCommand(run func(cfg config.Worker) error) *cobra.Command {
	cfg := config.DefaultWorker()
	var configPath string

	cmd := &cobra.Command{
		Use:   "spits-task-manager",
		Short: "Run a SPITS worker pool for one job",
		Long: `spits-task-manager joins a running job: it announces its listening
endpoint via the job directory's discovery files, accepts dispatched tasks
into a bounded pool of execution routines, and serves results back to the
coordinator until told to terminate or its idle timeout self-kills it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadYAMLOverlay(configPath, &cfg); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file overlaid on top of flags")
	flags.StringVar(&cfg.JobID, "jobid", cfg.JobID, "job identity advertised during the handshake")
	flags.StringVar(&cfg.Addr, "tmaddr", cfg.Addr, "task server bind address")
	flags.IntVar(&cfg.Port, "tmport", cfg.Port, "task server TCP port (0 picks an ephemeral port)")
	flags.StringVar(&cfg.CWD, "cwd", cfg.CWD, "job working directory (holds nodes.txt, nodes/)")
	flags.IntVar(&cfg.NumWorkers, "nw", cfg.NumWorkers, "number of execution routines")
	flags.IntVar(&cfg.Overfill, "tm-overfill", cfg.Overfill, "admission queue slots beyond nw")
	flags.StringVar((*string)(&cfg.Announce), "announce", string(cfg.Announce), "rendezvous style: file (preferred) or cat (deprecated)")
	flags.StringVar(&cfg.AnnounceFile, "announce-file", cfg.AnnounceFile, "override path for the per-worker announce file")
	flags.StringVar(&cfg.Hostname, "hostname", cfg.Hostname, "hostname to advertise instead of the OS hostname")
	flags.StringVar(&cfg.LogPath, "log", cfg.LogPath, "log file path (stderr if empty)")
	flags.DurationVar(&cfg.ConnectionTimeout, "ctimeout", cfg.ConnectionTimeout, "connection-establishment timeout")
	flags.DurationVar(&cfg.ReceiveTimeout, "rtimeout", cfg.ReceiveTimeout, "per-read timeout")
	flags.DurationVar(&cfg.SendTimeout, "stimeout", cfg.SendTimeout, "per-write timeout")
	flags.DurationVar(&cfg.IdleTimeout, "timeout", cfg.IdleTimeout, "idle self-kill timeout (0 disables)")
	flags.IntVar(&cfg.MetricBuffer, "metric-buffer", cfg.MetricBuffer, "per-metric ring buffer capacity")
	flags.StringVar(&cfg.BinaryPath, "binary", cfg.BinaryPath, "path to the job's native library")

	return cmd
}

// BuildCreateJobCommand returns the root command for spits-create-job,
// which lays out a fresh job directory (job, finished, logs/) ready for
// spits-job-manager to run in.
func BuildCreateJobCommand(run func(path, cmdline string) error) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "spits-create-job",
		Short: "Create a fresh SPITS job directory",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("cli: --dir is required")
			}
			cmdline := ""
			for i, a := range args {
				if i > 0 {
					cmdline += " "
				}
				cmdline += a
			}
			return run(path, cmdline)
		},
	}

	cmd.Flags().StringVar(&path, "dir", "", "job directory to create")
	return cmd
}

// BuildJobStatusCommand returns the root command for spits-job-status.
func BuildJobStatusCommand(run func(path string) error) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "spits-job-status",
		Short: "Print a SPITS job's current status",
		Long:  "Reads the job directory's status.json dump; does not open a live control connection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("cli: --dir is required")
			}
			return run(path)
		},
	}

	cmd.Flags().StringVar(&path, "dir", "", "job directory to inspect")
	return cmd
}

// BuildMetricValuesCommand returns the root command for
// spits-metric-values, a thin control-client over QUERY_METRICS_*.
func BuildMetricValuesCommand(run func(addr, jobID, metric string, history bool) error) *cobra.Command {
	var addr, jobID, metric string
	var history bool

	cmd := &cobra.Command{
		Use:   "spits-metric-values",
		Short: "Query a running job's metrics over the control protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("cli: --addr is required")
			}
			return run(addr, jobID, metric, history)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "", "coordinator control server address (host:port)")
	flags.StringVar(&jobID, "jobid", "", "job identity to present during the handshake")
	flags.StringVar(&metric, "metric", "", "metric name to query (omit to list known names)")
	flags.BoolVar(&history, "history", false, "fetch full history instead of just the last value")

	return cmd
}
