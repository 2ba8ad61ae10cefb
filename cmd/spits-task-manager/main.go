// Command spits-task-manager joins a running SPITS job as a worker: it
// announces its listening endpoint through the job directory's discovery
// files, serves dispatched tasks into a bounded execution pool, and hands
// results back to the coordinator until terminated or idle too long.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spits-runtime/spits/internal/cli"
	"github.com/spits-runtime/spits/internal/discovery"
	"github.com/spits-runtime/spits/internal/metrics"
	"github.com/spits-runtime/spits/internal/nativejob"
	"github.com/spits-runtime/spits/internal/taskserver"
	"github.com/spits-runtime/spits/internal/workerpool"
	"github.com/spits-runtime/spits/pkg/config"
	"github.com/spits-runtime/spits/pkg/types"
)

func main() {
	cmd := cli.BuildTaskManagerCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Worker) error {
	log := cli.NewLogger(cfg.LogPath, cfg.Verbose)

	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}

	reg := metrics.NewRegistry(cfg.MetricBuffer)

	binding, err := nativejob.Load(cfg.BinaryPath)
	if err != nil {
		return fmt.Errorf("spits-task-manager: load native job: %w", err)
	}
	if binding.NewWorker == nil {
		return fmt.Errorf("spits-task-manager: native library does not export worker_new")
	}

	pool := workerpool.New(cfg.NumWorkers+cfg.Overfill, log, reg)

	srvCfg := taskserver.Config{
		JobID:             types.JobID(cfg.JobID),
		ConnectionTimeout: cfg.ConnectionTimeout,
		ReceiveTimeout:    cfg.ReceiveTimeout,
		SendTimeout:       cfg.SendTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	srv := taskserver.New(srvCfg, pool, reg, log)

	bindAddr := cfg.Addr
	if bindAddr == "" {
		bindAddr = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", bindAddr, cfg.Port)
	if err := srv.Listen(addr); err != nil {
		return fmt.Errorf("spits-task-manager: %w", err)
	}

	announceAddr := fmt.Sprintf("%s:%d", hostnameOrDefault(cfg.Hostname), portFromAddr(srv.Addr()))
	if err := announce(cfg, announceAddr); err != nil {
		return fmt.Errorf("spits-task-manager: %w", err)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	if err := pool.Start(ctx, cfg.NumWorkers, func() (nativejob.Worker, error) {
		return binding.NewWorker(os.Args, reg)
	}); err != nil {
		return fmt.Errorf("spits-task-manager: %w", err)
	}

	go srv.RunIdleTimer(ctx)
	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("task server stopped", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-srv.ShouldExit():
	}

	srv.Close()
	pool.Stop()
	log.Info("worker exiting")
	return nil
}

func announce(cfg config.Worker, addr string) error {
	switch cfg.Announce {
	case config.AnnounceCat:
		return discovery.AnnounceCat(cfg.CWD, addr)
	default:
		if cfg.AnnounceFile != "" {
			return os.WriteFile(cfg.AnnounceFile, []byte(fmt.Sprintf("node %s\n", addr)), 0o644)
		}
		_, err := discovery.AnnounceFile(cfg.CWD, addr)
		return err
	}
}

func hostnameOrDefault(override string) string {
	if override != "" {
		return override
	}
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

func portFromAddr(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return addr
}
