// Command spits-create-job lays out a fresh SPITS job directory so
// spits-job-manager and spits-task-manager processes have somewhere to
// rendezvous.
package main

import (
	"fmt"
	"os"

	"github.com/spits-runtime/spits/internal/cli"
	"github.com/spits-runtime/spits/internal/jobdir"
)

func main() {
	cmd := cli.BuildCreateJobCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path, cmdline string) error {
	dir, err := jobdir.Open(path)
	if err != nil {
		return fmt.Errorf("spits-create-job: %w", err)
	}
	if err := dir.WriteJob(cmdline); err != nil {
		return fmt.Errorf("spits-create-job: %w", err)
	}
	if err := dir.SetFinished(jobdir.FinishedNotStarted); err != nil {
		return fmt.Errorf("spits-create-job: %w", err)
	}
	fmt.Printf("created job directory %s\n", path)
	return nil
}
