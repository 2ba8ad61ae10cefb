// Command spits-job-status prints a running or finished SPITS job's last
// known status, read from the job directory's status.json dump rather
// than a live control connection.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spits-runtime/spits/internal/cli"
	"github.com/spits-runtime/spits/internal/jobdir"
	"github.com/spits-runtime/spits/internal/statussnapshot"
)

func main() {
	cmd := cli.BuildJobStatusCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	dir, err := jobdir.Open(path)
	if err != nil {
		return fmt.Errorf("spits-job-status: %w", err)
	}

	finished, err := dir.Finished()
	if err != nil {
		return fmt.Errorf("spits-job-status: %w", err)
	}

	mgr := statussnapshot.NewManager(dir.StatusPath())
	status, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("spits-job-status: %w", err)
	}

	switch finished {
	case jobdir.FinishedNotStarted:
		fmt.Println("job has not started")
		return nil
	case jobdir.FinishedRunning:
		fmt.Println("job is running")
	default:
		fmt.Printf("job finished at unix timestamp %d\n", finished)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("spits-job-status: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
