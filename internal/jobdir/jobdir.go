// Package jobdir implements the on-disk job directory layout the
// specification names at the interface level (§6.3): the files process
// supervisor scripts and status tooling read and write around a job,
// even though creating/spawning/supervising those processes is itself an
// external collaborator's concern.
package jobdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	jobFile      = "job"
	finishedFile = "finished"
	logsDir      = "logs"
)

// NotStarted / Running / the rest are the finished-file sentinel values:
// -1 means not started, 0 means running, anything else is a completion
// Unix timestamp.
const (
	FinishedNotStarted int64 = -1
	FinishedRunning    int64 = 0
)

// Dir wraps the path to one job's working directory.
type Dir struct {
	Path string
}

// Open resolves a job directory, creating it (and its logs/ subdirectory)
// if absent.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(filepath.Join(path, logsDir), 0o755); err != nil {
		return nil, fmt.Errorf("jobdir: create %s: %w", path, err)
	}
	return &Dir{Path: path}, nil
}

// WriteJob records the command line that launched the job.
func (d *Dir) WriteJob(cmdline string) error {
	return os.WriteFile(filepath.Join(d.Path, jobFile), []byte(cmdline+"\n"), 0o644)
}

// ReadJob returns the recorded command line, trimmed.
func (d *Dir) ReadJob() (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Path, jobFile))
	if err != nil {
		return "", fmt.Errorf("jobdir: read job: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetFinished records the run status: FinishedNotStarted, FinishedRunning,
// or a completion timestamp.
func (d *Dir) SetFinished(status int64) error {
	data := []byte(fmt.Sprintf("%d\n", status))
	return os.WriteFile(filepath.Join(d.Path, finishedFile), data, 0o644)
}

// MarkDone records completion at the current time.
func (d *Dir) MarkDone() error {
	return d.SetFinished(time.Now().Unix())
}

// Finished returns the current run status, or FinishedNotStarted if the
// file does not exist yet.
func (d *Dir) Finished() (int64, error) {
	data, err := os.ReadFile(filepath.Join(d.Path, finishedFile))
	if err != nil {
		if os.IsNotExist(err) {
			return FinishedNotStarted, nil
		}
		return 0, fmt.Errorf("jobdir: read finished: %w", err)
	}
	var status int64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &status); err != nil {
		return 0, fmt.Errorf("jobdir: parse finished: %w", err)
	}
	return status, nil
}

// PidRecord is the content of a jm.pid or TM-*.pid file: process id,
// command line, and the announce-file path the process published its
// endpoint through (empty for the coordinator, which has no announce
// file of its own).
type PidRecord struct {
	PID          int
	Cmdline      string
	AnnouncePath string
}

// WritePidFile writes a *.pid file under the job directory. name is
// "jm.pid" for the coordinator or "TM-<uid>.pid" for a worker.
func (d *Dir) WritePidFile(name string, rec PidRecord) error {
	body := fmt.Sprintf("%d\n%s\n%s\n", rec.PID, rec.Cmdline, rec.AnnouncePath)
	return os.WriteFile(filepath.Join(d.Path, name), []byte(body), 0o644)
}

// ReadPidFile parses a *.pid file.
func (d *Dir) ReadPidFile(name string) (PidRecord, error) {
	data, err := os.ReadFile(filepath.Join(d.Path, name))
	if err != nil {
		return PidRecord{}, fmt.Errorf("jobdir: read %s: %w", name, err)
	}
	lines := strings.SplitN(string(data), "\n", 3)
	var rec PidRecord
	if len(lines) > 0 {
		fmt.Sscanf(strings.TrimSpace(lines[0]), "%d", &rec.PID)
	}
	if len(lines) > 1 {
		rec.Cmdline = lines[1]
	}
	if len(lines) > 2 {
		rec.AnnouncePath = strings.TrimSpace(lines[2])
	}
	return rec, nil
}

// LogsDir returns the path to the job's logs/ subdirectory.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.Path, logsDir)
}

// EventLogPath returns the path eventlog.Open should be pointed at for
// this job.
func (d *Dir) EventLogPath() string {
	return filepath.Join(d.LogsDir(), "tasks.jsonl")
}

// StatusPath returns the path statussnapshot.NewManager should be pointed
// at for this job.
func (d *Dir) StatusPath() string {
	return filepath.Join(d.Path, "status.json")
}
