package exec

import (
	"io"
	"time"
)

// Step describes one invocation of an external tool
type Step struct {
	ID      string            // Plugin name, used in manifests and log lines
	Cmd     []string          // Command and arguments
	Workdir string            // Working directory of the subprocess
	Env     map[string]string // Added to the inherited environment

	ShowStdout bool // Stream stdout while the tool runs
	ShowStderr bool // Stream stderr while the tool runs

	// Stream destinations when ShowStdout/ShowStderr are set. Default to the
	// process's own stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// LogFile, if set, receives a copy of stdout.
	LogFile string
}

// Result represents the outcome of an execution step
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Succeeded reports whether the tool exited with status zero
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// RunManifest is the audit record written next to a stored run
type RunManifest struct {
	Timestamp    time.Time         `json:"timestamp"`
	RunID        string            `json:"run_id"`
	Plugin       string            `json:"plugin"`
	Command      []string          `json:"command,omitempty"`
	ExitCode     int               `json:"exit_code"`
	Duration     string            `json:"duration"`
	InputHashes  map[string]string `json:"input_hashes"`
	OutputHashes map[string]string `json:"output_hashes"`
}
