// Package plugin drives external simulation codes through a fixed lifecycle:
// Prerun prepares input files in a working directory, Run executes the tool
// and Postrun collects its outputs into a Results record.
package plugin

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/results"
)

// Plugin is implemented by every simulation code adapter. Fields set during
// Prerun may be consumed in Postrun, so an instance handles one run at a time.
type Plugin interface {
	// Name identifies the code, e.g. "OpenMC".
	Name() string
	// Prerun writes the input files for p into the workspace.
	Prerun(ctx context.Context, ws *Workspace, p *params.Parameters) error
	// Run executes the code. A non-zero exit is an ExecutionError.
	Run(ctx context.Context, ws *Workspace) (*results.ExecInfo, error)
	// Postrun locates the outputs and builds the record of the run.
	Postrun(ctx context.Context, ws *Workspace, p *params.Parameters, info *results.ExecInfo) (*results.Results, error)
}

// Cleaner is implemented by plugins that modify state outside the workspace.
// Cleanup runs after every invocation, successful or not.
type Cleaner interface {
	Cleanup(ctx context.Context, ws *Workspace) error
}

// Workspace is the scoped working directory of one invocation.
type Workspace struct {
	Dir    string
	Name   string
	Time   time.Time
	Logger *log.Logger

	// Destinations for streamed tool output.
	Stdout io.Writer
	Stderr io.Writer

	// existing holds the files of a caller-provided directory as found
	// before Prerun.
	existing map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// snapshot records every file below dir by slash-separated relative path.
func snapshot(dir string) (map[string]fileStamp, error) {
	files := make(map[string]fileStamp)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	return files, err
}

// preexisting reports whether rel was in the directory before the run and
// has not been written since.
func (w *Workspace) preexisting(rel string, d fs.DirEntry) bool {
	before, ok := w.existing[rel]
	if !ok {
		return false
	}
	info, err := d.Info()
	if err != nil {
		return false
	}
	return info.Size() == before.size && info.ModTime().Equal(before.modTime)
}

// Path returns name resolved inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Phase is the lifecycle state of an invocation.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePrerun  Phase = "prerun"
	PhaseRunning Phase = "running"
	PhasePostrun Phase = "postrun"
	PhaseDone    Phase = "done"
	PhaseFailed  Phase = "failed"
)

var transitions = map[Phase]Phase{
	PhaseIdle:    PhasePrerun,
	PhasePrerun:  PhaseRunning,
	PhaseRunning: PhasePostrun,
	PhasePostrun: PhaseDone,
}

// Terminal reports whether the phase admits no further transition.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Transition validates a move from p to next. Failed is reachable from any
// non-terminal phase; otherwise phases advance strictly in order.
func (p Phase) Transition(next Phase) (Phase, error) {
	if p.Terminal() {
		return p, fmt.Errorf("invalid transition %s -> %s: %s is terminal", p, next, p)
	}
	if next == PhaseFailed || transitions[p] == next {
		return next, nil
	}
	return p, fmt.Errorf("invalid transition %s -> %s", p, next)
}
