package plugin

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/results"
)

// Base carries the state every adapter shares: its name, the executable,
// output streaming flags and the inputs written during Prerun. Adapters
// embed it.
type Base struct {
	name       string
	executable string

	ShowStdout bool
	ShowStderr bool

	inputs []string
}

// NewBase returns a Base for the named code.
func NewBase(name string) *Base {
	return &Base{name: name}
}

// Name implements Plugin.
func (b *Base) Name() string { return b.name }

// Executable returns the resolved executable path.
func (b *Base) Executable() string { return b.executable }

// SetExecutable resolves path on PATH or the filesystem and records it.
func (b *Base) SetExecutable(path string) error {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return errors.NewExecutableNotFoundError(b.name, path)
	}
	b.executable = resolved
	return nil
}

// Inputs returns the names of the files written into the workspace during
// Prerun, in the order they were added.
func (b *Base) Inputs() []string {
	return append([]string(nil), b.inputs...)
}

// AddInput records name as an input. Duplicates are ignored.
func (b *Base) AddInput(name string) {
	for _, in := range b.inputs {
		if in == name {
			return
		}
	}
	b.inputs = append(b.inputs, name)
}

// ResetInputs forgets the inputs of a previous run.
func (b *Base) ResetInputs() {
	b.inputs = nil
}

// CopyInput copies src into the workspace under its base name and records it.
func (b *Base) CopyInput(ws *Workspace, src string) error {
	name := filepath.Base(src)
	if err := copyFile(src, ws.Path(name)); err != nil {
		return fmt.Errorf("%s: copy input %s: %w", b.name, src, err)
	}
	b.AddInput(name)
	return nil
}

// Execute runs step with the plugin's streaming flags and returns the
// execution record. A non-zero exit is returned as an ExecutionError along
// with the record.
func (b *Base) Execute(ctx context.Context, ws *Workspace, step exec.Step) (*results.ExecInfo, error) {
	step.ID = b.name
	if step.Workdir == "" {
		step.Workdir = ws.Dir
	}
	step.ShowStdout = b.ShowStdout
	step.ShowStderr = b.ShowStderr
	step.Stdout = ws.Stdout
	step.Stderr = ws.Stderr

	ws.Logger.Debug("executing", "cmd", step.Cmd, "dir", step.Workdir)
	res, err := exec.Run(ctx, step)
	if err != nil {
		return nil, err
	}

	info := results.NewExecInfo(step, res, step.LogFile == "")
	if !res.Succeeded() {
		return info, errors.NewExecutionError(b.name, res.ExitCode, res.Stderr)
	}
	return info, nil
}

// CollectOutputs lists every file in the workspace that is not an input,
// as slash-separated paths relative to the workspace, sorted. Files of a
// caller-provided workdir that the run left untouched are not outputs.
func (b *Base) CollectOutputs(ws *Workspace) ([]string, error) {
	isInput := make(map[string]bool, len(b.inputs))
	for _, in := range b.inputs {
		isInput[in] = true
	}

	var outputs []string
	err := filepath.WalkDir(ws.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(ws.Dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !isInput[rel] && !ws.preexisting(rel, d) {
			outputs = append(outputs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: list outputs: %w", b.name, err)
	}
	sort.Strings(outputs)
	return outputs, nil
}

// RequireOutputs fails with OutputNotFound for the first name that is not a
// file in the workspace.
func (b *Base) RequireOutputs(ws *Workspace, names ...string) error {
	for _, name := range names {
		info, err := os.Stat(ws.Path(name))
		if err != nil || info.IsDir() {
			return errors.NewOutputNotFoundError(b.name, ws.Path(name))
		}
	}
	return nil
}

// NewResults builds the record of a run in ws.
func (b *Base) NewResults(ws *Workspace, p *params.Parameters, info *results.ExecInfo, outputs []string, payload results.Payload) (*results.Results, error) {
	return results.New(results.Spec{
		Plugin:     b.name,
		Name:       ws.Name,
		Time:       ws.Time,
		Parameters: p,
		ExecInfo:   info,
		BasePath:   ws.Dir,
		Inputs:     b.Inputs(),
		Outputs:    outputs,
		Payload:    payload,
	})
}

// Postrun records every non-input file as an output, without a payload.
func (b *Base) Postrun(_ context.Context, ws *Workspace, p *params.Parameters, info *results.ExecInfo) (*results.Results, error) {
	outputs, err := b.CollectOutputs(ws)
	if err != nil {
		return nil, err
	}
	return b.NewResults(ws, p, info, outputs, nil)
}

// CopyFile copies src to dst, creating dst's directory.
func CopyFile(src, dst string) error {
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
