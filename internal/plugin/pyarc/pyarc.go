// Package pyarc drives PyARC. PyARC is a Python library rather than a
// command line tool, so the plugin runs a small embedded driver script that
// imports it from PyARC_DIR and dumps the results object as JSON.
package pyarc

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/plugin"
	"github.com/felixgeelhaar/watts/internal/results"
)

const (
	Name        = "PyARC"
	EnvDir      = "PyARC_DIR"
	InputName   = "pyarc_input.son"
	ResultsFile = "pyarc_results.json"
	LogFile     = "PyARC_log.txt"
	PayloadKind = "pyarc.results"

	Python = "python3"
)

//go:embed driver.py
var driver []byte

func init() {
	results.RegisterPayload(PayloadKind, func() results.Payload { return &Data{} })
}

// Data holds PyARC's user_object.results.
type Data struct {
	Values map[string]any `json:"values"`
}

// Kind implements results.Payload.
func (*Data) Kind() string { return PayloadKind }

// Plugin runs PyARC on a templated SON input.
type Plugin struct {
	*plugin.TemplatePlugin

	dir string
}

// New creates a PyARC plugin. PyARC_DIR must be set.
func New(opts plugin.Options) (*Plugin, error) {
	dir := os.Getenv(EnvDir)
	if dir == "" {
		return nil, errors.NewConfigurationError(EnvDir, Name)
	}
	tp, err := plugin.NewTemplatePlugin(Name, InputName, opts)
	if err != nil {
		return nil, err
	}
	return &Plugin{TemplatePlugin: tp, dir: dir}, nil
}

// Dir returns the PyARC installation directory.
func (p *Plugin) Dir() string { return p.dir }

// SetDir points the plugin at another PyARC installation.
func (p *Plugin) SetDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.NewExecutableNotFoundError(Name, dir)
	}
	p.dir = dir
	return nil
}

// Run executes the driver with the configured Python interpreter.
func (p *Plugin) Run(ctx context.Context, ws *plugin.Workspace) (*results.ExecInfo, error) {
	if p.Executable() == "" {
		if err := p.SetExecutable(Python); err != nil {
			return nil, err
		}
	}

	script, err := os.CreateTemp("", "watts-pyarc-*.py")
	if err != nil {
		return nil, fmt.Errorf("%s: write driver: %w", Name, err)
	}
	defer os.Remove(script.Name())
	if _, err := script.Write(driver); err != nil {
		script.Close()
		return nil, fmt.Errorf("%s: write driver: %w", Name, err)
	}
	if err := script.Close(); err != nil {
		return nil, fmt.Errorf("%s: write driver: %w", Name, err)
	}

	scratch, err := os.MkdirTemp("", "watts-pyarc-work-")
	if err != nil {
		return nil, fmt.Errorf("%s: create scratch dir: %w", Name, err)
	}
	defer os.RemoveAll(scratch)

	return p.Execute(ctx, ws, exec.Step{
		Cmd:     []string{p.Executable(), script.Name(), p.dir, InputName, scratch, ws.Dir, ResultsFile},
		LogFile: ws.Path(LogFile),
	})
}

// Postrun parses the results JSON written by the driver.
func (p *Plugin) Postrun(_ context.Context, ws *plugin.Workspace, prm *params.Parameters, info *results.ExecInfo) (*results.Results, error) {
	if err := p.RequireOutputs(ws, ResultsFile); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(ws.Path(ResultsFile))
	if err != nil {
		return nil, err
	}
	data := &Data{}
	if err := json.Unmarshal(raw, &data.Values); err != nil {
		return nil, errors.Wrap(errors.ErrCodeOutputInvalid, fmt.Sprintf("%s: parse %s", Name, ResultsFile), err)
	}

	outputs, err := p.CollectOutputs(ws)
	if err != nil {
		return nil, err
	}
	return p.NewResults(ws, prm, info, outputs, data)
}
