// Package openmc drives the OpenMC Monte Carlo transport code.
//
// The model is produced by a Builder that writes geometry.xml, materials.xml
// and settings.xml into the workspace. After the run the combined
// k-effective estimate is read from the OpenMC log and the statepoint
// files are listed; the HDF5 contents of the statepoints are not read.
package openmc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/plugin"
	"github.com/felixgeelhaar/watts/internal/results"
	"github.com/felixgeelhaar/watts/internal/template"
)

const (
	Name          = "OpenMC"
	EnvExecutable = "OPENMC_EXECUTABLE"
	LogFile       = "OpenMC_log.txt"
	SummaryFile   = "summary.h5"
	PayloadKind   = "openmc.results"

	defaultExecutable = "openmc"
)

func init() {
	results.RegisterPayload(PayloadKind, func() results.Payload { return &Output{} })
}

// Keff is a k-effective estimate with its standard deviation.
type Keff struct {
	N float64 `json:"n"`
	S float64 `json:"s"`
}

func (k Keff) String() string {
	return fmt.Sprintf("%.5f +/- %.5f", k.N, k.S)
}

// Output is the OpenMC payload of a run.
type Output struct {
	Keff        Keff     `json:"keff"`
	Statepoints []string `json:"statepoints"`
}

// Kind implements results.Payload.
func (*Output) Kind() string { return PayloadKind }

// Builder writes the model input files for p into dir.
type Builder func(p *params.Parameters, dir string) error

// ModelBuilder adapts a function constructing a Model into a Builder.
func ModelBuilder(build func(p *params.Parameters) (*Model, error)) Builder {
	return func(p *params.Parameters, dir string) error {
		m, err := build(p)
		if err != nil {
			return err
		}
		return m.Export(dir)
	}
}

// TemplateBuilder renders geometry.xml, materials.xml and settings.xml
// templates found in dir.
func TemplateBuilder(dir string) (Builder, error) {
	renderers := make([]*template.Renderer, 0, len(InputFiles))
	for _, name := range InputFiles {
		r, err := template.NewRenderer(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		renderers = append(renderers, r)
	}
	return func(p *params.Parameters, out string) error {
		for _, r := range renderers {
			if err := r.RenderFile(p, filepath.Join(out, r.Path())); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// Plugin runs OpenMC on a model produced by a Builder.
type Plugin struct {
	*plugin.Base

	Builder Builder

	// Args are passed to the executable, e.g. {"-s", "8"} for threads.
	Args []string
}

// ExecutableName is OPENMC_EXECUTABLE, or openmc when unset.
func ExecutableName() string {
	if exe := os.Getenv(EnvExecutable); exe != "" {
		return exe
	}
	return defaultExecutable
}

// New creates an OpenMC plugin. The executable is OPENMC_EXECUTABLE when
// set and openmc on PATH otherwise.
func New(builder Builder, opts plugin.Options) (*Plugin, error) {
	if builder == nil {
		return nil, fmt.Errorf("%s: a model builder is required", Name)
	}
	base := plugin.NewBase(Name)
	base.ShowStdout = opts.ShowStdout
	base.ShowStderr = opts.ShowStderr

	exe := ExecutableName()
	if err := base.SetExecutable(exe); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, fmt.Sprintf("cannot resolve OpenMC executable %q", exe), err).
			WithSuggestion(fmt.Sprintf("Install OpenMC or set %s to its path", EnvExecutable))
	}
	return &Plugin{Base: base, Builder: builder}, nil
}

// Prerun builds the model in the workspace.
func (p *Plugin) Prerun(_ context.Context, ws *plugin.Workspace, prm *params.Parameters) error {
	p.ResetInputs()
	if err := p.Builder(prm, ws.Dir); err != nil {
		return fmt.Errorf("%s: build model: %w", Name, err)
	}
	for _, name := range InputFiles {
		if _, err := os.Stat(ws.Path(name)); err != nil {
			return fmt.Errorf("%s: model builder did not write %s", Name, name)
		}
		p.AddInput(name)
	}
	return nil
}

// Run executes OpenMC in the workspace.
func (p *Plugin) Run(ctx context.Context, ws *plugin.Workspace) (*results.ExecInfo, error) {
	cmd := append([]string{p.Executable()}, p.Args...)
	return p.Execute(ctx, ws, exec.Step{Cmd: cmd, LogFile: ws.Path(LogFile)})
}

// Postrun reads k-effective from the log and lists the statepoints.
func (p *Plugin) Postrun(_ context.Context, ws *plugin.Workspace, prm *params.Parameters, info *results.ExecInfo) (*results.Results, error) {
	if err := p.RequireOutputs(ws, LogFile); err != nil {
		return nil, err
	}
	keff, err := ReadKeff(ws.Path(LogFile))
	if err != nil {
		return nil, err
	}
	statepoints, err := Statepoints(ws.Dir)
	if err != nil {
		return nil, err
	}
	outputs, err := p.CollectOutputs(ws)
	if err != nil {
		return nil, err
	}
	return p.NewResults(ws, prm, info, outputs, &Output{Keff: keff, Statepoints: statepoints})
}

var keffLine = regexp.MustCompile(`Combined k-effective\s*=\s*([-+0-9.eE]+)\s*\+/-\s*([-+0-9.eE]+)`)

// ReadKeff returns the combined k-effective reported in an OpenMC log.
func ReadKeff(logPath string) (Keff, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return Keff{}, errors.NewOutputNotFoundError(Name, logPath)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := keffLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		n, errN := strconv.ParseFloat(m[1], 64)
		s, errS := strconv.ParseFloat(m[2], 64)
		if errN != nil || errS != nil {
			break
		}
		return Keff{N: n, S: s}, nil
	}
	if err := sc.Err(); err != nil {
		return Keff{}, fmt.Errorf("read %s: %w", logPath, err)
	}
	return Keff{}, errors.New(errors.ErrCodeOutputInvalid, fmt.Sprintf("%s: no combined k-effective in %s", Name, logPath)).
		WithSuggestion("Check that the run completed its active batches")
}

var statepointName = regexp.MustCompile(`^statepoint\.(\d+)\.h5$`)

// Statepoints lists the statepoint files in dir ordered by batch.
func Statepoints(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type sp struct {
		name  string
		batch int
	}
	var found []sp
	for _, e := range entries {
		m := statepointName.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		batch, _ := strconv.Atoi(m[1])
		found = append(found, sp{e.Name(), batch})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].batch < found[j].batch })

	names := make([]string, len(found))
	for i, s := range found {
		names[i] = s.name
	}
	return names, nil
}
