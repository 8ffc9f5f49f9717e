package plugin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
	"github.com/felixgeelhaar/watts/internal/database"
	werrors "github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/results"
)

func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	return log.New(cfg)
}

// fakePlugin writes one input and one output and records the workspace.
type fakePlugin struct {
	*Base
	failAt   string
	ws       *Workspace
	cleaned  bool
	cleanDir bool
}

func newFake(failAt string) *fakePlugin {
	return &fakePlugin{Base: NewBase("Fake"), failAt: failAt}
}

func (f *fakePlugin) Prerun(_ context.Context, ws *Workspace, p *params.Parameters) error {
	f.ws = ws
	if f.failAt == TaskPrerun {
		return errors.New("prerun boom")
	}
	f.ResetInputs()
	r, _ := p.Float("radius")
	if err := os.WriteFile(ws.Path("in.txt"), []byte(params.FormatValue(r)), 0644); err != nil {
		return err
	}
	f.AddInput("in.txt")
	return nil
}

func (f *fakePlugin) Run(_ context.Context, ws *Workspace) (*results.ExecInfo, error) {
	if f.failAt == TaskRun {
		return nil, werrors.NewExecutionError("Fake", 3, "bad input")
	}
	if err := os.WriteFile(ws.Path("out.txt"), []byte("ok"), 0644); err != nil {
		return nil, err
	}
	return &results.ExecInfo{Command: []string{"fake"}}, nil
}

func (f *fakePlugin) Postrun(ctx context.Context, ws *Workspace, p *params.Parameters, info *results.ExecInfo) (*results.Results, error) {
	if f.failAt == TaskPostrun {
		return nil, werrors.NewOutputNotFoundError("Fake", ws.Path("missing"))
	}
	return f.Base.Postrun(ctx, ws, p, info)
}

func (f *fakePlugin) Cleanup(_ context.Context, ws *Workspace) error {
	f.cleaned = true
	_, err := os.Stat(ws.Dir)
	f.cleanDir = err == nil
	return nil
}

func radius(t *testing.T, r float64) *params.Parameters {
	t.Helper()
	p := params.New()
	require.NoError(t, p.Set("radius", r))
	return p
}

func TestPhaseTransition(t *testing.T) {
	p := PhaseIdle
	var err error
	for _, next := range []Phase{PhasePrerun, PhaseRunning, PhasePostrun, PhaseDone} {
		p, err = p.Transition(next)
		require.NoError(t, err)
	}
	assert.True(t, p.Terminal())

	_, err = PhaseDone.Transition(PhaseFailed)
	assert.Error(t, err, "terminal phases stay terminal")

	_, err = PhaseIdle.Transition(PhaseRunning)
	assert.Error(t, err, "phases cannot be skipped")

	for _, from := range []Phase{PhaseIdle, PhasePrerun, PhaseRunning, PhasePostrun} {
		got, err := from.Transition(PhaseFailed)
		require.NoError(t, err)
		assert.Equal(t, PhaseFailed, got)
	}
}

func TestInvokeStoresResults(t *testing.T) {
	root := t.TempDir()
	db, err := database.Open(database.Config{Path: root, Logger: quietLogger()})
	require.NoError(t, err)
	defer db.Close()

	cps := checkpoint.ForDatabase(root)
	pl := newFake("")
	p := radius(t, 6.38)

	res, err := Invoke(context.Background(), pl, p, InvokeOptions{
		Name:        "sphere",
		DB:          db,
		Checkpoints: cps,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "sphere", res.Name())
	assert.Equal(t, []string{"in.txt"}, res.Inputs())
	assert.Equal(t, []string{"out.txt"}, res.Outputs())
	assert.Equal(t, db.Path(), filepath.Dir(db.RunDirOf(res)))
	assert.FileExists(t, res.OutputPaths()[0])

	assert.NoDirExists(t, pl.ws.Dir, "temporary workspace removed")
	assert.True(t, pl.cleaned)
	assert.True(t, pl.cleanDir, "cleanup runs before the workspace is removed")

	require.NoError(t, p.Set("radius", 1.0))
	last, err := db.Last()
	require.NoError(t, err)
	v, err := last.Parameters().Float("radius")
	require.NoError(t, err)
	assert.Equal(t, 6.38, v, "caller mutation does not leak into stored results")

	ids, err := cps.List()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	state, err := cps.Load(ids[0])
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, state.Status)
	id, _ := state.GetMetadata("result_id")
	assert.Equal(t, res.ID(), id)
}

func TestInvokeFailureAbortsAndCleansUp(t *testing.T) {
	for _, phase := range []string{TaskPrerun, TaskRun, TaskPostrun} {
		t.Run(phase, func(t *testing.T) {
			root := t.TempDir()
			db, err := database.Open(database.Config{Path: root, Logger: quietLogger()})
			require.NoError(t, err)
			defer db.Close()
			cps := checkpoint.ForDatabase(root)

			pl := newFake(phase)
			res, err := Invoke(context.Background(), pl, radius(t, 1), InvokeOptions{
				DB: db, Checkpoints: cps, Logger: quietLogger(),
			})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, pl.cleaned)
			assert.NoDirExists(t, pl.ws.Dir)

			n, err := db.Len()
			require.NoError(t, err)
			assert.Zero(t, n, "failed runs are never stored")

			ids, err := cps.List()
			require.NoError(t, err)
			require.Len(t, ids, 1)
			state, err := cps.Load(ids[0])
			require.NoError(t, err)
			assert.Equal(t, checkpoint.StatusFailed, state.Status)
			task, _ := state.Task(phase)
			assert.Equal(t, checkpoint.StatusFailed, task.Status)
			assert.NotEmpty(t, task.Error)
		})
	}
}

func TestInvokeErrorsKeepTheirCode(t *testing.T) {
	_, err := Invoke(context.Background(), newFake(TaskRun), nil, InvokeOptions{Logger: quietLogger()})
	assert.True(t, errors.Is(err, werrors.ErrExecution))

	_, err = Invoke(context.Background(), newFake(TaskPostrun), nil, InvokeOptions{Logger: quietLogger()})
	assert.True(t, errors.Is(err, werrors.ErrOutputNotFound))
}

func TestInvokeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl := newFake("")
	_, err := Invoke(ctx, pl, radius(t, 1), InvokeOptions{Logger: quietLogger()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pl.ws, "no phase runs after cancellation")
}

func TestInvokeObserver(t *testing.T) {
	var seen []string
	observe := func(s *checkpoint.State, task string) {
		tk, ok := s.Task(task)
		require.True(t, ok)
		seen = append(seen, task+":"+string(tk.Status))
	}
	_, err := Invoke(context.Background(), newFake(TaskPostrun), radius(t, 1), InvokeOptions{
		Observer: observe,
		Logger:   quietLogger(),
	})
	require.Error(t, err)
	assert.Equal(t, []string{
		"prerun:running", "prerun:completed",
		"run:running", "run:completed",
		"postrun:running", "postrun:failed",
	}, seen)
}

func TestInvokeWithoutDatabaseKeepsWorkspace(t *testing.T) {
	pl := newFake("")
	res, err := Invoke(context.Background(), pl, radius(t, 2), InvokeOptions{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(res.BasePath()) })

	assert.Empty(t, res.ID())
	assert.FileExists(t, res.OutputPaths()[0])
}

func TestInvokeCallerWorkdirIsKept(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	pl := newFake(TaskRun)
	_, err := Invoke(context.Background(), pl, radius(t, 2), InvokeOptions{Workdir: dir, Logger: quietLogger()})
	require.Error(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, "in.txt"))
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on Windows")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestTemplatePlugin(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "input.tmpl")
	extra := filepath.Join(dir, "extra.tmpl")
	data := filepath.Join(dir, "cross_sections.dat")
	require.NoError(t, os.WriteFile(tmpl, []byte("radius={{ .radius }}\n"), 0644))
	require.NoError(t, os.WriteFile(extra, []byte("name={{ .name }}\n"), 0644))
	require.NoError(t, os.WriteFile(data, []byte("xs"), 0644))

	exe := writeScript(t, dir, "solver", `cat "$1" > result.out; echo solved`)

	pl, err := NewTemplatePlugin("Solver", "solver.inp", Options{
		Template:       tmpl,
		ExtraTemplates: map[string]string{"": extra},
		ExtraInputs:    []string{data},
	})
	require.NoError(t, err)
	require.NoError(t, pl.SetExecutable(exe))

	p, err := params.FromMap(map[string]any{"radius": 6.38, "name": "core"})
	require.NoError(t, err)

	res, err := Invoke(context.Background(), pl, p, InvokeOptions{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(res.BasePath()) })

	assert.Equal(t, []string{"solver.inp", "extra.tmpl", "cross_sections.dat"}, res.Inputs())
	assert.Equal(t, []string{"result.out"}, res.Outputs())
	out, err := os.ReadFile(res.OutputPaths()[0])
	require.NoError(t, err)
	assert.Equal(t, "radius=6.38\n", string(out))
	assert.Equal(t, "solved\n", res.ExecInfo().Stdout)
}

func TestCallerWorkdirFilesAreNotOutputsUnlessRewritten(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "input.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("radius={{ .radius }}\n"), 0644))
	exe := writeScript(t, dir, "solver", `cat "$1" > result.out`)

	work := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(filepath.Join(work, "old"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "old", "notes.txt"), []byte("earlier run"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(work, "result.out"), []byte("stale"), 0644))

	pl, err := NewTemplatePlugin("Solver", "solver.inp", Options{Template: tmpl})
	require.NoError(t, err)
	require.NoError(t, pl.SetExecutable(exe))

	res, err := Invoke(context.Background(), pl, radius(t, 3), InvokeOptions{Workdir: work, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{"result.out"}, res.Outputs())
	out, err := os.ReadFile(res.OutputPaths()[0])
	require.NoError(t, err)
	assert.Equal(t, "radius=3\n", string(out))
	assert.FileExists(t, filepath.Join(work, "old", "notes.txt"))
}

func TestTemplatePluginMissingParameter(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "input.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("{{ .radius }} {{ .height }}"), 0644))

	pl, err := NewTemplatePlugin("Solver", "", Options{Template: tmpl})
	require.NoError(t, err)
	assert.Equal(t, "input.tmpl", pl.InputName)

	_, err = Invoke(context.Background(), pl, radius(t, 1), InvokeOptions{Logger: quietLogger()})
	assert.True(t, errors.Is(err, werrors.ErrMissingParameter))
}

func TestTemplatePluginNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "input.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("x"), 0644))
	exe := writeScript(t, dir, "solver", "echo 'diverged' >&2; exit 2")

	pl, err := NewTemplatePlugin("Solver", "", Options{Template: tmpl})
	require.NoError(t, err)
	require.NoError(t, pl.SetExecutable(exe))

	_, err = Invoke(context.Background(), pl, nil, InvokeOptions{Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, werrors.ErrExecution))
	assert.Contains(t, err.Error(), "diverged")
}

func TestSetExecutableMissing(t *testing.T) {
	b := NewBase("Solver")
	err := b.SetExecutable(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, werrors.ErrExecutableNotFound))
	assert.Empty(t, b.Executable())
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.Register("OpenMC", "Monte Carlo transport", func(Options) (Plugin, error) { return newFake(""), nil })

	assert.Equal(t, []string{"OpenMC"}, m.Names())
	assert.Equal(t, "Monte Carlo transport", m.Description("openmc"))

	pl, err := m.New("openmc", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Fake", pl.Name())

	_, err = m.New("serpent", Options{})
	assert.ErrorContains(t, err, "available: OpenMC")
}
