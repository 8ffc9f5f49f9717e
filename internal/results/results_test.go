package results

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
)

type testPayload struct {
	Keff float64  `json:"keff"`
	Tags []string `json:"tags"`
}

func (*testPayload) Kind() string { return "test" }

func init() {
	RegisterPayload("test", func() Payload { return &testPayload{} })
}

func newParams(t *testing.T) *params.Parameters {
	t.Helper()
	p := params.New()
	require.NoError(t, p.Set("radius", 6.38, params.WithUnit("cm")))
	return p
}

func TestNewCopiesInputs(t *testing.T) {
	p := newParams(t)
	inputs := []string{"a.xml"}
	info := &ExecInfo{Command: []string{"openmc"}, ExitCode: 0}

	r, err := New(Spec{Plugin: "OpenMC", Parameters: p, ExecInfo: info, Inputs: inputs, BasePath: "/tmp/run"})
	require.NoError(t, err)

	require.NoError(t, p.Set("radius", 1.0))
	inputs[0] = "mutated"
	info.Command[0] = "mutated"

	v, _ := r.Parameters().Get("radius")
	assert.Equal(t, 6.38, v, "later caller mutation must not leak into the record")
	assert.Equal(t, []string{"a.xml"}, r.Inputs())
	assert.Equal(t, []string{"openmc"}, r.ExecInfo().Command)
	assert.Equal(t, []string{"/tmp/run/a.xml"}, r.InputPaths())
	assert.False(t, r.Time().IsZero())

	r.Parameters().Delete("radius")
	assert.True(t, r.Parameters().Has("radius"), "accessor returns a copy")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Spec{Parameters: params.New()})
	assert.Error(t, err)
	_, err = New(Spec{Plugin: "x"})
	assert.Error(t, err)
}

func TestNewExecInfo(t *testing.T) {
	start := time.Now()
	res := &exec.Result{ExitCode: 0, Stdout: "out", Stderr: "err", StartTime: start, EndTime: start.Add(time.Second), Duration: time.Second}
	step := exec.Step{Cmd: []string{"julia", "execute_ALEAF.jl"}, Workdir: "/opt/aleaf"}

	quiet := NewExecInfo(step, res, false)
	assert.Empty(t, quiet.Stdout)
	assert.Equal(t, "/opt/aleaf", quiet.Workdir)
	assert.Equal(t, time.Second, quiet.Duration)

	loud := NewExecInfo(step, res, true)
	assert.Equal(t, "out", loud.Stdout)
	assert.Equal(t, "err", loud.Stderr)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig, err := New(Spec{
		Plugin:     "OpenMC",
		Name:       "sphere",
		Time:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Parameters: newParams(t),
		ExecInfo:   &ExecInfo{Command: []string{"openmc"}, ExitCode: 0, Duration: 3 * time.Second},
		BasePath:   "/elsewhere",
		Inputs:     []string{"geometry.xml"},
		Outputs:    []string{"OpenMC_log.txt"},
		Payload:    &testPayload{Keff: 1.002, Tags: []string{"a"}},
	})
	require.NoError(t, err)
	stored := orig.Stored("run-1", dir)
	require.NoError(t, stored.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "run-1", loaded.ID())
	assert.Equal(t, dir, loaded.BasePath())
	assert.Equal(t, "sphere", loaded.Name())
	assert.True(t, orig.Time().Equal(loaded.Time()))
	assert.Equal(t, orig.Parameters().ToMap(), loaded.Parameters().ToMap())
	assert.Equal(t, orig.Inputs(), loaded.Inputs())
	assert.Equal(t, orig.Outputs(), loaded.Outputs())
	assert.Equal(t, 3*time.Second, loaded.ExecInfo().Duration)

	payload, ok := PayloadAs[*testPayload](loaded)
	require.True(t, ok)
	assert.Equal(t, 1.002, payload.Keff)

	assert.Empty(t, orig.ID(), "Stored must not modify the original")
}

func TestUnknownPayloadKindSurvives(t *testing.T) {
	dir := t.TempDir()
	data := `{"id":"x","plugin":"Other","time":"2024-01-01T00:00:00Z","parameters":[],"exec_info":{"command":null,"exit_code":0,"start_time":"0001-01-01T00:00:00Z","end_time":"0001-01-01T00:00:00Z","duration":0},"inputs":[],"outputs":[],"payload":{"kind":"mystery","data":{"a":1}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, RecordFile), []byte(data), 0644))

	loaded, err := Load(dir)
	require.NoError(t, err)
	raw, ok := PayloadAs[*RawPayload](loaded)
	require.True(t, ok)
	assert.Equal(t, "mystery", raw.Kind())
	assert.JSONEq(t, `{"a":1}`, string(raw.Data))

	// re-encoding keeps the raw data intact
	require.NoError(t, loaded.Save(dir))
	again, err := Load(dir)
	require.NoError(t, err)
	raw2, _ := PayloadAs[*RawPayload](again)
	assert.JSONEq(t, `{"a":1}`, string(raw2.Data))
}

func TestStdout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PyARC_log.txt"), []byte("log text"), 0644))

	withLog, err := New(Spec{Plugin: "PyARC", Parameters: params.New(), BasePath: dir, Outputs: []string{"PyARC_log.txt"}})
	require.NoError(t, err)
	out, err := withLog.Stdout()
	require.NoError(t, err)
	assert.Equal(t, "log text", out)

	captured, err := New(Spec{Plugin: "ALEAF", Parameters: params.New(), ExecInfo: &ExecInfo{Stdout: "captured"}})
	require.NoError(t, err)
	out, err = captured.Stdout()
	require.NoError(t, err)
	assert.Equal(t, "captured", out)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
