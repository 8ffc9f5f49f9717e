package pyarc

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

	"github.com/felixgeelhaar/watts/internal/database"
	werrors "github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/plugin"
	"github.com/felixgeelhaar/watts/internal/results"
)

func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	return log.New(cfg)
}

// fakePython stands in for the interpreter. It receives the driver script
// followed by the PyARC dir, input, scratch dir, output dir and results file.
const fakePython = `test -f "$1" || exit 7
test -d "$2" || exit 8
test -f "$3" || exit 9
echo "PyARC finished for $(cat "$3")"
printf '{"keff": 1.0123, "peak_power": [1, 2]}' > "$6"
`

func setup(t *testing.T, python string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on Windows")
	}
	dir := t.TempDir()
	t.Setenv(EnvDir, dir)

	tmpl := filepath.Join(dir, "lmfr.son")
	require.NoError(t, os.WriteFile(tmpl, []byte("assembly_pitch={{ .assembly_pitch }}"), 0644))
	exe := filepath.Join(dir, "python")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+python), 0755))

	p, err := New(plugin.Options{Template: tmpl})
	require.NoError(t, err)
	require.NoError(t, p.SetExecutable(exe))
	return p
}

func pitch(t *testing.T) *params.Parameters {
	t.Helper()
	p := params.New()
	require.NoError(t, p.Set("assembly_pitch", 20.0, params.WithUnit("cm")))
	return p
}

func TestNewRequiresPyARCDir(t *testing.T) {
	t.Setenv(EnvDir, "")
	_, err := New(plugin.Options{Template: "x.son"})
	assert.True(t, errors.Is(err, werrors.ErrConfiguration))
}

func TestRunPyARC(t *testing.T) {
	p := setup(t, fakePython)
	db, err := database.Open(database.Config{Path: t.TempDir(), Logger: quietLogger()})
	require.NoError(t, err)
	defer db.Close()

	res, err := plugin.Invoke(context.Background(), p, pitch(t), plugin.InvokeOptions{DB: db, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{InputName}, res.Inputs())
	assert.Equal(t, []string{LogFile, ResultsFile}, res.Outputs())

	stdout, err := res.Stdout()
	require.NoError(t, err)
	assert.Equal(t, "PyARC finished for assembly_pitch=20\n", stdout)

	data, ok := results.PayloadAs[*Data](res)
	require.True(t, ok)
	assert.Equal(t, 1.0123, data.Values["keff"])

	last, err := db.Last()
	require.NoError(t, err)
	stored, ok := results.PayloadAs[*Data](last)
	require.True(t, ok)
	assert.Equal(t, data.Values, stored.Values)
}

func TestMissingResults(t *testing.T) {
	p := setup(t, "echo ran\n")
	_, err := plugin.Invoke(context.Background(), p, pitch(t), plugin.InvokeOptions{Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, werrors.ErrOutputNotFound))
}

func TestInvalidResults(t *testing.T) {
	p := setup(t, `printf 'not json' > "$6"`+"\n")
	_, err := plugin.Invoke(context.Background(), p, pitch(t), plugin.InvokeOptions{Logger: quietLogger()})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeOutputInvalid, werrors.CodeOf(err))
}

func TestSetDir(t *testing.T) {
	p := setup(t, fakePython)
	err := p.SetDir(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, werrors.ErrExecutableNotFound))

	other := t.TempDir()
	require.NoError(t, p.SetDir(other))
	assert.Equal(t, other, p.Dir())
}
