package exec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/felixgeelhaar/watts/internal/errors"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestRunCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", `echo out; touch marker; echo "err $WATTS_TEST" >&2`)
	workdir := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(workdir, 0755))

	res, err := Run(context.Background(), Step{
		ID:      "tool",
		Cmd:     []string{script},
		Workdir: workdir,
		Env:     map[string]string{"WATTS_TEST": "value"},
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "out\n", res.Stdout)
	assert.FileExists(t, filepath.Join(workdir, "marker"))
	assert.Equal(t, "err value\n", res.Stderr)
	assert.False(t, res.EndTime.Before(res.StartTime))
	assert.Equal(t, res.EndTime.Sub(res.StartTime), res.Duration)
}

func TestRunStreamsWhenShown(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "echo hello; echo oops >&2\n")

	var out, errOut bytes.Buffer
	logFile := filepath.Join(dir, "tool_log.txt")
	res, err := Run(context.Background(), Step{
		ID:         "tool",
		Cmd:        []string{script},
		ShowStdout: true,
		ShowStderr: false,
		Stdout:     &out,
		Stderr:     &errOut,
		LogFile:    logFile,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello\n", out.String())
	assert.Empty(t, errOut.String(), "stderr must stay quiet unless shown")
	assert.Equal(t, "oops\n", res.Stderr)

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(logged))
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "echo failing >&2; exit 3\n")

	res, err := Run(context.Background(), Step{ID: "tool", Cmd: []string{script}})
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "failing\n", res.Stderr)
}

func TestRunMissingExecutable(t *testing.T) {
	_, err := Run(context.Background(), Step{ID: "ghost", Cmd: []string{"watts-no-such-binary"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, werrors.ErrExecutableNotFound))

	_, err = Run(context.Background(), Step{ID: "empty"})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", "exec sleep 5\n")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, Step{ID: "tool", Cmd: []string{script}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"A=1"}, map[string]string{"C": "3", "B": "2"})
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, env)
	assert.Equal(t, []string{"A=1"}, mergeEnv([]string{"A=1"}, nil))
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("input"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.txt"), []byte("output"), 0644))

	m := CreateManifest("run-1", "OpenMC", []string{"openmc"}, 0, 2*time.Second)
	if m.RunID != "run-1" || m.Plugin != "OpenMC" {
		t.Fatalf("unexpected manifest identity: %+v", m)
	}
	if m.Duration != "2s" {
		t.Errorf("Duration = %q, want 2s", m.Duration)
	}

	require.NoError(t, m.AddInputHash("in.txt", filepath.Join(dir, "in.txt")))
	require.NoError(t, m.AddOutputHash("out.txt", filepath.Join(dir, "out.txt")))
	assert.Len(t, m.InputHashes["in.txt"], 64, "blake3 digests are 32 bytes")
	assert.Error(t, m.AddOutputHash("gone", filepath.Join(dir, "gone")))

	require.NoError(t, SaveManifest(m, dir))
	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.InputHashes, loaded.InputHashes)
	assert.Empty(t, loaded.Verify(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.txt"), []byte("tampered"), 0644))
	assert.Equal(t, []string{"out.txt"}, loaded.Verify(dir))
}

func TestHashFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("same"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("same"), 0644))

	ha, err := HashFile(a)
	require.NoError(t, err)
	hb, err := HashFile(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.True(t, strings.Trim(ha, "0123456789abcdef") == "")
}
