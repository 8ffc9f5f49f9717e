package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"sort"
	"time"

	werrors "github.com/felixgeelhaar/watts/internal/errors"
)

// Run executes step as a subprocess and waits for it to finish. A non-zero
// exit status is reported through Result.ExitCode, not as an error; an error
// is returned only when the process could not be started or the context
// was cancelled.
func Run(ctx context.Context, step Step) (*Result, error) {
	if len(step.Cmd) == 0 {
		return nil, fmt.Errorf("step %s has no command", step.ID)
	}

	path, err := osexec.LookPath(step.Cmd[0])
	if err != nil {
		return nil, werrors.NewExecutableNotFoundError(step.ID, step.Cmd[0])
	}

	cmd := osexec.CommandContext(ctx, path, step.Cmd[1:]...)
	cmd.Dir = step.Workdir
	env := step.Env
	if step.Workdir != "" {
		if abs, err := filepath.Abs(step.Workdir); err == nil {
			env = withPWD(env, abs)
		}
	}
	cmd.Env = mergeEnv(os.Environ(), env)

	var stdout, stderr bytes.Buffer
	stdoutWriters := []io.Writer{&stdout}
	stderrWriters := []io.Writer{&stderr}

	if step.ShowStdout {
		stdoutWriters = append(stdoutWriters, orDefault(step.Stdout, os.Stdout))
	}
	if step.ShowStderr {
		stderrWriters = append(stderrWriters, orDefault(step.Stderr, os.Stderr))
	}
	if step.LogFile != "" {
		logFile, err := os.Create(step.LogFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		defer logFile.Close()
		stdoutWriters = append(stdoutWriters, logFile)
	}

	cmd.Stdout = io.MultiWriter(stdoutWriters...)
	cmd.Stderr = io.MultiWriter(stderrWriters...)

	startTime := time.Now()
	err = cmd.Run()
	endTime := time.Now()

	exitCode := 0
	if err != nil {
		var exitErr *osexec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute %s: %w", step.Cmd[0], err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s interrupted: %w", step.ID, ctxErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}, nil
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}

// mergeEnv appends extra to base in key order; later entries win in os/exec.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}

func withPWD(env map[string]string, dir string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out["PWD"] = dir
	return out
}

// LookPath resolves an executable the same way Run does.
func LookPath(name string) (string, error) {
	return osexec.LookPath(name)
}
