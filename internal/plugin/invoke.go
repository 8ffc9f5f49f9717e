package plugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
	"github.com/felixgeelhaar/watts/internal/database"
	"github.com/felixgeelhaar/watts/internal/log"
	"github.com/felixgeelhaar/watts/internal/params"
	"github.com/felixgeelhaar/watts/internal/results"
)

// Checkpoint task IDs, in execution order.
const (
	TaskPrerun  = "prerun"
	TaskRun     = "run"
	TaskPostrun = "postrun"
	TaskStore   = "store"
)

// InvokeOptions configure a single invocation.
type InvokeOptions struct {
	// Name is the workflow name recorded in the Results.
	Name string

	// DB receives the Results on success. Nil skips storage.
	DB *database.Database

	// Workdir runs the plugin in an existing directory instead of a fresh
	// temporary one. A caller-provided directory is never removed, and files
	// already in it are only outputs if the run rewrites them.
	Workdir string

	// KeepWorkdir keeps the temporary directory after the run.
	KeepWorkdir bool

	// Checkpoints records the phase transitions. Nil disables checkpoints.
	Checkpoints *checkpoint.Manager

	// Observer is called after every task transition with the run state.
	Observer func(state *checkpoint.State, task string)

	Logger *log.Logger

	// Destinations for streamed tool output; default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Invoke runs the Prerun, Run and Postrun phases of pl in order and appends
// the Results to the database when one is configured. The first failing
// phase aborts the invocation and no Results are returned.
//
// The temporary workspace is removed on every exit path, except after a
// successful run without a database, where it holds the only copy of the
// outputs the returned Results refer to.
func Invoke(ctx context.Context, pl Plugin, p *params.Parameters, opts InvokeOptions) (*results.Results, error) {
	if p == nil {
		p = params.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	logger = logger.With("plugin", pl.Name())

	dir, owned, err := prepareWorkdir(opts.Workdir, pl.Name())
	if err != nil {
		return nil, err
	}
	removeDir := owned && !opts.KeepWorkdir
	defer func() {
		if removeDir {
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("failed to remove workspace", "dir", dir, "error", err)
			}
		}
	}()

	ws := &Workspace{
		Dir:    dir,
		Name:   opts.Name,
		Time:   time.Now(),
		Logger: logger,
		Stdout: orDefault(opts.Stdout, os.Stdout),
		Stderr: orDefault(opts.Stderr, os.Stderr),
	}
	if !owned {
		if ws.existing, err = snapshot(dir); err != nil {
			return nil, fmt.Errorf("scan workdir: %w", err)
		}
	}

	if c, ok := pl.(Cleaner); ok {
		defer func() {
			if err := c.Cleanup(context.WithoutCancel(ctx), ws); err != nil {
				logger.Warn("cleanup failed", "error", err)
			}
		}()
	}

	tasks := []string{TaskPrerun, TaskRun, TaskPostrun}
	if opts.DB != nil {
		tasks = append(tasks, TaskStore)
	}
	tr := newTracker(opts.Checkpoints, pl.Name(), opts.Name, tasks, logger)
	tr.observe = opts.Observer
	tr.state.SetMetadata("workdir", dir)

	inv := &invocation{ctx: ctx, phase: PhaseIdle, tracker: tr, logger: logger}

	if err := inv.step(PhasePrerun, TaskPrerun, func() error {
		return pl.Prerun(ctx, ws, p)
	}); err != nil {
		return nil, err
	}

	var info *results.ExecInfo
	if err := inv.step(PhaseRunning, TaskRun, func() error {
		var err error
		info, err = pl.Run(ctx, ws)
		return err
	}); err != nil {
		return nil, err
	}

	var res *results.Results
	if err := inv.step(PhasePostrun, TaskPostrun, func() error {
		var err error
		res, err = pl.Postrun(ctx, ws, p, info)
		if err == nil && res == nil {
			err = fmt.Errorf("%s: postrun returned no results", pl.Name())
		}
		return err
	}); err != nil {
		return nil, err
	}

	if opts.DB != nil {
		if err := inv.task(TaskStore, func() error {
			stored, err := opts.DB.Add(res)
			if err != nil {
				return err
			}
			res = stored
			tr.state.SetMetadata("result_id", stored.ID())
			tr.state.AddArtifact(TaskStore, stored.BasePath())
			return nil
		}); err != nil {
			return nil, err
		}
	} else if owned && !opts.KeepWorkdir {
		removeDir = false
		logger.Info("no database configured, keeping workspace", "dir", dir)
	}

	if _, err := inv.advance(PhaseDone); err != nil {
		return nil, err
	}
	logger.Info("run complete", "id", res.ID(), "duration", time.Since(ws.Time).Round(time.Millisecond))
	return res, nil
}

type invocation struct {
	ctx     context.Context
	phase   Phase
	tracker *tracker
	logger  *log.Logger
}

func (inv *invocation) advance(next Phase) (Phase, error) {
	p, err := inv.phase.Transition(next)
	inv.phase = p
	return p, err
}

// step enters phase and runs fn as the checkpoint task id.
func (inv *invocation) step(phase Phase, id string, fn func() error) error {
	if _, err := inv.advance(phase); err != nil {
		return err
	}
	inv.logger.Debug("entering phase", "phase", phase)
	return inv.task(id, fn)
}

func (inv *invocation) task(id string, fn func() error) error {
	if err := inv.ctx.Err(); err != nil {
		return inv.fail(id, fmt.Errorf("%s interrupted: %w", id, err))
	}
	inv.tracker.update(id, checkpoint.StatusRunning, nil)
	if err := fn(); err != nil {
		return inv.fail(id, err)
	}
	inv.tracker.update(id, checkpoint.StatusCompleted, nil)
	return nil
}

func (inv *invocation) fail(id string, err error) error {
	inv.advance(PhaseFailed)
	inv.tracker.update(id, checkpoint.StatusFailed, err)
	inv.logger.WithError(err).Debug("phase failed", "task", id)
	return err
}

// prepareWorkdir returns the workspace directory and whether Invoke owns it.
func prepareWorkdir(dir, plugin string) (string, bool, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", false, fmt.Errorf("create workdir: %w", err)
		}
		return dir, false, nil
	}
	tmp, err := os.MkdirTemp("", "watts-"+plugin+"-")
	if err != nil {
		return "", false, fmt.Errorf("create workdir: %w", err)
	}
	return tmp, true, nil
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}

// tracker mirrors task transitions into a checkpoint file. Save failures are
// logged and never fail the run.
type tracker struct {
	mgr     *checkpoint.Manager
	state   *checkpoint.State
	logger  *log.Logger
	observe func(*checkpoint.State, string)
}

func newTracker(mgr *checkpoint.Manager, plugin, name string, tasks []string, logger *log.Logger) *tracker {
	id := uuid.Must(uuid.NewV7()).String()
	state := checkpoint.NewState(id, plugin, tasks...)
	state.Name = name
	return &tracker{mgr: mgr, state: state, logger: logger.With("checkpoint", id)}
}

func (t *tracker) update(task string, status checkpoint.Status, err error) {
	t.state.UpdateTask(task, status, err)
	if t.observe != nil {
		t.observe(t.state, task)
	}
	if t.mgr == nil {
		return
	}
	if err := t.mgr.Save(t.state); err != nil {
		t.logger.Warn("failed to save checkpoint", "error", err)
	}
}
