package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/watts/internal/checkpoint"
	werrors "github.com/felixgeelhaar/watts/internal/errors"
)

const tracerName = "github.com/felixgeelhaar/watts/internal/telemetry"

// RunTracer turns checkpoint transitions into spans. Observe has the shape
// of the plugin.InvokeOptions observer hook.
type RunTracer struct {
	ctx    context.Context
	tracer trace.Tracer
	run    trace.Span
	phases map[string]trace.Span
}

// StartRun opens the span of one plugin run.
//
//	ctx, rt := telemetry.StartRun(ctx, telemetry.GetTracerProvider(), "openmc", name)
//	defer rt.End(err)
func StartRun(ctx context.Context, tp trace.TracerProvider, plugin, name string) (context.Context, *RunTracer) {
	tracer := tp.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "run."+plugin, trace.WithAttributes(
		attribute.String("watts.plugin", plugin),
		attribute.String("watts.workflow", name),
	))
	return ctx, &RunTracer{
		ctx:    ctx,
		tracer: tracer,
		run:    span,
		phases: make(map[string]trace.Span),
	}
}

// Observe starts a phase span when task starts running and ends it when
// the task reaches a terminal status.
func (r *RunTracer) Observe(state *checkpoint.State, task string) {
	t, ok := state.Task(task)
	if !ok {
		return
	}
	if state.RunID != "" {
		r.run.SetAttributes(attribute.String("watts.run_id", state.RunID))
	}

	switch {
	case t.Status == checkpoint.StatusRunning:
		if _, open := r.phases[task]; open {
			return
		}
		_, span := r.tracer.Start(r.ctx, "phase."+task,
			trace.WithTimestamp(t.StartedAt),
			trace.WithAttributes(attribute.String("watts.phase", task)))
		r.phases[task] = span
	case t.Status.Terminal():
		span, open := r.phases[task]
		if !open {
			return
		}
		delete(r.phases, task)
		span.SetAttributes(attribute.Int("watts.artifacts", len(t.Artifacts)))
		if t.Status == checkpoint.StatusFailed {
			span.RecordError(errors.New(t.Error))
			span.SetStatus(codes.Error, t.Error)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End(trace.WithTimestamp(t.CompletedAt))
	}
}

// End closes phase spans left open by a cancelled run and then the run span.
func (r *RunTracer) End(err error) {
	for task, span := range r.phases {
		span.SetStatus(codes.Error, "not completed")
		span.End()
		delete(r.phases, task)
	}
	if err != nil {
		r.run.RecordError(err)
		r.run.SetStatus(codes.Error, err.Error())
		if code := werrors.CodeOf(err); code != "" {
			r.run.SetAttributes(attribute.String("watts.error_code", string(code)))
		}
	} else {
		r.run.SetStatus(codes.Ok, "")
	}
	r.run.End()
}
