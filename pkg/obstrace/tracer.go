// Package obstrace provides otel spans around the install/build/run
// pipeline, adapted from the teacher's pkg/harness/trace.Tracer (one
// span type per stage of its agentic loop) down to the stages this
// system actually has: closure+lock (install), snapshot population,
// materialize+compose (build), and a non-interactive turn (run). The
// teacher's LLM-generate, tool-execution, and compaction span types
// have no home here since this system never drives a harness's own
// model/tool loop; RecordEvent/RecordPermissionDecision are kept for
// the one ambient concern that does carry over, observing the
// run driver's permission handler decisions.
package obstrace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "agentspaces/pkg/orchestrator"

// Tracer wraps an otel Tracer with this system's span vocabulary.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer backed by the global otel TracerProvider.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewWithTracer wraps a caller-supplied Tracer, for tests that want a
// deterministic in-memory span recorder.
func NewWithTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// InstallSpan traces one Orchestrator.Install call.
type InstallSpan struct {
	span  trace.Span
	start time.Time
}

func (t *Tracer) StartInstall(ctx context.Context, roots []string) (context.Context, *InstallSpan) {
	ctx, span := t.tracer.Start(ctx, "install",
		trace.WithAttributes(
			attribute.StringSlice("install.roots", roots),
		),
	)
	return ctx, &InstallSpan{span: span, start: time.Now()}
}

func (s *InstallSpan) SetResolved(spaceCount int) {
	s.span.SetAttributes(attribute.Int("install.space_count", spaceCount))
}

func (s *InstallSpan) End(err error) {
	s.span.SetAttributes(attribute.Int64("install.duration_ms", time.Since(s.start).Milliseconds()))
	endSpan(s.span, err)
}

// SnapshotSpan traces one content-addressed snapshot population.
type SnapshotSpan struct {
	span  trace.Span
	start time.Time
}

func (t *Tracer) StartSnapshot(ctx context.Context, spaceID, commit string) (context.Context, *SnapshotSpan) {
	ctx, span := t.tracer.Start(ctx, "snapshot",
		trace.WithAttributes(
			attribute.String("snapshot.space_id", spaceID),
			attribute.String("snapshot.commit", commit),
		),
	)
	return ctx, &SnapshotSpan{span: span, start: time.Now()}
}

func (s *SnapshotSpan) SetIntegrity(integrity string) {
	s.span.SetAttributes(attribute.String("snapshot.integrity", integrity))
}

func (s *SnapshotSpan) End(err error) {
	s.span.SetAttributes(attribute.Int64("snapshot.duration_ms", time.Since(s.start).Milliseconds()))
	endSpan(s.span, err)
}

// BuildSpan traces one Orchestrator.Build call (materialize + compose
// for one target under one harness).
type BuildSpan struct {
	span  trace.Span
	start time.Time
}

func (t *Tracer) StartBuild(ctx context.Context, target, harnessID string) (context.Context, *BuildSpan) {
	ctx, span := t.tracer.Start(ctx, "build",
		trace.WithAttributes(
			attribute.String("build.target", target),
			attribute.String("build.harness_id", harnessID),
		),
	)
	return ctx, &BuildSpan{span: span, start: time.Now()}
}

func (s *BuildSpan) SetLintWarnings(count int, hasErrors bool) {
	s.span.SetAttributes(
		attribute.Int("build.lint_warnings", count),
		attribute.Bool("build.lint_has_errors", hasErrors),
	)
}

func (s *BuildSpan) End(err error) {
	s.span.SetAttributes(attribute.Int64("build.duration_ms", time.Since(s.start).Milliseconds()))
	endSpan(s.span, err)
}

// RunTurnSpan traces one non-interactive session turn.
type RunTurnSpan struct {
	span  trace.Span
	start time.Time
}

func (t *Tracer) StartRunTurn(ctx context.Context, cpSessionID, runID, frontend string) (context.Context, *RunTurnSpan) {
	ctx, span := t.tracer.Start(ctx, "run_turn",
		trace.WithAttributes(
			attribute.String("run.cp_session_id", cpSessionID),
			attribute.String("run.run_id", runID),
			attribute.String("run.frontend", frontend),
		),
	)
	return ctx, &RunTurnSpan{span: span, start: time.Now()}
}

func (s *RunTurnSpan) SetContinuation(key string) {
	s.span.SetAttributes(attribute.String("run.continuation_key", key))
}

func (s *RunTurnSpan) End(success bool, errCode string) {
	s.span.SetAttributes(
		attribute.Int64("run.duration_ms", time.Since(s.start).Milliseconds()),
		attribute.Bool("run.success", success),
	)
	if errCode != "" {
		s.span.SetAttributes(attribute.String("run.error_code", errCode))
		s.span.SetStatus(codes.Error, errCode)
	}
	s.span.End()
}

// RecordEvent attaches a point-in-time event to the span active on
// ctx, for occurrences that don't warrant their own span.
func (t *Tracer) RecordEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordPermissionDecision records a run driver permission handler's
// outcome against the active span.
func (t *Tracer) RecordPermissionDecision(ctx context.Context, toolName string, allowed bool, reason string) {
	t.RecordEvent(ctx, "permission_decision",
		attribute.String("permission.tool", toolName),
		attribute.Bool("permission.allowed", allowed),
		attribute.String("permission.reason", reason),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
