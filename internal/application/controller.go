package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

const controllerTracer = "sqm/controller"

// RunRequest carries the restart controls of one invocation.
type RunRequest struct {
	// Restart resumes an existing project. Without it, a project that
	// already has progress is rejected unless ForceOverwrite is set, in
	// which case the run starts over from the first step.
	Restart bool

	// Step, when set, is the step to resume from.
	Step *int

	// ForceOverwrite re-runs completed steps and waives the check that
	// prerequisites before the start step are complete.
	ForceOverwrite bool

	// StopAfter, when set, halts the run successfully once that step is
	// complete.
	StopAfter *int
}

// Controller drives a project run: it plans the steps for the project's
// mode, works out where to resume, checks that the restart is consistent
// with recorded progress and then dispatches and commits each step in
// order. It is the only component that mutates the ProgressStore.
type Controller struct {
	registry *StepRegistry
	store    ports.ProgressStore
	runner   StepRunner
	metrics  ports.MetricsCollector
	newRunID func() string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) ControllerOption {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRunIDGenerator replaces the random run ID generator.
func WithRunIDGenerator(fn func() string) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.newRunID = fn
		}
	}
}

// NewController creates a controller.
func NewController(registry *StepRegistry, store ports.ProgressStore, runner StepRunner, opts ...ControllerOption) (*Controller, error) {
	if registry == nil {
		return nil, fmt.Errorf("controller: step registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("controller: progress store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("controller: step runner is required")
	}
	c := &Controller{
		registry: registry,
		store:    store,
		runner:   runner,
		metrics:  ports.NopMetrics{},
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes the project's plan from the resume point. Configuration,
// planning and restart-state errors are reported before any step runs and
// leave the progress record untouched. A forced run drops the records of
// the start step and every later step before it runs anything, so a forced
// run that fails leaves the restart point at the failed step. A failing step
// halts the run without being committed; steps committed earlier stay
// committed.
//
// The returned RunResult is meaningful even when err is non-nil.
func (c *Controller) Run(ctx context.Context, project *domain.Project, req RunRequest) (domain.RunResult, error) {
	result := domain.RunResult{RunID: c.newRunID(), Status: domain.RunFailed}
	logger := ctxlog.FromContext(ctx).With(
		"run_id", result.RunID,
		"project", project.Name,
		"mode", project.Mode.String(),
	)
	ctx = ctxlog.WithLogger(ctx, logger)
	ctx, span := otel.Tracer(controllerTracer).Start(ctx, "Controller.Run", trace.WithAttributes(
		attribute.String("run.id", result.RunID),
		attribute.String("project.name", project.Name),
		attribute.String("project.mode", project.Mode.String()),
		attribute.Bool("run.force_overwrite", req.ForceOverwrite),
	))
	defer span.End()

	fail := func(err error) (domain.RunResult, error) {
		result.Status = domain.RunFailed
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run failed", "error", err, "halted_at", result.HaltedAt)
		c.metrics.RecordCounter("runs_total", 1, map[string]string{"status": string(domain.RunFailed)})
		return result, err
	}

	if err := project.Validate(); err != nil {
		return fail(err)
	}
	record, err := c.store.Load(ctx)
	if err != nil {
		return fail(err)
	}
	if err := c.checkRecord(project.Mode, record); err != nil {
		return fail(err)
	}

	plan := c.registry.Plan(project.Mode, project.Options)
	start, err := c.resolveStart(plan, req)
	if err != nil {
		return fail(err)
	}
	result.Start = start
	span.SetAttributes(attribute.Int("run.start", start))

	if !req.ForceOverwrite {
		if err := c.checkRestartState(plan, start); err != nil {
			return fail(err)
		}
	}
	if req.StopAfter != nil {
		if err := checkStopAfter(plan, start, *req.StopAfter); err != nil {
			return fail(err)
		}
	}

	var pending, toRun []domain.Step
	for _, step := range plan {
		if step.Number < start {
			continue
		}
		pending = append(pending, step)
		if req.ForceOverwrite || !c.store.IsComplete(step.Number) {
			toRun = append(toRun, step)
		}
	}
	if err := c.runner.Preflight(project, toRun); err != nil {
		return fail(err)
	}
	if req.ForceOverwrite {
		if err := c.store.Invalidate(ctx, start); err != nil {
			return fail(fmt.Errorf("invalidate steps from %d: %w", start, err))
		}
	}

	logger.Info("starting run",
		"start", start, "steps", len(pending), "to_run", len(toRun),
		"force_overwrite", req.ForceOverwrite)

	for _, step := range pending {
		if err := ctx.Err(); err != nil {
			result.HaltedAt = step.Number
			return fail(err)
		}

		if c.store.IsComplete(step.Number) && !req.ForceOverwrite {
			result.Skipped = append(result.Skipped, step.Number)
			logger.Info("step already complete; skipping", "step", step.Number, "name", step.Name)
			c.metrics.RecordCounter("steps_total", 1, map[string]string{"status": "skipped"})
		} else {
			outcome, err := c.runStep(ctx, project, step, start, req.ForceOverwrite)
			if err != nil {
				result.HaltedAt = step.Number
				return fail(err)
			}
			result.Ran = append(result.Ran, outcome)
		}

		if req.StopAfter != nil && *req.StopAfter == step.Number {
			result.Status = domain.RunStopped
			result.HaltedAt = step.Number
			logger.Info("stopping after requested step", "step", step.Number, "name", step.Name)
			span.SetStatus(codes.Ok, "stopped")
			c.metrics.RecordCounter("runs_total", 1, map[string]string{"status": string(domain.RunStopped)})
			return result, nil
		}
	}

	result.Status = domain.RunCompleted
	logger.Info("run completed", "ran", len(result.Ran), "skipped", len(result.Skipped))
	span.SetStatus(codes.Ok, "completed")
	c.metrics.RecordCounter("runs_total", 1, map[string]string{"status": string(domain.RunCompleted)})
	return result, nil
}

// resolveStart returns the first step number the run considers.
func (c *Controller) resolveStart(plan []domain.Step, req RunRequest) (int, error) {
	if req.Step != nil {
		n := *req.Step
		step, ok := c.registry.Step(n)
		if !ok {
			return 0, domain.NewPlanningError(n, "unknown step")
		}
		if !inPlan(plan, n) {
			return 0, domain.NewPlanningError(n, "step %s is not part of the plan for the current mode and options", step.Name)
		}
		return c.store.ResumePoint(req.Step), nil
	}

	record := c.store.Record()
	if !req.Restart && len(record.Completed) > 0 {
		if !req.ForceOverwrite {
			return 0, domain.NewConfigError("project", fmt.Sprintf(
				"project already has progress up to step %d; use --restart to resume or --force_overwrite to start over",
				record.Highest()))
		}
		return 1, nil
	}
	return c.store.ResumePoint(nil), nil
}

// checkRecord verifies that every recorded step is a registry step that
// applies to mode.
func (c *Controller) checkRecord(mode domain.Mode, record domain.ProgressRecord) error {
	for _, n := range record.Steps() {
		step, ok := c.registry.Step(n)
		if !ok {
			return &domain.RestartStateError{Step: n, Reason: "recorded as complete but no such step exists; repair the progress log"}
		}
		if !step.AppliesTo(mode) {
			return &domain.RestartStateError{Step: n, Reason: fmt.Sprintf("recorded as complete but %s is not a step of %s mode", step.Name, mode)}
		}
	}
	return nil
}

// checkRestartState verifies that every prerequisite of a step at or after
// start that falls before start is complete. Steps from start onwards
// complete their own prerequisites as the run proceeds.
func (c *Controller) checkRestartState(plan []domain.Step, start int) error {
	for _, step := range plan {
		if step.Number < start {
			continue
		}
		var missing []int
		for _, req := range step.Requires {
			if req < start && !c.store.IsComplete(req) {
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			return &domain.RestartStateError{Step: step.Number, Missing: missing}
		}
	}
	return nil
}

func checkStopAfter(plan []domain.Step, start, stopAfter int) error {
	if !inPlan(plan, stopAfter) {
		return domain.NewPlanningError(stopAfter, "test step is not part of the plan")
	}
	if stopAfter < start {
		return domain.NewPlanningError(stopAfter, "test step precedes the start step %d", start)
	}
	return nil
}

func inPlan(plan []domain.Step, n int) bool {
	for _, s := range plan {
		if s.Number == n {
			return true
		}
	}
	return false
}

// runStep dispatches one step and commits it on success.
func (c *Controller) runStep(ctx context.Context, project *domain.Project, step domain.Step, start int, force bool) (domain.StepOutcome, error) {
	outcome := domain.StepOutcome{Step: step.Number, Name: step.Name}
	for _, req := range step.Requires {
		if !c.store.IsComplete(req) && !(force && req < start) {
			return outcome, domain.NewPlanningError(step.Number, "prerequisite step %d is not complete", req)
		}
	}

	ctx, span := otel.Tracer(controllerTracer).Start(ctx, "step."+step.Name, trace.WithAttributes(
		attribute.Int("step.number", step.Number),
		attribute.String("step.name", step.Name),
	))
	defer span.End()

	logger := ctxlog.FromContext(ctx).With("step", step.Number, "name", step.Name)
	logger.Info("running step", "description", step.Description)

	began := time.Now()
	n, err := c.runner.Dispatch(ctx, project, step)
	outcome.Duration = time.Since(began)
	outcome.Invocations = n
	span.SetAttributes(attribute.Int("step.invocations", n))

	labels := map[string]string{"step": strconv.Itoa(step.Number), "name": step.Name}
	if err != nil {
		labels["status"] = "failed"
		c.metrics.RecordLatency("step", outcome.Duration, labels)
		c.metrics.RecordCounter("steps_total", 1, map[string]string{"status": "failed"})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}

	if err := c.store.Commit(ctx, step.Number); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return outcome, fmt.Errorf("commit step %d: %w", step.Number, err)
	}

	labels["status"] = "completed"
	c.metrics.RecordLatency("step", outcome.Duration, labels)
	c.metrics.RecordCounter("steps_total", 1, map[string]string{"status": "completed"})
	c.metrics.RecordGauge("last_completed_step", float64(step.Number), map[string]string{"project": project.Name})
	span.SetStatus(codes.Ok, "committed")
	logger.Info("step completed", "duration", outcome.Duration, "invocations", n)
	return outcome, nil
}

// PlannedStep is one entry of a plan annotated with its recorded state.
type PlannedStep struct {
	Step        domain.Step
	Scope       domain.Scope
	Complete    bool
	CompletedAt time.Time
}

// DescribePlan annotates the project's plan with the completion state found
// in record. It has no side effects.
func DescribePlan(registry *StepRegistry, project *domain.Project, record domain.ProgressRecord) []PlannedStep {
	plan := registry.Plan(project.Mode, project.Options)
	out := make([]PlannedStep, len(plan))
	for i, step := range plan {
		at, ok := record.Completed[step.Number]
		out[i] = PlannedStep{
			Step:        step,
			Scope:       step.ScopeIn(project.Mode),
			Complete:    ok,
			CompletedAt: at,
		}
	}
	return out
}
