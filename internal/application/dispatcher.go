package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

// StepRunner executes single planned steps on behalf of the Controller.
type StepRunner interface {
	// Preflight checks, without side effects, that every step in steps can
	// be dispatched for project.
	Preflight(project *domain.Project, steps []domain.Step) error

	// Dispatch runs step to completion and returns the number of external
	// invocations it made. A nil error means every invocation succeeded.
	Dispatch(ctx context.Context, project *domain.Project, step domain.Step) (int, error)
}

// DispatcherOptions configures a StepDispatcher.
type DispatcherOptions struct {
	// Comparator scores assembly pairs in seqmerge mode.
	Comparator ports.SimilarityComparator

	// Merger combines assemblies in the merge modes.
	Merger ports.ContigMerger

	// Metrics is optional.
	Metrics ports.MetricsCollector
}

var _ StepRunner = (*StepDispatcher)(nil)

// StepDispatcher turns one planned step into concrete tool invocations
// according to the project's mode graph:
//
//   - independent: one invocation per assembly sample, run on a bounded
//     worker pool.
//   - coassembly: step 1 once over the pooled reads, later steps once per
//     project.
//   - merged: step 1 once per assembly sample, step 2 one bulk merge, then
//     as coassembly.
//   - seqmerge: as merged, but step 2 runs the MergeScheduler.
type StepDispatcher struct {
	tools      ports.ToolProvider
	comparator ports.SimilarityComparator
	merger     ports.ContigMerger
	metrics    ports.MetricsCollector
}

// NewStepDispatcher creates a dispatcher resolving step tools through tools.
func NewStepDispatcher(tools ports.ToolProvider, opts DispatcherOptions) (*StepDispatcher, error) {
	if tools == nil {
		return nil, fmt.Errorf("step dispatcher: tool provider is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	return &StepDispatcher{
		tools:      tools,
		comparator: opts.Comparator,
		merger:     opts.Merger,
		metrics:    opts.Metrics,
	}, nil
}

// Preflight reports every step in steps that has no tool to run it.
func (d *StepDispatcher) Preflight(project *domain.Project, steps []domain.Step) error {
	var missing []string
	for _, step := range steps {
		if step.Number == StepMergeAssemblies {
			if d.merger == nil {
				missing = append(missing, MergerName)
			}
			if project.Mode == domain.ModeSeqMerge && d.comparator == nil {
				missing = append(missing, ComparatorName)
			}
			continue
		}
		if _, err := d.tools.ToolFor(step.Name); err != nil {
			missing = append(missing, step.Name)
		}
	}
	if len(missing) > 0 {
		return domain.NewConfigError("tools", "no command configured for "+strings.Join(missing, ", "))
	}
	return nil
}

// Names of the merge collaborators as they appear in configuration errors.
const (
	ComparatorName = "comparator"
	MergerName     = "merger"
)

// Dispatch runs step for project.
func (d *StepDispatcher) Dispatch(ctx context.Context, project *domain.Project, step domain.Step) (int, error) {
	layout := NewLayout(project)
	if step.Number == StepMergeAssemblies {
		return d.mergeAssemblies(ctx, project, layout, step)
	}

	tool, err := d.tools.ToolFor(step.Name)
	if err != nil {
		return 0, domain.NewStepError(step, "", domain.NewConfigError("tools."+step.Name, err.Error()))
	}

	invs := d.invocations(ctx, project, layout, step)
	if len(invs) == 0 {
		ctxlog.FromContext(ctx).Warn("step has no participating samples", "step", step.Number, "name", step.Name)
		return 0, nil
	}
	return d.fanOut(ctx, project, step, tool, invs)
}

// baseInvocation fills the project-level fields shared by every invocation.
func baseInvocation(project *domain.Project, step domain.Step) ports.Invocation {
	return ports.Invocation{
		Step:       step.Number,
		StepName:   step.Name,
		Project:    project.Name,
		ProjectDir: project.Dir(),
		Mode:       project.Mode.String(),
		Threads:    project.Options.Threads,
	}
}

// invocations expands step into its invocations for the project's mode.
func (d *StepDispatcher) invocations(ctx context.Context, project *domain.Project, layout Layout, step domain.Step) []ports.Invocation {
	base := baseInvocation(project, step)
	participants := participatingSamples(project.Samples, step)

	if step.ScopeIn(project.Mode) == domain.ScopeProject {
		inv := base
		inv.Samples = domain.SampleIDs(participants)
		if len(inv.Samples) == 0 {
			return nil
		}
		if step.Number == StepAssembly {
			inv.Inputs = pooledReads(participants)
			inv.Output = layout.PooledAssembly()
			return []ports.Invocation{inv}
		}
		inv.Inputs = []string{layout.Contigs("")}
		if step.Number == StepReadMapping {
			inv.Inputs = append(inv.Inputs, pooledReads(participants)...)
		}
		inv.Output = layout.StepOutput(step, "")
		return []ports.Invocation{inv}
	}

	logger := ctxlog.FromContext(ctx)
	if project.Mode == domain.ModeIndependent {
		for _, s := range project.Samples {
			if !s.NoAssembly {
				continue
			}
			if step.Number == StepAssembly {
				logger.Warn("sample flagged noassembly cannot be processed alone; skipping it", "sample", s.ID)
			} else {
				logger.Debug("skipping noassembly sample", "sample", s.ID, "step", step.Number)
			}
		}
	}

	participants = perSampleParticipants(project.Samples, step)
	invs := make([]ports.Invocation, 0, len(participants))
	for _, s := range participants {
		inv := base
		inv.Sample = s.ID
		inv.Samples = []string{s.ID}
		if step.Number == StepAssembly {
			inv.Inputs = s.Paths()
			inv.Output = layout.SampleAssembly(s.ID)
		} else {
			inv.Inputs = []string{layout.Contigs(s.ID)}
			if step.Number == StepReadMapping {
				inv.Inputs = append(inv.Inputs, s.Paths()...)
			}
			inv.Output = layout.StepOutput(step, s.ID)
		}
		invs = append(invs, inv)
	}
	return invs
}

// participatingSamples selects the samples whose data a step consumes.
func participatingSamples(samples []domain.Sample, step domain.Step) []domain.Sample {
	switch {
	case step.Number == StepAssembly:
		return domain.AssemblySamples(samples)
	case step.Number == StepReadMapping:
		return domain.MappingSamples(samples)
	case isBinningStep(step.Number):
		return domain.BinningSamples(samples)
	default:
		return samples
	}
}

// perSampleParticipants narrows participants for per-sample scope, where a
// sample excluded from assembly has no contigs of its own.
func perSampleParticipants(samples []domain.Sample, step domain.Step) []domain.Sample {
	return domain.AssemblySamples(participatingSamples(samples, step))
}

func isBinningStep(n int) bool {
	return n >= StepBinning && n <= StepPathwayPrediction
}

func pooledReads(samples []domain.Sample) []string {
	var out []string
	for _, s := range samples {
		out = append(out, s.Paths()...)
	}
	return out
}

// fanOut runs invs on a pool bounded by the project's worker count. Once an
// invocation fails no further invocations are launched; those in flight
// finish and every failure is reported.
func (d *StepDispatcher) fanOut(
	ctx context.Context,
	project *domain.Project,
	step domain.Step,
	tool ports.Tool,
	invs []ports.Invocation,
) (int, error) {
	logger := ctxlog.FromContext(ctx)
	errs := make([]error, len(invs))
	var (
		failed   atomic.Bool
		launched atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(max(1, project.Options.Workers))
	for i, inv := range invs {
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				errs[i] = domain.NewStepError(step, inv.Sample, err)
				return nil
			}
			launched.Add(1)
			result, err := tool.Run(ctx, inv)
			if err != nil {
				failed.Store(true)
				errs[i] = domain.NewStepError(step, inv.Sample, err)
				return nil
			}
			logger.Debug("invocation succeeded",
				"step", step.Number, "sample", inv.Sample,
				"duration", result.Duration, "max_rss_kb", result.MaxRSSKB)
			return nil
		})
	}
	_ = g.Wait()

	n := int(launched.Load())
	d.metrics.RecordCounter("step_invocations_total", float64(n), map[string]string{
		"step": strconv.Itoa(step.Number),
		"mode": project.Mode.String(),
	})

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	switch len(failures) {
	case 0:
		return n, nil
	case 1:
		return n, failures[0]
	default:
		return n, fmt.Errorf("step %d (%s) failed for %d samples: %w", step.Number, step.Name, len(failures), errors.Join(failures...))
	}
}

// mergeAssemblies runs step 2: one bulk merge in merged mode, the greedy
// pairwise schedule in seqmerge mode.
func (d *StepDispatcher) mergeAssemblies(ctx context.Context, project *domain.Project, layout Layout, step domain.Step) (int, error) {
	logger := ctxlog.FromContext(ctx)
	assembled := domain.AssemblySamples(project.Samples)
	units := make([]domain.AssemblyUnit, len(assembled))
	for i, s := range assembled {
		units[i] = domain.AssemblyUnit{
			ID:      s.ID,
			Contigs: layout.SampleAssembly(s.ID),
			Samples: []string{s.ID},
		}
	}
	if d.merger == nil {
		return 0, domain.NewStepError(step, "", domain.NewConfigError("tools."+MergerName, "no command configured"))
	}
	if len(units) == 1 {
		logger.Info("single assembly; nothing to merge", "unit", units[0].ID)
		return 0, nil
	}

	switch project.Mode {
	case domain.ModeMerged:
		output := layout.Contigs("")
		if err := d.merger.Merge(ctx, output, units); err != nil {
			return 1, domain.NewStepError(step, "", err)
		}
		logger.Info("merged assemblies", "units", len(units), "output", output)
		return 1, nil

	case domain.ModeSeqMerge:
		if d.comparator == nil {
			return 0, domain.NewStepError(step, "", domain.NewConfigError("tools."+ComparatorName, "no command configured"))
		}
		scheduler, err := NewMergeScheduler(d.comparator, d.merger, MergeSchedulerConfig{
			Workers:   project.Options.Workers,
			OutputDir: layout.MergeDir(),
			Metrics:   d.metrics,
		})
		if err != nil {
			return 0, domain.NewStepError(step, "", err)
		}
		result, err := scheduler.Run(ctx, units)
		n := result.Comparisons + len(result.Rounds)
		if err != nil {
			return n, domain.NewStepError(step, "", err)
		}
		if want := layout.Contigs(""); result.Final.Contigs != want {
			return n, domain.NewStepError(step, "", fmt.Errorf("final assembly %s, expected %s", result.Final.Contigs, want))
		}
		logger.Info("sequential merge finished",
			"rounds", len(result.Rounds), "comparisons", result.Comparisons, "final", result.Final.ID)
		return n, nil

	default:
		return 0, domain.NewPlanningError(step.Number, "mode %s has no merge step", project.Mode)
	}
}
