package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-sqm/infrastructure/metrics"
	"github.com/ahrav/go-sqm/infrastructure/progress"
	"github.com/ahrav/go-sqm/infrastructure/tools"
	"github.com/ahrav/go-sqm/internal/application"
	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

const serviceName = "sqm"

type runFlags struct {
	projectFlags
	restart     bool
	step        string
	force       bool
	stopAfter   string
	toolsPath   string
	metricsFile string
}

func newRunCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run or resume a project",
		Long: `Run the pipeline for a project.

A new project needs a mode and a samples manifest. Its configuration is saved
to <root>/<project>/project.yaml, so resuming only needs the project name.

Examples:
  sqm run -m coassembly -p hadza -s samples.tsv -f raw/   # New project
  sqm run -p hadza --restart                              # Resume after the last completed step
  sqm run -p hadza --restart --step 10                    # Resume from step 10
  sqm run -p hadza --step binning --force_overwrite       # Redo binning onwards
  sqm run -m merged -p hadza -s samples.tsv --test 2      # Stop after merging`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProject(cmd, g, f)
		},
	}

	f.register(cmd)
	fl := cmd.Flags()
	fl.BoolVar(&f.restart, "restart", false, "Resume an existing project")
	fl.StringVar(&f.step, "step", "", "Step number or name to resume from (implies --restart)")
	fl.BoolVar(&f.force, "force_overwrite", false, "Re-run completed steps and ignore missing earlier steps")
	fl.StringVar(&f.stopAfter, "test", "", "Stop after this step number or name")
	fl.StringVar(&f.toolsPath, "tools", "tools.yaml", "Tools configuration file")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the run ends")
	return cmd
}

func runProject(cmd *cobra.Command, g *globalFlags, f *runFlags) (err error) {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)
	registry := application.NewStepRegistry()

	req := application.RunRequest{Restart: f.restart || f.step != "", ForceOverwrite: f.force}
	if f.step != "" {
		s, err := registry.Lookup(f.step)
		if err != nil {
			return err
		}
		req.Step = &s.Number
	}
	if f.stopAfter != "" {
		s, err := registry.Lookup(f.stopAfter)
		if err != nil {
			return err
		}
		req.StopAfter = &s.Number
	}

	loader, err := application.NewConfigLoader()
	if err != nil {
		return err
	}
	existed, err := configExists(g.root, f.project)
	if err != nil {
		return err
	}
	cfg, fresh, err := resolveConfig(cmd, loader, g.root, f, req, existed)
	if err != nil {
		return err
	}
	project, err := buildProject(g.root, cfg, true)
	if err != nil {
		return err
	}

	toolsCfg, err := tools.LoadConfig(f.toolsPath)
	if err != nil {
		return err
	}
	if err := toolsCfg.CheckSteps(stepNames(registry)); err != nil {
		return err
	}
	if toolsCfg.LogDir == "" {
		toolsCfg.LogDir = application.NewLayout(project).LogDir()
	}

	store, err := progress.Open(project.Dir(), progress.WithStepNames(stepNameFunc(registry)))
	if err != nil {
		if errors.Is(err, ports.ErrProjectLocked) {
			return domain.NewConfigError("project", fmt.Sprintf("%s is being run by another process", project.Name))
		}
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var previous *application.ProjectConfig
	if fresh {
		if existed {
			prev, lerr := loader.LoadProject(g.root, cfg.Name)
			if lerr != nil {
				logger.Warn("replacing unreadable project configuration", "error", lerr)
			}
			previous = prev
		}
		if err := loader.SaveProject(g.root, cfg); err != nil {
			return err
		}
		logger.Info("saved project configuration", "path", application.ProjectConfigPath(g.root, cfg.Name))
	}

	collector := metrics.NewPrometheusMetrics()
	if f.metricsFile != "" {
		defer func() {
			if werr := collector.WriteTextfile(f.metricsFile); werr != nil {
				logger.Warn("failed to write metrics", "error", werr)
			}
		}()
	}

	runner, err := newDispatcher(project, registry, toolsCfg, collector)
	if err != nil {
		return err
	}
	controller, err := application.NewController(registry, store, runner, application.WithMetrics(collector))
	if err != nil {
		return err
	}

	result, err := controller.Run(ctx, project, req)
	printResult(cmd.OutOrStdout(), result)
	if err != nil && fresh && len(result.Ran) == 0 && result.HaltedAt == 0 {
		restoreConfig(loader, g.root, cfg.Name, existed, previous, logger)
	}
	return err
}

// restoreConfig undoes the save of a new configuration whose run was
// rejected before any step ran: the configuration it replaced is written
// back, and a configuration that did not exist before is removed.
func restoreConfig(loader *application.ConfigLoader, root, name string, existed bool, previous *application.ProjectConfig, logger *slog.Logger) {
	switch {
	case previous != nil:
		if err := loader.SaveProject(root, previous); err != nil {
			logger.Warn("failed to restore project configuration", "error", err)
		}
	case !existed:
		if err := os.Remove(application.ProjectConfigPath(root, name)); err != nil {
			logger.Warn("failed to remove project configuration", "error", err)
		}
	}
}

// resolveConfig returns the project configuration for this invocation and
// whether it is new and must be saved. exists reports whether the project
// already has a saved configuration.
func resolveConfig(cmd *cobra.Command, loader *application.ConfigLoader, root string, f *runFlags, req application.RunRequest, exists bool) (*application.ProjectConfig, bool, error) {
	if req.Restart {
		if !exists {
			return nil, false, domain.NewConfigError("project", fmt.Sprintf("%s has no saved configuration to restart from", f.project))
		}
		cfg, err := loader.LoadProject(root, f.project)
		if err != nil {
			return nil, false, err
		}
		if f.mode != "" || f.samples != "" {
			ctxlog.FromContext(cmd.Context()).Warn("restart uses the saved configuration; ignoring --mode and --samples")
		}
		f.applyOverrides(cmd, cfg)
		return cfg, false, loader.Validate(cfg)
	}

	if exists && !req.ForceOverwrite {
		return nil, false, domain.NewConfigError("project", fmt.Sprintf(
			"%s already exists; use --restart to resume it or --force_overwrite to start over", f.project))
	}
	cfg, err := f.newConfig()
	if err != nil {
		return nil, false, err
	}
	if err := loader.Validate(cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// newDispatcher wires the tools configuration into a step dispatcher.
func newDispatcher(project *domain.Project, registry *application.StepRegistry, cfg *tools.Config, collector ports.MetricsCollector) (*application.StepDispatcher, error) {
	provider, err := tools.NewProvider(cfg,
		tools.LoggingMiddleware(),
		tools.TracingMiddleware(serviceName),
		tools.MetricsMiddleware(collector),
		tools.RateLimitMiddleware(rate.Limit(cfg.LaunchRate), cfg.LaunchBurst),
		tools.TimeoutMiddleware(cfg.Timeout),
	)
	if err != nil {
		return nil, err
	}

	opts := application.DispatcherOptions{Metrics: collector}
	mergeStep, _ := registry.Step(application.StepMergeAssemblies)
	base := ports.Invocation{
		Step:       mergeStep.Number,
		StepName:   mergeStep.Name,
		Project:    project.Name,
		ProjectDir: project.Dir(),
		Mode:       project.Mode.String(),
		Threads:    project.Options.Threads,
	}
	// Missing merge tools are reported by preflight, only when the merge
	// step actually runs.
	if merger, err := provider.Merger(); err == nil {
		opts.Merger = tools.NewToolMerger(merger, base)
	} else if !errors.Is(err, ports.ErrToolNotConfigured) {
		return nil, err
	}
	if comparator, err := provider.Comparator(); err == nil {
		workDir := filepath.Join(application.NewLayout(project).MergeDir(), "aai")
		opts.Comparator = tools.NewAAIComparator(comparator, base, workDir)
	} else if !errors.Is(err, ports.ErrToolNotConfigured) {
		return nil, err
	}

	return application.NewStepDispatcher(provider, opts)
}

func stepNames(registry *application.StepRegistry) []string {
	steps := registry.Steps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func stepNameFunc(registry *application.StepRegistry) func(int) string {
	return func(n int) string {
		if s, ok := registry.Step(n); ok {
			return s.Name
		}
		return fmt.Sprintf("step%d", n)
	}
}

func printResult(w io.Writer, r domain.RunResult) {
	fmt.Fprintf(w, "Run %s: %s\n", r.RunID, r.Status)
	if r.Start > 0 {
		fmt.Fprintf(w, "  Started at step: %d\n", r.Start)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "  Skipped (already complete): %v\n", r.Skipped)
	}
	for _, o := range r.Ran {
		fmt.Fprintf(w, "  Step %2d %-22s %4d invocations  %s\n", o.Step, o.Name, o.Invocations, o.Duration.Round(time.Second))
	}
	if r.Status != domain.RunCompleted && r.HaltedAt > 0 {
		fmt.Fprintf(w, "  Halted at step: %d\n", r.HaltedAt)
	}
}
