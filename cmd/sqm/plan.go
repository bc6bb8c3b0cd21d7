package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-sqm/infrastructure/progress"
	"github.com/ahrav/go-sqm/internal/application"
	"github.com/ahrav/go-sqm/internal/domain"
)

func newPlanCommand(g *globalFlags) *cobra.Command {
	f := &projectFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps a project runs",
		Long: `Print the steps planned for a project with their scope and completion state.

An existing project is described from its saved configuration. For a new
project pass the same mode, samples and options as for "sqm run".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showPlan(cmd, g, f)
		},
	}
	f.register(cmd)
	return cmd
}

func showPlan(cmd *cobra.Command, g *globalFlags, f *projectFlags) error {
	loader, err := application.NewConfigLoader()
	if err != nil {
		return err
	}
	exists, err := configExists(g.root, f.project)
	if err != nil {
		return err
	}

	var cfg *application.ProjectConfig
	if exists {
		if cfg, err = loader.LoadProject(g.root, f.project); err != nil {
			return err
		}
		f.applyOverrides(cmd, cfg)
	} else {
		if cfg, err = f.newConfig(); err != nil {
			return err
		}
	}
	if err := loader.Validate(cfg); err != nil {
		return err
	}

	project, err := buildProject(g.root, cfg, false)
	if err != nil {
		return err
	}
	record, err := progress.ReadLog(project.Dir())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project %s (%s, %d samples)\n\n", project.Name, project.Mode, len(project.Samples))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tNAME\tSCOPE\tSTATE\tDESCRIPTION")
	for _, p := range application.DescribePlan(application.NewStepRegistry(), project, record) {
		state := "pending"
		if p.Complete {
			state = "done " + p.CompletedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.Step.Number, p.Step.Name, p.Scope, state, p.Step.Description)
	}
	return tw.Flush()
}

func newStatusCommand(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded progress of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showStatus(cmd, g, name)
		},
	}
	cmd.Flags().StringVarP(&name, "project", "p", "", "Project name")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func showStatus(cmd *cobra.Command, g *globalFlags, name string) error {
	project := &domain.Project{Name: name, Root: g.root}
	record, err := progress.ReadLog(project.Dir())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	steps := record.Steps()
	if len(steps) == 0 {
		fmt.Fprintf(out, "Project %s has no completed steps\n", name)
		return nil
	}

	registry := application.NewStepRegistry()
	names := stepNameFunc(registry)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tNAME\tCOMPLETED")
	for _, n := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", n, names(n), record.Completed[n].Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nLast completed step: %d\n", record.Highest())
	return nil
}
