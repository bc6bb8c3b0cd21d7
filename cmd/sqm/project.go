package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-sqm/internal/application"
	"github.com/ahrav/go-sqm/internal/domain"
)

// projectFlags configure a new project. On restart they are read from the
// saved project.yaml instead, except for the thread and worker budgets.
type projectFlags struct {
	project     string
	mode        string
	samples     string
	rawReads    string
	extAssembly string
	noCOG       bool
	noKEGG      bool
	noPfam      bool
	noBins      bool
	doublePass  bool
	threads     int
	workers     int
}

func (f *projectFlags) register(cmd *cobra.Command) {
	defaults := domain.DefaultOptions()
	fl := cmd.Flags()
	fl.StringVarP(&f.project, "project", "p", "", "Project name; the project directory is <root>/<project>")
	fl.StringVarP(&f.mode, "mode", "m", "", "Execution mode (coassembly, independent, merged, seqmerge)")
	fl.StringVarP(&f.samples, "samples", "s", "", "Samples manifest (tab-separated)")
	fl.StringVarP(&f.rawReads, "seq", "f", "", "Directory of raw read files referenced by the manifest")
	fl.StringVar(&f.extAssembly, "extassembly", "", "Use this contig file instead of assembling")
	fl.BoolVar(&f.noCOG, "nocog", false, "Skip COG annotation")
	fl.BoolVar(&f.noKEGG, "nokegg", false, "Skip KEGG annotation and pathway prediction")
	fl.BoolVar(&f.noPfam, "nopfam", false, "Skip Pfam annotation")
	fl.BoolVar(&f.noBins, "nobins", false, "Skip binning")
	fl.BoolVarP(&f.doublePass, "doublepass", "D", false, "Run blastx on regions without predicted genes")
	fl.IntVarP(&f.threads, "threads", "t", defaults.Threads, "Threads handed to each tool")
	fl.IntVar(&f.workers, "workers", defaults.Workers, "Concurrent per-sample invocations within a step")
	_ = cmd.MarkFlagRequired("project")
}

// newConfig builds the configuration of a project that has not been
// configured yet.
func (f *projectFlags) newConfig() (*application.ProjectConfig, error) {
	if f.mode == "" {
		return nil, domain.NewConfigError("mode", "required for a new project (-m)")
	}
	if f.samples == "" {
		return nil, domain.NewConfigError("samples", "required for a new project (-s)")
	}
	samples, err := filepath.Abs(f.samples)
	if err != nil {
		return nil, domain.NewConfigError("samples", err.Error())
	}
	cfg := &application.ProjectConfig{
		Version: application.ProjectConfigVersion,
		Name:    f.project,
		Mode:    f.mode,
		Samples: samples,
		Options: domain.Options{
			NoCOG:      f.noCOG,
			NoKEGG:     f.noKEGG,
			NoPfam:     f.noPfam,
			NoBins:     f.noBins,
			DoublePass: f.doublePass,
			Threads:    f.threads,
			Workers:    f.workers,
		},
	}
	if f.rawReads != "" {
		if cfg.RawReads, err = filepath.Abs(f.rawReads); err != nil {
			return nil, domain.NewConfigError("seq", err.Error())
		}
	}
	if f.extAssembly != "" {
		if cfg.Options.ExternalAssembly, err = filepath.Abs(f.extAssembly); err != nil {
			return nil, domain.NewConfigError("extassembly", err.Error())
		}
	}
	return cfg, nil
}

// applyOverrides copies the budgets explicitly set on the command line
// onto a saved configuration.
func (f *projectFlags) applyOverrides(cmd *cobra.Command, cfg *application.ProjectConfig) {
	if cmd.Flags().Changed("threads") {
		cfg.Options.Threads = f.threads
	}
	if cmd.Flags().Changed("workers") {
		cfg.Options.Workers = f.workers
	}
}

// configExists reports whether project name under root has a saved
// configuration.
func configExists(root, name string) (bool, error) {
	_, err := os.Stat(application.ProjectConfigPath(root, name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("check project config: %w", err)
	}
}

// buildProject parses the manifest named by cfg and assembles the project.
func buildProject(root string, cfg *application.ProjectConfig, checkFiles bool) (*domain.Project, error) {
	samples, err := application.LoadManifest(cfg.Samples, cfg.ManifestOptions(checkFiles))
	if err != nil {
		return nil, err
	}
	if cfg.Options.HasExternalAssembly() && checkFiles {
		if _, err := os.Stat(cfg.Options.ExternalAssembly); err != nil {
			return nil, &domain.MissingInputError{Path: cfg.Options.ExternalAssembly, Err: err}
		}
	}
	return cfg.Project(root, samples)
}
