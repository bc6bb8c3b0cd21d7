package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/domain"
)

// Process exit codes by error kind.
const (
	exitOK                 = 0
	exitFailure            = 1
	exitConfiguration      = 2
	exitMissingInput       = 3
	exitPlanning           = 4
	exitRestartState       = 5
	exitToolFailure        = 6
	exitResourceExhaustion = 7
	exitInterrupted        = 130
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel  string
	logFormat string
	root      string
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(normalizeLegacyArgs(args))

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "sqm",
		Short: "Run metagenomic analysis projects",
		Long: `sqm orchestrates a metagenomic analysis pipeline of 21 numbered steps,
from assembly through annotation, read mapping and binning.

A project is configured once with "sqm run -m <mode> -p <project> -s <samples>"
and can then be resumed with "sqm run -p <project> --restart", optionally from
a given step.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger := ctxlog.New(g.logLevel, g.logFormat, stderr)
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return domain.NewConfigError("flags", err.Error())
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&g.root, "root", ".", "Directory holding project directories")

	root.AddCommand(
		newRunCommand(g),
		newPlanCommand(g),
		newStatusCommand(g),
	)
	return root
}

// exitCode maps an error to the process exit code of its kind.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	switch domain.Kind(err) {
	case domain.ErrConfiguration:
		return exitConfiguration
	case domain.ErrMissingInput:
		return exitMissingInput
	case domain.ErrPlanning:
		return exitPlanning
	case domain.ErrRestartState:
		return exitRestartState
	case domain.ErrToolFailure:
		return exitToolFailure
	case domain.ErrResourceExhaustion:
		return exitResourceExhaustion
	default:
		return exitFailure
	}
}

// legacyLongFlags are long flags that may be written with a single dash.
var legacyLongFlags = map[string]string{
	"step":            "step",
	"test":            "test",
	"restart":         "restart",
	"force_overwrite": "force_overwrite",
	"extassembly":     "extassembly",
	"nocog":           "nocog",
	"nokegg":          "nokegg",
	"nopfam":          "nopfam",
	"nobins":          "nobins",
	"doublepass":      "doublepass",
	"threads":         "threads",
	"workers":         "workers",
	"D":               "doublepass",
}

// normalizeLegacyArgs rewrites single-dash long flags such as "-step 5" or
// "-test=3" and the "--D" spelling to their double-dash forms. Arguments
// after "--" are left alone.
func normalizeLegacyArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		var name, rest string
		switch {
		case strings.HasPrefix(arg, "--"):
			name, rest = splitFlag(arg[2:])
			if name != "D" {
				out = append(out, arg)
				continue
			}
		case strings.HasPrefix(arg, "-") && len(arg) > 2:
			name, rest = splitFlag(arg[1:])
		default:
			out = append(out, arg)
			continue
		}
		if long, ok := legacyLongFlags[name]; ok {
			out = append(out, "--"+long+rest)
			continue
		}
		out = append(out, arg)
	}
	return out
}

// splitFlag splits "name=value" into "name" and "=value".
func splitFlag(s string) (string, string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}
