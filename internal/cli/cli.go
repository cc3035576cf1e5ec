package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"sharpbench.dev/internal/config"
	"sharpbench.dev/internal/dirs"
	"sharpbench.dev/internal/orchestrator"
	"sharpbench.dev/internal/runner"
)

// exitError is a sentinel error that carries a specific exit code.
// RunE functions return this instead of calling os.Exit directly, allowing
// Execute to handle process termination in one place.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Flag-bound package-level vars, reset at the top of every Execute call so
// tests that build multiple commands in one process don't see stale state.
var (
	flagConfigs      []string
	flagJSON         string
	flagRepro        string
	flagBackends     []string
	flagCopies       int
	flagRepeats      string
	flagExperiment   string
	flagTask         string
	flagDirectory    string
	flagDescription  string
	flagInput        string
	flagTimeout      int
	flagAppend       bool
	flagCold         bool
	flagWarm         bool
	flagVerbose      bool
	flagSkipSysSpecs bool
)

func resetFlags() {
	flagConfigs = nil
	flagJSON = ""
	flagRepro = ""
	flagBackends = nil
	flagCopies = 0
	flagRepeats = ""
	flagExperiment = ""
	flagTask = ""
	flagDirectory = ""
	flagDescription = ""
	flagInput = ""
	flagTimeout = 0
	flagAppend = false
	flagCold = false
	flagWarm = false
	flagVerbose = false
	flagSkipSysSpecs = false
}

// newRootCmd builds the full Cobra command tree. It is separated from
// Execute so tests can construct a fresh command.
func newRootCmd(v string) *cobra.Command {
	root := &cobra.Command{
		Use:           "launch FUNCTION [ARGS...]",
		Short:         fmt.Sprintf("sharpbench launcher %s", v),
		Long:          "Run a function repeatedly through a chain of backends, collecting metrics until an adaptive stopping rule says enough repetitions have been gathered.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), args)
		},
	}

	root.Flags().StringArrayVarP(&flagConfigs, "config", "f", nil, "configuration file (YAML or JSON); repeatable, merged in order")
	root.Flags().StringVar(&flagJSON, "json", "", "inline JSON configuration fragment")
	root.Flags().StringVar(&flagRepro, "repro", "", "load prior options from a run's markdown log")
	root.Flags().StringArrayVarP(&flagBackends, "backend", "b", nil, "append a backend to the chain; repeatable")
	root.Flags().IntVar(&flagCopies, "mpl", 0, "copies per repetition")
	root.Flags().StringVar(&flagRepeats, "repeats", "", "integer, or one of MAX, SE, CI, HDI, BB, GMM, KS, DC")
	root.Flags().StringVar(&flagExperiment, "experiment", "", "experiment label")
	root.Flags().StringVarP(&flagTask, "task", "t", "", "task label")
	root.Flags().StringVarP(&flagDirectory, "directory", "d", "", "log root directory")
	root.Flags().StringVar(&flagDescription, "description", "", "free-form description embedded in the markdown log")
	root.Flags().StringVar(&flagInput, "input", "", "data file piped to every copy's stdin")
	root.Flags().IntVar(&flagTimeout, "timeout", 0, "experiment-wide timeout, in seconds")
	root.Flags().BoolVar(&flagAppend, "append", false, "append to the CSV log instead of truncating it")
	root.Flags().BoolVar(&flagCold, "cold", false, "reset every backend before each repetition")
	root.Flags().BoolVar(&flagWarm, "warm", false, "run one untimed warmup repetition first")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "forward subprocess output to stdout/stderr")
	root.Flags().BoolVar(&flagSkipSysSpecs, "skip-sys-specs", false, "don't collect the system specification section")

	return root
}

// runLaunch resolves the effective configuration from every layer, validates
// it, and hands it to the orchestrator.
func runLaunch(ctx context.Context, args []string) error {
	overlay := overlayFromArgs(args)

	pipeline := &config.Pipeline{
		ReproFile:    flagRepro,
		ConfigFiles:  configFileLayers(),
		JSONFragment: flagJSON,
		CLIOverlay:   overlay,
		BackendsDir:  dirs.BackendsDir,
	}

	opts, err := pipeline.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return &exitError{code: 2}
	}

	config.Warn(opts)
	if err := config.Validate(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return &exitError{code: 2}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			fmt.Fprintln(os.Stderr, "\nlaunch: interrupted, cancelling in-flight copies...")
			cancel()
		}
	}()

	if err := orchestrator.Run(runCtx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return &exitError{code: exitCodeFor(err)}
	}
	return nil
}

// exitCodeFor maps the orchestrator's error taxonomy onto the exit codes
// spec.md §6 distinguishes: a normal failure, a missing shell, or a timeout.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrShellNotFound):
		return 127
	case errors.Is(err, runner.ErrTimeoutExceeded):
		return 124
	default:
		return 1
	}
}

// configFileLayers prepends the always-loaded default sys-spec file (when
// present in the working directory) ahead of the user-supplied -f files, per
// spec.md §4.6's priority order.
func configFileLayers() []string {
	var layers []string
	if _, err := os.Stat(dirs.DefaultSysSpecFile); err == nil {
		layers = append(layers, dirs.DefaultSysSpecFile)
	}
	return append(layers, flagConfigs...)
}

// overlayFromArgs turns the positional function-and-arguments tokens plus
// every bound flag into a CLI-layer *config.Options overlay. Only flags
// actually supplied (including zero-valued positionals) are set, since
// Merge treats an overlay's zero values as "not specified".
func overlayFromArgs(args []string) *config.Options {
	overlay := &config.Options{}

	if len(args) > 0 {
		overlay.Function = args[0]
		overlay.Arguments = strings.Join(args[1:], " ")
	}

	overlay.Backends = flagBackends
	overlay.Repeats = flagRepeats
	overlay.Experiment = flagExperiment
	overlay.Task = flagTask
	overlay.Directory = flagDirectory
	overlay.Description = flagDescription
	overlay.Datafile = flagInput
	overlay.Copies = flagCopies
	overlay.Timeout = flagTimeout
	overlay.Verbose = flagVerbose
	overlay.SkipSysSpecs = flagSkipSysSpecs

	if flagAppend {
		overlay.Mode = config.ModeAppend
	}
	switch {
	case flagCold:
		overlay.Start = config.StartCold
	case flagWarm:
		overlay.Start = config.StartWarm
	}

	return overlay
}

// Execute sets up and runs the Cobra command tree.
func Execute(v string) {
	resetFlags()

	cmd := newRootCmd(v)
	if err := cmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
