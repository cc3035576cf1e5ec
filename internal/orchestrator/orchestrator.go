// Package orchestrator wires the configuration, backend chain, runner,
// extractor, repeater, and log sink together into the top-level control
// loop: build once, optionally warm up, then repeat-run-log-ask-repeater
// until the repeater says stop.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sharpbench.dev/internal/backend"
	"sharpbench.dev/internal/config"
	"sharpbench.dev/internal/dirs"
	"sharpbench.dev/internal/explog"
	"sharpbench.dev/internal/metrics"
	"sharpbench.dev/internal/repeater"
	"sharpbench.dev/internal/runner"
)

// namedRepeaterRules are the repeater kinds selectable by name via
// --repeats; anything else is parsed as an integer Count limit, or the
// special value "MAX" for an effectively unbounded Count.
var namedRepeaterRules = map[string]bool{
	"SE": true, "CI": true, "HDI": true, "BB": true,
	"GMM": true, "KS": true, "DC": true,
}

// Run builds the experiment from opts and drives it to completion: an
// optional warmup repetition, the cold/warm/normal repetition loop, and the
// final markdown summary with collected system specification.
func Run(ctx context.Context, opts *config.Options) error {
	chain, err := buildChain(opts)
	if err != nil {
		return err
	}

	rule, err := resolveRepeater(opts)
	if err != nil {
		return err
	}

	run := runner.New(opts.Timeout, opts.Datafile, opts.Verbose, metrics.New(opts.Metrics))

	csvPath, mdPath, err := logPaths(opts)
	if err != nil {
		return err
	}
	logger := explog.New(csvPath, mdPath, opts.Mode)

	if opts.Start == config.StartWarm {
		cmds, err := chain.OutermostCommands(opts.Copies)
		if err != nil {
			return fmt.Errorf("failed to compose warmup commands: %w", err)
		}
		if _, err := run.Run(ctx, cmds, opts.Copies); err != nil {
			fmt.Fprintf(os.Stderr, "warning: warmup repetition failed: %v\n", err)
		}
	}

	repeat := 0
	for {
		if opts.Start == config.StartCold {
			for _, b := range chain.Backends {
				if err := b.Reset(); err != nil {
					return err
				}
			}
		}

		cmds, err := chain.OutermostCommands(opts.Copies)
		if err != nil {
			return fmt.Errorf("failed to compose repetition commands: %w", err)
		}

		data, err := run.Run(ctx, cmds, opts.Copies)
		if err != nil {
			return fmt.Errorf("experiment aborted: %w", err)
		}

		repeat++
		if err := logger.LogRun(opts, repeat, data); err != nil {
			return err
		}

		if !rule.Continue(data) {
			break
		}
	}

	if err := logger.Close(); err != nil {
		return err
	}

	var sysSpecs map[string]map[string]string
	if !opts.SkipSysSpecs {
		sysSpecs = chain.SysSpecs(opts.SysSpecCommands)
	}
	return logger.SaveMarkdown(opts, sysSpecs)
}

// buildChain constructs every configured backend (in the order given by
// opts.Backends, outermost first) and assembles them into a Chain.
func buildChain(opts *config.Options) (*backend.Chain, error) {
	fnDir := opts.FunctionDir
	if fnDir == "" {
		fnDir = dirs.DefaultFunctionsDir
	}
	ctx := backend.Context{
		Task:      opts.Task,
		Function:  opts.Function,
		Arguments: opts.Arguments,
		FnPath:    opts.FunctionPath,
		FnDir:     fnDir,
	}

	backends := make([]*backend.Backend, 0, len(opts.Backends))
	for _, name := range opts.Backends {
		cfg, ok := opts.BackendOptions[name]
		if !ok {
			return nil, fmt.Errorf("backend %q is selected but has no configuration", name)
		}
		b, err := backend.New(name, cfg, ctx)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backend.NewChain(backends), nil
}

// resolveRepeater parses opts.Repeats into a concrete rule: one of the
// named rules (SE, CI, HDI, BB, GMM, KS, DC), the sentinel "MAX" for an
// effectively unbounded Count, or a plain integer Count limit.
func resolveRepeater(opts *config.Options) (repeater.Repeater, error) {
	spec := strings.TrimSpace(opts.Repeats)
	if spec == "" {
		spec = "1"
	}

	upper := strings.ToUpper(spec)
	if namedRepeaterRules[upper] {
		return repeater.NewFromOptions(upper, opts.RepeaterOptions)
	}
	if upper == "MAX" {
		return repeater.NewFromOptions("count", withCountLimit(opts.RepeaterOptions, math.MaxInt32))
	}

	n, err := strconv.Atoi(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid --repeats value %q: must be an integer or one of SE, CI, HDI, BB, GMM, KS, DC, MAX", opts.Repeats)
	}
	return repeater.NewFromOptions("count", withCountLimit(opts.RepeaterOptions, n))
}

// withCountLimit returns a copy of ropts with the count rule's "limit"
// overridden to n, respecting a nested "count" sub-section if one exists.
func withCountLimit(ropts map[string]any, n int) map[string]any {
	result := make(map[string]any, len(ropts)+1)
	for k, v := range ropts {
		result[k] = v
	}
	if sub, ok := result["count"].(map[string]any); ok {
		subCopy := make(map[string]any, len(sub)+1)
		for k, v := range sub {
			subCopy[k] = v
		}
		subCopy["limit"] = n
		result["count"] = subCopy
	} else {
		result["limit"] = n
	}
	return result
}

// logPaths derives the CSV and markdown log paths from opts.Directory
// (dirs.DefaultLogRoot when empty), opts.Experiment, and opts.Task, creating
// the experiment directory if it does not already exist.
func logPaths(opts *config.Options) (csvPath, mdPath string, err error) {
	root := opts.Directory
	if root == "" {
		root = dirs.DefaultLogRoot
	}
	dir := filepath.Join(root, opts.Experiment)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return filepath.Join(dir, opts.Task+".csv"), filepath.Join(dir, opts.Task+".md"), nil
}
