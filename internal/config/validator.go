package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks a fully-merged Options for the conditions that make an
// experiment unrunnable. It returns a single error listing every problem
// found, not just the first.
func Validate(opts *Options) error {
	var problems []string

	if opts.Function == "" {
		problems = append(problems, "function is required (positional argument or 'function' config key)")
	}

	if opts.Copies < 1 {
		problems = append(problems, fmt.Sprintf("copies must be at least 1, got %d", opts.Copies))
	}

	if len(opts.Backends) == 0 {
		problems = append(problems, "at least one backend is required (-b/--backend or 'backends' config key)")
	}

	for _, name := range opts.Backends {
		cfg, ok := opts.BackendOptions[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("backend %q is selected but has no configuration", name))
			continue
		}
		if cfg.Run == "" {
			problems = append(problems, fmt.Sprintf("backend %q: a run template is required", name))
		}
	}

	switch opts.Start {
	case StartNormal, StartCold, StartWarm:
	default:
		problems = append(problems, fmt.Sprintf("start must be one of normal, cold, warm, got %q", opts.Start))
	}

	switch opts.Mode {
	case ModeWrite, ModeAppend:
	default:
		problems = append(problems, fmt.Sprintf("mode must be one of write, append, got %q", opts.Mode))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Warn prints non-fatal configuration warnings to stderr — conditions that
// are legal but likely a mistake, mirroring the original launcher's own
// warn-but-continue checks.
func Warn(opts *Options) {
	if opts.Arguments != "" && opts.Datafile != "" {
		fmt.Fprintln(os.Stderr, "warning: both 'arguments' and 'datafile' are set; most backends only use one")
	}
	if opts.Datafile != "" {
		if _, err := os.Stat(opts.Datafile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: datafile %q is not accessible: %v\n", opts.Datafile, err)
		}
	}
}
