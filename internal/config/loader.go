package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// runtimeOptionsHeading is the markdown section explog writes the
// round-trippable JSON block under; parseReproFile looks for the same
// heading to recover it.
const runtimeOptionsHeading = "## Runtime options"

// Pipeline assembles a fully-merged Options from every configuration
// source, layered in priority order from lowest to highest: the built-in
// defaults, a `--repro` markdown file's embedded runtime options, a
// sys-spec-adjacent config file, every `-f` config file in the order
// given, a `--json` command-line fragment, and finally the flags parsed
// directly off the command line. Each layer deep-merges onto the
// accumulated result via Merge; Backends is the one field that appends
// across layers instead of being replaced by the last one.
type Pipeline struct {
	// ReproFile, if set, is a `--repro` markdown log whose embedded
	// "Runtime options" JSON block seeds the pipeline — reproducing a
	// prior experiment's configuration exactly, before any overrides.
	ReproFile string
	// ConfigFiles are `-f` YAML/JSON files, applied in order.
	ConfigFiles []string
	// JSONFragment is the `--json` command-line fragment, if given.
	JSONFragment string
	// CLIOverlay carries the flags parsed directly off the command line —
	// always the last, highest-priority layer.
	CLIOverlay *Options
	// BackendsDir is scanned for auto-loadable backend definitions named
	// after the backend (e.g. backends/local.yaml) for every backend
	// listed in the accumulated Options.Backends that isn't already
	// configured by an earlier layer.
	BackendsDir string
}

// Resolve runs every configured layer through Merge in priority order and
// returns the final Options, with auto-loaded backend definitions filled
// in for any selected backend still missing a configuration.
func (p *Pipeline) Resolve() (*Options, error) {
	result := DefaultOptions()

	if p.ReproFile != "" {
		repro, err := parseReproFile(p.ReproFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read --repro file: %w", err)
		}
		result = Merge(result, repro)
	}

	for _, path := range p.ConfigFiles {
		overlay, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		result = Merge(result, overlay)
	}

	if p.JSONFragment != "" {
		overlay, err := ParseJSONFragment(p.JSONFragment)
		if err != nil {
			return nil, err
		}
		result = Merge(result, overlay)
	}

	if p.CLIOverlay != nil {
		result = Merge(result, p.CLIOverlay)
	}

	if err := autoLoadBackends(result, p.BackendsDir); err != nil {
		return nil, err
	}

	return result, nil
}

// autoLoadBackends fills in a BackendConfig for every backend named in
// opts.Backends that no earlier layer already configured, by looking for
// <BackendsDir>/<name>.yaml or .json.
func autoLoadBackends(opts *Options, backendsDir string) error {
	if backendsDir == "" {
		return nil
	}
	if opts.BackendOptions == nil {
		opts.BackendOptions = map[string]BackendConfig{}
	}

	for _, name := range opts.Backends {
		if _, ok := opts.BackendOptions[name]; ok {
			continue
		}

		found, cfg, err := findBackendFile(backendsDir, name)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		opts.BackendOptions[name] = *cfg
	}
	return nil
}

func findBackendFile(dir, name string) (found bool, cfg *BackendConfig, err error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(dir, name+ext)
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		_, parsed, parseErr := ParseBackendFile(path)
		if parseErr != nil {
			return false, nil, parseErr
		}
		return true, parsed, nil
	}
	return false, nil, nil
}

// ListBackendFiles returns every backend name discoverable in dir, sorted,
// for commands that need to enumerate what's available (e.g. a
// `launch --list-backends`-style helper).
func ListBackendFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob backends directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		ext := filepath.Ext(m)
		switch strings.ToLower(ext) {
		case ".yaml", ".yml", ".json":
			names = append(names, strings.TrimSuffix(filepath.Base(m), ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

// parseReproFile extracts the "## Runtime options" fenced JSON code block
// from a previously-written experiment log and decodes it into an
// *Options overlay, so `--repro` can replay a prior run's configuration.
func parseReproFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repro file %s: %w", path, err)
	}

	block, err := extractFencedBlock(string(data), runtimeOptionsHeading)
	if err != nil {
		return nil, err
	}

	opts := &Options{}
	if err := json.Unmarshal([]byte(block), opts); err != nil {
		return nil, fmt.Errorf("failed to parse runtime options block in %s: %w", path, err)
	}
	return opts, nil
}

// extractFencedBlock returns the contents of the first ```-fenced code
// block following the given markdown heading.
func extractFencedBlock(markdown, heading string) (string, error) {
	headingIdx := strings.Index(markdown, heading)
	if headingIdx < 0 {
		return "", fmt.Errorf("section %q not found in repro file", heading)
	}
	rest := markdown[headingIdx+len(heading):]

	fenceStart := strings.Index(rest, "```")
	if fenceStart < 0 {
		return "", fmt.Errorf("no fenced code block found under %q", heading)
	}
	rest = rest[fenceStart+3:]
	rest = strings.TrimLeft(rest, "\r\n")
	if idx := strings.Index(rest, "\n"); idx >= 0 && !strings.HasPrefix(rest, "{") {
		rest = rest[idx+1:]
	}

	fenceEnd := strings.Index(rest, "```")
	if fenceEnd < 0 {
		return "", fmt.Errorf("unterminated fenced code block under %q", heading)
	}
	return strings.TrimSpace(rest[:fenceEnd]), nil
}
