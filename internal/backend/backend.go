// Package backend implements the composable command-template backend and
// the chain that threads several of them together into one shell
// invocation.
package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sharpbench.dev/internal/config"
)

// Context carries the experiment-wide values a backend needs to expand its
// templates: the task label, the function under test, its argument string,
// and the two function-resolution overrides.
type Context struct {
	Task      string
	Function  string
	Arguments string
	FnPath    string
	FnDir     string
}

// Backend is the single configurable type that plays every role the system
// needs (local, ssh-style, mpi-style, custom instrumentation wrapper) —
// behaviour is entirely driven by its Config templates and host list.
type Backend struct {
	Name   string
	Config config.BackendConfig
	ctx    Context
	hosts  []string
	tmpDir string
}

// New constructs a Backend, parsing its host list and creating its unique
// temp directory (if TmpPath is configured) once up front.
func New(name string, cfg config.BackendConfig, ctx Context) (*Backend, error) {
	if cfg.Run == "" {
		return nil, fmt.Errorf("backend %q: a run template is required", name)
	}

	hosts, err := parseHosts(cfg)
	if err != nil {
		return nil, err
	}

	tmpDir, err := resolveTmpDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}

	return &Backend{
		Name:   name,
		Config: cfg,
		ctx:    ctx,
		hosts:  hosts,
		tmpDir: tmpDir,
	}, nil
}

// parseHosts resolves the backend's host list: an explicit comma-separated
// "hosts" string, a newline-delimited "hostfile", or localhost.
func parseHosts(cfg config.BackendConfig) ([]string, error) {
	if cfg.Hosts != "" {
		parts := strings.Split(cfg.Hosts, ",")
		hosts := make([]string, len(parts))
		for i, p := range parts {
			hosts[i] = strings.TrimSpace(p)
		}
		return hosts, nil
	}

	if cfg.HostFile != "" {
		data, err := os.ReadFile(cfg.HostFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hostfile %s not found, using localhost\n", cfg.HostFile)
			return []string{"localhost"}, nil
		}
		var hosts []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				hosts = append(hosts, line)
			}
		}
		if len(hosts) == 0 {
			return []string{"localhost"}, nil
		}
		return hosts, nil
	}

	fmt.Fprintln(os.Stderr, "warning: no hosts configured, defaulting to localhost")
	return []string{"localhost"}, nil
}

// resolveTmpDir creates the backend's unique per-invocation scratch
// directory when TmpPath is configured. The directory is reused across all
// repetitions of the experiment and is the collection point MPI ranks
// consume directly via $TMP_PATH.
func resolveTmpDir(cfg config.BackendConfig) (string, error) {
	if cfg.TmpPath == "" {
		return "", nil
	}
	base := strings.TrimRight(cfg.TmpPath, "/")
	dir := filepath.Join(base, "mpi-stats-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp path %s: %w", dir, err)
	}
	return dir + "/", nil
}

// isMPIStyle reports whether run contains both $MPL and a well-known
// multi-process launcher name, meaning the backend handles concurrency
// internally.
func isMPIStyle(run string) bool {
	lower := strings.ToLower(run)
	hasLauncher := strings.Contains(lower, "mpirun") || strings.Contains(lower, "mpiexec") || strings.Contains(lower, "srun")
	return hasLauncher && strings.Contains(run, "$MPL")
}

// IsMPIStyle reports whether this backend's run template is mpi-style.
func (b *Backend) IsMPIStyle() bool {
	return isMPIStyle(b.Config.Run)
}

// HandlesConcurrencyInternally is an alias of IsMPIStyle kept for the same
// reason the original distinguishes the two names: backends that handle
// their own concurrency are exactly the mpi-style ones today, but the
// concept (asked by BackendChain) is distinct from the detection mechanism.
func (b *Backend) HandlesConcurrencyInternally() bool {
	return b.IsMPIStyle()
}

// resolveExecutable implements the function-resolution order from §4.1: a
// configured function-path override, an absolute existing path, a
// `fns/<func>/<func>.*` match, or the name verbatim.
func resolveExecutable(fn, fnPath, fnDir string) string {
	if fnPath != "" {
		return filepath.Join(fnPath, fn+".py")
	}

	if filepath.IsAbs(fn) {
		if info, err := os.Stat(fn); err == nil && !info.IsDir() {
			return fn
		}
	}

	name := filepath.Base(fn)
	matches, _ := filepath.Glob(filepath.Join(fnDir, name, name+".*"))
	sort.Strings(matches)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return m
		}
	}

	return fn
}

// expandMacros replaces every non-command-assembly macro token, using
// copyIndex for the round-robin $HOST selection and the $HOSTk indices.
//
// $HOST is substituted before the $HOSTk loop, exactly like the source this
// is ported from — a template combining both $HOST and $HOSTk in the same
// string will see $HOSTk's digit suffix attached to the $HOST replacement
// rather than resolved as a distinct macro.
func (b *Backend) expandMacros(src string, copyIndex int) string {
	result := src
	result = strings.ReplaceAll(result, "$TASK", b.ctx.Task)
	result = strings.ReplaceAll(result, "$FN", b.ctx.Function)
	result = strings.ReplaceAll(result, "$ARGS", b.ctx.Arguments)
	result = strings.ReplaceAll(result, "$MPIFLAGS", b.Config.MPIFlags)
	result = strings.ReplaceAll(result, "$TMP_PATH", b.tmpDir)

	if strings.Contains(result, "$HOST") {
		host := "localhost"
		if len(b.hosts) > 0 {
			host = b.hosts[copyIndex%len(b.hosts)]
		}
		result = strings.ReplaceAll(result, "$HOST", host)
	}

	for i, host := range b.hosts {
		result = strings.ReplaceAll(result, fmt.Sprintf("$HOST%d", i), host)
	}

	return result
}

// buildBaseCommand assembles $CMD/$MPL/$ARGS, before per-copy macro
// expansion. With a nested command it substitutes $CMD for it, only wires
// $MPL through for mpi-style backends, and strips every $ARGS occurrence
// (arguments belong to the innermost command only). Without nesting it
// resolves the function executable and appends the argument string when
// the template doesn't already place it via $ARGS.
func (b *Backend) buildBaseCommand(copies int, nested string) string {
	if nested != "" {
		cmd := strings.ReplaceAll(b.Config.Run, "$CMD", nested)
		if b.IsMPIStyle() {
			cmd = strings.ReplaceAll(cmd, "$MPL", strconv.Itoa(copies))
		}
		cmd = strings.ReplaceAll(cmd, " $ARGS", "")
		cmd = strings.ReplaceAll(cmd, "$ARGS ", "")
		cmd = strings.ReplaceAll(cmd, "$ARGS", "")
		return cmd
	}

	cmd := b.Config.Run
	cmd = strings.ReplaceAll(cmd, "$CMD", resolveExecutable(b.ctx.Function, b.ctx.FnPath, b.ctx.FnDir))
	cmd = strings.ReplaceAll(cmd, "$MPL", strconv.Itoa(copies))
	if !strings.Contains(b.Config.Run, "$ARGS") {
		cmd += " " + b.ctx.Arguments
	}
	return cmd
}

// RunCommands returns the command(s) that launch copies instances of nested
// (or, at the innermost position, the resolved function) through this
// backend. mpi-style backends always return exactly one command; everything
// else returns one command per copy, each with its own macro expansion.
func (b *Backend) RunCommands(copies int, nested string) []string {
	if b.IsMPIStyle() {
		cmd := b.buildBaseCommand(copies, nested)
		return []string{b.expandMacros(cmd, 0)}
	}

	cmds := make([]string, copies)
	for i := 0; i < copies; i++ {
		cmd := b.buildBaseCommand(copies, nested)
		cmds[i] = b.expandMacros(cmd, i)
	}
	return cmds
}

// SysSpecCommands wraps every configured sys-spec command in this backend's
// run_sys_spec template (default "$SPEC_COMMAND"), expanding macros at copy
// index 0.
func (b *Backend) SysSpecCommands(specs map[string]map[string]string) map[string]map[string]string {
	ret := make(map[string]map[string]string, len(specs))
	template := b.Config.RunSysSpec
	if template == "" {
		template = "$SPEC_COMMAND"
	}

	for group, commands := range specs {
		ret[group] = make(map[string]string, len(commands))
		for key, command := range commands {
			cmd := strings.ReplaceAll(template, "$SPEC_COMMAND", command)
			ret[group][key] = b.expandMacros(cmd, 0)
		}
	}
	return ret
}

// Reset runs the backend's reset template (if any) through the shell. A
// non-zero status is fatal with an actionable cache-flush hint for the
// local backend; any other backend only warns.
func (b *Backend) Reset() error {
	if b.Config.Reset == "" {
		return nil
	}

	cmd := b.expandMacros(b.Config.Reset, 0)
	out, err := exec.Command("sh", "-c", cmd).CombinedOutput()
	if err == nil {
		return nil
	}

	if b.Name == "local" {
		return fmt.Errorf(
			"failed to flush filesystem caches (backend %q): %w\n"+
				"consider adding this line to /etc/sudoers: ALL=NOPASSWD: /sbin/sysctl vm.drop_caches=3\n"+
				"output: %s", b.Name, err, out)
	}

	fmt.Fprintf(os.Stderr, "warning: reset command failed for backend %q: %v\noutput: %s\n", b.Name, err, out)
	return nil
}
