// Package runner launches a repetition's command copies as subprocesses,
// supervises them under a shared deadline, and harvests their metrics into
// a RunData.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sharpbench.dev/internal/metrics"
	"sharpbench.dev/internal/rundata"
)

// noTimeout is the fallback ceiling when no experiment timeout is
// configured — long enough to never fire in practice, short enough that a
// truly wedged run doesn't hang the supervisor forever.
const noTimeout = 24 * time.Hour

// Runner launches N shell command strings in parallel and harvests their
// metrics.
type Runner struct {
	Timeout   time.Duration
	Input     string
	Verbose   bool
	Extractor *metrics.Extractor
}

// New builds a Runner. timeoutSeconds <= 0 means unbounded (capped at
// noTimeout); input, when non-empty, is a file whose contents are piped to
// every copy's stdin.
func New(timeoutSeconds int, input string, verbose bool, extractor *metrics.Extractor) *Runner {
	var timeout time.Duration
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &Runner{Timeout: timeout, Input: input, Verbose: verbose, Extractor: extractor}
}

// Run launches cmds in parallel, waits for all of them under the shared
// deadline, and returns the accumulated RunData. It returns
// ErrShellNotFound if any copy's shell exits 127, ErrTimeoutExceeded if the
// deadline elapses first, and ErrAllCopiesFailed if every copy exits
// non-zero.
func (r *Runner) Run(ctx context.Context, cmds []string, ncopies int) (*rundata.RunData, error) {
	data := rundata.New(ncopies)

	timeout := noTimeout
	if r.Timeout > 0 {
		timeout = r.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	var mu sync.Mutex
	successes := 0

	for i, cmdStr := range cmds {
		i, cmdStr := i, cmdStr
		g.Go(func() error {
			ok, err := r.runCopy(gctx, i, cmdStr, data, &mu)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if successes == 0 {
		return nil, ErrAllCopiesFailed
	}
	return data, nil
}

// runCopy launches one command, waits for it under ctx, and on success
// extracts and records its metrics. ok reports whether the copy produced
// usable rows; a non-nil error is always fatal to the whole repetition.
func (r *Runner) runCopy(ctx context.Context, idx int, cmdStr string, data *rundata.RunData, mu *sync.Mutex) (ok bool, err error) {
	scratch, err := os.CreateTemp("", fmt.Sprintf("sharp-%d-*", idx))
	if err != nil {
		return false, fmt.Errorf("failed to create scratch file for copy %d: %w", idx, err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	cmd := exec.Command("sh", "-c", cmdStr)
	cmd.Stdout = scratch
	cmd.Stderr = scratch
	cmd.SysProcAttr = getProcAttrs()

	if r.Input != "" {
		in, err := os.Open(r.Input)
		if err != nil {
			return false, fmt.Errorf("failed to open input file %s: %w", r.Input, err)
		}
		defer in.Close()
		cmd.Stdin = in
	} else {
		cmd.Stdin = os.Stdin
	}

	if r.Verbose {
		fmt.Fprintln(os.Stderr, "Running:", cmdStr)
	}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start command: %w", err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = killProcessGroup(cmd.Process.Pid, syscall.SIGKILL)
		<-waitDone
		return false, ErrTimeoutExceeded

	case waitErr := <-waitDone:
		exitCode := 0
		if waitErr != nil {
			exitErr, isExit := waitErr.(*exec.ExitError)
			if !isExit {
				return false, fmt.Errorf("failed to wait for copy %d: %w", idx, waitErr)
			}
			exitCode = exitErr.ExitCode()
		}

		if r.Verbose {
			_, _ = scratch.Seek(0, io.SeekStart)
			_, _ = io.Copy(os.Stdout, scratch)
		}

		if exitCode == 127 {
			return false, fmt.Errorf("%w: %q", ErrShellNotFound, cmdStr)
		}
		if exitCode != 0 {
			fmt.Fprintf(os.Stderr, "warning: executing function returned status %d\n", exitCode)
			return false, nil
		}

		rows, err := r.Extractor.Extract(scratch.Name())
		if err != nil {
			return false, err
		}

		mu.Lock()
		for _, row := range rows {
			data.AddRun(row)
		}
		mu.Unlock()
		return true, nil
	}
}
