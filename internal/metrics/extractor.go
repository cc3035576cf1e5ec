// Package metrics turns the captured output of one subprocess into typed
// metric rows using per-metric shell filter expressions.
package metrics

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"sharpbench.dev/internal/config"
)

// Extractor runs every configured metric's shell filter against a scratch
// file and assembles the per-rank rows.
type Extractor struct {
	specs map[string]config.MetricSpec
}

// New builds an Extractor for the given metric descriptors.
func New(specs map[string]config.MetricSpec) *Extractor {
	return &Extractor{specs: specs}
}

// Extract runs "cat FILE | EXTRACT" through the shell for every metric and
// returns one row map per output row index. A fatal error is returned only
// when row counts across metrics disagree — per-metric failures degrade to
// "NA" with a warning instead of aborting extraction.
func (e *Extractor) Extract(scratchFile string) ([]map[string]string, error) {
	if len(e.specs) == 0 {
		return []map[string]string{{}}, nil
	}

	collected := make(map[string][]string, len(e.specs))

	for name, spec := range e.specs {
		stdout, ok, err := e.runOne(scratchFile, name, spec)
		if err != nil {
			return nil, err
		}
		if !ok {
			collected[name] = []string{"NA"}
			continue
		}

		if name != "auto" {
			collected[name] = strings.Fields(stdout)
			continue
		}
		for autoName, autoValues := range parseAutoMetrics(stdout) {
			collected[autoName] = append(collected[autoName], autoValues...)
		}
	}

	rowCount := -1
	for name, values := range collected {
		if rowCount == -1 {
			rowCount = len(values)
			continue
		}
		if len(values) != rowCount {
			return nil, fmt.Errorf("some metrics have fewer rows than others, metric %q has %d rows, expected %d: %v",
				name, len(values), rowCount, collected)
		}
	}
	if rowCount < 0 {
		rowCount = 0
	}

	rows := make([]map[string]string, rowCount)
	for i := 0; i < rowCount; i++ {
		row := make(map[string]string, len(collected))
		for name, values := range collected {
			row[name] = values[i]
		}
		rows[i] = row
	}
	return rows, nil
}

// runOne executes one metric's extraction filter. ok is false when the
// filter failed, wrote to stderr, or produced no stdout — the caller
// substitutes "NA" in that case.
func (e *Extractor) runOne(scratchFile, name string, spec config.MetricSpec) (stdout string, ok bool, err error) {
	cmdStr := fmt.Sprintf("cat %s | %s", scratchFile, spec.Extract)
	cmd := exec.Command("sh", "-c", cmdStr)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		if exitErr, isExit := runErr.(*exec.ExitError); isExit {
			exitCode = exitErr.ExitCode()
		} else {
			return "", false, fmt.Errorf("failed to run extraction filter for metric %q: %w", name, runErr)
		}
	}

	if exitCode != 0 || errBuf.Len() > 0 || outBuf.Len() == 0 {
		fmt.Fprintf(os.Stderr,
			"warning: failed to extract output for metric %q. Did you include the correct backend and output the metric from your program?\nreturn code %d, stderr: %s\n",
			name, exitCode, errBuf.String())
		return "", false, nil
	}

	return outBuf.String(), true, nil
}

// parseAutoMetrics splits the `auto` filter's stdout into "name value"
// pairs, one per line, and buckets the values by name in order — used when
// a single filter reports several metrics at once.
func parseAutoMetrics(output string) map[string][]string {
	result := map[string][]string{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		result[fields[0]] = append(result[fields[0]], fields[1])
	}
	return result
}
