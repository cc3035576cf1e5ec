// Package explog writes the experiment's per-repetition metrics to a CSV
// sink and a companion markdown file carrying the run's full configuration
// and collected system specification, grounded on the original launcher's
// save_csv/save_md shape.
package explog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"sharpbench.dev/internal/config"
	"sharpbench.dev/internal/rundata"
)

// columnScoped fields are fixed once per experiment and repeated on every
// row; the row-scoped fields (repeat, rank, outer_time, then the user
// metrics sorted by name) vary per repetition/rank and follow them.
var columnScoped = []string{"task", "start", "experiment", "concurrency"}

const (
	colRepeat    = "repeat"
	colRank      = "rank"
	colOuterTime = "outer_time"
)

// Logger accumulates metric rows across repetitions and writes them to a
// CSV file, plus a final markdown summary once the experiment finishes.
type Logger struct {
	csvPath   string
	mdPath    string
	mode      config.WriteMode
	startedAt string

	file    *os.File
	writer  *csv.Writer
	header  []string
	started bool
}

// New builds a Logger for the given CSV and markdown paths. mode selects
// whether the CSV is truncated (ModeWrite) or appended to (ModeAppend) on
// first use.
func New(csvPath, mdPath string, mode config.WriteMode) *Logger {
	return &Logger{
		csvPath:   csvPath,
		mdPath:    mdPath,
		mode:      mode,
		startedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// LogRun appends one repetition's rows to the CSV sink, one row per copy
// that reported metrics. It opens (and, on first use in ModeWrite, writes
// the header for) the CSV file lazily so a Logger that never runs a
// repetition never creates an empty file.
func (l *Logger) LogRun(opts *config.Options, repeat int, data *rundata.RunData) error {
	if err := l.ensureOpen(data); err != nil {
		return err
	}

	outer := data.GetOuter()
	metricNames := l.header[len(columnScoped)+3:]

	for rank, outerTime := range outer {
		row := make([]string, 0, len(l.header))
		row = append(row, opts.Task, l.startedAt, opts.Experiment, strconv.Itoa(opts.Copies))
		row = append(row, strconv.Itoa(repeat), strconv.Itoa(rank), formatFloat(outerTime))

		for _, metric := range metricNames {
			values := data.GetMetric(metric)
			if rank < len(values) {
				row = append(row, fmt.Sprintf("%v", values[rank]))
			} else {
				row = append(row, "NA")
			}
		}

		if err := l.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	l.writer.Flush()
	return l.writer.Error()
}

func (l *Logger) ensureOpen(data *rundata.RunData) error {
	if l.started {
		return nil
	}

	metricNames := data.UserMetrics()
	sort.Strings(metricNames)

	l.header = append([]string{}, columnScoped...)
	l.header = append(l.header, colRepeat, colRank, colOuterTime)
	l.header = append(l.header, metricNames...)

	flags := os.O_CREATE | os.O_WRONLY
	writeHeader := true
	switch l.mode {
	case config.ModeAppend:
		flags |= os.O_APPEND
		if info, err := os.Stat(l.csvPath); err == nil && info.Size() > 0 {
			writeHeader = false
		}
	default:
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(l.csvPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open CSV sink %s: %w", l.csvPath, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.started = true

	if writeHeader {
		if err := l.writer.Write(l.header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		l.writer.Flush()
	}
	return l.writer.Error()
}

// Close flushes and closes the underlying CSV file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Close()
}

// SaveMarkdown writes the companion markdown file: a "Runtime options"
// JSON block round-trippable via --repro, a human-readable field
// description, and a "System specification" JSON block of whatever
// sys-spec commands the backend chain collected.
func (l *Logger) SaveMarkdown(opts *config.Options, sysSpecs map[string]map[string]string) error {
	optsJSON, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal runtime options: %w", err)
	}
	specsJSON, err := json.MarshalIndent(sysSpecs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal system specification: %w", err)
	}

	var out []byte
	out = append(out, fmt.Sprintf("# Experiment: %s\n\n", opts.Experiment)...)
	if opts.Description != "" {
		out = append(out, opts.Description...)
		out = append(out, "\n\n"...)
	}
	out = append(out, "## Runtime options\n\n```json\n"...)
	out = append(out, optsJSON...)
	out = append(out, "\n```\n\n"...)
	out = append(out, fieldDescription(l.header)...)
	out = append(out, "## System specification\n\n```json\n"...)
	out = append(out, specsJSON...)
	out = append(out, "\n```\n"...)

	if err := os.WriteFile(l.mdPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write markdown summary %s: %w", l.mdPath, err)
	}
	return nil
}

func fieldDescription(header []string) string {
	out := "## Field description\n\n"
	out += "| column | meaning |\n|---|---|\n"
	out += "| task | experiment task label |\n"
	out += "| start | experiment start timestamp (UTC, RFC3339) |\n"
	out += "| experiment | experiment name |\n"
	out += "| concurrency | configured copies |\n"
	out += "| repeat | repetition index |\n"
	out += "| rank | per-copy index within the repetition |\n"
	out += "| outer_time | wall-clock seconds from repetition start to this copy's completion |\n"
	for _, metric := range header {
		switch metric {
		case "task", "start", "experiment", "concurrency", "repeat", "rank", "outer_time":
			continue
		}
		out += fmt.Sprintf("| %s | user-defined metric |\n", metric)
	}
	out += "\n"
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
