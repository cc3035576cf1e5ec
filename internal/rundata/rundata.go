// Package rundata accumulates the metric rows produced by one repetition of
// the backend chain.
package rundata

import (
	"fmt"
	"regexp"
	"time"
)

// decimalLiteral matches a signed decimal literal that has an explicit
// fractional part; values matching it are coerced to float64 on ingestion,
// everything else (including bare integers) stays a string.
var decimalLiteral = regexp.MustCompile(`^-?\d+\.\d+$`)

// RunData is the typed accumulator for a single repetition. It starts its
// own wall-clock at construction and is considered closed once NCopies rows
// have been appended.
type RunData struct {
	NCopies   int
	perf      map[string][]any
	startTime time.Time
}

// New starts the clock and allocates the outer_time series.
func New(ncopies int) *RunData {
	return &RunData{
		NCopies:   ncopies,
		perf:      map[string][]any{"outer_time": {}},
		startTime: time.Now(),
	}
}

// String renders a short debug summary, mirroring the original's __str__.
func (r *RunData) String() string {
	return fmt.Sprintf("Recorded %d runs out of %d, with these metrics: %v",
		len(r.perf["outer_time"]), r.NCopies, r.perf)
}

// UserMetrics returns the names of every metric except outer_time.
func (r *RunData) UserMetrics() []string {
	metrics := make([]string, 0, len(r.perf))
	for name := range r.perf {
		if name == "outer_time" {
			continue
		}
		metrics = append(metrics, name)
	}
	return metrics
}

// AddRun records one copy's metrics, stamping outer_time as the delta from
// the shared start time to now, and coercing values that look like decimal
// literals to float64.
func (r *RunData) AddRun(metrics map[string]string) {
	r.perf["outer_time"] = append(r.perf["outer_time"], time.Since(r.startTime).Seconds())

	for name, raw := range metrics {
		if _, ok := r.perf[name]; !ok {
			r.perf[name] = []any{}
		}
		var value any = raw
		if decimalLiteral.MatchString(raw) {
			var f float64
			if _, err := fmt.Sscanf(raw, "%g", &f); err == nil {
				value = f
			}
		}
		r.perf[name] = append(r.perf[name], value)
	}
}

// GetOuter returns the outer_time series, panicking if fewer than NCopies
// rows have been recorded — mirrors the original's assertion, since callers
// are only supposed to reach this after a repetition is fully harvested.
func (r *RunData) GetOuter() []float64 {
	r.assertComplete()
	out := make([]float64, len(r.perf["outer_time"]))
	for i, v := range r.perf["outer_time"] {
		out[i] = v.(float64)
	}
	return out
}

// GetMetric returns the raw (possibly mixed string/float64) series for the
// named metric, panicking if the run is not yet complete.
func (r *RunData) GetMetric(metric string) []any {
	r.assertComplete()
	return r.perf[metric]
}

func (r *RunData) assertComplete() {
	if len(r.perf["outer_time"]) < r.NCopies {
		panic(fmt.Sprintf("attempted to access task's runtime before %d copies have been completed", r.NCopies))
	}
}

// GetMetricFloats returns the named metric's series as float64, for
// repeaters that need a numeric sample. Returns an error if any value in
// the series never coerced to a number.
func (r *RunData) GetMetricFloats(metric string) ([]float64, error) {
	if metric == "outer_time" {
		return r.GetOuter(), nil
	}
	raw := r.GetMetric(metric)
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("metric %q value %v at row %d is not numeric", metric, v, i)
		}
		out[i] = f
	}
	return out, nil
}
