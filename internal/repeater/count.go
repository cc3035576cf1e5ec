package repeater

import "sharpbench.dev/internal/rundata"

// CountRepeater is both a usable rule on its own (repeat a fixed number of
// times) and the shared base every other rule embeds for its sample
// bookkeeping.
type CountRepeater struct {
	Limit    int
	Metric   string
	runtimes []float64
	repeats  int
}

// NewCountRepeater builds a CountRepeater that runs exactly limit times.
// metric defaults to "outer_time" when empty.
func NewCountRepeater(limit int, metric string) *CountRepeater {
	if metric == "" {
		metric = "outer_time"
	}
	return &CountRepeater{Limit: limit, Metric: metric}
}

// sample appends the chosen metric's values for this repetition to the
// running sample and returns it, for subclasses that need the full series.
// It also advances the repetition count by exactly one call, regardless of
// how many copies' worth of values the call contributed to runtimes — a
// round with --mpl N copies is still one repetition.
func (c *CountRepeater) sample(data *rundata.RunData) []float64 {
	values, err := data.GetMetricFloats(c.Metric)
	if err != nil {
		values = nil
	}
	c.runtimes = append(c.runtimes, values...)
	c.repeats++
	return c.runtimes
}

// Continue records the repetition and reports whether count has reached
// Limit yet.
func (c *CountRepeater) Continue(data *rundata.RunData) bool {
	c.sample(data)
	return c.Count() < c.Limit
}

// Count returns how many repetitions have run so far. This is the round
// count, not the accumulated sample size: a repetition with multiple
// copies (--mpl N) contributes N values to Runtimes() but still advances
// Count() by exactly one.
func (c *CountRepeater) Count() int {
	return c.repeats
}

// Runtimes exposes the accumulated sample to embedding repeaters.
func (c *CountRepeater) Runtimes() []float64 {
	return c.runtimes
}

func countOptions(ropts map[string]any, key string) (limit int, metric string) {
	sub := subOptions(ropts, key)
	return getInt(sub, "limit", 30), getString(sub, "metric", "outer_time")
}
