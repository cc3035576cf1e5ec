package repeater

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"sharpbench.dev/internal/rundata"
)

// SERepeater stops once the sample's relative standard error (SE / mean)
// drops at or below a threshold, after a minimum number of repetitions.
type SERepeater struct {
	count     *CountRepeater
	MinRepeat int
	MaxRepeat int
	Threshold float64
}

// NewSERepeater builds an SERepeater. Defaults mirror the source this is
// ported from: 5 minimum repeats, 100 maximum, 5% relative SE threshold.
func NewSERepeater(metric string, minRepeat, maxRepeat int, threshold float64) *SERepeater {
	return &SERepeater{
		count:     NewCountRepeater(0, metric),
		MinRepeat: minRepeat,
		MaxRepeat: maxRepeat,
		Threshold: threshold,
	}
}

// Continue appends the repetition's sample, then stops once count reaches
// MaxRepeat or (having passed MinRepeat) the relative standard error has
// fallen to or below Threshold.
func (r *SERepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	if r.count.Count() >= r.MaxRepeat {
		return false
	}

	if r.count.Count() <= r.MinRepeat {
		return true
	}

	mean := stat.Mean(sample, nil)
	sd := stat.StdDev(sample, nil)
	se := sd / math.Sqrt(float64(len(sample)))
	relSE := 0.0
	if mean != 0 {
		relSE = se / mean
	}

	return relSE > r.Threshold
}

// Count returns the number of repetitions run so far.
func (r *SERepeater) Count() int { return r.count.Count() }

func newSERepeaterFromOptions(ropts map[string]any) *SERepeater {
	sub := subOptions(ropts, "SE")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 5)
	maxRepeat := getInt(sub, "max_repeats", 100)
	threshold := getFloat(sub, "threshold", 0.05)
	return NewSERepeater(metric, minRepeat, maxRepeat, threshold)
}
