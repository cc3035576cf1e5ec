package repeater

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"sharpbench.dev/internal/rundata"
)

// CIRepeater stops once the relative half-width of a Student's-t confidence
// interval around the sample mean drops at or below a threshold.
type CIRepeater struct {
	count      *CountRepeater
	MinRepeat  int
	MaxRepeat  int
	Confidence float64
	Threshold  float64
}

// NewCIRepeater builds a CIRepeater.
func NewCIRepeater(metric string, minRepeat, maxRepeat int, confidence, threshold float64) *CIRepeater {
	return &CIRepeater{
		count:      NewCountRepeater(0, metric),
		MinRepeat:  minRepeat,
		MaxRepeat:  maxRepeat,
		Confidence: confidence,
		Threshold:  threshold,
	}
}

// Continue appends the repetition's sample, then stops once count reaches
// MaxRepeat or (once count has reached MinRepeat) the CI's relative
// half-width has fallen to or below Threshold.
func (r *CIRepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	if r.count.Count() >= r.MaxRepeat {
		return false
	}

	if r.count.Count() < r.MinRepeat {
		return true
	}

	n := float64(len(sample))
	mean := stat.Mean(sample, nil)
	sd := stat.StdDev(sample, nil)
	se := sd / math.Sqrt(n)

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}
	critical := t.Quantile(1 - (1-r.Confidence)/2)
	halfWidth := critical * se
	relWidth := halfWidth / mean

	return relWidth > r.Threshold
}

// Count returns the number of repetitions run so far.
func (r *CIRepeater) Count() int { return r.count.Count() }

func newCIRepeaterFromOptions(ropts map[string]any) *CIRepeater {
	sub := subOptions(ropts, "CI")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 5)
	maxRepeat := getInt(sub, "max_repeats", 100)
	confidence := getFloat(sub, "confidence", 0.95)
	threshold := getFloat(sub, "threshold", 0.05)
	return NewCIRepeater(metric, minRepeat, maxRepeat, confidence, threshold)
}
