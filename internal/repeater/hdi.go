package repeater

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"sharpbench.dev/internal/rundata"
)

// HDIRepeater stops once the relative width of the highest-density interval
// of the empirical sample drops at or below a threshold. The interval is
// the narrowest contiguous slice of the sorted sample that holds HDIProb of
// its mass — the same constant-width scan arviz.hdi uses.
type HDIRepeater struct {
	count     *CountRepeater
	MinRepeat int
	MaxRepeat int
	HDIProb   float64
	Threshold float64
}

// NewHDIRepeater builds an HDIRepeater.
func NewHDIRepeater(metric string, minRepeat, maxRepeat int, hdiProb, threshold float64) *HDIRepeater {
	return &HDIRepeater{
		count:     NewCountRepeater(0, metric),
		MinRepeat: minRepeat,
		MaxRepeat: maxRepeat,
		HDIProb:   hdiProb,
		Threshold: threshold,
	}
}

// Continue appends the repetition's sample, then stops once count reaches
// MaxRepeat or (once past MinRepeat) the HDI's relative width has fallen to
// or below Threshold.
func (r *HDIRepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	if r.count.Count() >= r.MaxRepeat {
		return false
	}
	if r.count.Count() <= r.MinRepeat {
		return true
	}

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	lo, hi := hdiInterval(sorted, r.HDIProb)
	mean := stat.Mean(sample, nil)
	relWidth := (hi - lo) / mean

	return relWidth > r.Threshold
}

// Count returns the number of repetitions run so far.
func (r *HDIRepeater) Count() int { return r.count.Count() }

// hdiInterval scans every contiguous window of sorted that covers at least
// prob of the mass and returns the narrowest one's bounds.
func hdiInterval(sorted []float64, prob float64) (lo, hi float64) {
	n := len(sorted)
	if n == 0 {
		return 0, 0
	}

	intervalIdx := int(prob * float64(n))
	if intervalIdx < 1 {
		intervalIdx = 1
	}
	if intervalIdx >= n {
		return sorted[0], sorted[n-1]
	}

	nIntervals := n - intervalIdx
	minWidth := sorted[intervalIdx] - sorted[0]
	minIdx := 0
	for i := 1; i < nIntervals; i++ {
		width := sorted[i+intervalIdx] - sorted[i]
		if width < minWidth {
			minWidth = width
			minIdx = i
		}
	}
	return sorted[minIdx], sorted[minIdx+intervalIdx]
}

func newHDIRepeaterFromOptions(ropts map[string]any) *HDIRepeater {
	sub := subOptions(ropts, "HDI")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 5)
	maxRepeat := getInt(sub, "max_repeats", 200)
	hdiProb := getFloat(sub, "hdi_prob", 0.94)
	threshold := getFloat(sub, "threshold", 0.05)
	return NewHDIRepeater(metric, minRepeat, maxRepeat, hdiProb, threshold)
}
