package repeater

import (
	"sort"

	"sharpbench.dev/internal/rundata"
)

// KSRepeater stops once the sample has stopped drifting: it splits the
// accumulated sample at its midpoint and compares the two halves with a
// two-sample Kolmogorov-Smirnov statistic, continuing while the two halves
// still look meaningfully different.
type KSRepeater struct {
	count     *CountRepeater
	MinRepeat int
	MaxRepeat int
	Threshold float64
}

// NewKSRepeater builds a KSRepeater.
func NewKSRepeater(metric string, minRepeat, maxRepeat int, threshold float64) *KSRepeater {
	return &KSRepeater{
		count:     NewCountRepeater(0, metric),
		MinRepeat: minRepeat,
		MaxRepeat: maxRepeat,
		Threshold: threshold,
	}
}

// Continue appends the repetition's sample, then stops once count reaches
// MaxRepeat or (once count has reached MinRepeat) the first-half/second-half
// KS statistic has fallen to or below Threshold.
func (r *KSRepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	if r.count.Count() >= r.MaxRepeat {
		return false
	}
	if r.count.Count() < r.MinRepeat {
		return true
	}

	mid := len(sample) / 2
	statistic := ksStatisticTwoSample(sample[:mid], sample[mid:])
	return statistic > r.Threshold
}

// Count returns the number of repetitions run so far.
func (r *KSRepeater) Count() int { return r.count.Count() }

// ksStatisticTwoSample returns the two-sample Kolmogorov-Smirnov statistic:
// the largest absolute gap between the two samples' empirical CDFs,
// evaluated at every point in their union.
func ksStatisticTwoSample(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	sortedA := append([]float64(nil), a...)
	sort.Float64s(sortedA)
	sortedB := append([]float64(nil), b...)
	sort.Float64s(sortedB)

	combined := append(append([]float64(nil), sortedA...), sortedB...)
	sort.Float64s(combined)

	na := float64(len(sortedA))
	nb := float64(len(sortedB))

	var maxDiff float64
	for _, x := range combined {
		cdfA := float64(countLessEqual(sortedA, x)) / na
		cdfB := float64(countLessEqual(sortedB, x)) / nb
		diff := cdfA - cdfB
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}

// countLessEqual returns the number of elements of sorted (ascending) that
// are <= x.
func countLessEqual(sorted []float64, x float64) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i] > x })
}

func newKSRepeaterFromOptions(ropts map[string]any) *KSRepeater {
	sub := subOptions(ropts, "KS")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 5)
	maxRepeat := getInt(sub, "max_repeats", 1000)
	threshold := getFloat(sub, "threshold", 0.1)
	return NewKSRepeater(metric, minRepeat, maxRepeat, threshold)
}
