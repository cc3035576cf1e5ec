package repeater

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"sharpbench.dev/internal/rundata"
)

// BBRepeater stops once a block-bootstrap confidence interval of the
// sample mean has a relative width at or below a threshold. The block size
// is picked from the sample's own autocorrelation, so the bootstrap
// resamples respect whatever serial dependence the measurements carry
// instead of treating every repetition as independent.
type BBRepeater struct {
	count          *CountRepeater
	MinRepeat      int
	MaxRepeat      int
	NumBoot        int
	AutocorrCutoff float64
	Confidence     float64
	Threshold      float64
}

// NewBBRepeater builds a BBRepeater.
func NewBBRepeater(metric string, minRepeat, maxRepeat, numBoot int, autocorrCutoff, confidence, threshold float64) *BBRepeater {
	return &BBRepeater{
		count:          NewCountRepeater(0, metric),
		MinRepeat:      minRepeat,
		MaxRepeat:      maxRepeat,
		NumBoot:        numBoot,
		AutocorrCutoff: autocorrCutoff,
		Confidence:     confidence,
		Threshold:      threshold,
	}
}

// Continue appends the repetition's sample, then stops once count reaches
// MaxRepeat or (once past MinRepeat) the block-bootstrap CI's relative
// width has fallen to or below Threshold.
func (r *BBRepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	if r.count.Count() >= r.MaxRepeat {
		return false
	}
	if r.count.Count() <= r.MinRepeat {
		return true
	}

	block := blockSize(sample, r.AutocorrCutoff)
	means := bootstrapMeans(sample, block, r.NumBoot)
	sort.Float64s(means)

	lowerQ := (1 - r.Confidence) / 2
	upperQ := 1 - lowerQ
	lo := percentile(means, lowerQ)
	hi := percentile(means, upperQ)

	mean := stat.Mean(sample, nil)
	relWidth := (hi - lo) / mean

	return relWidth > r.Threshold
}

// Count returns the number of repetitions run so far.
func (r *BBRepeater) Count() int { return r.count.Count() }

// blockSize picks the smallest lag whose autocorrelation magnitude drops
// below cutoff, searching up to a quarter of the sample length.
//
// A sample whose autocorrelation never decays within that search window
// (a persistently noisy metric, or too few repetitions to tell) falls back
// to the full search-window length rather than scanning indefinitely — the
// block-bootstrap equivalent of capping at MaxRepeat.
func blockSize(sample []float64, cutoff float64) int {
	n := len(sample)
	maxLag := n / 4
	if maxLag < 1 {
		return 1
	}

	mean := stat.Mean(sample, nil)
	var c0 float64
	for _, v := range sample {
		d := v - mean
		c0 += d * d
	}
	if c0 == 0 {
		return 1
	}

	for lag := 1; lag <= maxLag; lag++ {
		var c float64
		for i := 0; i < n-lag; i++ {
			c += (sample[i] - mean) * (sample[i+lag] - mean)
		}
		if math.Abs(c/c0) < cutoff {
			return lag
		}
	}
	return maxLag
}

// bootstrapMeans draws numBoot block-bootstrap resamples of sample (blocks
// of the given size, wrapping circularly, concatenated to the original
// length) and returns each resample's mean.
func bootstrapMeans(sample []float64, block, numBoot int) []float64 {
	n := len(sample)
	if block < 1 {
		block = 1
	}
	means := make([]float64, numBoot)

	for b := 0; b < numBoot; b++ {
		resample := make([]float64, 0, n)
		for len(resample) < n {
			start := rand.Intn(n)
			for k := 0; k < block && len(resample) < n; k++ {
				resample = append(resample, sample[(start+k)%n])
			}
		}
		means[b] = stat.Mean(resample, nil)
	}
	return means
}

// percentile returns the linearly interpolated p-th quantile (0<=p<=1) of
// an already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func newBBRepeaterFromOptions(ropts map[string]any) *BBRepeater {
	sub := subOptions(ropts, "BB")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 10)
	maxRepeat := getInt(sub, "max_repeats", 200)
	numBoot := getInt(sub, "num_bootstrap", 1000)
	autocorrCutoff := getFloat(sub, "autocorrelation_cutoff", 0.2)
	confidence := getFloat(sub, "confidence", 0.95)
	threshold := getFloat(sub, "threshold", 0.05)
	return NewBBRepeater(metric, minRepeat, maxRepeat, numBoot, autocorrCutoff, confidence, threshold)
}
