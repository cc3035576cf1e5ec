package repeater

import "sharpbench.dev/internal/rundata"

// DecisionRepeater runs a battery of sub-repeaters every round and picks
// its verdict from the first test in a fixed priority order that applies
// to the accumulated sample: a constant sample stops outright, a
// monotonic (still trending) sample always continues, a sample with
// significant lag-1 autocorrelation defers to the block-bootstrap
// verdict, a sample that fits a Normal distribution defers to the
// confidence-interval verdict, a lognormal fit defers to the
// highest-density-interval verdict, a multimodal signature defers to the
// Gaussian-mixture verdict, and a uniform fit stops outright. Only once
// none of those apply does the budget check (stop at MaxRepeat) and the
// plain "keep going" fallback take over.
type DecisionRepeater struct {
	count     *CountRepeater
	MinRepeat int
	MaxRepeat int
	Alpha     float64

	autocorrCutoff        float64
	maxGaussianComponents int
	goodnessThreshold     float64

	bb  *BBRepeater
	ci  *CIRepeater
	hdi *HDIRepeater
	gmm *GaussianMixtureRepeater
}

// NewDecisionRepeater builds a DecisionRepeater and its four resident
// sub-repeaters, each sized off the same min/max repeat budget.
func NewDecisionRepeater(metric string, minRepeat, maxRepeat int, alpha, autocorrCutoff float64, maxGaussianComponents int, goodnessThreshold float64) *DecisionRepeater {
	return &DecisionRepeater{
		count:                 NewCountRepeater(0, metric),
		MinRepeat:             minRepeat,
		MaxRepeat:             maxRepeat,
		Alpha:                 alpha,
		autocorrCutoff:        autocorrCutoff,
		maxGaussianComponents: maxGaussianComponents,
		goodnessThreshold:     goodnessThreshold,
		bb:                    NewBBRepeater(metric, minRepeat, maxRepeat, 1000, autocorrCutoff, 0.95, 0.05),
		ci:                    NewCIRepeater(metric, minRepeat, maxRepeat, 0.95, 0.05),
		hdi:                   NewHDIRepeater(metric, minRepeat, maxRepeat, 0.94, 0.05),
		gmm:                   NewGaussianMixtureRepeater(metric, minRepeat, maxRepeat, maxGaussianComponents, 2, goodnessThreshold),
	}
}

// Continue feeds the repetition to every resident sub-repeater (so each
// keeps its own state current regardless of which one ends up deciding
// this round), then applies the fixed test-priority order to the
// accumulated sample.
func (r *DecisionRepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	bbResult := r.bb.Continue(data)
	ciResult := r.ci.Continue(data)
	hdiResult := r.hdi.Continue(data)
	gmmResult := r.gmm.Continue(data)

	if r.count.Count() < r.MinRepeat {
		return true
	}

	if isConstant(sample) {
		return false
	}
	if isMonotonic(sample) {
		return true
	}
	if hasSignificantAutocorrelation(sample, r.autocorrCutoff) {
		return bbResult
	}
	if cdf, ok := fitNormal(sample); ok {
		if kolmogorovPValue(ksOneSample(sample, cdf), len(sample)) > r.Alpha {
			return ciResult
		}
	}
	if cdf, ok := fitLogNormal(sample); ok {
		if kolmogorovPValue(ksOneSample(sample, cdf), len(sample)) > r.Alpha {
			return hdiResult
		}
	}
	if isMultimodal(sample, r.maxGaussianComponents, r.goodnessThreshold) {
		return gmmResult
	}
	if cdf, ok := fitUniform(sample); ok {
		if kolmogorovPValue(ksOneSample(sample, cdf), len(sample)) > r.Alpha {
			return false
		}
	}

	return r.count.Count() < r.MaxRepeat
}

// Count returns the number of repetitions run so far.
func (r *DecisionRepeater) Count() int { return r.count.Count() }

// isConstant reports whether every value in sample is identical, to
// machine precision — repeating a measurement that never varies can
// never improve its estimate.
func isConstant(sample []float64) bool {
	if len(sample) < 2 {
		return false
	}
	first := sample[0]
	for _, v := range sample[1:] {
		if v != first {
			return false
		}
	}
	return true
}

// isMonotonic reports whether sample is entirely non-decreasing or
// entirely non-increasing — a signature of a still-drifting measurement
// (warming caches, thermal throttling) rather than a settled one.
func isMonotonic(sample []float64) bool {
	if len(sample) < 3 {
		return false
	}
	increasing, decreasing := true, true
	for i := 1; i < len(sample); i++ {
		if sample[i] < sample[i-1] {
			increasing = false
		}
		if sample[i] > sample[i-1] {
			decreasing = false
		}
	}
	return increasing || decreasing
}

// hasSignificantAutocorrelation reports whether the sample's lag-1
// autocorrelation magnitude clears cutoff, the same signal BBRepeater
// uses to size its block.
func hasSignificantAutocorrelation(sample []float64, cutoff float64) bool {
	if len(sample) < 3 {
		return false
	}
	return blockSize(sample, cutoff) > 1
}

func newDecisionRepeaterFromOptions(ropts map[string]any) *DecisionRepeater {
	sub := subOptions(ropts, "DC")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 20)
	maxRepeat := getInt(sub, "max_repeats", 400)
	alpha := getFloat(sub, "alpha", 0.05)
	autocorrCutoff := getFloat(sub, "autocorrelation_cutoff", 0.2)
	maxGaussianComponents := getInt(sub, "max_gaussian_components", 6)
	goodnessThreshold := getFloat(sub, "goodness_threshold", 1.0)
	return NewDecisionRepeater(metric, minRepeat, maxRepeat, alpha, autocorrCutoff, maxGaussianComponents, goodnessThreshold)
}
