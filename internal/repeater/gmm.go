package repeater

import (
	"math"
	"sort"

	"sharpbench.dev/internal/rundata"
)

// GaussianMixtureRepeater stops once a Gaussian-mixture fit of the sample
// (selected by BIC across candidate component counts) has settled: its
// average log-likelihood magnitude has fallen at or below a goodness
// threshold, meaning additional repetitions are no longer changing the fit
// in any way that matters.
//
// The source this is ported from selects among four sklearn covariance
// types (spherical, tied, diag, full); for a one-dimensional sample diag,
// full and spherical covariance are all the same scalar variance per
// component, so only two variants are distinct here: one shared variance
// across every component ("tied") and one variance per component
// ("full"). The configured covariance list's length is kept only to size
// the warmup period the same way the source does.
type GaussianMixtureRepeater struct {
	count             *CountRepeater
	MinRepeat         int
	MaxRepeat         int
	MaxComponents     int
	NumCovariances    int
	GoodnessThreshold float64
	EMIterations      int
}

// NewGaussianMixtureRepeater builds a GaussianMixtureRepeater.
func NewGaussianMixtureRepeater(metric string, minRepeat, maxRepeat, maxComponents, numCovariances int, goodnessThreshold float64) *GaussianMixtureRepeater {
	return &GaussianMixtureRepeater{
		count:             NewCountRepeater(0, metric),
		MinRepeat:         minRepeat,
		MaxRepeat:         maxRepeat,
		MaxComponents:     maxComponents,
		NumCovariances:    numCovariances,
		GoodnessThreshold: goodnessThreshold,
		EMIterations:      100,
	}
}

// Continue appends the repetition's sample. While still within the warmup
// period (enough repetitions to try every component/covariance
// combination at least once) it always continues. Once warmed up it stops
// once count reaches MaxRepeat, or once the best-fitting mixture's average
// log-likelihood magnitude has fallen to or below GoodnessThreshold —
// i.e. it continues while the fit is still unsettled (|score| above
// threshold) and stops once the fit has stabilized.
func (r *GaussianMixtureRepeater) Continue(data *rundata.RunData) bool {
	sample := r.count.sample(data)

	warmup := r.MaxComponents * r.NumCovariances
	if r.MaxRepeat-1 < warmup {
		warmup = r.MaxRepeat - 1
	}
	if r.count.Count() <= warmup {
		return true
	}

	if r.count.Count() >= r.MaxRepeat {
		return false
	}

	_, bestScore := bestGaussianMixture(sample, r.MaxComponents, r.EMIterations)
	return math.Abs(bestScore) > r.GoodnessThreshold
}

// Count returns the number of repetitions run so far.
func (r *GaussianMixtureRepeater) Count() int { return r.count.Count() }

// gaussianComponent is one 1-D mixture component.
type gaussianComponent struct {
	weight, mean, variance float64
}

// bestGaussianMixture fits mixtures with 1..maxComponents-1 components
// (the range is exclusive of maxComponents, matching the grid the source
// this is ported from searches), in both tied and untied variance
// variants, and returns the lowest-BIC fit's components and its average
// per-sample log-likelihood.
func bestGaussianMixture(sample []float64, maxComponents, iterations int) ([]gaussianComponent, float64) {
	n := len(sample)
	if maxComponents < 2 {
		maxComponents = 2
	}

	var bestComponents []gaussianComponent
	bestBIC := math.Inf(1)
	bestScore := 0.0
	found := false

	for k := 1; k < maxComponents; k++ {
		if k >= n {
			break
		}
		for _, tied := range []bool{true, false} {
			components, logLikelihood := fitGaussianMixture1D(sample, k, tied, iterations)
			if components == nil {
				continue
			}
			params := gaussianMixtureParams(k, tied)
			bic := -2*logLikelihood + params*math.Log(float64(n))
			if !found || bic < bestBIC {
				bestBIC = bic
				bestComponents = components
				bestScore = logLikelihood / float64(n)
				found = true
			}
		}
	}

	return bestComponents, bestScore
}

func gaussianMixtureParams(k int, tied bool) float64 {
	if tied {
		return float64(2*k + 1 - 1)
	}
	return float64(3*k - 1)
}

// fitGaussianMixture1D runs expectation-maximization for a k-component 1-D
// Gaussian mixture, returning the fitted components and the total
// (unnormalized by sample size) log-likelihood.
func fitGaussianMixture1D(sample []float64, k int, tied bool, iterations int) ([]gaussianComponent, float64) {
	n := len(sample)
	if n == 0 || k < 1 {
		return nil, math.Inf(-1)
	}

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	components := make([]gaussianComponent, k)
	overallVar := variance(sample)
	if overallVar <= 0 {
		overallVar = 1e-6
	}
	for i := 0; i < k; i++ {
		idx := (i * n) / k
		components[i] = gaussianComponent{
			weight:   1.0 / float64(k),
			mean:     sorted[idx],
			variance: overallVar / float64(k),
		}
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}

	var logLikelihood float64

	for iter := 0; iter < iterations; iter++ {
		logLikelihood = 0
		for i, x := range sample {
			var rowSum float64
			for j, comp := range components {
				resp[i][j] = comp.weight * gaussianDensity(x, comp.mean, comp.variance)
				rowSum += resp[i][j]
			}
			if rowSum <= 0 {
				rowSum = 1e-300
			}
			for j := range components {
				resp[i][j] /= rowSum
			}
			logLikelihood += math.Log(rowSum)
		}

		nk := make([]float64, k)
		means := make([]float64, k)
		for j := 0; j < k; j++ {
			for i, x := range sample {
				nk[j] += resp[i][j]
				means[j] += resp[i][j] * x
			}
			if nk[j] > 0 {
				means[j] /= nk[j]
			}
		}

		if tied {
			var sharedVar float64
			for j := 0; j < k; j++ {
				for i, x := range sample {
					d := x - means[j]
					sharedVar += resp[i][j] * d * d
				}
			}
			sharedVar /= float64(n)
			if sharedVar <= 0 {
				sharedVar = 1e-6
			}
			for j := 0; j < k; j++ {
				components[j].mean = means[j]
				components[j].variance = sharedVar
				components[j].weight = nk[j] / float64(n)
			}
		} else {
			for j := 0; j < k; j++ {
				var v float64
				for i, x := range sample {
					d := x - means[j]
					v += resp[i][j] * d * d
				}
				if nk[j] > 0 {
					v /= nk[j]
				}
				if v <= 0 {
					v = 1e-6
				}
				components[j].mean = means[j]
				components[j].variance = v
				components[j].weight = nk[j] / float64(n)
			}
		}
	}

	return components, logLikelihood
}

func gaussianDensity(x, mean, variance float64) float64 {
	return math.Exp(-(x-mean)*(x-mean)/(2*variance)) / math.Sqrt(2*math.Pi*variance)
}

func variance(sample []float64) float64 {
	n := float64(len(sample))
	if n == 0 {
		return 0
	}
	var mean float64
	for _, v := range sample {
		mean += v
	}
	mean /= n
	var v float64
	for _, x := range sample {
		d := x - mean
		v += d * d
	}
	return v / n
}

func newGaussianMixtureRepeaterFromOptions(ropts map[string]any) *GaussianMixtureRepeater {
	sub := subOptions(ropts, "GMM")
	metric := getString(sub, "metric", "outer_time")
	minRepeat := getInt(sub, "min_repeats", 10)
	maxRepeat := getInt(sub, "max_repeats", 100)
	maxComponents := getInt(sub, "max_gaussian_components", 8)
	covariances := getStringSlice(sub, "gaussian_covariances", []string{"spherical", "tied", "diag", "full"})
	goodnessThreshold := getFloat(sub, "goodness_threshold", 1.0)
	return NewGaussianMixtureRepeater(metric, minRepeat, maxRepeat, maxComponents, len(covariances), goodnessThreshold)
}
