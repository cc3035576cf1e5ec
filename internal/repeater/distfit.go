package repeater

import (
	"math"
	"sort"
)

// ksOneSample returns the one-sample Kolmogorov-Smirnov statistic: the
// largest absolute gap between the sample's empirical CDF and cdf,
// evaluated at every sample point.
func ksOneSample(sample []float64, cdf func(float64) float64) float64 {
	n := len(sample)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	var maxDiff float64
	for i, x := range sorted {
		empiricalBelow := float64(i) / float64(n)
		empiricalAt := float64(i+1) / float64(n)
		theoretical := cdf(x)
		if d := math.Abs(theoretical - empiricalBelow); d > maxDiff {
			maxDiff = d
		}
		if d := math.Abs(theoretical - empiricalAt); d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}

// kolmogorovPValue returns the asymptotic two-sided p-value for a one-sample
// KS statistic computed from n observations, via the Kolmogorov
// distribution's series expansion. This is the same asymptotic
// approximation most statistics packages fall back to for samples too
// large for their exact tables.
func kolmogorovPValue(statistic float64, n int) float64 {
	if n <= 0 || statistic <= 0 {
		return 1
	}
	lambda := statistic * (math.Sqrt(float64(n)) + 0.12 + 0.11/math.Sqrt(float64(n)))

	var sum float64
	for k := 1; k <= 100; k++ {
		term := math.Exp(-2 * float64(k) * float64(k) * lambda * lambda)
		if k%2 == 1 {
			sum += term
		} else {
			sum -= term
		}
	}
	p := 2 * sum
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// fitNormal, fitLogNormal and fitUniform build CDF closures over an MLE-fitted
// distribution's parameters, ready to hand to ksOneSample.

func fitNormal(sample []float64) (cdf func(float64) float64, ok bool) {
	n := float64(len(sample))
	if n < 2 {
		return nil, false
	}
	mean := varianceMean(sample)
	sd := math.Sqrt(variance(sample))
	if sd <= 0 {
		return nil, false
	}
	return func(x float64) float64 {
		return 0.5 * (1 + math.Erf((x-mean)/(sd*math.Sqrt2)))
	}, true
}

func fitLogNormal(sample []float64) (cdf func(float64) float64, ok bool) {
	logs := make([]float64, 0, len(sample))
	for _, v := range sample {
		if v <= 0 {
			return nil, false
		}
		logs = append(logs, math.Log(v))
	}
	mean := varianceMean(logs)
	sd := math.Sqrt(variance(logs))
	if sd <= 0 {
		return nil, false
	}
	return func(x float64) float64 {
		if x <= 0 {
			return 0
		}
		return 0.5 * (1 + math.Erf((math.Log(x)-mean)/(sd*math.Sqrt2)))
	}, true
}

func fitUniform(sample []float64) (cdf func(float64) float64, ok bool) {
	if len(sample) < 2 {
		return nil, false
	}
	lo, hi := sample[0], sample[0]
	for _, v := range sample {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return nil, false
	}
	return func(x float64) float64 {
		switch {
		case x <= lo:
			return 0
		case x >= hi:
			return 1
		default:
			return (x - lo) / (hi - lo)
		}
	}, true
}

func varianceMean(sample []float64) float64 {
	var sum float64
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}

// isMultimodal fits Gaussian mixtures up to maxComponents and reports
// whether the best fit's average log-likelihood magnitude is at or above
// threshold — a strong multimodal signature, since a well-settled
// unimodal sample tends to pull the score down toward zero as it
// stabilizes.
func isMultimodal(sample []float64, maxComponents int, threshold float64) bool {
	components, score := bestGaussianMixture(sample, maxComponents, 100)
	return len(components) >= 1 && math.Abs(score) >= threshold
}
