package repeater

import (
	"testing"

	"sharpbench.dev/internal/rundata"
)

func runData(t *testing.T) *rundata.RunData {
	t.Helper()
	d := rundata.New(1)
	d.AddRun(map[string]string{})
	return d
}

// multiCopyRunData builds one repetition's worth of data as --mpl copies
// would produce it: copies rows, all harvested before the repeater ever
// sees the RunData.
func multiCopyRunData(t *testing.T, copies int) *rundata.RunData {
	t.Helper()
	d := rundata.New(copies)
	for i := 0; i < copies; i++ {
		d.AddRun(map[string]string{})
	}
	return d
}

func TestCountRepeaterStopsAtLimit(t *testing.T) {
	r := NewCountRepeater(3, "outer_time")
	for i := 0; i < 2; i++ {
		if !r.Continue(runData(t)) {
			t.Fatalf("expected Continue to be true before reaching limit, iteration %d", i)
		}
	}
	if r.Continue(runData(t)) {
		t.Fatalf("expected Continue to be false once count reached the limit")
	}
	if r.Count() != 3 {
		t.Fatalf("expected count 3, got %d", r.Count())
	}
}

// TestCountRepeaterCopiesDoNotInflateCount guards against conflating the
// repetition count with the accumulated sample size: with copies=3 per
// round, a CountRepeater{Limit: 5} must still run exactly 5 repetitions
// (and end up with 15 accumulated values), not stop after 2 rounds just
// because 2*3 >= 5.
func TestCountRepeaterCopiesDoNotInflateCount(t *testing.T) {
	r := NewCountRepeater(5, "outer_time")

	repetitions := 0
	for r.Continue(multiCopyRunData(t, 3)) {
		repetitions++
	}
	repetitions++ // count the final Continue call that returned false

	if repetitions != 5 {
		t.Fatalf("expected exactly 5 repetitions for Limit=5 regardless of copies, got %d", repetitions)
	}
	if r.Count() != 5 {
		t.Fatalf("expected Count() == 5, got %d", r.Count())
	}
	if len(r.Runtimes()) != 15 {
		t.Fatalf("expected 15 accumulated values (5 repetitions * 3 copies), got %d", len(r.Runtimes()))
	}
}

func TestSERepeaterRespectsMinAndMax(t *testing.T) {
	r := NewSERepeater("outer_time", 2, 5, 0.05)
	for i := 0; i < 2; i++ {
		if !r.Continue(runData(t)) {
			t.Fatalf("expected warmup continue at iteration %d", i)
		}
	}
	for r.Count() < 5 {
		r.Continue(runData(t))
	}
	if r.Continue(runData(t)) {
		t.Fatalf("expected stop once max repeats reached")
	}
}

func TestHDIIntervalHasPositiveWidthWithinSampleRange(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	lo, hi := hdiInterval(sorted, 0.5)
	if hi-lo <= 0 {
		t.Fatalf("expected a positive-width interval, got [%v, %v]", lo, hi)
	}
	if lo < sorted[0] || hi > sorted[len(sorted)-1] {
		t.Fatalf("interval [%v, %v] escapes the sample range", lo, hi)
	}
}

func TestKSStatisticZeroForIdenticalSamples(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{1, 2, 3, 4, 5}
	if stat := ksStatisticTwoSample(a, b); stat != 0 {
		t.Fatalf("expected 0 for identical samples, got %v", stat)
	}
}

func TestKSStatisticPositiveForDisjointSamples(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{100, 200, 300}
	if stat := ksStatisticTwoSample(a, b); stat != 1 {
		t.Fatalf("expected 1 for fully disjoint samples, got %v", stat)
	}
}

func TestBlockSizeFallsBackWhenAutocorrelationNeverDecays(t *testing.T) {
	sample := make([]float64, 40)
	for i := range sample {
		sample[i] = float64(i)
	}
	size := blockSize(sample, 0.01)
	if size != len(sample)/4 {
		t.Fatalf("expected fallback to the full search window (%d), got %d", len(sample)/4, size)
	}
}

func TestGaussianMixtureComponentCountExcludesMax(t *testing.T) {
	sample := []float64{1, 1.1, 0.9, 1.05, 5, 5.2, 4.8, 5.1}
	components, _ := bestGaussianMixture(sample, 3, 50)
	if len(components) >= 3 {
		t.Fatalf("expected the fitted component count to stay below maxComponents, got %d", len(components))
	}
}

func TestNewFromOptionsRejectsUnknownRule(t *testing.T) {
	if _, err := NewFromOptions("nope", nil); err == nil {
		t.Fatalf("expected an error for an unknown repeater rule")
	}
}

func TestNewFromOptionsBuildsEveryKnownRule(t *testing.T) {
	for _, rule := range []string{"count", "SE", "CI", "HDI", "BB", "GMM", "KS", "DC"} {
		rep, err := NewFromOptions(rule, map[string]any{})
		if err != nil {
			t.Fatalf("rule %q: unexpected error: %v", rule, err)
		}
		if rep == nil {
			t.Fatalf("rule %q: expected a non-nil repeater", rule)
		}
	}
}
