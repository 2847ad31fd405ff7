package drift

import (
	"math"
	"sort"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

const (
	histogramBins = 20
	// Laplace smoothing keeps empty bins from blowing up the
	// divergences.
	smoothing = 1e-10
	// denominator floor for relative-change metrics
	changeFloor = 1e-9
)

// histogramProbs bins samples over [min, max] and returns a smoothed
// probability distribution. Values equal to max land in the last bin.
func histogramProbs(samples []float64, bins int, min, max float64) []float64 {
	if max == min {
		// Degenerate range, mirror numpy's expansion.
		min -= 0.5
		max += 0.5
	}
	counts := make([]float64, bins)
	width := (max - min) / float64(bins)
	for _, v := range samples {
		if v < min || v > max {
			continue
		}
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	total := 0.0
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, bins)
	denom := total + float64(bins)*smoothing
	for i, c := range counts {
		probs[i] = (c + smoothing) / denom
	}
	return probs
}

// relativeEntropy is sum(p * ln(p/q)). Inputs must be strictly
// positive, which smoothing guarantees.
func relativeEntropy(p, q []float64) float64 {
	var sum float64
	for i := range p {
		sum += p[i] * math.Log(p[i]/q[i])
	}
	return sum
}

// klDivergence bins both sample sets over their joint range and
// returns KL(comparison || baseline): how surprising the new traffic
// looks under the baseline distribution.
func klDivergence(baseline, comparison []float64) float64 {
	min, max := jointRange(baseline, comparison)
	baselineProb := histogramProbs(baseline, histogramBins, min, max)
	comparisonProb := histogramProbs(comparison, histogramBins, min, max)
	return relativeEntropy(comparisonProb, baselineProb)
}

// jsDivergence is the symmetric Jensen-Shannon divergence over the
// same joint-range histograms.
func jsDivergence(baseline, comparison []float64) float64 {
	min, max := jointRange(baseline, comparison)
	baselineProb := histogramProbs(baseline, histogramBins, min, max)
	comparisonProb := histogramProbs(comparison, histogramBins, min, max)
	mid := make([]float64, len(baselineProb))
	for i := range mid {
		mid[i] = (baselineProb[i] + comparisonProb[i]) / 2
	}
	return (relativeEntropy(baselineProb, mid) + relativeEntropy(comparisonProb, mid)) / 2
}

func jointRange(a, b []float64) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range a {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	for _, v := range b {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// percentile uses linear interpolation between closest ranks, over a
// sorted copy of the samples.
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// cosineDistance is 1 - cosine similarity. Zero vectors have no
// direction; their distance is reported as 0.
func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// relativeChange is |comparison - baseline| relative to baseline,
// floored to avoid dividing by zero.
func relativeChange(baseline, comparison float64) float64 {
	return math.Abs(comparison-baseline) / math.Max(baseline, changeFloor)
}

// DistributionStats summarizes one numeric distribution.
type DistributionStats struct {
	Mean        float64 `json:"mean"`
	Median      float64 `json:"median"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min_value"`
	Max         float64 `json:"max_value"`
	P95         float64 `json:"percentile_95"`
	P99         float64 `json:"percentile_99"`
	SampleCount int     `json:"sample_count"`
}

// NewDistributionStats computes summary statistics over samples.
func NewDistributionStats(samples []float64) (DistributionStats, error) {
	if len(samples) == 0 {
		return DistributionStats{}, domain.ErrEmptySamples
	}
	m := mean(samples)
	var variance float64
	min, max := samples[0], samples[0]
	for _, v := range samples {
		variance += (v - m) * (v - m)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	variance /= float64(len(samples))
	return DistributionStats{
		Mean:        m,
		Median:      percentile(samples, 50),
		StdDev:      math.Sqrt(variance),
		Min:         min,
		Max:         max,
		P95:         percentile(samples, 95),
		P99:         percentile(samples, 99),
		SampleCount: len(samples),
	}, nil
}
