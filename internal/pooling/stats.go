// Package pooling implements the evidence meta-analysis engine: per (outcome, modifier?, context) random-effects pooling of
// baseline incidences and modifier odds ratios into versioned,
// immutable PooledBaseline / PooledEffect tables.
package pooling

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// logit and inverseLogit implement the standard log-odds transform used to
// pool proportions on an unbounded scale.
func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func inverseLogit(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// wilsonVariance is the Wilson-interval variance approximation used in place
// of the naive p(1-p)/n formula when events are sparse: the squared 95%
// Wilson score half-width divided by z², which stays positive at p = 0.
func wilsonVariance(p float64, n int) float64 {
	if n <= 0 {
		return math.Inf(1)
	}
	z2 := 1.96 * 1.96
	nf := float64(n)
	denom := 1 + z2/nf
	return (p*(1-p)/nf + z2/(4*nf*nf)) / (denom * denom)
}

// baselineVariance picks the Wilson fallback when observed events (p*n) are
// at or below 5, else the naive binomial variance, both on the raw-p scale;
// callers convert to the logit scale via the delta method in poolBaseline
// (logitVarianceFromP).
func baselineVariance(p float64, n int) float64 {
	events := p * float64(n)
	if events <= 5 {
		return wilsonVariance(p, n)
	}
	return p * (1 - p) / float64(n)
}

// logitVarianceFromP converts a variance on the probability scale to the
// logit scale via the delta method: Var(logit(p)) ≈ Var(p) / (p(1-p))².
func logitVarianceFromP(varP, p float64) float64 {
	denom := p * (1 - p)
	if denom <= 0 {
		return math.Inf(1)
	}
	return varP / (denom * denom)
}

// weightedPoint holds one study's transformed effect and its inverse-variance
// weight, the unit the fold/DL/PM/HK machinery below operates on.
type weightedPoint struct {
	value    float64 // logit(p) or ln(OR)
	variance float64 // on the transformed scale
	weight   float64 // quality_weight * population_match, multiplied in by the caller
}

// fixedEffectPool computes the inverse-variance fixed-effect mean and its
// variance.
func fixedEffectPool(points []weightedPoint) (mean, variance float64) {
	values := make([]float64, len(points))
	weights := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.value
		iv := 0.0
		if p.variance > 0 {
			iv = 1 / p.variance
		}
		weights[i] = iv * p.weight
	}
	mean = stat.Mean(values, weights)

	var sumW float64
	for _, w := range weights {
		sumW += w
	}
	if sumW <= 0 {
		return mean, math.Inf(1)
	}
	return mean, 1 / sumW
}

// qStatistic is Cochran's Q, the weighted sum of squared deviations from the
// fixed-effect mean, used both for τ² (DerSimonian-Laird) and I².
func qStatistic(points []weightedPoint, fixedMean float64) float64 {
	var q float64
	for _, p := range points {
		if p.variance <= 0 {
			continue
		}
		w := p.weight / p.variance
		d := p.value - fixedMean
		q += w * d * d
	}
	return q
}

// derSimonianLairdTau2 is the classical method-of-moments τ² estimator.
func derSimonianLairdTau2(points []weightedPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	fixedMean, _ := fixedEffectPool(points)
	q := qStatistic(points, fixedMean)
	k := float64(len(points))

	var sumW, sumW2 float64
	for _, p := range points {
		if p.variance <= 0 {
			continue
		}
		w := p.weight / p.variance
		sumW += w
		sumW2 += w * w
	}
	c := sumW - sumW2/sumW
	if c <= 0 {
		return 0
	}
	tau2 := (q - (k - 1)) / c
	if tau2 < 0 {
		return 0
	}
	return tau2
}

// pauleMandelTau2 iteratively solves for the τ² that makes Q equal its
// expectation (k-1), preferred over DerSimonian-Laird when k ≥ 5 since it is less biased under heterogeneous within-study
// variances. Falls back to the DL estimate if the iteration doesn't settle.
func pauleMandelTau2(points []weightedPoint) float64 {
	k := float64(len(points))
	if k < 2 {
		return 0
	}

	dl := derSimonianLairdTau2(points)
	tau2 := dl // starting value
	for iter := 0; iter < 50; iter++ {
		var q, sumW float64
		for _, p := range points {
			denom := p.variance + tau2
			if denom <= 0 {
				continue
			}
			w := p.weight / denom
			sumW += w
		}
		if sumW <= 0 {
			break
		}
		var weightedSum float64
		for _, p := range points {
			denom := p.variance + tau2
			if denom <= 0 {
				continue
			}
			w := p.weight / denom
			weightedSum += w * p.value
		}
		mean := weightedSum / sumW
		q = 0
		for _, p := range points {
			denom := p.variance + tau2
			if denom <= 0 {
				continue
			}
			w := p.weight / denom
			d := p.value - mean
			q += w * d * d
		}

		residual := q - (k - 1)
		if math.Abs(residual) < 1e-6 {
			return tau2
		}

		var derivative float64
		for _, p := range points {
			denom := p.variance + tau2
			if denom <= 0 {
				continue
			}
			derivative += (p.weight / denom) * (p.weight / denom)
		}
		if derivative <= 0 {
			break
		}
		tau2 += residual / derivative
		if tau2 < 0 {
			tau2 = 0
		}
	}
	return dl
}

// randomEffectsPool recomputes the inverse-variance pool using within-study
// variance + τ² as the per-study variance.
func randomEffectsPool(points []weightedPoint, tau2 float64) (mean, variance float64) {
	adjusted := make([]weightedPoint, len(points))
	for i, p := range points {
		adjusted[i] = weightedPoint{value: p.value, variance: p.variance + tau2, weight: p.weight}
	}
	return fixedEffectPool(adjusted)
}

// hartungKnappVariance widens the random-effects variance per the
// Hartung-Knapp small-sample adjustment, applied when 3 ≤ k ≤ 10.
func hartungKnappVariance(points []weightedPoint, tau2, mean float64) float64 {
	k := len(points)
	if k < 3 || k > 10 {
		return math.NaN() // sentinel: caller should not apply HK outside this range
	}

	var sumW, q float64
	for _, p := range points {
		denom := p.variance + tau2
		if denom <= 0 {
			continue
		}
		w := p.weight / denom
		sumW += w
		d := p.value - mean
		q += w * d * d
	}
	if sumW <= 0 || k <= 1 {
		return math.NaN()
	}
	correction := q / (float64(k-1) * sumW)
	if correction <= 0 || math.IsNaN(correction) {
		return math.NaN()
	}
	return correction
}

// heterogeneityI2 is the proportion of total variation across studies
// attributable to heterogeneity rather than sampling error.
func heterogeneityI2(q float64, k int) float64 {
	if q <= 0 || k < 2 {
		return 0
	}
	i2 := (q - float64(k-1)) / q
	if i2 < 0 {
		return 0
	}
	return i2
}

// backTransformProbability converts a pooled logit mean ± SE into a
// probability point estimate and 95% CI.
func backTransformProbability(mean, variance float64) (p, ciLow, ciHigh float64) {
	se := math.Sqrt(variance)
	return inverseLogit(mean), inverseLogit(mean - 1.96*se), inverseLogit(mean + 1.96*se)
}

// backTransformOR converts a pooled ln(OR) mean ± SE into an OR point
// estimate and 95% CI.
func backTransformOR(mean, variance float64) (or, ciLow, ciHigh float64) {
	se := math.Sqrt(variance)
	return math.Exp(mean), math.Exp(mean - 1.96*se), math.Exp(mean + 1.96*se)
}

// populationMatchWeight discounts a study's contribution when its
// population doesn't match the request's.
func populationMatchWeight(studyPopulation, requestPopulation string) float64 {
	switch {
	case studyPopulation == requestPopulation:
		return 1.0
	case studyPopulation == "MIXED":
		return 0.6
	default:
		return 0.3
	}
}
