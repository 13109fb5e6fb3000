package pooling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogitInverseLogitRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.1, 0.5, 0.8, 0.99} {
		got := inverseLogit(logit(p))
		assert.InDelta(t, p, got, 1e-9)
	}
}

func TestBaselineVariance_WilsonFallbackForSparseEvents(t *testing.T) {
	// 2 events out of 40 -> sparse, should use the Wilson-style fallback
	// rather than blow up on a near-zero naive variance.
	v := baselineVariance(0.05, 40)
	assert.Greater(t, v, 0.0)
	assert.False(t, math.IsNaN(v))
}

func TestFixedEffectPool_WeightedTowardPrecision(t *testing.T) {
	// A tight study (low variance) should pull the pooled mean toward it.
	points := []weightedPoint{
		{value: 0.0, variance: 0.01, weight: 1.0},
		{value: 1.0, variance: 1.0, weight: 1.0},
	}
	mean, variance := fixedEffectPool(points)
	assert.Less(t, mean, 0.5)
	assert.Greater(t, variance, 0.0)
}

func TestQStatistic_ZeroForIdenticalPoints(t *testing.T) {
	points := []weightedPoint{
		{value: 0.5, variance: 0.02, weight: 1.0},
		{value: 0.5, variance: 0.03, weight: 1.0},
		{value: 0.5, variance: 0.01, weight: 1.0},
	}
	fixedMean, _ := fixedEffectPool(points)
	q := qStatistic(points, fixedMean)
	assert.InDelta(t, 0, q, 1e-9)
}

func TestDerSimonianLairdTau2_NonNegative(t *testing.T) {
	points := []weightedPoint{
		{value: 0.1, variance: 0.02, weight: 1.0},
		{value: 0.9, variance: 0.02, weight: 1.0},
		{value: 0.3, variance: 0.02, weight: 1.0},
	}
	tau2 := derSimonianLairdTau2(points)
	assert.GreaterOrEqual(t, tau2, 0.0)
}

func TestPauleMandelTau2_MatchesDLForHomogeneousData(t *testing.T) {
	points := []weightedPoint{
		{value: 0.5, variance: 0.02, weight: 1.0},
		{value: 0.5, variance: 0.03, weight: 1.0},
		{value: 0.5, variance: 0.01, weight: 1.0},
		{value: 0.5, variance: 0.025, weight: 1.0},
		{value: 0.5, variance: 0.015, weight: 1.0},
	}
	tau2 := pauleMandelTau2(points)
	assert.InDelta(t, 0, tau2, 1e-6)
}

func TestHartungKnappVariance_OutOfRangeReturnsNaN(t *testing.T) {
	points := []weightedPoint{
		{value: 0.5, variance: 0.02, weight: 1.0},
		{value: 0.4, variance: 0.03, weight: 1.0},
	}
	v := hartungKnappVariance(points, 0, 0.45)
	assert.True(t, math.IsNaN(v))
}

func TestHeterogeneityI2_ClampedAtZero(t *testing.T) {
	assert.Equal(t, 0.0, heterogeneityI2(0, 3))
	assert.Equal(t, 0.0, heterogeneityI2(1, 3)) // Q < k-1 would go negative, must clamp
}

func TestHeterogeneityI2_PositiveWhenQExceedsExpectation(t *testing.T) {
	i2 := heterogeneityI2(20, 3)
	assert.Greater(t, i2, 0.0)
	assert.LessOrEqual(t, i2, 1.0)
}

func TestBackTransformProbability_RoundTrips(t *testing.T) {
	mean := logit(0.2)
	p, ciLow, ciHigh := backTransformProbability(mean, 0.01)
	assert.InDelta(t, 0.2, p, 1e-9)
	assert.Less(t, ciLow, p)
	assert.Greater(t, ciHigh, p)
}

func TestBackTransformOR_RoundTrips(t *testing.T) {
	mean := math.Log(2.5)
	or, ciLow, ciHigh := backTransformOR(mean, 0.02)
	assert.InDelta(t, 2.5, or, 1e-9)
	assert.Less(t, ciLow, or)
	assert.Greater(t, ciHigh, or)
}

func TestPopulationMatchWeight(t *testing.T) {
	assert.Equal(t, 1.0, populationMatchWeight("PEDIATRIC", "PEDIATRIC"))
	assert.Equal(t, 0.6, populationMatchWeight("MIXED", "PEDIATRIC"))
	assert.Equal(t, 0.3, populationMatchWeight("ADULT", "PEDIATRIC"))
}
