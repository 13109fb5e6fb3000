package pooling

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/periop-health/risk-engine/internal/domain"
)

const minExtractionConfidence = 0.5

// Snapshot is the immutable, versioned view of pooled tables a request pins
// for its lifetime. It implements domain.EvidenceSnapshot.
// Publishing a new Snapshot is a single atomic.Pointer swap in the owning
// service; Snapshot itself never mutates after Build returns it.
type Snapshot struct {
	version   string
	baselines map[string]domain.PooledBaseline
	effects   map[string]domain.PooledEffect
	outcomes  []string
}

func baselineKey(outcome, context string) string {
	return outcome + "|" + context
}

func effectKey(outcome, modifier, context string) string {
	return outcome + "|" + modifier + "|" + context
}

func (s *Snapshot) Version() string { return s.version }

func (s *Snapshot) Baseline(outcome, contextLabel string) (domain.PooledBaseline, bool) {
	b, ok := s.baselines[baselineKey(outcome, contextLabel)]
	return b, ok
}

func (s *Snapshot) Effect(outcome, modifier, contextLabel string) (domain.PooledEffect, bool) {
	e, ok := s.effects[effectKey(outcome, modifier, contextLabel)]
	return e, ok
}

func (s *Snapshot) Outcomes() []string { return s.outcomes }

// Build runs the full pooling algorithm over a flat
// estimate set and returns a new immutable Snapshot tagged with version.
// Each observed context_label and every one of its wildcard ancestors
// (FallbackChain) gets its own pooled cell, so a request at a more general
// context than any individual study still finds evidence.
func Build(estimates []domain.Estimate, version string) (*Snapshot, error) {
	baselineGroups := map[string][]domain.Estimate{}
	effectGroups := map[string][]domain.Estimate{}
	outcomeSet := map[string]bool{}

	for _, e := range estimates {
		if e.ExtractionConfidence < minExtractionConfidence {
			continue // below the extraction-confidence floor: not trustworthy enough to pool
		}
		outcomeSet[e.OutcomeToken] = true
		for _, label := range FallbackChain(e.ContextLabel) {
			if e.IsBaseline() {
				key := baselineKey(e.OutcomeToken, label)
				baselineGroups[key] = append(baselineGroups[key], e)
			} else {
				key := effectKey(e.OutcomeToken, e.ModifierToken, label)
				effectGroups[key] = append(effectGroups[key], e)
			}
		}
	}

	s := &Snapshot{
		version:   version,
		baselines: make(map[string]domain.PooledBaseline, len(baselineGroups)),
		effects:   make(map[string]domain.PooledEffect, len(effectGroups)),
	}

	for key, group := range baselineGroups {
		outcome, context := splitBaselineKey(key)
		pooled, err := poolBaseline(outcome, context, version, group)
		if err != nil {
			return nil, fmt.Errorf("pooling: baseline %s: %w", key, err)
		}
		s.baselines[key] = pooled
	}

	for key, group := range effectGroups {
		outcome, modifier, context := splitEffectKey(key)
		pooled, err := poolEffect(outcome, modifier, context, version, group, s.baselines)
		if err != nil {
			return nil, fmt.Errorf("pooling: effect %s: %w", key, err)
		}
		s.effects[key] = pooled
	}

	for o := range outcomeSet {
		s.outcomes = append(s.outcomes, o)
	}
	sort.Strings(s.outcomes)

	return s, nil
}

func splitBaselineKey(key string) (outcome, context string) {
	parts := strings.SplitN(key, "|", 2)
	return parts[0], parts[1]
}

func splitEffectKey(key string) (outcome, modifier, context string) {
	parts := strings.SplitN(key, "|", 3)
	return parts[0], parts[1], parts[2]
}

// contextPopulation extracts the population dimension from a context_label
// tuple, used to compute population_match against each study.
func contextPopulation(contextLabel string) string {
	parts := strings.SplitN(contextLabel, "×", 2)
	if len(parts) == 0 {
		return wildcard
	}
	return parts[0]
}

// poolBaseline combines every estimate mapped to one (outcome, context)
// baseline cell into a single pooled incidence, falling back to a
// variance-inflated singleton when only one study is available.
func poolBaseline(outcome, context, version string, estimates []domain.Estimate) (domain.PooledBaseline, error) {
	pmids := uniquePMIDs(estimates)
	targetPopulation := contextPopulation(context)

	if len(estimates) < 2 {
		e := estimates[0]
		p := e.Value
		varP := baselineVariance(p, approximateN(e))
		se := math.Sqrt(varP)
		ciLow := clamp01(p - 1.5*1.96*se)
		ciHigh := clamp01(p + 1.5*1.96*se) // singleton: inflate CI ×1.5
		return domain.PooledBaseline{
			OutcomeToken: outcome, ContextLabel: context, EvidenceVersion: version,
			K: 1, P0: p, P0CILow: ciLow, P0CIHigh: ciHigh,
			Method: "singleton", PMIDs: pmids, Grade: qualityWeightToGrade(e.QualityWeight), Singleton: true,
		}, nil
	}

	points := make([]weightedPoint, len(estimates))
	for i, e := range estimates {
		n := approximateN(e)
		varP := baselineVariance(e.Value, n)
		varLogit := logitVarianceFromP(varP, e.Value)
		weight := e.QualityWeight * populationMatchWeight(string(e.Population), targetPopulation)
		points[i] = weightedPoint{value: logit(e.Value), variance: varLogit, weight: weight}
	}

	fixedMean, _ := fixedEffectPool(points)
	q := qStatistic(points, fixedMean)
	k := len(points)

	var tau2 float64
	if k >= 5 {
		tau2 = pauleMandelTau2(points)
	} else {
		tau2 = derSimonianLairdTau2(points)
	}

	mean, variance := randomEffectsPool(points, tau2)
	method := "fixed-effect+DL"
	if k >= 5 {
		method = "fixed-effect+PM"
	}
	if hk := hartungKnappVariance(points, tau2, mean); k >= 3 && k <= 10 && !math.IsNaN(hk) {
		variance = hk
		method += "+HK"
	}

	p0, ciLow, ciHigh := backTransformProbability(mean, variance)
	i2 := heterogeneityI2(q, k)

	return domain.PooledBaseline{
		OutcomeToken: outcome, ContextLabel: context, EvidenceVersion: version,
		K: k, P0: p0, P0CILow: ciLow, P0CIHigh: ciHigh,
		Method: method, PMIDs: pmids, Grade: pooledGrade(estimates), I2: i2,
	}, nil
}

// poolEffect mirrors poolBaseline for a (outcome, modifier, context)
// effect cell on the OR scale. RR/HR estimates are converted to OR before
// pooling so every point in the fold shares one scale.
func poolEffect(outcome, modifier, context, version string, estimates []domain.Estimate, baselines map[string]domain.PooledBaseline) (domain.PooledEffect, error) {
	converted := make([]domain.Estimate, len(estimates))
	for i, e := range estimates {
		converted[i] = convertToOR(e, baselines)
	}
	estimates = converted

	pmids := uniquePMIDs(estimates)
	targetPopulation := contextPopulation(context)

	if len(estimates) < 2 {
		e := estimates[0]
		ln := math.Log(e.Value)
		se := effectSE(e)
		ciLow := math.Exp(ln - 1.5*1.96*se)
		ciHigh := math.Exp(ln + 1.5*1.96*se)
		return domain.PooledEffect{
			OutcomeToken: outcome, ModifierToken: modifier, ContextLabel: context, EvidenceVersion: version,
			K: 1, ORMean: e.Value, ORCILow: ciLow, ORCIHigh: ciHigh,
			Method: "singleton", PMIDs: pmids, Grade: qualityWeightToGrade(e.QualityWeight), Singleton: true,
		}, nil
	}

	points := make([]weightedPoint, len(estimates))
	for i, e := range estimates {
		se := effectSE(e)
		weight := e.QualityWeight * populationMatchWeight(string(e.Population), targetPopulation)
		if e.Approximate {
			weight *= 0.5 // RR/HR approximated to OR without a matching baseline: down-weight the approximation
		}
		points[i] = weightedPoint{value: math.Log(e.Value), variance: se * se, weight: weight}
	}

	fixedMean, _ := fixedEffectPool(points)
	q := qStatistic(points, fixedMean)
	k := len(points)

	var tau2 float64
	if k >= 5 {
		tau2 = pauleMandelTau2(points)
	} else {
		tau2 = derSimonianLairdTau2(points)
	}

	mean, variance := randomEffectsPool(points, tau2)
	method := "fixed-effect+DL"
	if k >= 5 {
		method = "fixed-effect+PM"
	}
	if hk := hartungKnappVariance(points, tau2, mean); k >= 3 && k <= 10 && !math.IsNaN(hk) {
		variance = hk
		method += "+HK"
	}

	orMean, ciLow, ciHigh := backTransformOR(mean, variance)
	i2 := heterogeneityI2(q, k)

	return domain.PooledEffect{
		OutcomeToken: outcome, ModifierToken: modifier, ContextLabel: context, EvidenceVersion: version,
		K: k, ORMean: orMean, ORCILow: ciLow, ORCIHigh: ciHigh,
		Method: method, PMIDs: pmids, Grade: pooledGrade(estimates), I2: i2,
	}, nil
}

// resolveBaselineP walks contextLabel's wildcard FallbackChain looking for
// a pooled baseline incidence, used to convert a sibling RR/HR estimate to
// the OR scale.
func resolveBaselineP(baselines map[string]domain.PooledBaseline, outcome, contextLabel string) (float64, bool) {
	for _, l := range FallbackChain(contextLabel) {
		if b, ok := baselines[baselineKey(outcome, l)]; ok {
			return b.P0, true
		}
	}
	return 0, false
}

// rrToOR converts a risk ratio (or, as an approximation, a hazard ratio)
// to an odds ratio given the cell's baseline probability:
// OR = RR / (1 - p0*(1-RR)).
func rrToOR(rr, p0 float64) float64 {
	denom := 1 - p0*(1-rr)
	if denom <= 0 {
		return rr
	}
	return rr / denom
}

// convertToOR normalizes one estimate onto the OR scale. An RR/HR estimate
// converts exactly when a pooled baseline is available for its own
// context_label or one of its wildcard ancestors (FallbackChain); otherwise it is carried through as a numeric OR
// approximation and flagged Approximate so poolEffect down-weights it.
// Approximate is always recomputed here, never trusted from upstream data.
func convertToOR(e domain.Estimate, baselines map[string]domain.PooledBaseline) domain.Estimate {
	if e.Measure == domain.MeasureOR {
		e.Approximate = false
		return e
	}

	p0, ok := resolveBaselineP(baselines, e.OutcomeToken, e.ContextLabel)
	if !ok {
		e.Approximate = true
		return e
	}

	e.Value = rrToOR(e.Value, p0)
	if e.CILow != nil {
		lo := rrToOR(*e.CILow, p0)
		e.CILow = &lo
	}
	if e.CIHigh != nil {
		hi := rrToOR(*e.CIHigh, p0)
		e.CIHigh = &hi
	}
	e.Approximate = false
	return e
}

// effectSE derives a standard error on the ln(OR) scale from the estimate's
// reported CI when present, else a conservative default proportional to the
// point estimate's distance from unity.
func effectSE(e domain.Estimate) float64 {
	if e.CILow != nil && e.CIHigh != nil && *e.CILow > 0 && *e.CIHigh > 0 {
		return (math.Log(*e.CIHigh) - math.Log(*e.CILow)) / (2 * 1.96)
	}
	return math.Abs(math.Log(e.Value)) * 0.25
}

// approximateN backs out an approximate study size from QualityWeight when
// the estimate doesn't carry one directly; the ontology/estimate schema
// tracks n at ingestion, this is the pooling-time fallback for estimates
// sourced without it.
func approximateN(e domain.Estimate) int {
	if e.QualityWeight <= 0 {
		return 30
	}
	n := int(e.QualityWeight * 200)
	if n < 10 {
		return 10
	}
	return n
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// pooledGrade returns the highest grade present among studies weighted
// ≥25% of total quality weight, tie-broken to the lower grade. Since
// domain.Estimate doesn't carry a grade directly, each
// study's implied grade tracks its QualityWeight tier; the ingestion layer
// is responsible for setting QualityWeight from the source Paper's
// DeriveGrade output.
func pooledGrade(estimates []domain.Estimate) domain.EvidenceGrade {
	var totalWeight float64
	weightByGrade := map[domain.EvidenceGrade]float64{}
	for _, e := range estimates {
		g := qualityWeightToGrade(e.QualityWeight)
		weightByGrade[g] += e.QualityWeight
		totalWeight += e.QualityWeight
	}
	if totalWeight <= 0 {
		return domain.GradeD
	}

	best := domain.GradeD
	for g, w := range weightByGrade {
		if w/totalWeight >= 0.25 && g.Rank() < best.Rank() {
			best = g
		}
	}
	return best
}

// qualityWeightToGrade buckets a study's QualityWeight back
// into an evidence grade for the pooled-grade computation.
func qualityWeightToGrade(w float64) domain.EvidenceGrade {
	switch {
	case w >= 0.85:
		return domain.GradeA
	case w >= 0.65:
		return domain.GradeB
	case w >= 0.4:
		return domain.GradeC
	default:
		return domain.GradeD
	}
}

func uniquePMIDs(estimates []domain.Estimate) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range estimates {
		if e.PMID == "" || seen[e.PMID] {
			continue
		}
		seen[e.PMID] = true
		out = append(out, e.PMID)
	}
	sort.Strings(out)
	return out
}
