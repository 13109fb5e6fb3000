// Package risk implements the per-request adjusted-risk calculation:
// baseline lookup, confidence-weighted odds composition over present
// factors, cap enforcement, and CI propagation.
package risk

import (
	"context"
	"math"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
	"github.com/periop-health/risk-engine/internal/pooling"
)

// Adjusted probability is capped at 0.95 and the risk ratio at 25x
// baseline, keeping a long chain of large factor effects plausible.
const (
	maxAdjustedRisk = 0.95
	maxRiskRatio    = 25.0
)

// Calculator implements domain.RiskCalculator.
type Calculator struct {
	store *ontology.Store
}

// New builds a Calculator bound to the ontology store used to resolve a
// request's context_label.
func New(store *ontology.Store) *Calculator {
	return &Calculator{store: store}
}

// Calculate implements domain.RiskCalculator, iterating every outcome known
// to the pinned evidence snapshot and checking ctx for cancellation between
// outcomes.
func (c *Calculator) Calculate(ctx context.Context, snapshot domain.EvidenceSnapshot, demographics domain.Demographics, factors []domain.ExtractedFactor, contextOverride string) ([]domain.RiskAssessment, []domain.Degradation) {
	contextLabel := contextOverride
	if contextLabel == "" {
		contextLabel = pooling.ContextLabel(demographics, c.store)
	}

	var results []domain.RiskAssessment
	var degradations []domain.Degradation

	for _, outcome := range snapshot.Outcomes() {
		select {
		case <-ctx.Done():
			degradations = append(degradations, domain.NewDegradation(domain.ErrTimeout, outcome, "risk calculation cancelled before all outcomes completed"))
			return results, degradations
		default:
		}

		assessment, degradation := c.calculateOutcome(snapshot, outcome, contextLabel, factors)
		results = append(results, assessment)
		if degradation != nil {
			degradations = append(degradations, *degradation)
		}
	}

	return results, degradations
}

// calculateOutcome resolves one outcome's baseline and factor effects into
// an adjusted risk, propagating confidence intervals along the way.
func (c *Calculator) calculateOutcome(snapshot domain.EvidenceSnapshot, outcome, contextLabel string, factors []domain.ExtractedFactor) (domain.RiskAssessment, *domain.Degradation) {
	baseline, _, ok := resolveBaseline(snapshot, outcome, contextLabel)
	if !ok {
		d := domain.NewDegradation(domain.ErrEvidenceMissing, outcome, "no pooled baseline for this outcome at or above the request's context")
		return domain.RiskAssessment{Outcome: outcome, NoEvidence: true, Label: domain.RiskLow}, &d
	}

	p0 := baseline.P0
	if p0 <= 0 {
		p0 = 1e-6 // keeps odds finite; a literal-zero pooled incidence is itself a data-quality smell
	}
	if p0 >= 1 {
		p0 = 1 - 1e-6
	}
	odds := p0 / (1 - p0)

	var contributing []domain.ContributingFactor
	var logVarSum float64 // additive contribution to CI propagation
	baselineLogitVar := logitVarianceFromCI(baseline.P0CILow, baseline.P0CIHigh)
	logVarSum += baselineLogitVar

	worstGrade := baseline.Grade

	for _, f := range factors {
		effect, _, ok := resolveEffect(snapshot, outcome, f.Token, contextLabel)
		if !ok {
			continue // no pooled effect for this factor/outcome/context: contributes nothing
		}

		conf := f.Confidence
		odds *= math.Pow(effect.ORMean, conf)

		lnORVar := lnVarianceFromCI(effect.ORCILow, effect.ORCIHigh)
		logVarSum += conf * conf * lnORVar

		worstGrade = domain.Worse(worstGrade, effect.Grade)

		contributing = append(contributing, domain.ContributingFactor{
			Factor: f.Token,
			OR:     effect.ORMean,
			CILow:  effect.ORCILow,
			CIHigh: effect.ORCIHigh,
			Grade:  effect.Grade,
			PMIDs:  effect.PMIDs,
		})
	}

	adjustedRisk := odds / (1 + odds)
	riskRatio := adjustedRisk / baseline.P0
	capped := false

	if adjustedRisk > maxAdjustedRisk {
		adjustedRisk = maxAdjustedRisk
		capped = true
	}
	if riskRatio > maxRiskRatio {
		riskRatio = maxRiskRatio
		adjustedRisk = math.Min(adjustedRisk, baseline.P0*maxRiskRatio)
		capped = true
	}

	se := math.Sqrt(logVarSum)
	adjustedLogit := logit(adjustedRisk)
	ciLow := inverseLogit(adjustedLogit - 1.96*se)
	ciHigh := inverseLogit(adjustedLogit + 1.96*se)

	var degradation *domain.Degradation
	if capped {
		d := domain.NewDegradation(domain.ErrPoolingFailed, outcome, "adjusted risk or risk ratio exceeded plausibility cap and was clamped")
		degradation = &d
	}

	return domain.RiskAssessment{
		Outcome:             outcome,
		BaselineRisk:        baseline.P0,
		AdjustedRisk:        adjustedRisk,
		CILow:               ciLow,
		CIHigh:              ciHigh,
		RiskRatio:           riskRatio,
		EvidenceGrade:       worstGrade,
		ContributingFactors: contributing,
		BaselinePMIDs:       baseline.PMIDs,
		Label:               riskLabel(adjustedRisk, riskRatio),
		Capped:              capped,
	}, degradation
}

// resolveBaseline walks the context_label's wildcard FallbackChain until a
// PooledBaseline is found.
func resolveBaseline(snapshot domain.EvidenceSnapshot, outcome, contextLabel string) (domain.PooledBaseline, string, bool) {
	for _, l := range pooling.FallbackChain(contextLabel) {
		if b, ok := snapshot.Baseline(outcome, l); ok {
			return b, l, true
		}
	}
	return domain.PooledBaseline{}, "", false
}

// resolveEffect mirrors resolveBaseline for modifier effects.
func resolveEffect(snapshot domain.EvidenceSnapshot, outcome, modifier, contextLabel string) (domain.PooledEffect, string, bool) {
	for _, l := range pooling.FallbackChain(contextLabel) {
		if e, ok := snapshot.Effect(outcome, modifier, l); ok {
			return e, l, true
		}
	}
	return domain.PooledEffect{}, "", false
}

// riskLabel buckets an adjusted risk/risk-ratio pair into the overall
// HIGH/MODERATE/LOW categorization.
func riskLabel(adjustedRisk, riskRatio float64) domain.RiskLabel {
	switch {
	case adjustedRisk >= 0.10 || riskRatio >= 3:
		return domain.RiskHigh
	case adjustedRisk >= 0.05 || riskRatio >= 1.5:
		return domain.RiskModerate
	default:
		return domain.RiskLow
	}
}

func logit(p float64) float64 {
	if p <= 0 {
		p = 1e-9
	}
	if p >= 1 {
		p = 1 - 1e-9
	}
	return math.Log(p / (1 - p))
}

func inverseLogit(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// logitVarianceFromCI backs out an approximate variance on the logit scale
// from a reported 95% probability CI, used to seed additive CI propagation.
func logitVarianceFromCI(ciLow, ciHigh float64) float64 {
	if ciLow <= 0 || ciHigh <= 0 || ciLow >= 1 || ciHigh >= 1 {
		return 0
	}
	se := (logit(ciHigh) - logit(ciLow)) / (2 * 1.96)
	return se * se
}

// lnVarianceFromCI mirrors logitVarianceFromCI for an OR's ln scale.
func lnVarianceFromCI(ciLow, ciHigh float64) float64 {
	if ciLow <= 0 || ciHigh <= 0 {
		return 0
	}
	se := (math.Log(ciHigh) - math.Log(ciLow)) / (2 * 1.96)
	return se * se
}
