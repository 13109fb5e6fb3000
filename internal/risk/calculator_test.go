package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
	"github.com/periop-health/risk-engine/internal/pooling"
)

func newTestSnapshot(t *testing.T) domain.EvidenceSnapshot {
	t.Helper()
	estimates := []domain.Estimate{
		{ID: "b1", PMID: "100", OutcomeToken: "LARYNGOSPASM", Measure: domain.MeasureIncidence,
			Value: 0.02, Population: domain.PopulationPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE",
			QualityWeight: 0.9, ExtractionConfidence: 0.9},
		{ID: "e1", PMID: "101", OutcomeToken: "LARYNGOSPASM", ModifierToken: "ASTHMA", Measure: domain.MeasureOR,
			Value: 4.0, Population: domain.PopulationPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE",
			QualityWeight: 0.9, ExtractionConfidence: 0.9},
		{ID: "e2", PMID: "102", OutcomeToken: "LARYNGOSPASM", ModifierToken: "RECENT_URI_2W", Measure: domain.MeasureOR,
			Value: 2.5, Population: domain.PopulationPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE",
			QualityWeight: 0.85, ExtractionConfidence: 0.9},
	}
	snap, err := pooling.Build(estimates, "v2026.01")
	require.NoError(t, err)
	return snap
}

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	store, err := ontology.NewStore(ontology.SeedTerms(), 0)
	require.NoError(t, err)
	return New(store)
}

func TestCalculate_NoEvidenceForUnknownOutcomeContext(t *testing.T) {
	calc := newTestCalculator(t)
	// Only a modifier effect is pooled: LARYNGOSPASM is known to the
	// snapshot, but no baseline exists anywhere on the request context's
	// wildcard fallback chain.
	snap, err := pooling.Build([]domain.Estimate{
		{ID: "e1", PMID: "101", OutcomeToken: "LARYNGOSPASM", ModifierToken: "ASTHMA", Measure: domain.MeasureOR,
			Value: 4.0, Population: domain.PopulationPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE",
			QualityWeight: 0.9, ExtractionConfidence: 0.9},
	}, "v2026.01")
	require.NoError(t, err)

	demographics := domain.Demographics{AgeBand: domain.AgeGE65, Procedure: "CABG", Urgency: domain.UrgencyElective}
	results, degradations := calc.Calculate(context.Background(), snap, demographics, nil, "")

	require.Len(t, results, 1) // snapshot only has LARYNGOSPASM
	assert.True(t, results[0].NoEvidence)

	require.Len(t, degradations, 1)
	assert.Equal(t, domain.ErrEvidenceMissing, degradations[0].Kind)
	assert.Equal(t, results[0].Outcome, degradations[0].Subject)
}

func TestCalculate_S1_PediatricAsthmaURI(t *testing.T) {
	calc := newTestCalculator(t)
	snap := newTestSnapshot(t)

	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{
		{Token: "ASTHMA", Confidence: 0.95},
		{Token: "RECENT_URI_2W", Confidence: 0.95},
	}

	results, _ := calc.Calculate(context.Background(), snap, demographics, factors, "")
	require.Len(t, results, 1)

	r := results[0]
	assert.False(t, r.NoEvidence)
	assert.GreaterOrEqual(t, r.RiskRatio, 3.0)
	assert.LessOrEqual(t, r.AdjustedRisk, maxAdjustedRisk)
	assert.LessOrEqual(t, r.RiskRatio, maxRiskRatio)
	assert.NotEmpty(t, r.PMIDs())
	assert.Equal(t, domain.RiskHigh, r.Label)
}

func TestCalculate_MonotoneFactorEffect(t *testing.T) {
	calc := newTestCalculator(t)
	snap := newTestSnapshot(t)

	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}

	withoutFactor, _ := calc.Calculate(context.Background(), snap, demographics, nil, "")
	withFactor, _ := calc.Calculate(context.Background(), snap, demographics, []domain.ExtractedFactor{{Token: "ASTHMA", Confidence: 1.0}}, "")

	require.Len(t, withoutFactor, 1)
	require.Len(t, withFactor, 1)
	assert.GreaterOrEqual(t, withFactor[0].AdjustedRisk, withoutFactor[0].AdjustedRisk)
}

func TestCalculate_RiskCapEnforced(t *testing.T) {
	calc := newTestCalculator(t)
	// A contrived snapshot with a huge OR to force the cap.
	estimates := []domain.Estimate{
		{ID: "b1", PMID: "100", OutcomeToken: "LARYNGOSPASM", Measure: domain.MeasureIncidence,
			Value: 0.3, Population: domain.PopulationPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE",
			QualityWeight: 0.9, ExtractionConfidence: 0.9},
		{ID: "e1", PMID: "101", OutcomeToken: "LARYNGOSPASM", ModifierToken: "ASTHMA", Measure: domain.MeasureOR,
			Value: 500.0, Population: domain.PopulationPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE",
			QualityWeight: 0.9, ExtractionConfidence: 0.9},
	}
	snap, err := pooling.Build(estimates, "v2026.01")
	require.NoError(t, err)

	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	results, _ := calc.Calculate(context.Background(), snap, demographics, []domain.ExtractedFactor{{Token: "ASTHMA", Confidence: 1.0}}, "")

	require.Len(t, results, 1)
	r := results[0]
	assert.True(t, r.Capped)
	assert.LessOrEqual(t, r.AdjustedRisk, maxAdjustedRisk)
	assert.LessOrEqual(t, r.RiskRatio, maxRiskRatio)
}

func TestCalculate_ContextOverride(t *testing.T) {
	calc := newTestCalculator(t)
	snap := newTestSnapshot(t)

	// Demographics alone would resolve to a CARDIAC context with no exact
	// cell, reaching the pediatric data only through a wildcard ancestor;
	// overriding to the exact pediatric label finds the cell directly.
	demographics := domain.Demographics{AgeBand: domain.AgeGE65, Procedure: "CABG", Urgency: domain.UrgencyElective}
	results, _ := calc.Calculate(context.Background(), snap, demographics, nil, "PEDIATRIC×ENT×ELECTIVE")

	require.Len(t, results, 1)
	assert.False(t, results[0].NoEvidence)
}

func TestCalculate_CancelledContextReturnsPartial(t *testing.T) {
	calc := newTestCalculator(t)
	snap := newTestSnapshot(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	results, degradations := calc.Calculate(ctx, snap, demographics, nil, "")

	assert.Empty(t, results)
	require.Len(t, degradations, 1)
	assert.Equal(t, domain.ErrTimeout, degradations[0].Kind)
}
