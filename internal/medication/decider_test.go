package medication

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

func newTestDecider(t *testing.T) *Decider {
	t.Helper()
	store, err := ontology.NewStore(ontology.SeedTerms(), 0)
	require.NoError(t, err)
	return New(store)
}

func tokensIn(recs []domain.MedicationRecommendation) map[string]bool {
	out := map[string]bool{}
	for _, r := range recs {
		out[r.Token] = true
	}
	return out
}

// S1 — pediatric asthma/URI for T&A: DRAW_NOW has ALBUTEROL; CONTRAINDICATED
// has SUCCINYLCHOLINE and DESFLURANE.
func TestDecide_S1_PediatricAsthmaURI(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{
		{Token: "ASTHMA", Confidence: 0.95},
		{Token: "RECENT_URI_2W", Confidence: 0.95},
	}

	buckets, _ := d.Decide(demographics, factors, nil)

	assert.True(t, tokensIn(buckets.DrawNow)["ALBUTEROL"])
	contraindicated := tokensIn(buckets.Contraindicated)
	assert.True(t, contraindicated["SUCCINYLCHOLINE"])
	assert.True(t, contraindicated["DESFLURANE"])

	// Contraindicated medications must not also appear elsewhere.
	for _, token := range []string{"SUCCINYLCHOLINE", "DESFLURANE"} {
		assert.False(t, tokensIn(buckets.Standard)[token])
		assert.False(t, tokensIn(buckets.DrawNow)[token])
		assert.False(t, tokensIn(buckets.Consider)[token])
		assert.False(t, tokensIn(buckets.EnsureAvailable)[token])
	}
}

// S2 — adult cardiac with CKD for CABG: CONTRAINDICATED has NSAIDs and
// SUCCINYLCHOLINE; STANDARD includes CISATRACURIUM.
func TestDecide_S2_AdultCardiacCKD(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.AgeGE65, Procedure: "CABG", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{
		{Token: "CAD", Confidence: 0.95},
		{Token: "DIABETES", Confidence: 0.95},
		{Token: "HYPERTENSION", Confidence: 0.95},
		{Token: "CKD", Confidence: 0.95},
	}

	buckets, _ := d.Decide(demographics, factors, nil)

	contraindicated := tokensIn(buckets.Contraindicated)
	assert.True(t, contraindicated["KETOROLAC"])
	assert.True(t, contraindicated["IBUPROFEN"])
	assert.True(t, contraindicated["SUCCINYLCHOLINE"])
	assert.True(t, tokensIn(buckets.Standard)["CISATRACURIUM"])
}

// Negation suppression: a denied factor (confidence <= 0.5) must not trigger
// a contraindication rule.
func TestDecide_NegatedFactorDoesNotTriggerContraindication(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.AgeGE65, Procedure: "CABG", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{
		{Token: "CKD", Confidence: 0.1}, // negated mention
	}

	buckets, _ := d.Decide(demographics, factors, nil)
	assert.False(t, tokensIn(buckets.Contraindicated)["KETOROLAC"])
}

// Every non-STANDARD recommendation must carry >=1 citation, or be
// downgraded to CONSIDER with unsupported=true.
func TestDecide_CitationCoverage(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{{Token: "ASTHMA", Confidence: 0.95}, {Token: "RECENT_URI_2W", Confidence: 0.95}}

	buckets, _ := d.Decide(demographics, factors, nil)

	all := append(append(append(buckets.DrawNow, buckets.Consider...), buckets.EnsureAvailable...), buckets.Contraindicated...)
	for _, rec := range all {
		if rec.Unsupported {
			assert.Equal(t, domain.BucketConsider, rec.Bucket)
			continue
		}
		assert.NotEmpty(t, rec.Citations, "recommendation %s missing citation", rec.Token)
	}
}

// Pediatric dose rules must carry a weight-based placeholder or an
// explicit mg/kg expression, across every bucket — not just STANDARD,
// whose rules all start empty and trivially get the fallback. ALBUTEROL's
// rule table entry carries a fixed "2.5mg nebulized" dose with no
// weight-based expression of its own, so DRAW_NOW is the bucket that
// actually exercises resolveDoseRule's pediatric-rewrite path.
func TestDecide_PediatricDosePresence(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{
		{Token: "ASTHMA", Confidence: 0.95},
		{Token: "RECENT_URI_2W", Confidence: 0.95},
	}

	buckets, _ := d.Decide(demographics, factors, nil)

	all := append(append(append(append(append([]domain.MedicationRecommendation{}, buckets.Standard...), buckets.DrawNow...), buckets.Consider...), buckets.EnsureAvailable...), buckets.Contraindicated...)
	require.NotEmpty(t, all)
	for _, rec := range all {
		assert.True(t,
			strings.Contains(rec.DoseRule, "{weight_kg}") || weightBasedDoseRe.MatchString(rec.DoseRule),
			"pediatric recommendation %s has no weight-based dose expression: %q", rec.Token, rec.DoseRule)
	}

	require.True(t, tokensIn(buckets.DrawNow)["ALBUTEROL"])
	for _, rec := range buckets.DrawNow {
		if rec.Token == "ALBUTEROL" {
			assert.Contains(t, rec.DoseRule, "{weight_kg}", "fixed-dose ALBUTEROL rule must get a weight-based addendum for a pediatric patient")
		}
	}
}

func TestDecide_MissingWeightFlag(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}

	buckets, _ := d.Decide(demographics, nil, nil)
	require.NotEmpty(t, buckets.Standard)
	for _, rec := range buckets.Standard {
		assert.True(t, rec.MissingWeight)
	}
}

func TestDecide_WeightResolvesDosePlaceholder(t *testing.T) {
	d := newTestDecider(t)
	weight := 18.5
	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective, WeightKg: &weight}

	buckets, _ := d.Decide(demographics, nil, nil)
	for _, rec := range buckets.Standard {
		assert.NotContains(t, rec.DoseRule, "{weight_kg}")
		assert.False(t, rec.MissingWeight)
	}
}

func TestDecide_DeterministicOrdering(t *testing.T) {
	d := newTestDecider(t)
	demographics := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	factors := []domain.ExtractedFactor{{Token: "ASTHMA", Confidence: 0.95}, {Token: "RECENT_URI_2W", Confidence: 0.95}}

	b1, _ := d.Decide(demographics, factors, nil)
	b2, _ := d.Decide(demographics, factors, nil)
	assert.Equal(t, b1, b2)
}
