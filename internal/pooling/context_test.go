package pooling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

func TestContextLabel_PediatricENT(t *testing.T) {
	store, err := ontology.NewStore(ontology.SeedTerms(), 0)
	require.NoError(t, err)

	d := domain.Demographics{AgeBand: domain.Age1to5, Procedure: "TONSILLECTOMY", Urgency: domain.UrgencyElective}
	assert.Equal(t, "PEDIATRIC×ENT×ELECTIVE", ContextLabel(d, store))
}

func TestContextLabel_AdultCardiac(t *testing.T) {
	store, err := ontology.NewStore(ontology.SeedTerms(), 0)
	require.NoError(t, err)

	d := domain.Demographics{AgeBand: domain.AgeGE65, Procedure: "CABG", Urgency: domain.UrgencyElective}
	assert.Equal(t, "ADULT×CARDIAC×ELECTIVE", ContextLabel(d, store))
}

func TestContextLabel_UnknownProcedureWildcardsCaseType(t *testing.T) {
	store, err := ontology.NewStore(ontology.SeedTerms(), 0)
	require.NoError(t, err)

	d := domain.Demographics{AgeBand: domain.AgeUnknown, Urgency: domain.UrgencyUrgent}
	assert.Equal(t, "*×*×URGENT", ContextLabel(d, store))
}

func TestFallbackChain_MostSpecificFirst(t *testing.T) {
	chain := FallbackChain("PEDIATRIC×ENT×ELECTIVE")
	require.NotEmpty(t, chain)
	assert.Equal(t, "PEDIATRIC×ENT×ELECTIVE", chain[0])
	assert.Equal(t, "*×*×*", chain[len(chain)-1])
}

func TestFallbackChain_NoDuplicates(t *testing.T) {
	chain := FallbackChain("ADULT×CARDIAC×URGENT")
	seen := map[string]bool{}
	for _, l := range chain {
		require.False(t, seen[l], "duplicate label %s", l)
		seen[l] = true
	}
	assert.Len(t, chain, 8)
}

func TestFallbackChain_AlreadyWildcard(t *testing.T) {
	chain := FallbackChain("*×*×*")
	assert.Equal(t, []string{"*×*×*"}, chain)
}
