package extractor

import (
	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

// Extractor runs the HPI -> {Demographics, []ExtractedFactor} pipeline
// against an immutable ontology Store.
type Extractor struct {
	store *ontology.Store
}

// New builds an Extractor bound to store. The store is shared read-only
// across concurrent requests; Extractor holds no other state.
func New(store *ontology.Store) *Extractor {
	return &Extractor{store: store}
}

// Extract implements domain.Extractor. Empty input returns an empty factor
// list and UNKNOWN demographics rather than an error.
func (e *Extractor) Extract(hpi string) (domain.Demographics, []domain.ExtractedFactor) {
	if hpi == "" {
		return domain.Demographics{AgeBand: domain.AgeUnknown, Sex: domain.SexUnknown, Urgency: domain.UrgencyElective}, nil
	}

	normalized := Normalize(hpi)

	demographics := extractDemographics(normalized, e.store)
	factors := extractFactors(normalized, e.store)
	factors = append(factors, deriveFactors(demographics, e.store)...)
	factors = dedup(factors)

	return demographics, factors
}

// dedup collapses duplicate tokens to their highest-confidence match,
// retaining every evidence_text span seen.
func dedup(factors []domain.ExtractedFactor) []domain.ExtractedFactor {
	byToken := map[string]*domain.ExtractedFactor{}
	var order []string

	for _, f := range factors {
		existing, ok := byToken[f.Token]
		if !ok {
			fc := f
			byToken[f.Token] = &fc
			order = append(order, f.Token)
			continue
		}
		existing.EvidenceText = append(existing.EvidenceText, f.EvidenceText...)
		if f.Confidence > existing.Confidence {
			existing.Confidence = f.Confidence
		}
	}

	out := make([]domain.ExtractedFactor, 0, len(order))
	for _, tok := range order {
		out = append(out, *byToken[tok])
	}
	return out
}
