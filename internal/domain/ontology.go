package domain

import "fmt"

// TermType is the closed set of ontology term kinds.
type TermType string

const (
	TermOutcome     TermType = "OUTCOME"
	TermRiskFactor  TermType = "RISK_FACTOR"
	TermMedication  TermType = "MEDICATION"
	TermDemographic TermType = "DEMOGRAPHIC"
	TermProcedure   TermType = "PROCEDURE"
)

func (t TermType) IsValid() bool {
	switch t {
	case TermOutcome, TermRiskFactor, TermMedication, TermDemographic, TermProcedure:
		return true
	default:
		return false
	}
}

// SynonymConfidence is the base confidence tier a matched synonym
// contributes before negation/temporal adjustment.
type SynonymConfidence float64

const (
	ConfidenceCanonical SynonymConfidence = 0.95
	ConfidenceSynonym   SynonymConfidence = 0.85
	ConfidenceWeak      SynonymConfidence = 0.70
)

// Synonym is one lowercase surface form mapped back to a term, tagged with
// the tier that determines its base extraction confidence. Synonym status
// is externalized here rather than inferred from string length, so a
// short but canonical surface form isn't mistaken for a weak one.
type Synonym struct {
	Text       string
	Confidence SynonymConfidence
}

// OntologyTerm is the canonical clinical vocabulary entry.
type OntologyTerm struct {
	Token          string
	Type           TermType
	PlainLabel     string
	Synonyms       []Synonym
	Category       string
	SeverityWeight float64
	ParentToken    string   // empty if root
	ChildTokens    []string // populated by the store at load time
	TimeWindowed   bool     // true for tokens like RECENT_URI_2W requiring a temporal cue
}

// Validate enforces the §3 invariants: unique token (checked by the store),
// lowercase synonyms, exactly one type.
func (t *OntologyTerm) Validate() error {
	if t.Token == "" {
		return fmt.Errorf("ontology term: token must not be empty")
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("ontology term %s: invalid type %q", t.Token, t.Type)
	}
	for _, s := range t.Synonyms {
		for _, r := range s.Text {
			if r >= 'A' && r <= 'Z' {
				return fmt.Errorf("ontology term %s: synonym %q must be lowercase", t.Token, s.Text)
			}
		}
	}
	return nil
}
