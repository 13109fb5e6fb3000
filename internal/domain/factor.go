package domain

// ExtractedFactor is a confidence-weighted clinical factor pulled from HPI
// text or derived from demographics.
type ExtractedFactor struct {
	Token          string   `json:"token"`
	PlainLabel     string   `json:"plain_label"`
	Confidence     float64  `json:"confidence"`
	EvidenceText   []string `json:"evidence_text,omitempty"` // all matched spans, highest-confidence match governs Confidence
	Category       string   `json:"category"`
	SeverityWeight float64  `json:"severity_weight"`
}
