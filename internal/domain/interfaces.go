package domain

import "context"

// Extractor maps free-text HPI to demographics and factors.
type Extractor interface {
	Extract(hpi string) (Demographics, []ExtractedFactor)
}

// EvidenceSnapshot is the immutable, versioned view of pooled tables a
// request pins for its lifetime. Implemented by
// internal/pooling.Snapshot.
type EvidenceSnapshot interface {
	Version() string
	Baseline(outcome, contextLabel string) (PooledBaseline, bool)
	Effect(outcome, modifier, contextLabel string) (PooledEffect, bool)
	Outcomes() []string
}

// RiskCalculator computes per-outcome adjusted risk.
type RiskCalculator interface {
	Calculate(ctx context.Context, snapshot EvidenceSnapshot, demographics Demographics, factors []ExtractedFactor, contextOverride string) ([]RiskAssessment, []Degradation)
}

// MedicationDecider maps factors/risks to bucketed recommendations.
type MedicationDecider interface {
	Decide(demographics Demographics, factors []ExtractedFactor, risks []RiskAssessment) (MedicationBuckets, []Degradation)
}

// LiteratureSource is the pluggable LITERATURE_LIVE evidence collaborator.
// The model-based mode never calls it.
type LiteratureSource interface {
	FetchEstimates(ctx context.Context, outcome, contextLabel string) ([]Estimate, error)
}

// AuditRecorder persists the request-scoped degradation/session audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, sessionID, hpiHash, evidenceVersion string, status Status, degradations []Degradation) error
}
