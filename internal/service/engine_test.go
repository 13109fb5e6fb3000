package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
	"github.com/periop-health/risk-engine/internal/pooling"
	"github.com/periop-health/risk-engine/internal/risk"
)

type stubSnapshot struct {
	version string
}

func (s stubSnapshot) Version() string { return s.version }
func (s stubSnapshot) Baseline(outcome, contextLabel string) (domain.PooledBaseline, bool) {
	return domain.PooledBaseline{}, false
}
func (s stubSnapshot) Effect(outcome, modifier, contextLabel string) (domain.PooledEffect, bool) {
	return domain.PooledEffect{}, false
}
func (s stubSnapshot) Outcomes() []string { return nil }

type stubExtractor struct {
	demographics domain.Demographics
	factors      []domain.ExtractedFactor
}

func (e stubExtractor) Extract(hpi string) (domain.Demographics, []domain.ExtractedFactor) {
	return e.demographics, e.factors
}

type stubRiskCalculator struct {
	results      []domain.RiskAssessment
	degradations []domain.Degradation
	blockUntil   chan struct{}
}

func (c *stubRiskCalculator) Calculate(ctx context.Context, snapshot domain.EvidenceSnapshot, demographics domain.Demographics, factors []domain.ExtractedFactor, contextOverride string) ([]domain.RiskAssessment, []domain.Degradation) {
	if c.blockUntil != nil {
		select {
		case <-ctx.Done():
			return nil, []domain.Degradation{domain.NewDegradation(domain.ErrTimeout, "*", "cancelled")}
		case <-c.blockUntil:
		}
	}
	return c.results, c.degradations
}

type stubDecider struct {
	buckets domain.MedicationBuckets
}

func (d stubDecider) Decide(demographics domain.Demographics, factors []domain.ExtractedFactor, risks []domain.RiskAssessment) (domain.MedicationBuckets, []domain.Degradation) {
	return d.buckets, nil
}

type stubAuditRecorder struct {
	calls int
}

func (r *stubAuditRecorder) Record(ctx context.Context, sessionID, hpiHash, evidenceVersion string, status domain.Status, degradations []domain.Degradation) error {
	r.calls++
	return nil
}

func newTestEngine() (*Engine, *stubRiskCalculator, *stubAuditRecorder) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	riskCalc := &stubRiskCalculator{results: []domain.RiskAssessment{{Outcome: "LARYNGOSPASM", Label: domain.RiskLow}}}
	auditor := &stubAuditRecorder{}

	var snap domain.EvidenceSnapshot = stubSnapshot{version: "v2026.01"}
	engine := New(logger, stubExtractor{}, riskCalc, stubDecider{}, auditor, nil, snap, time.Second)
	return engine, riskCalc, auditor
}

func TestAnalyze_RejectsEmptyHPI(t *testing.T) {
	engine, _, _ := newTestEngine()
	_, err := engine.Analyze(context.Background(), "", domain.AnalyzeOptions{})
	require.Error(t, err)
	reqErr, ok := err.(*domain.RequestError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrInvalidInput, reqErr.Kind)
}

func TestAnalyze_RejectsUnknownEvidenceVersion(t *testing.T) {
	engine, _, _ := newTestEngine()
	_, err := engine.Analyze(context.Background(), "5yo with asthma", domain.AnalyzeOptions{EvidenceVersion: "v1999.01"})
	require.Error(t, err)
	reqErr, ok := err.(*domain.RequestError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrVersionNotFound, reqErr.Kind)
}

func TestAnalyze_OKStatusWithNoDegradations(t *testing.T) {
	engine, _, auditor := newTestEngine()
	result, err := engine.Analyze(context.Background(), "5yo with asthma", domain.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, result.Status)
	assert.Equal(t, "v2026.01", result.EvidenceVersion)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 1, auditor.calls)
}

func TestAnalyze_PartialSuccessOnDegradation(t *testing.T) {
	engine, riskCalc, _ := newTestEngine()
	riskCalc.degradations = []domain.Degradation{domain.NewDegradation(domain.ErrEvidenceMissing, "LARYNGOSPASM", "no pooled baseline")}

	result, err := engine.Analyze(context.Background(), "5yo with asthma", domain.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartialSuccess, result.Status)
	assert.Len(t, result.Degradations, 1)
}

func TestAnalyze_RequestBudgetTimesOutToPartialSuccess(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	riskCalc := &stubRiskCalculator{blockUntil: make(chan struct{})}
	var snap domain.EvidenceSnapshot = stubSnapshot{version: "v2026.01"}
	engine := New(logger, stubExtractor{}, riskCalc, stubDecider{}, &stubAuditRecorder{}, nil, snap, 10*time.Millisecond)

	result, err := engine.Analyze(context.Background(), "5yo with asthma", domain.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartialSuccess, result.Status)
}

// TestAnalyze_PartialSuccessOnRealNoEvidenceOutcome exercises the real
// risk.Calculator (not a stub) against a snapshot with zero pooled
// evidence, confirming the no-evidence path itself produces a degradation
// that flips status to PARTIAL_SUCCESS, rather than relying on a
// hand-constructed stub degradation.
func TestAnalyze_PartialSuccessOnRealNoEvidenceOutcome(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := ontology.NewStore(ontology.SeedTerms(), 0)
	require.NoError(t, err)
	calc := risk.New(store)

	snap, err := pooling.Build(nil, "v2026.01")
	require.NoError(t, err)
	snapWithOutcome := &testSnapshotWithOneOutcome{Snapshot: snap, outcome: "LARYNGOSPASM"}
	var evidenceSnapshot domain.EvidenceSnapshot = snapWithOutcome

	auditor := &stubAuditRecorder{}
	engine := New(logger, stubExtractor{demographics: domain.Demographics{Procedure: "TONSILLECTOMY"}}, calc, stubDecider{}, auditor, nil, evidenceSnapshot, time.Second)

	result, err := engine.Analyze(context.Background(), "5yo for tonsillectomy", domain.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartialSuccess, result.Status)
	require.Len(t, result.Degradations, 1)
	assert.Equal(t, domain.ErrEvidenceMissing, result.Degradations[0].Kind)
	require.Len(t, result.Risks, 1)
	assert.True(t, result.Risks[0].NoEvidence)
}

// testSnapshotWithOneOutcome wraps an empty pooling.Snapshot to report a
// single outcome with no pooled baseline, so Calculate's no-evidence path
// actually runs end-to-end instead of short-circuiting on an empty
// Outcomes() list.
type testSnapshotWithOneOutcome struct {
	*pooling.Snapshot
	outcome string
}

func (s *testSnapshotWithOneOutcome) Outcomes() []string { return []string{s.outcome} }

func TestAnalyze_MedicationsOnlyComputedWhenRequested(t *testing.T) {
	engine, _, _ := newTestEngine()
	result, err := engine.Analyze(context.Background(), "5yo with asthma", domain.AnalyzeOptions{IncludeMedications: false})
	require.NoError(t, err)
	assert.Empty(t, result.Medications.Standard)
}

func TestEngine_SwapSnapshotChangesCurrentVersion(t *testing.T) {
	engine, _, _ := newTestEngine()
	assert.Equal(t, "v2026.01", engine.CurrentVersion())

	var next domain.EvidenceSnapshot = stubSnapshot{version: "v2026.02"}
	engine.SwapSnapshot(next)
	assert.Equal(t, "v2026.02", engine.CurrentVersion())
}
