// Package service orchestrates the HPI extractor, pooling engine, risk
// calculator and medication decider into the single analyze()
// entrypoint, step by step.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/pooling"
)

// Engine wires the pipeline together and owns the pinned evidence snapshot.
type Engine struct {
	logger         *logrus.Logger
	extractor      domain.Extractor
	riskCalculator domain.RiskCalculator
	decider        domain.MedicationDecider
	auditRecorder  domain.AuditRecorder
	literature     domain.LiteratureSource

	snapshot      atomic.Pointer[domain.EvidenceSnapshot]
	requestBudget time.Duration
}

// New builds an Engine. snapshot is the initial pinned evidence version;
// SwapSnapshot replaces it atomically as new evidence versions are built.
func New(
	logger *logrus.Logger,
	extractor domain.Extractor,
	riskCalculator domain.RiskCalculator,
	decider domain.MedicationDecider,
	auditRecorder domain.AuditRecorder,
	literature domain.LiteratureSource,
	snapshot domain.EvidenceSnapshot,
	requestBudget time.Duration,
) *Engine {
	e := &Engine{
		logger:         logger,
		extractor:      extractor,
		riskCalculator: riskCalculator,
		decider:        decider,
		auditRecorder:  auditRecorder,
		literature:     literature,
		requestBudget:  requestBudget,
	}
	e.snapshot.Store(&snapshot)
	return e
}

// SwapSnapshot atomically replaces the pinned evidence snapshot. Requests
// already in flight keep the reference they acquired at the top of
// Analyze: a single reference flip, never a partially-updated snapshot.
func (e *Engine) SwapSnapshot(snapshot domain.EvidenceSnapshot) {
	e.snapshot.Store(&snapshot)
}

// CurrentVersion reports the evidence version currently pinned for new
// requests.
func (e *Engine) CurrentVersion() string {
	return (*e.snapshot.Load()).Version()
}

// Analyze runs the full pipeline for one HPI text: extraction, risk
// calculation, optional medication recommendation, and audit recording.
func (e *Engine) Analyze(ctx context.Context, hpiText string, options domain.AnalyzeOptions) (*domain.AnalysisResult, error) {
	if hpiText == "" {
		return nil, domain.NewInvalidInputError("hpi_text", "must not be empty")
	}

	sessionID := uuid.New().String()
	hpiHash := hashHPI(hpiText)

	snapshot := *e.snapshot.Load()
	if options.EvidenceVersion != "" && options.EvidenceVersion != snapshot.Version() {
		return nil, domain.NewVersionNotFoundError(options.EvidenceVersion)
	}

	budget := e.requestBudget
	if budget <= 0 {
		budget = 5 * time.Second
	}
	analyzeCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	e.logger.WithFields(logrus.Fields{
		"session_id":       sessionID,
		"evidence_version": snapshot.Version(),
		"mode":             options.Mode,
	}).Info("starting analysis")

	demographics, factors := e.extractor.Extract(hpiText)

	risks, riskDegradations := e.riskCalculator.Calculate(analyzeCtx, snapshot, demographics, factors, options.ContextOverride)

	var medications domain.MedicationBuckets
	var medicationDegradations []domain.Degradation
	if options.IncludeMedications {
		medications, medicationDegradations = e.decider.Decide(demographics, factors, risks)
	}

	degradations := append(append([]domain.Degradation{}, riskDegradations...), medicationDegradations...)
	for _, d := range degradations {
		e.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"kind":       d.Kind,
			"subject":    d.Subject,
		}).Warn(d.Message)
	}

	status := domain.StatusOK
	if analyzeCtx.Err() != nil || len(degradations) > 0 {
		status = domain.StatusPartialSuccess
	}

	result := &domain.AnalysisResult{
		SessionID:       sessionID,
		Demographics:    demographics,
		Factors:         factors,
		Risks:           risks,
		Medications:     medications,
		EvidenceVersion: snapshot.Version(),
		Status:          status,
		Degradations:    degradations,
	}

	if e.auditRecorder != nil {
		if err := e.auditRecorder.Record(ctx, sessionID, hpiHash, snapshot.Version(), status, degradations); err != nil {
			e.logger.WithError(err).Warn("failed to persist session audit entry")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"status":     status,
		"outcomes":   len(risks),
	}).Info("analysis complete")

	return result, nil
}

// RebuildSnapshot pools a fresh estimate set into a new evidence version
// and swaps it in; this runs off the request path, triggered by an
// external evidence refresh.
func (e *Engine) RebuildSnapshot(estimates []domain.Estimate, version string) error {
	snap, err := pooling.Build(estimates, version)
	if err != nil {
		return fmt.Errorf("rebuilding evidence snapshot: %w", err)
	}
	var iface domain.EvidenceSnapshot = snap
	e.SwapSnapshot(iface)
	return nil
}

func hashHPI(hpiText string) string {
	sum := sha256.Sum256([]byte(hpiText))
	return hex.EncodeToString(sum[:])
}
