package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/periop-health/risk-engine/internal/domain"
)

// EstimateRepository loads the extracted-finding rows the pooling engine
// consumes to build an evidence snapshot, grounded in the same pgx query
// pattern as internal/audit.Repository.
type EstimateRepository struct {
	db  *DB
	log *logrus.Logger
}

// NewEstimateRepository builds an EstimateRepository bound to a pgx pool.
func NewEstimateRepository(db *DB, logger *logrus.Logger) *EstimateRepository {
	return &EstimateRepository{db: db, log: logger}
}

// LoadAll returns every estimate row, the flat set internal/pooling.Build
// expects.
func (r *EstimateRepository) LoadAll(ctx context.Context) ([]domain.Estimate, error) {
	query := `
		SELECT id, pmid, outcome_token, modifier_token, measure, estimate,
		       ci_low, ci_high, adjusted, population, context_label,
		       quality_weight, extraction_confidence, approximate
		FROM estimate`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading estimates: %w", err)
	}
	defer rows.Close()

	var estimates []domain.Estimate
	for rows.Next() {
		var e domain.Estimate
		var modifier *string
		var ciLow, ciHigh *float64
		var measure, population string

		if err := rows.Scan(
			&e.ID, &e.PMID, &e.OutcomeToken, &modifier, &measure, &e.Value,
			&ciLow, &ciHigh, &e.Adjusted, &population, &e.ContextLabel,
			&e.QualityWeight, &e.ExtractionConfidence, &e.Approximate,
		); err != nil {
			return nil, fmt.Errorf("scanning estimate row: %w", err)
		}

		if modifier != nil {
			e.ModifierToken = *modifier
		}
		e.CILow = ciLow
		e.CIHigh = ciHigh
		e.Measure = domain.Measure(measure)
		e.Population = domain.Population(population)
		estimates = append(estimates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating estimate rows: %w", err)
	}

	r.log.WithField("count", len(estimates)).Info("loaded estimates for evidence pooling")
	return estimates, nil
}
