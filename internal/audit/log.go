// Package audit persists the append-only per-session degradation trail
// using a pgx connection pool directly, no ORM.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/periop-health/risk-engine/internal/domain"
)

// Entry is one persisted session_audit row.
type Entry struct {
	SessionID       uuid.UUID
	HPIHash         string
	EvidenceVersion string
	Status          domain.Status
	Degradations    []domain.Degradation
	CreatedAt       time.Time
}

// Repository implements domain.AuditRecorder against the session_audit table.
type Repository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// New builds a Repository bound to a pgx pool.
func New(db *pgxpool.Pool, logger *logrus.Logger) *Repository {
	return &Repository{db: db, log: logger}
}

// Record implements domain.AuditRecorder: one append-only insert per
// completed (or partially completed) analysis request.
func (r *Repository) Record(ctx context.Context, sessionID, hpiHash, evidenceVersion string, status domain.Status, degradations []domain.Degradation) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		id = uuid.New()
	}

	degradationsJSON, err := json.Marshal(degradations)
	if err != nil {
		return fmt.Errorf("marshaling degradations: %w", err)
	}

	query := `
		INSERT INTO session_audit (session_id, hpi_hash, evidence_version, status, degradations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query, id, hpiHash, evidenceVersion, string(status), degradationsJSON, time.Now().UTC())
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id": id,
			"status":     status,
			"error":      err,
		}).Error("failed to record session audit entry")
		return fmt.Errorf("recording session audit: %w", err)
	}

	if len(degradations) > 0 {
		r.log.WithFields(logrus.Fields{
			"session_id":   id,
			"degradations": len(degradations),
		}).Warn("session completed with degradations")
	}

	return nil
}

// Get retrieves a persisted audit entry by session id, used by operational
// tooling to inspect why a request degraded.
func (r *Repository) Get(ctx context.Context, sessionID uuid.UUID) (*Entry, error) {
	query := `
		SELECT session_id, hpi_hash, evidence_version, status, degradations, created_at
		FROM session_audit
		WHERE session_id = $1`

	var entry Entry
	var status string
	var degradationsJSON []byte

	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&entry.SessionID, &entry.HPIHash, &entry.EvidenceVersion, &status, &degradationsJSON, &entry.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("audit entry not found: %s", sessionID)
		}
		return nil, fmt.Errorf("getting audit entry: %w", err)
	}
	entry.Status = domain.Status(status)

	if err := json.Unmarshal(degradationsJSON, &entry.Degradations); err != nil {
		return nil, fmt.Errorf("unmarshaling degradations: %w", err)
	}
	return &entry, nil
}
