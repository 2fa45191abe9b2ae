// Package repository persists processing audit entries. Entries record that
// a document was processed and when it was destroyed, never what it said.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/pkg/database"
)

// Schema creates the audit table. Applied at startup when the database is enabled.
const Schema = `
CREATE TABLE IF NOT EXISTS document_processing_audit (
	id                     UUID PRIMARY KEY,
	job_id                 UUID NOT NULL UNIQUE,
	document_fingerprint   VARCHAR(128) NOT NULL,
	producer               VARCHAR(64) NOT NULL,
	consent_timestamp      TIMESTAMPTZ NOT NULL,
	consent_given_by       VARCHAR(255) NOT NULL DEFAULT '',
	fields_extracted       TEXT[] NOT NULL DEFAULT '{}',
	processing_duration_ms BIGINT NOT NULL CONSTRAINT duration_non_negative CHECK (processing_duration_ms >= 0),
	document_deleted_at    TIMESTAMPTZ NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_document_processing_audit_created_at
	ON document_processing_audit (created_at);
`

const insertAudit = `INSERT INTO document_processing_audit
	(id, job_id, document_fingerprint, producer, consent_timestamp, consent_given_by, fields_extracted, processing_duration_ms, document_deleted_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectByJob = `SELECT id, job_id, document_fingerprint, producer, consent_timestamp, consent_given_by,
	fields_extracted, processing_duration_ms, document_deleted_at, created_at
	FROM document_processing_audit WHERE job_id = $1`

// AuditRepository stores ProcessingAuditEntry rows
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates an audit repository on db
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// EnsureSchema creates the audit table if it does not exist
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Insert writes one audit entry. CreatedAt defaults to now.
func (r *AuditRepository) Insert(ctx context.Context, e *domain.ProcessingAuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	fields := e.FieldsExtracted
	if fields == nil {
		fields = []string{}
	}

	_, err := r.db.ExecContext(ctx, insertAudit,
		e.ID,
		e.JobID,
		e.DocumentFingerprint,
		e.Producer,
		e.ConsentTimestamp,
		e.ConsentGivenBy,
		pq.Array(fields),
		e.ProcessingDurationMs,
		e.DocumentDeletedAt,
		e.CreatedAt,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// GetByJobID returns the audit entry for a job, or nil when there is none
func (r *AuditRepository) GetByJobID(ctx context.Context, jobID string) (*domain.ProcessingAuditEntry, error) {
	rows, err := r.db.QueryxContext(ctx, selectByJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		e      domain.ProcessingAuditEntry
		fields pq.StringArray
	)
	if err := rows.Scan(&e.ID, &e.JobID, &e.DocumentFingerprint, &e.Producer, &e.ConsentTimestamp,
		&e.ConsentGivenBy, &fields, &e.ProcessingDurationMs, &e.DocumentDeletedAt, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	e.FieldsExtracted = []string(fields)
	return &e, nil
}
