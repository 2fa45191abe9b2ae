package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/repository"
	apperrors "github.com/cnhflow/cnhflow-backend/pkg/errors"
	"github.com/cnhflow/cnhflow-backend/pkg/testutil"
)

func sampleEntry() *domain.ProcessingAuditEntry {
	consent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ProcessingAuditEntry{
		ID:                   "8c2f3a8e-1d7b-4c55-9a43-0e7d2b2f6f10",
		JobID:                "1b4e28ba-2fa1-41d2-883f-0016d3cca427",
		DocumentFingerprint:  "abc123",
		Producer:             "textlayer",
		ConsentTimestamp:     consent,
		ConsentGivenBy:       "user-1",
		FieldsExtracted:      []string{"nome", "cpf"},
		ProcessingDurationMs: 42,
		DocumentDeletedAt:    consent.Add(time.Second),
	}
}

func TestAuditRepository_Insert(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	e := sampleEntry()
	mockDB.ExpectExec("INSERT INTO document_processing_audit").
		WithArgs(e.ID, e.JobID, "abc123", "textlayer", e.ConsentTimestamp, "user-1",
			pq.Array([]string{"nome", "cpf"}), int64(42), e.DocumentDeletedAt, testutil.AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewAuditRepository(mockDB.DB)
	require.NoError(t, repo.Insert(context.Background(), e))
	assert.False(t, e.CreatedAt.IsZero())
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_Insert_NilFields(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	e := sampleEntry()
	e.FieldsExtracted = nil
	mockDB.ExpectExec("INSERT INTO document_processing_audit").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			pq.Array([]string{}), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repository.NewAuditRepository(mockDB.DB).Insert(context.Background(), e))
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_Insert_Errors(t *testing.T) {
	t.Run("duplicate job maps to conflict", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		mockDB.ExpectExec("INSERT INTO document_processing_audit").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "document_processing_audit_job_id_key"})

		err := repository.NewAuditRepository(mockDB.DB).Insert(context.Background(), sampleEntry())
		assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		cause := errors.New("connection reset")
		mockDB.ExpectExec("INSERT INTO document_processing_audit").WillReturnError(cause)

		err := repository.NewAuditRepository(mockDB.DB).Insert(context.Background(), sampleEntry())
		assert.ErrorIs(t, err, cause)
	})
}

func TestAuditRepository_GetByJobID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	e := sampleEntry()
	created := time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC)
	mockDB.ExpectQuery("FROM document_processing_audit WHERE job_id = $1").
		WithArgs(e.JobID).
		WillReturnRows(testutil.MockRows("id", "job_id", "document_fingerprint", "producer", "consent_timestamp",
			"consent_given_by", "fields_extracted", "processing_duration_ms", "document_deleted_at", "created_at").
			AddRow(e.ID, e.JobID, "abc123", "textlayer", e.ConsentTimestamp, "user-1", "{nome,cpf}", int64(42), e.DocumentDeletedAt, created))

	got, err := repository.NewAuditRepository(mockDB.DB).GetByJobID(context.Background(), e.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"nome", "cpf"}, got.FieldsExtracted)
	assert.Equal(t, "textlayer", got.Producer)
	assert.Equal(t, created, got.CreatedAt)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_GetByJobID_Missing(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM document_processing_audit WHERE job_id = $1").
		WithArgs("nope").
		WillReturnRows(testutil.MockRows("id"))

	got, err := repository.NewAuditRepository(mockDB.DB).GetByJobID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}
