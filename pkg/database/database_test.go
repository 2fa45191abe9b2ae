package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/pkg/logger"
)

func TestHealth(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db := Wrap(sqlx.NewDb(sqlDB, "postgres"), logger.Nop())
	defer db.Close()

	mock.ExpectPing()
	status := db.Health(context.Background())
	assert.Equal(t, "up", status["status"])
	assert.Contains(t, status, "open_connections")

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	status = db.Health(context.Background())
	assert.Equal(t, "down", status["status"])
	assert.Equal(t, "connection refused", status["error"])

	assert.NoError(t, mock.ExpectationsWereMet())
}
