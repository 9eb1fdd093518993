package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"iot-collector/internal/domain"
)

func setupRecordsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresDataRecordsRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresDataRecordsRepo(db, zap.NewNop())
	return db, mock, repo
}

func TestCountRecords(t *testing.T) {
	db, mock, repo := setupRecordsRepo(t)
	defer db.Close()

	reportedAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"count"}).AddRow(1)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("dev-1", "dp-1", reportedAt, "tenant-1").
		WillReturnRows(rows)

	n, err := repo.CountRecords(context.Background(), "tenant-1", "dev-1", "dp-1", reportedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRecord(t *testing.T) {
	db, mock, repo := setupRecordsRepo(t)
	defer db.Close()

	reportedAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	record := &domain.DataRecord{
		RecordID:         "rec-1",
		TenantID:         "tenant-1",
		DeviceID:         "dev-1",
		DataPointID:      "dp-1",
		Value:            "21.5",
		DataType:         domain.DataTypeNumeric,
		SamplingInterval: 60,
		ReportedAt:       reportedAt,
		IsAlarm:          true,
		AlarmLevel:       "Warning",
	}

	mock.ExpectExec(`INSERT INTO iot_data_records`).
		WithArgs("rec-1", "tenant-1", "dev-1", "dp-1", "21.5", "Numeric",
			60, reportedAt, true, "Warning", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateRecord(context.Background(), record)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRecord_EmptyOptionalFieldsAreNull(t *testing.T) {
	db, mock, repo := setupRecordsRepo(t)
	defer db.Close()

	reportedAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	record := &domain.DataRecord{
		RecordID:    "rec-2",
		TenantID:    "tenant-1",
		DeviceID:    "dev-1",
		DataPointID: "dp-1",
		Value:       "ok",
		DataType:    domain.DataTypeString,
		ReportedAt:  reportedAt,
	}

	mock.ExpectExec(`INSERT INTO iot_data_records`).
		WithArgs("rec-2", "tenant-1", "dev-1", "dp-1", "ok", "String",
			0, reportedAt, false, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateRecord(context.Background(), record)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
