package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iot-collector/internal/domain"
)

// PostgresDataRecordsRepo 基于 PostgreSQL 的时序记录Repository
type PostgresDataRecordsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresDataRecordsRepo(db *sql.DB, logger *zap.Logger) *PostgresDataRecordsRepo {
	return &PostgresDataRecordsRepo{db: db, logger: logger}
}

func (r *PostgresDataRecordsRepo) CountRecords(ctx context.Context, tenantID, deviceID, dataPointID string, reportedAt time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM iot_data_records
		WHERE device_id = $1 AND data_point_id = $2 AND reported_at = $3 AND tenant_id = $4
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, deviceID, dataPointID, reportedAt, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count data records: %w", err)
	}
	return n, nil
}

func (r *PostgresDataRecordsRepo) CreateRecord(ctx context.Context, record *domain.DataRecord) error {
	query := `
		INSERT INTO iot_data_records (
			record_id, tenant_id, device_id, data_point_id, value, data_type,
			sampling_interval, reported_at, is_alarm, alarm_level, remarks,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		record.RecordID,
		record.TenantID,
		record.DeviceID,
		record.DataPointID,
		record.Value,
		string(record.DataType),
		record.SamplingInterval,
		record.ReportedAt,
		record.IsAlarm,
		nullIfEmpty(record.AlarmLevel),
		nullIfEmpty(record.Remarks),
	)
	if err != nil {
		return fmt.Errorf("create data record: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
