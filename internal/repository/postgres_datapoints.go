package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iot-collector/internal/domain"
)

// PostgresDataPointsRepo 基于 PostgreSQL 的数据点Repository
type PostgresDataPointsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresDataPointsRepo(db *sql.DB, logger *zap.Logger) *PostgresDataPointsRepo {
	return &PostgresDataPointsRepo{db: db, logger: logger}
}

const dataPointColumns = `
	data_point_id,
	tenant_id,
	device_id,
	name,
	title,
	data_type,
	sampling_interval,
	is_read_only,
	is_enabled,
	COALESCE(last_value, ''),
	last_updated_at,
	alarm_config
`

func (r *PostgresDataPointsRepo) ListEnabledDataPoints(ctx context.Context, tenantID, deviceID string) ([]*domain.DataPoint, error) {
	query := `
		SELECT ` + dataPointColumns + `
		FROM iot_data_points
		WHERE device_id = $1 AND tenant_id = $2 AND is_enabled = TRUE AND is_deleted = FALSE
		ORDER BY name
	`
	return r.queryDataPoints(ctx, query, deviceID, tenantID)
}

func (r *PostgresDataPointsRepo) ListDataPointsByDevice(ctx context.Context, tenantID, deviceID string) ([]*domain.DataPoint, error) {
	query := `
		SELECT ` + dataPointColumns + `
		FROM iot_data_points
		WHERE device_id = $1 AND tenant_id = $2 AND is_deleted = FALSE
		ORDER BY name
	`
	return r.queryDataPoints(ctx, query, deviceID, tenantID)
}

func (r *PostgresDataPointsRepo) queryDataPoints(ctx context.Context, query string, args ...any) ([]*domain.DataPoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query data points: %w", err)
	}
	defer rows.Close()

	var out []*domain.DataPoint
	for rows.Next() {
		var (
			dp        domain.DataPoint
			dataType  string
			updatedAt sql.NullTime
			alarmJSON []byte
		)
		if err := rows.Scan(
			&dp.DataPointID,
			&dp.TenantID,
			&dp.DeviceID,
			&dp.Name,
			&dp.Title,
			&dataType,
			&dp.SamplingInterval,
			&dp.ReadOnly,
			&dp.Enabled,
			&dp.LastValue,
			&updatedAt,
			&alarmJSON,
		); err != nil {
			return nil, fmt.Errorf("scan data point: %w", err)
		}
		dp.DataType = domain.DataPointType(dataType)
		if updatedAt.Valid {
			t := updatedAt.Time
			dp.LastUpdatedAt = &t
		}
		if len(alarmJSON) > 0 {
			var ac domain.AlarmConfig
			if err := json.Unmarshal(alarmJSON, &ac); err == nil {
				dp.AlarmConfig = &ac
			} else {
				r.logger.Warn("Invalid alarm_config JSON, ignoring",
					zap.String("data_point_id", dp.DataPointID),
					zap.Error(err),
				)
			}
		}
		out = append(out, &dp)
	}
	return out, rows.Err()
}

func (r *PostgresDataPointsRepo) CreateDataPoint(ctx context.Context, dp *domain.DataPoint) error {
	var alarmJSON any
	if dp.AlarmConfig != nil {
		b, err := json.Marshal(dp.AlarmConfig)
		if err != nil {
			return fmt.Errorf("marshal alarm_config: %w", err)
		}
		alarmJSON = b
	}

	query := `
		INSERT INTO iot_data_points (
			data_point_id, tenant_id, device_id, name, title, data_type,
			sampling_interval, is_read_only, is_enabled, alarm_config,
			is_deleted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		dp.DataPointID,
		dp.TenantID,
		dp.DeviceID,
		dp.Name,
		dp.Title,
		string(dp.DataType),
		dp.SamplingInterval,
		dp.ReadOnly,
		dp.Enabled,
		alarmJSON,
	)
	if err != nil {
		return fmt.Errorf("create data point: %w", err)
	}
	return nil
}

func (r *PostgresDataPointsRepo) UpdateDataPointLastValue(ctx context.Context, tenantID, dataPointID, value string, updatedAt time.Time) error {
	query := `
		UPDATE iot_data_points
		SET last_value = $1, last_updated_at = $2
		WHERE data_point_id = $3 AND tenant_id = $4 AND is_deleted = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, value, updatedAt, dataPointID, tenantID); err != nil {
		return fmt.Errorf("update data point last value: %w", err)
	}
	return nil
}

func (r *PostgresDataPointsRepo) TouchDataPointUpdatedAt(ctx context.Context, tenantID, dataPointID string, updatedAt time.Time) error {
	query := `
		UPDATE iot_data_points
		SET last_updated_at = $1
		WHERE data_point_id = $2 AND tenant_id = $3 AND is_deleted = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, updatedAt, dataPointID, tenantID); err != nil {
		return fmt.Errorf("touch data point updated_at: %w", err)
	}
	return nil
}
