package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iot-collector/internal/domain"
)

// PostgresDevicesRepo 基于 PostgreSQL 的设备Repository
type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

const deviceColumns = `
	device_id,
	tenant_id,
	gateway_id,
	name,
	title,
	device_type,
	is_enabled,
	last_reported_at
`

func (r *PostgresDevicesRepo) ListEnabledDevices(ctx context.Context, tenantID, gatewayID string) ([]*domain.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM iot_devices
		WHERE gateway_id = $1 AND tenant_id = $2 AND is_enabled = TRUE AND is_deleted = FALSE
		ORDER BY device_id
	`
	return r.queryDevices(ctx, query, gatewayID, tenantID)
}

func (r *PostgresDevicesRepo) ListDevicesByGateway(ctx context.Context, tenantID, gatewayID string) ([]*domain.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM iot_devices
		WHERE gateway_id = $1 AND tenant_id = $2 AND is_deleted = FALSE
		ORDER BY device_id
	`
	return r.queryDevices(ctx, query, gatewayID, tenantID)
}

func (r *PostgresDevicesRepo) CreateDevice(ctx context.Context, device *domain.Device) error {
	query := `
		INSERT INTO iot_devices (
			device_id, tenant_id, gateway_id, name, title, device_type,
			is_enabled, is_deleted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		device.DeviceID,
		device.TenantID,
		device.GatewayID,
		device.Name,
		device.Title,
		string(device.DeviceType),
		device.Enabled,
	)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) EnableDevice(ctx context.Context, tenantID, deviceID string) error {
	query := `
		UPDATE iot_devices
		SET is_enabled = TRUE
		WHERE device_id = $1 AND tenant_id = $2 AND is_deleted = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, deviceID, tenantID); err != nil {
		return fmt.Errorf("enable device: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) UpdateDeviceLastReported(ctx context.Context, tenantID, deviceID string, reportedAt time.Time) error {
	query := `
		UPDATE iot_devices
		SET last_reported_at = $1
		WHERE device_id = $2 AND tenant_id = $3 AND is_deleted = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, reportedAt, deviceID, tenantID); err != nil {
		return fmt.Errorf("update device last_reported_at: %w", err)
	}
	return nil
}

func (r *PostgresDevicesRepo) queryDevices(ctx context.Context, query string, args ...any) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		var (
			d          domain.Device
			deviceType string
			reportedAt sql.NullTime
		)
		if err := rows.Scan(
			&d.DeviceID,
			&d.TenantID,
			&d.GatewayID,
			&d.Name,
			&d.Title,
			&deviceType,
			&d.Enabled,
			&reportedAt,
		); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.DeviceType = domain.DeviceType(deviceType)
		if reportedAt.Valid {
			t := reportedAt.Time
			d.LastReportedAt = &t
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
