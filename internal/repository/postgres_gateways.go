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

// PostgresGatewaysRepo 基于 PostgreSQL 的网关Repository
type PostgresGatewaysRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresGatewaysRepo(db *sql.DB, logger *zap.Logger) *PostgresGatewaysRepo {
	return &PostgresGatewaysRepo{db: db, logger: logger}
}

const gatewayColumns = `
	gateway_id,
	tenant_id,
	name,
	title,
	protocol_type,
	COALESCE(address, ''),
	is_enabled,
	status,
	last_connected_at,
	config
`

func (r *PostgresGatewaysRepo) ListEnabledAllTenants(ctx context.Context) ([]*domain.Gateway, error) {
	// 注意：采集入口刻意不带 tenant_id 条件，跨租户查询后由运行器分组隔离
	query := `
		SELECT ` + gatewayColumns + `
		FROM iot_gateways
		WHERE is_enabled = TRUE AND is_deleted = FALSE
		ORDER BY tenant_id, gateway_id
	`
	return r.queryGateways(ctx, query)
}

func (r *PostgresGatewaysRepo) ListAllTenants(ctx context.Context) ([]*domain.Gateway, error) {
	query := `
		SELECT ` + gatewayColumns + `
		FROM iot_gateways
		WHERE is_deleted = FALSE
		ORDER BY tenant_id, gateway_id
	`
	return r.queryGateways(ctx, query)
}

func (r *PostgresGatewaysRepo) GetGateway(ctx context.Context, tenantID, gatewayID string) (*domain.Gateway, error) {
	query := `
		SELECT ` + gatewayColumns + `
		FROM iot_gateways
		WHERE gateway_id = $1 AND tenant_id = $2 AND is_deleted = FALSE
	`
	rows, err := r.db.QueryContext(ctx, query, gatewayID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query gateway: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanGateway(rows)
}

func (r *PostgresGatewaysRepo) UpdateGatewayStatus(ctx context.Context, tenantID, gatewayID string, status domain.GatewayStatus, connectedAt *time.Time) error {
	if connectedAt != nil {
		query := `
			UPDATE iot_gateways
			SET status = $1, last_connected_at = $2
			WHERE gateway_id = $3 AND tenant_id = $4 AND is_deleted = FALSE
		`
		if _, err := r.db.ExecContext(ctx, query, string(status), *connectedAt, gatewayID, tenantID); err != nil {
			return fmt.Errorf("update gateway status: %w", err)
		}
		return nil
	}

	query := `
		UPDATE iot_gateways
		SET status = $1
		WHERE gateway_id = $2 AND tenant_id = $3 AND is_deleted = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, string(status), gatewayID, tenantID); err != nil {
		return fmt.Errorf("update gateway status: %w", err)
	}
	return nil
}

func (r *PostgresGatewaysRepo) queryGateways(ctx context.Context, query string, args ...any) ([]*domain.Gateway, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query gateways: %w", err)
	}
	defer rows.Close()

	var out []*domain.Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGateway(rows *sql.Rows) (*domain.Gateway, error) {
	var (
		g           domain.Gateway
		status      sql.NullString
		connectedAt sql.NullTime
		configJSON  []byte
	)
	if err := rows.Scan(
		&g.GatewayID,
		&g.TenantID,
		&g.Name,
		&g.Title,
		&g.ProtocolType,
		&g.Address,
		&g.Enabled,
		&status,
		&connectedAt,
		&configJSON,
	); err != nil {
		return nil, fmt.Errorf("scan gateway: %w", err)
	}
	if status.Valid {
		g.Status = domain.GatewayStatus(status.String)
	}
	if connectedAt.Valid {
		t := connectedAt.Time
		g.LastConnectedAt = &t
	}
	if len(configJSON) > 0 {
		// config 解析失败不致命，当作无配置处理
		_ = json.Unmarshal(configJSON, &g.Config)
	}
	return &g, nil
}
