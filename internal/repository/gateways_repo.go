package repository

import (
	"context"
	"time"

	"iot-collector/internal/domain"
)

// GatewaysRepository 网关Repository接口
// 采集入口需要跨租户查询（运行器自己按租户分组做隔离），
// 其余操作一律带租户范围。
type GatewaysRepository interface {
	// ListEnabledAllTenants 跨租户查询所有启用、未删除的网关（仅供采集入口）
	ListEnabledAllTenants(ctx context.Context) ([]*domain.Gateway, error)

	// ListAllTenants 跨租户查询所有未删除的网关（含禁用，供状态检测）
	ListAllTenants(ctx context.Context) ([]*domain.Gateway, error)

	// GetGateway 按租户+网关ID查询，不存在返回 (nil, nil)
	GetGateway(ctx context.Context, tenantID, gatewayID string) (*domain.Gateway, error)

	// UpdateGatewayStatus 更新网关在线状态；connectedAt 非空时同时刷新最后连接时间
	UpdateGatewayStatus(ctx context.Context, tenantID, gatewayID string, status domain.GatewayStatus, connectedAt *time.Time) error
}
