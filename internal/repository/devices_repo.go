package repository

import (
	"context"
	"time"

	"iot-collector/internal/domain"
)

// DevicesRepository 设备Repository接口
type DevicesRepository interface {
	// ListEnabledDevices 查询网关下启用、未删除的设备
	ListEnabledDevices(ctx context.Context, tenantID, gatewayID string) ([]*domain.Device, error)

	// ListDevicesByGateway 查询网关下所有未删除的设备（含禁用，供自动发现自愈）
	ListDevicesByGateway(ctx context.Context, tenantID, gatewayID string) ([]*domain.Device, error)

	// CreateDevice 创建设备（自动发现模式首次见到网关数据时）
	CreateDevice(ctx context.Context, device *domain.Device) error

	// EnableDevice 重新启用已禁用的设备（自愈，不创建重复设备）
	EnableDevice(ctx context.Context, tenantID, deviceID string) error

	// UpdateDeviceLastReported 刷新设备最后上报时间
	UpdateDeviceLastReported(ctx context.Context, tenantID, deviceID string, reportedAt time.Time) error
}
