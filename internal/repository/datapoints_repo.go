package repository

import (
	"context"
	"time"

	"iot-collector/internal/domain"
)

// DataPointsRepository 数据点Repository接口
type DataPointsRepository interface {
	// ListEnabledDataPoints 查询设备下启用、未删除的数据点
	ListEnabledDataPoints(ctx context.Context, tenantID, deviceID string) ([]*domain.DataPoint, error)

	// ListDataPointsByDevice 查询设备下所有未删除的数据点（含禁用，
	// 供自动发现匹配既有档案，避免重建用户禁用的数据点）
	ListDataPointsByDevice(ctx context.Context, tenantID, deviceID string) ([]*domain.DataPoint, error)

	// CreateDataPoint 创建数据点（自动发现模式按响应键自动建档）
	CreateDataPoint(ctx context.Context, dp *domain.DataPoint) error

	// UpdateDataPointLastValue 记录写入后刷新数据点最新值和更新时间
	UpdateDataPointLastValue(ctx context.Context, tenantID, dataPointID, value string, updatedAt time.Time) error

	// TouchDataPointUpdatedAt 只刷新更新时间（响应中缺失的数据点防饥饿）
	TouchDataPointUpdatedAt(ctx context.Context, tenantID, dataPointID string, updatedAt time.Time) error
}
