package repository

import (
	"context"
	"time"

	"iot-collector/internal/domain"
)

// DataRecordsRepository 时序数据记录Repository接口
// 记录只追加：引擎在插入前用 CountRecords 做 (设备, 数据点, 上报时间)
// 三元组去重，命中即跳过，从不覆盖已有读数。
type DataRecordsRepository interface {
	// CountRecords 统计租户内同键记录数（去重检查）
	CountRecords(ctx context.Context, tenantID, deviceID, dataPointID string, reportedAt time.Time) (int, error)

	// CreateRecord 插入一条时序记录
	CreateRecord(ctx context.Context, record *domain.DataRecord) error
}
