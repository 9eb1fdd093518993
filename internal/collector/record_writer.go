package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"iot-collector/internal/domain"
	"iot-collector/internal/repository"
	"iot-collector/internal/stream"
)

// recordWriter 两种采集模式共用的落库逻辑：
// 去重检查 → 插入记录 → 刷新数据点最新值 → 下游广播。
// 引擎只追加，(设备, 数据点, 上报时间) 命中即跳过。
type recordWriter struct {
	dataPoints repository.DataPointsRepository
	records    repository.DataRecordsRepository
	publisher  stream.RecordPublisher
	logger     *zap.Logger
}

func newRecordWriter(
	dataPoints repository.DataPointsRepository,
	records repository.DataRecordsRepository,
	publisher stream.RecordPublisher,
	logger *zap.Logger,
) *recordWriter {
	if publisher == nil {
		publisher = stream.NoopRecordPublisher{}
	}
	return &recordWriter{
		dataPoints: dataPoints,
		records:    records,
		publisher:  publisher,
		logger:     logger,
	}
}

// writeRecord 写入一条记录，返回是否真正新增。
// 重复键返回 (false, nil)；存储错误原样上抛由调用方聚合。
func (w *recordWriter) writeRecord(ctx context.Context, record *domain.DataRecord) (bool, error) {
	n, err := w.records.CountRecords(ctx, record.TenantID, record.DeviceID, record.DataPointID, record.ReportedAt)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	if err := w.records.CreateRecord(ctx, record); err != nil {
		return false, err
	}

	if err := w.dataPoints.UpdateDataPointLastValue(ctx, record.TenantID, record.DataPointID, record.Value, record.ReportedAt); err != nil {
		return true, err
	}

	// 广播失败只记日志，不影响采集计数
	if err := w.publisher.PublishRecord(ctx, record); err != nil {
		w.logger.Warn("Failed to publish record to stream",
			zap.String("record_id", record.RecordID),
			zap.String("data_point_id", record.DataPointID),
			zap.Error(err),
		)
	}

	return true, nil
}

// newRecord 构建一条时序记录
func newRecord(device *domain.Device, dp *domain.DataPoint, value string, reportedAt time.Time, isAlarm bool, alarmLevel, remarks string) *domain.DataRecord {
	return &domain.DataRecord{
		RecordID:         uuid.NewString(),
		TenantID:         device.TenantID,
		DeviceID:         device.DeviceID,
		DataPointID:      dp.DataPointID,
		Value:            value,
		DataType:         dp.DataType,
		SamplingInterval: dp.SamplingInterval,
		ReportedAt:       reportedAt,
		IsAlarm:          isAlarm,
		AlarmLevel:       alarmLevel,
		Remarks:          remarks,
	}
}
