package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"iot-collector/internal/domain"
	"iot-collector/internal/repository"
	"iot-collector/internal/stream"
)

// Dispatcher 按网关协议分流：HTTP 网关走自动发现采集，
// 其余网关走逐设备的手动采集管道。
type Dispatcher struct {
	gateways   repository.GatewaysRepository
	devices    repository.DevicesRepository
	dataPoints repository.DataPointsRepository
	fetch      FetchClient
	auto       *AutoDiscoveryCollector
	writer     *recordWriter
	logger     *zap.Logger
}

func NewDispatcher(
	gateways repository.GatewaysRepository,
	devices repository.DevicesRepository,
	dataPoints repository.DataPointsRepository,
	records repository.DataRecordsRepository,
	fetch FetchClient,
	auto *AutoDiscoveryCollector,
	publisher stream.RecordPublisher,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		gateways:   gateways,
		devices:    devices,
		dataPoints: dataPoints,
		fetch:      fetch,
		auto:       auto,
		writer:     newRecordWriter(dataPoints, records, publisher, logger),
		logger:     logger,
	}
}

// ProcessGateway 处理单个网关。出错时仍返回已累计的部分结果。
func (d *Dispatcher) ProcessGateway(ctx context.Context, gw *domain.Gateway) (*GatewayResult, error) {
	if strings.EqualFold(gw.ProtocolType, domain.ProtocolHTTP) {
		return d.processAutoGateway(ctx, gw)
	}
	return d.processManualGateway(ctx, gw)
}

func (d *Dispatcher) processAutoGateway(ctx context.Context, gw *domain.Gateway) (*GatewayResult, error) {
	result := &GatewayResult{}
	auto, err := d.auto.CollectGatewayData(ctx, gw)
	if auto != nil {
		if auto.Success {
			result.DevicesProcessed = 1
		}
		result.DataPointsProcessed = auto.DataPointsFound
		result.RecordsInserted = auto.RecordsInserted
		result.RecordsSkipped = auto.RecordsSkipped
		if auto.Warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("网关 %s: %s", gw.Name, auto.Warning))
		}
	}
	return result, err
}

func (d *Dispatcher) processManualGateway(ctx context.Context, gw *domain.Gateway) (*GatewayResult, error) {
	result := &GatewayResult{}

	devices, err := d.devices.ListEnabledDevices(ctx, gw.TenantID, gw.GatewayID)
	if err != nil {
		return result, fmt.Errorf("list enabled devices: %w", err)
	}
	if len(devices) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("网关 %s 下无启用设备", gw.Name))
		return result, nil
	}

	for _, device := range devices {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		dr, err := d.processDevice(ctx, device)
		result.DevicesProcessed++
		result.DataPointsProcessed += dr.dataPointsProcessed
		result.RecordsInserted += dr.recordsInserted
		result.RecordsSkipped += dr.recordsSkipped
		if dr.warning != "" {
			result.Warnings = append(result.Warnings, dr.warning)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// processDevice 手动模式的单设备采集：拉取网关、校验配置、
// 拉取数据、按数据点匹配后逐条写入。
func (d *Dispatcher) processDevice(ctx context.Context, device *domain.Device) (deviceResult, error) {
	var result deviceResult

	if device.TenantID == "" {
		result.warning = fmt.Sprintf("设备 %s 缺少租户信息，已跳过", device.Name)
		return result, nil
	}
	if device.GatewayID == "" {
		result.warning = fmt.Sprintf("设备 %s 未关联网关，已跳过", device.Name)
		return result, nil
	}

	gw, err := d.gateways.GetGateway(ctx, device.TenantID, device.GatewayID)
	if err != nil {
		return result, fmt.Errorf("get gateway %s: %w", device.GatewayID, err)
	}
	if gw == nil {
		result.warning = fmt.Sprintf("设备 %s 关联的网关不存在，已跳过", device.Name)
		return result, nil
	}

	dataPoints, err := d.dataPoints.ListEnabledDataPoints(ctx, device.TenantID, device.DeviceID)
	if err != nil {
		return result, fmt.Errorf("list data points for device %s: %w", device.DeviceID, err)
	}
	if len(dataPoints) == 0 {
		result.warning = fmt.Sprintf("设备 %s 未配置可用数据点，已跳过", device.Name)
		return result, nil
	}
	result.dataPointsProcessed = len(dataPoints)

	values := d.fetch.Fetch(ctx, gw, device, dataPoints)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if len(values) == 0 {
		result.warning = fmt.Sprintf("设备 %s 未返回任何采集数据", device.Name)
		return result, nil
	}

	byID := make(map[string]*domain.DataPoint, len(dataPoints))
	for _, dp := range dataPoints {
		byID[dp.DataPointID] = dp
	}

	now := time.Now().UTC()
	inserted := 0
	var lastReported time.Time

	for _, v := range values {
		dp := byID[v.DataPointID]
		if dp == nil {
			result.recordsSkipped++
			continue
		}

		reportedAt := now
		if v.ReportedAt != nil {
			reportedAt = v.ReportedAt.UTC()
		}

		isAlarm, alarmLevel := evaluateAlarm(dp, v.Value, v.IsAlarm, v.AlarmLevel)
		record := newRecord(device, dp, v.Value, reportedAt, isAlarm, alarmLevel, v.Remarks)
		ok, err := d.writer.writeRecord(ctx, record)
		if err != nil {
			return result, fmt.Errorf("write record for data point %s: %w", dp.DataPointID, err)
		}
		if ok {
			result.recordsInserted++
			inserted++
			if reportedAt.After(lastReported) {
				lastReported = reportedAt
			}
		} else {
			result.recordsSkipped++
		}
	}

	if inserted > 0 {
		if err := d.devices.UpdateDeviceLastReported(ctx, device.TenantID, device.DeviceID, lastReported); err != nil {
			d.logger.Warn("Failed to update device last reported time",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}
