package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"iot-collector/internal/domain"
	"iot-collector/internal/repository"
	"iot-collector/internal/stream"
)

// AutoDiscoveryCollector HTTP 网关的自动发现采集：
// 每个网关每轮只发一个请求，响应里出现的新字段自动建为数据点。
type AutoDiscoveryCollector struct {
	devices    repository.DevicesRepository
	dataPoints repository.DataPointsRepository
	writer     *recordWriter
	http       *resty.Client
	logger     *zap.Logger
}

func NewAutoDiscoveryCollector(
	devices repository.DevicesRepository,
	dataPoints repository.DataPointsRepository,
	records repository.DataRecordsRepository,
	publisher stream.RecordPublisher,
	logger *zap.Logger,
) *AutoDiscoveryCollector {
	return &AutoDiscoveryCollector{
		devices:    devices,
		dataPoints: dataPoints,
		writer:     newRecordWriter(dataPoints, records, publisher, logger),
		http:       resty.New().SetTimeout(30 * time.Second),
		logger:     logger,
	}
}

// CollectGatewayData 对单个 HTTP 网关执行一轮采集。
// 前置条件不满足时以 Warning 形式返回，不算错误。
func (c *AutoDiscoveryCollector) CollectGatewayData(ctx context.Context, gw *domain.Gateway) (*AutoCollectResult, error) {
	result := &AutoCollectResult{}

	if !gw.Enabled {
		result.Warning = "网关未启用"
		return result, nil
	}
	if !strings.EqualFold(gw.ProtocolType, domain.ProtocolHTTP) {
		result.Warning = "网关协议不是HTTP"
		return result, nil
	}
	url := strings.TrimSpace(gw.ConfigValue("urlTemplate"))
	if url == "" {
		url = strings.TrimSpace(gw.Address)
	}
	if url == "" {
		result.Warning = "网关未配置HTTP地址"
		return result, nil
	}

	device, err := c.getOrCreateDefaultDevice(ctx, gw)
	if err != nil {
		return result, fmt.Errorf("get or create default device: %w", err)
	}

	payload, warning, err := c.fetchPayload(ctx, gw, url)
	if err != nil {
		return result, err
	}
	if warning != "" {
		result.Warning = warning
		return result, nil
	}
	result.Success = true

	// 对全部未删除数据点做档案匹配，禁用的数据点不能被当成
	// 未知键重建，否则 Enabled 开关形同虚设
	existing, err := c.dataPoints.ListDataPointsByDevice(ctx, gw.TenantID, device.DeviceID)
	if err != nil {
		return result, fmt.Errorf("list data points: %w", err)
	}
	byID := make(map[string]*domain.DataPoint, len(existing))
	byName := make(map[string]*domain.DataPoint, len(existing))
	for _, dp := range existing {
		byID[dp.DataPointID] = dp
		byName[strings.ToLower(dp.Name)] = dp
	}

	reportedAt := time.Now().UTC()
	matched := make(map[string]bool, len(existing))
	inserted := 0

	for key, pv := range payload {
		dp := byID[key]
		if dp == nil {
			dp = byName[strings.ToLower(key)]
		}
		if dp == nil {
			dp, err = c.createDataPoint(ctx, gw.TenantID, device.DeviceID, key, pv)
			if err != nil {
				c.logger.Error("Failed to auto-create data point",
					zap.String("gateway_id", gw.GatewayID),
					zap.String("key", key),
					zap.Error(err),
				)
				continue
			}
			byID[dp.DataPointID] = dp
			byName[strings.ToLower(dp.Name)] = dp
		}
		matched[dp.DataPointID] = true

		// 只写启用的数据点
		if !dp.Enabled {
			result.RecordsSkipped++
			continue
		}
		if !dp.DueAt(reportedAt) {
			result.RecordsSkipped++
			continue
		}

		isAlarm, alarmLevel := evaluateAlarm(dp, pv.String(), nil, "")
		record := newRecord(device, dp, pv.String(), reportedAt, isAlarm, alarmLevel, "")
		ok, err := c.writer.writeRecord(ctx, record)
		if err != nil {
			c.logger.Error("Failed to write record",
				zap.String("device_id", device.DeviceID),
				zap.String("data_point_id", dp.DataPointID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			result.RecordsInserted++
			inserted++
		} else {
			result.RecordsSkipped++
		}
	}

	result.DataPointsFound = len(byID)

	// 响应中缺席的启用数据点推进其更新时间，避免采样间隔门控永远判定到期
	for _, dp := range existing {
		if matched[dp.DataPointID] || !dp.Enabled {
			continue
		}
		if err := c.dataPoints.TouchDataPointUpdatedAt(ctx, gw.TenantID, dp.DataPointID, reportedAt); err != nil {
			c.logger.Warn("Failed to touch data point timestamp",
				zap.String("data_point_id", dp.DataPointID),
				zap.Error(err),
			)
		}
	}

	if inserted > 0 {
		if err := c.devices.UpdateDeviceLastReported(ctx, gw.TenantID, device.DeviceID, reportedAt); err != nil {
			c.logger.Warn("Failed to update device last reported time",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// getOrCreateDefaultDevice 网关下优先取启用设备；有禁用设备则重新启用；
// 一台都没有时建默认设备。
func (c *AutoDiscoveryCollector) getOrCreateDefaultDevice(ctx context.Context, gw *domain.Gateway) (*domain.Device, error) {
	enabled, err := c.devices.ListEnabledDevices(ctx, gw.TenantID, gw.GatewayID)
	if err != nil {
		return nil, err
	}
	if len(enabled) > 0 {
		return enabled[0], nil
	}

	all, err := c.devices.ListDevicesByGateway(ctx, gw.TenantID, gw.GatewayID)
	if err != nil {
		return nil, err
	}
	if len(all) > 0 {
		device := all[0]
		if err := c.devices.EnableDevice(ctx, gw.TenantID, device.DeviceID); err != nil {
			return nil, err
		}
		device.Enabled = true
		c.logger.Info("Re-enabled existing device for gateway",
			zap.String("gateway_id", gw.GatewayID),
			zap.String("device_id", device.DeviceID),
		)
		return device, nil
	}

	device := &domain.Device{
		DeviceID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		TenantID:   gw.TenantID,
		GatewayID:  gw.GatewayID,
		Name:       gw.Title + "_设备",
		Title:      gw.Title + " - 默认设备",
		DeviceType: domain.DeviceTypeSensor,
		Enabled:    true,
	}
	if err := c.devices.CreateDevice(ctx, device); err != nil {
		return nil, err
	}
	c.logger.Info("Created default device for gateway",
		zap.String("gateway_id", gw.GatewayID),
		zap.String("device_id", device.DeviceID),
	)
	return device, nil
}

// fetchPayload 向网关地址发一次请求。失败返回警告文案而非错误。
func (c *AutoDiscoveryCollector) fetchPayload(ctx context.Context, gw *domain.Gateway, url string) (map[string]PayloadValue, string, error) {
	method := methodGet
	if m, ok := parseMethod(gw.ConfigValue("httpMethod")); ok {
		method = m
	}

	req := c.http.R().SetContext(ctx)
	if raw := gw.ConfigValue("headers"); raw != "" {
		headers := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &headers); err == nil {
			req.SetHeaders(headers)
		}
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		c.logger.Warn("Gateway request failed",
			zap.String("gateway_id", gw.GatewayID),
			zap.Error(err),
		)
		return nil, "HTTP请求未返回数据", nil
	}
	if !resp.IsSuccess() {
		c.logger.Warn("Gateway returned non-success status",
			zap.String("gateway_id", gw.GatewayID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, "HTTP请求未返回数据", nil
	}

	payload, err := parsePayload(resp.Body())
	if err != nil {
		c.logger.Warn("Gateway response is not a JSON object",
			zap.String("gateway_id", gw.GatewayID),
			zap.Error(err),
		)
		return nil, "HTTP请求未返回数据", nil
	}
	return payload, "", nil
}

func (c *AutoDiscoveryCollector) createDataPoint(ctx context.Context, tenantID, deviceID, key string, pv PayloadValue) (*domain.DataPoint, error) {
	dp := &domain.DataPoint{
		DataPointID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		TenantID:         tenantID,
		DeviceID:         deviceID,
		Name:             key,
		Title:            key,
		DataType:         pv.DataType(),
		SamplingInterval: 60,
		ReadOnly:         true,
		Enabled:          true,
	}
	if err := c.dataPoints.CreateDataPoint(ctx, dp); err != nil {
		return nil, err
	}
	c.logger.Info("Auto-created data point",
		zap.String("device_id", deviceID),
		zap.String("name", key),
		zap.String("data_type", string(dp.DataType)),
	)
	return dp, nil
}
