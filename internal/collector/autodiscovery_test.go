package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"iot-collector/internal/domain"
	"iot-collector/internal/repository"
)

type autoFixture struct {
	devices    *repository.MemoryDevicesRepo
	dataPoints *repository.MemoryDataPointsRepo
	records    *repository.MemoryDataRecordsRepo
	collector  *AutoDiscoveryCollector
}

func newAutoFixture() *autoFixture {
	devices := repository.NewMemoryDevicesRepo()
	dataPoints := repository.NewMemoryDataPointsRepo()
	records := repository.NewMemoryDataRecordsRepo()
	return &autoFixture{
		devices:    devices,
		dataPoints: dataPoints,
		records:    records,
		collector:  NewAutoDiscoveryCollector(devices, dataPoints, records, nil, zap.NewNop()),
	}
}

func httpGateway(address string) *domain.Gateway {
	return &domain.Gateway{
		GatewayID:    "gw-1",
		TenantID:     "tenant-1",
		Name:         "env-gw",
		Title:        "环境网关",
		ProtocolType: "HTTP",
		Address:      address,
		Enabled:      true,
	}
}

func TestCollectGatewayData_DiscoversDataPointsAndInsertsRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"temp": 21.5, "online": true, "label": "ok"}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	gw := httpGateway(server.URL)

	result, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.DataPointsFound)
	assert.Equal(t, 3, result.RecordsInserted)
	assert.Equal(t, 0, result.RecordsSkipped)
	assert.Empty(t, result.Warning)

	// 默认设备已自动创建并启用
	devices, err := f.devices.ListEnabledDevices(context.Background(), "tenant-1", "gw-1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "环境网关_设备", devices[0].Name)
	assert.NotNil(t, devices[0].LastReportedAt)

	// 数据点按采样值推断类型，默认 60 秒间隔、只读、启用
	dps, err := f.dataPoints.ListEnabledDataPoints(context.Background(), "tenant-1", devices[0].DeviceID)
	require.NoError(t, err)
	require.Len(t, dps, 3)

	byName := map[string]*domain.DataPoint{}
	for _, dp := range dps {
		byName[dp.Name] = dp
		assert.Equal(t, 60, dp.SamplingInterval)
		assert.True(t, dp.ReadOnly)
		assert.True(t, dp.Enabled)
		assert.NotNil(t, dp.LastUpdatedAt)
	}
	assert.Equal(t, domain.DataTypeNumeric, byName["temp"].DataType)
	assert.Equal(t, domain.DataTypeBoolean, byName["online"].DataType)
	assert.Equal(t, domain.DataTypeString, byName["label"].DataType)
	assert.Equal(t, "21.5", byName["temp"].LastValue)

	records := f.records.Records()
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, "tenant-1", rec.TenantID)
		assert.Equal(t, devices[0].DeviceID, rec.DeviceID)
	}
}

func TestCollectGatewayData_SamplingIntervalGatesSecondRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temp": 21.5}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	gw := httpGateway(server.URL)

	first, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.Equal(t, 1, first.RecordsInserted)

	// 数据点 60 秒内再次采集被间隔门控跳过
	second, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.RecordsInserted)
	assert.Equal(t, 1, second.RecordsSkipped)
	assert.Len(t, f.records.Records(), 1)
}

func TestCollectGatewayData_ReEnablesDisabledDevice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temp": 1}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	f.devices.AddDevice(&domain.Device{
		DeviceID:  "dev-old",
		TenantID:  "tenant-1",
		GatewayID: "gw-1",
		Name:      "old-device",
		Enabled:   false,
	})
	gw := httpGateway(server.URL)

	result, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// 复用并重新启用既有设备，而不是另建默认设备
	device := f.devices.GetDevice("tenant-1", "dev-old")
	require.NotNil(t, device)
	assert.True(t, device.Enabled)

	all, err := f.devices.ListDevicesByGateway(context.Background(), "tenant-1", "gw-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCollectGatewayData_DisabledDataPointNotRecreated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temp": 21.5}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	f.devices.AddDevice(&domain.Device{
		DeviceID:  "dev-1",
		TenantID:  "tenant-1",
		GatewayID: "gw-1",
		Name:      "sensor",
		Enabled:   true,
	})
	// 用户显式禁用的数据点
	f.dataPoints.AddDataPoint(&domain.DataPoint{
		DataPointID:      "dp-temp",
		TenantID:         "tenant-1",
		DeviceID:         "dev-1",
		Name:             "temp",
		DataType:         domain.DataTypeNumeric,
		SamplingInterval: 60,
		Enabled:          false,
	})
	gw := httpGateway(server.URL)

	result, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// 禁用的数据点命中档案但不落库，也绝不另建同名启用档案
	assert.Equal(t, 0, result.RecordsInserted)
	assert.Equal(t, 1, result.RecordsSkipped)
	assert.Empty(t, f.records.Records())

	all, err := f.dataPoints.ListDataPointsByDevice(context.Background(), "tenant-1", "dev-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "dp-temp", all[0].DataPointID)
	assert.False(t, all[0].Enabled)
}

func TestCollectGatewayData_TouchesAbsentDataPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temp": 21.5}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	f.devices.AddDevice(&domain.Device{
		DeviceID:  "dev-1",
		TenantID:  "tenant-1",
		GatewayID: "gw-1",
		Name:      "sensor",
		Enabled:   true,
	})
	stale := time.Now().UTC().Add(-time.Hour)
	f.dataPoints.AddDataPoint(&domain.DataPoint{
		DataPointID:      "dp-hum",
		TenantID:         "tenant-1",
		DeviceID:         "dev-1",
		Name:             "humidity",
		DataType:         domain.DataTypeNumeric,
		SamplingInterval: 60,
		Enabled:          true,
		LastUpdatedAt:    &stale,
	})
	gw := httpGateway(server.URL)

	_, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)

	// 响应缺席的数据点时间戳被推进，避免后续轮次永远判定到期
	dp := f.dataPoints.GetDataPoint("tenant-1", "dp-hum")
	require.NotNil(t, dp)
	require.NotNil(t, dp.LastUpdatedAt)
	assert.True(t, dp.LastUpdatedAt.After(stale))
	// 但不产生记录
	for _, rec := range f.records.Records() {
		assert.NotEqual(t, "dp-hum", rec.DataPointID)
	}
}

func TestCollectGatewayData_URLTemplateOverridesAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temp": 1}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	// Address 留空，urlTemplate 配置生效
	gw := httpGateway("")
	gw.Config = map[string]string{"urlTemplate": server.URL}

	result, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RecordsInserted)
}

func TestCollectGatewayData_ForwardsConfiguredHeaders(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Token")
		w.Write([]byte(`{"temp": 1}`))
	}))
	defer server.Close()

	f := newAutoFixture()
	gw := httpGateway(server.URL)
	gw.Config = map[string]string{"headers": `{"X-Token": "secret"}`}

	_, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotToken)
}

func TestCollectGatewayData_PreconditionWarnings(t *testing.T) {
	f := newAutoFixture()

	disabled := httpGateway("http://example.local")
	disabled.Enabled = false
	result, err := f.collector.CollectGatewayData(context.Background(), disabled)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "网关未启用", result.Warning)

	nonHTTP := httpGateway("modbus.local:502")
	nonHTTP.ProtocolType = "Modbus"
	result, err = f.collector.CollectGatewayData(context.Background(), nonHTTP)
	require.NoError(t, err)
	assert.Equal(t, "网关协议不是HTTP", result.Warning)

	noAddr := httpGateway("  ")
	result, err = f.collector.CollectGatewayData(context.Background(), noAddr)
	require.NoError(t, err)
	assert.Equal(t, "网关未配置HTTP地址", result.Warning)
}

func TestCollectGatewayData_BadResponseIsSoftFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newAutoFixture()
	gw := httpGateway(server.URL)

	result, err := f.collector.CollectGatewayData(context.Background(), gw)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "HTTP请求未返回数据", result.Warning)
	assert.Empty(t, f.records.Records())
}
