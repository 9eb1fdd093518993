package collector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"iot-collector/internal/config"
	"iot-collector/internal/domain"
)

// fakeTransport 记录请求并按预设响应，用于验证重试和请求构造
type fakeTransport struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	failErr  error
	status   int
	body     string
}

func (t *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	t.requests = append(t.requests, req.Clone(context.Background()))
	t.bodies = append(t.bodies, body)

	if t.failErr != nil {
		return nil, t.failErr
	}
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

func (t *fakeTransport) attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func newTestFetchClient(cfg *config.HTTPFetchConfig, transport *fakeTransport) *HTTPFetchClient {
	c := NewHTTPFetchClient(cfg, zap.NewNop())
	c.client.SetTransport(transport)
	return c
}

func fetchFixture() (*domain.Gateway, *domain.Device, []*domain.DataPoint) {
	gw := &domain.Gateway{
		GatewayID:    "gw-1",
		TenantID:     "tenant-1",
		Name:         "modbus-gw",
		ProtocolType: "Modbus",
	}
	device := &domain.Device{
		DeviceID: "dev-1",
		TenantID: "tenant-1",
		Name:     "pump",
	}
	dataPoints := []*domain.DataPoint{
		{DataPointID: "dp-temp", Name: "temperature", DataType: domain.DataTypeNumeric},
		{DataPointID: "dp-state", Name: "state", DataType: domain.DataTypeString},
	}
	return gw, device, dataPoints
}

func TestFetch_MapsResponseToDataPoints(t *testing.T) {
	transport := &fakeTransport{body: `{"dp-temp": 21.5, "state": "running", "extra": 1}`}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/devices/{deviceId}",
		RequestTimeoutSeconds: 5,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	// dp-temp 按数据点ID命中，state 按名称命中，extra 无匹配被忽略
	require.Len(t, values, 2)
	byID := map[string]domain.CollectedValue{}
	for _, v := range values {
		byID[v.DataPointID] = v
	}
	assert.Equal(t, "21.5", byID["dp-temp"].Value)
	assert.Equal(t, "running", byID["dp-state"].Value)
	assert.NotNil(t, byID["dp-temp"].ReportedAt)

	require.Equal(t, 1, transport.attempts())
	assert.Equal(t, "http://gateway.local/devices/dev-1", transport.requests[0].URL.String())
}

func TestFetch_DeviceIDPlaceholderCaseInsensitive(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/{DEVICEID}/data",
		Query:                 map[string]string{"id": "{deviceid}"},
		Headers:               map[string]string{"X-Device": "{DeviceId}"},
		RequestTimeoutSeconds: 5,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	client.Fetch(context.Background(), gw, device, dataPoints)

	require.Equal(t, 1, transport.attempts())
	req := transport.requests[0]
	assert.Equal(t, "/dev-1/data", req.URL.Path)
	assert.Equal(t, "dev-1", req.URL.Query().Get("id"))
	assert.Equal(t, "dev-1", req.Header.Get("X-Device"))
}

func TestFetch_RetriesTransportErrorsForGet(t *testing.T) {
	transport := &fakeTransport{failErr: errors.New("connection refused")}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/data",
		RequestTimeoutSeconds: 5,
		RetryCount:            2,
		RetryDelayMs:          1,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	assert.Nil(t, values)
	assert.Equal(t, 3, transport.attempts())
}

func TestFetch_NoRetryForPost(t *testing.T) {
	transport := &fakeTransport{failErr: errors.New("connection refused")}
	gw, device, dataPoints := fetchFixture()
	gw.ProtocolType = "HTTP"
	gw.Config = map[string]string{"httpMethod": "POST", "retryCount": "5"}
	gw.Address = "http://gateway.local/data"

	client := newTestFetchClient(&config.HTTPFetchConfig{}, transport)
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	assert.Nil(t, values)
	assert.Equal(t, 1, transport.attempts())
}

func TestFetch_NonSuccessStatusIsTerminal(t *testing.T) {
	transport := &fakeTransport{status: http.StatusBadGateway, body: `{}`}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/data",
		RequestTimeoutSeconds: 5,
		RetryCount:            3,
		RetryDelayMs:          1,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	// 非 2xx 是终态，不消耗重试
	assert.Empty(t, values)
	assert.Equal(t, 1, transport.attempts())
}

func TestFetch_BodyOmittedForGet(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/data",
		BodyTemplate:          `{"device": "{deviceId}"}`,
		RequestTimeoutSeconds: 5,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	client.Fetch(context.Background(), gw, device, dataPoints)

	require.Equal(t, 1, transport.attempts())
	assert.Empty(t, transport.bodies[0])
}

func TestFetch_BodySentForPut(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	gw, device, dataPoints := fetchFixture()
	gw.ProtocolType = "HTTP"
	gw.Address = "http://gateway.local/data"
	gw.Config = map[string]string{"httpMethod": "PUT"}

	client := newTestFetchClient(&config.HTTPFetchConfig{}, transport)
	client.Fetch(context.Background(), gw, device, dataPoints)

	require.Equal(t, 1, transport.attempts())
	assert.Equal(t, "PUT", transport.requests[0].Method)
}

func TestFetch_GlobalMethodPostSendsBodyWithoutRetry(t *testing.T) {
	transport := &fakeTransport{failErr: errors.New("connection refused")}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/data",
		Method:                "post",
		BodyTemplate:          `{"device": "{deviceId}"}`,
		RequestTimeoutSeconds: 5,
		RetryCount:            3,
		RetryDelayMs:          1,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	// POST 不消耗重试次数，body 模板随请求发送并完成占位符替换
	assert.Nil(t, values)
	require.Equal(t, 1, transport.attempts())
	assert.Equal(t, "POST", transport.requests[0].Method)
	assert.Equal(t, `{"device": "dev-1"}`, transport.bodies[0])
	assert.Equal(t, "application/json", transport.requests[0].Header.Get("Content-Type"))
}

func TestFetch_GlobalInvalidMethodFallsBackToGet(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:               true,
		URLTemplate:           "http://gateway.local/data",
		Method:                "TELEPORT",
		RequestTimeoutSeconds: 5,
	}, transport)

	gw, device, dataPoints := fetchFixture()
	client.Fetch(context.Background(), gw, device, dataPoints)

	require.Equal(t, 1, transport.attempts())
	assert.Equal(t, "GET", transport.requests[0].Method)
}

func TestFetch_PullMethodSentVerbatim(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	gw, device, dataPoints := fetchFixture()
	gw.ProtocolType = "HTTP"
	gw.Address = "http://gateway.local/data"
	gw.Config = map[string]string{"httpMethod": "pull"}

	client := newTestFetchClient(&config.HTTPFetchConfig{}, transport)
	client.Fetch(context.Background(), gw, device, dataPoints)

	require.Equal(t, 1, transport.attempts())
	assert.Equal(t, "PULL", transport.requests[0].Method)
}

func TestFetch_MissingConfigurationYieldsNothing(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	client := newTestFetchClient(&config.HTTPFetchConfig{Enabled: false}, transport)

	gw, device, dataPoints := fetchFixture()
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	assert.Nil(t, values)
	assert.Equal(t, 0, transport.attempts())
}

func TestFetch_GatewayBlankURLTemplateFallsBackToAddress(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	gw, device, dataPoints := fetchFixture()
	gw.ProtocolType = "HTTP"
	gw.Address = "http://gateway.local/devices/{deviceId}"
	gw.Config = map[string]string{"urlTemplate": "   "}

	client := newTestFetchClient(&config.HTTPFetchConfig{}, transport)
	client.Fetch(context.Background(), gw, device, dataPoints)

	// 空白的 urlTemplate 不压过有效的 Address
	require.Equal(t, 1, transport.attempts())
	assert.Equal(t, "http://gateway.local/devices/dev-1", transport.requests[0].URL.String())
}

func TestFetch_HTTPGatewayWithoutURLYieldsNothing(t *testing.T) {
	transport := &fakeTransport{body: `{"temperature": 1}`}
	gw, device, dataPoints := fetchFixture()
	gw.ProtocolType = "HTTP"
	gw.Address = ""

	// HTTP 网关缺 URL 时不回退到全局模板
	client := newTestFetchClient(&config.HTTPFetchConfig{
		Enabled:     true,
		URLTemplate: "http://fallback.local/data",
	}, transport)
	values := client.Fetch(context.Background(), gw, device, dataPoints)

	assert.Nil(t, values)
	assert.Equal(t, 0, transport.attempts())
}
