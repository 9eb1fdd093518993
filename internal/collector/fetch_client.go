package collector

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"iot-collector/internal/config"
	"iot-collector/internal/domain"
)

// FetchClient 手动模式协议适配器：每设备每次采集发一个 HTTP 请求，
// 把响应 JSON 映射为数据点值。配置缺失或请求失败返回空结果，不报错。
type FetchClient interface {
	Fetch(ctx context.Context, gateway *domain.Gateway, device *domain.Device, dataPoints []*domain.DataPoint) []domain.CollectedValue
}

// 支持的拉取方法。Pull 是部分厂家网关使用的非标准动词，原样发送。
const (
	methodGet    = "GET"
	methodPost   = "POST"
	methodPut    = "PUT"
	methodPatch  = "PATCH"
	methodDelete = "DELETE"
	methodPull   = "PULL"
)

var deviceIDPlaceholder = regexp.MustCompile(`(?i)\{deviceId\}`)

// fetchOptions 单次拉取的生效配置（网关级覆盖全局级）
type fetchOptions struct {
	urlTemplate    string
	method         string
	query          map[string]string
	headers        map[string]string
	bodyTemplate   string
	requestTimeout time.Duration
	retryCount     int
	retryDelay     time.Duration
}

// HTTPFetchClient 基于 resty 的 HTTP 拉取客户端
type HTTPFetchClient struct {
	cfg    *config.HTTPFetchConfig
	client *resty.Client
	logger *zap.Logger
}

func NewHTTPFetchClient(cfg *config.HTTPFetchConfig, logger *zap.Logger) *HTTPFetchClient {
	return &HTTPFetchClient{
		cfg:    cfg,
		client: resty.New(),
		logger: logger,
	}
}

func (c *HTTPFetchClient) Fetch(ctx context.Context, gateway *domain.Gateway, device *domain.Device, dataPoints []*domain.DataPoint) []domain.CollectedValue {
	opts := c.buildOptions(gateway, device)
	if opts == nil {
		return nil
	}

	// 传输层错误只对幂等方法重试；非 2xx 和 JSON 解析失败对本次采集是终态
	retries := 0
	if shouldRetry(opts.method) {
		retries = opts.retryCount
	}

	for attempt := 0; attempt <= retries; attempt++ {
		values, err := c.doFetch(ctx, opts, device, dataPoints)
		if err == nil {
			return values
		}
		if ctx.Err() != nil {
			// 取消立刻放弃，不重试
			return nil
		}
		if attempt >= retries {
			c.logger.Error("HTTP fetch failed",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			return nil
		}
		c.logger.Warn("HTTP fetch retry",
			zap.String("device_id", device.DeviceID),
			zap.Int("attempt", attempt+1),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.retryDelay):
		}
	}
	return nil
}

// doFetch 单次请求。返回 error 表示可重试的传输层失败；
// 非 2xx / 无法解析的响应返回 (nil, nil)，按零产出处理。
func (c *HTTPFetchClient) doFetch(ctx context.Context, opts *fetchOptions, device *domain.Device, dataPoints []*domain.DataPoint) ([]domain.CollectedValue, error) {
	reqCtx, cancel := context.WithTimeout(ctx, opts.requestTimeout)
	defer cancel()

	url := substitute(opts.urlTemplate, device.DeviceID)
	req := c.client.R().SetContext(reqCtx)

	for k, v := range opts.query {
		req.SetQueryParam(k, substitute(v, device.DeviceID))
	}
	for k, v := range opts.headers {
		req.SetHeader(k, substitute(v, device.DeviceID))
	}
	if opts.method != methodGet && opts.bodyTemplate != "" {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(substitute(opts.bodyTemplate, device.DeviceID))
	}

	resp, err := req.Execute(opts.method, url)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		c.logger.Warn("HTTP fetch returned non-success status",
			zap.String("device_id", device.DeviceID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, nil
	}

	payload, err := parsePayload(resp.Body())
	if err != nil {
		c.logger.Error("Failed to parse fetch response",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return nil, nil
	}

	return mapToDataPoints(payload, dataPoints), nil
}

// mapToDataPoints 响应键先按数据点ID、再按名称精确匹配
func mapToDataPoints(payload map[string]PayloadValue, dataPoints []*domain.DataPoint) []domain.CollectedValue {
	now := time.Now().UTC()
	var out []domain.CollectedValue
	for _, dp := range dataPoints {
		pv, ok := payload[dp.DataPointID]
		if !ok {
			pv, ok = payload[dp.Name]
		}
		if !ok {
			continue
		}
		reportedAt := now
		out = append(out, domain.CollectedValue{
			DataPointID: dp.DataPointID,
			Value:       pv.String(),
			ReportedAt:  &reportedAt,
		})
	}
	return out
}

// buildOptions 生效配置：HTTP 协议网关用网关自带配置（URL 缺失直接放弃），
// 其它情况回退到全局拉取配置；全局未启用或无 URL 模板返回 nil。
func (c *HTTPFetchClient) buildOptions(gateway *domain.Gateway, device *domain.Device) *fetchOptions {
	if gateway != nil && strings.EqualFold(gateway.ProtocolType, domain.ProtocolHTTP) {
		opts := &fetchOptions{
			method:         methodGet,
			requestTimeout: 30 * time.Second,
			retryCount:     1,
			retryDelay:     500 * time.Millisecond,
		}
		opts.urlTemplate = strings.TrimSpace(gateway.ConfigValue("urlTemplate"))
		if opts.urlTemplate == "" {
			opts.urlTemplate = strings.TrimSpace(gateway.Address)
		}
		if opts.urlTemplate == "" {
			c.logger.Warn("Gateway has HTTP protocol but no URL configured",
				zap.String("gateway_id", gateway.GatewayID),
			)
			return nil
		}
		if m, ok := parseMethod(gateway.ConfigValue("httpMethod")); ok {
			opts.method = m
		}
		if v := gateway.ConfigValue("requestTimeoutSeconds"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				opts.requestTimeout = time.Duration(n) * time.Second
			}
		}
		if v := gateway.ConfigValue("retryCount"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				opts.retryCount = n
			}
		}
		return opts
	}

	if !c.cfg.Enabled || c.cfg.URLTemplate == "" {
		c.logger.Warn("Device has no valid HTTP fetch configuration",
			zap.String("device_id", device.DeviceID),
		)
		return nil
	}

	timeout := c.cfg.RequestTimeoutSeconds
	if timeout < 1 {
		timeout = 1
	}
	delay := c.cfg.RetryDelayMs
	if delay < 0 {
		delay = 0
	}
	method := methodGet
	if m, ok := parseMethod(c.cfg.Method); ok {
		method = m
	}
	opts := &fetchOptions{
		urlTemplate:    c.cfg.URLTemplate,
		method:         method,
		query:          c.cfg.Query,
		headers:        c.cfg.Headers,
		bodyTemplate:   c.cfg.BodyTemplate,
		requestTimeout: time.Duration(timeout) * time.Second,
		retryCount:     c.cfg.RetryCount,
		retryDelay:     time.Duration(delay) * time.Millisecond,
	}
	return opts
}

func parseMethod(raw string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case methodGet:
		return methodGet, true
	case methodPost:
		return methodPost, true
	case methodPut:
		return methodPut, true
	case methodPatch:
		return methodPatch, true
	case methodDelete:
		return methodDelete, true
	case methodPull:
		return methodPull, true
	default:
		return "", false
	}
}

// 约定俗成的幂等方法才重试；Post/Patch 不重试
func shouldRetry(method string) bool {
	switch method {
	case methodGet, methodPut, methodDelete, methodPull:
		return true
	default:
		return false
	}
}

func substitute(template, deviceID string) string {
	return deviceIDPlaceholder.ReplaceAllLiteralString(template, deviceID)
}
