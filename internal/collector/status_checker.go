package collector

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"iot-collector/internal/config"
	"iot-collector/internal/domain"
	"iot-collector/internal/repository"
)

// StatusChecker 网关在线状态巡检。HTTP 网关用 GET 探活，
// 其它协议只做 TCP 连通性检测。
type StatusChecker struct {
	cfg      *config.StatusCheckConfig
	gateways repository.GatewaysRepository
	http     *resty.Client
	logger   *zap.Logger
}

func NewStatusChecker(cfg *config.StatusCheckConfig, gateways repository.GatewaysRepository, logger *zap.Logger) *StatusChecker {
	timeout := time.Duration(cfg.PingTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatusChecker{
		cfg:      cfg,
		gateways: gateways,
		http:     resty.New().SetTimeout(timeout),
		logger:   logger,
	}
}

// CheckAndUpdateStatuses 巡检全部租户的网关并回写状态变化
func (c *StatusChecker) CheckAndUpdateStatuses(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	gateways, err := c.gateways.ListAllTenants(ctx)
	if err != nil {
		return err
	}

	for _, gw := range gateways {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.TrimSpace(gw.Address) == "" {
			c.logger.Debug("Gateway has no address, skipping status check",
				zap.String("gateway_id", gw.GatewayID),
			)
			continue
		}

		online := c.probe(ctx, gw)

		status := domain.GatewayStatusOffline
		var connectedAt *time.Time
		if online {
			status = domain.GatewayStatusOnline
			now := time.Now().UTC()
			connectedAt = &now
		}
		if gw.Status == status {
			continue
		}

		if err := c.gateways.UpdateGatewayStatus(ctx, gw.TenantID, gw.GatewayID, status, connectedAt); err != nil {
			c.logger.Error("Failed to update gateway status",
				zap.String("gateway_id", gw.GatewayID),
				zap.Error(err),
			)
			continue
		}
		c.logger.Info("Gateway status changed",
			zap.String("gateway_id", gw.GatewayID),
			zap.String("status", string(status)),
		)
	}
	return nil
}

func (c *StatusChecker) probe(ctx context.Context, gw *domain.Gateway) bool {
	if strings.EqualFold(gw.ProtocolType, domain.ProtocolHTTP) {
		url := gw.Address
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "http://" + url
		}
		resp, err := c.http.R().SetContext(ctx).Get(url)
		return err == nil && resp.IsSuccess()
	}

	host, port := parseAddress(gw.Address)
	if host == "" {
		return false
	}
	timeout := time.Duration(c.cfg.PingTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// parseAddress 把各种写法的地址归一成 host 和 port。
// 支持 http/https/tcp/mqtt 前缀和 host:port 形式，https 默认 443，其它默认 80。
func parseAddress(address string) (string, int) {
	addr := strings.TrimSpace(address)
	defaultPort := 80
	for _, scheme := range []string{"https://", "http://", "tcp://", "mqtt://"} {
		if strings.HasPrefix(addr, scheme) {
			if scheme == "https://" {
				defaultPort = 443
			}
			addr = strings.TrimPrefix(addr, scheme)
			break
		}
	}
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}
	if addr == "" {
		return "", 0
	}

	if host, portStr, err := net.SplitHostPort(addr); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			return host, port
		}
		return host, defaultPort
	}
	return addr, defaultPort
}
