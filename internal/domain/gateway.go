package domain

import "time"

// ProtocolHTTP 自描述网关协议类型（走自动发现采集）
const ProtocolHTTP = "HTTP"

// GatewayStatus 网关在线状态
type GatewayStatus string

const (
	GatewayStatusOffline GatewayStatus = "offline"
	GatewayStatusOnline  GatewayStatus = "online"
)

// Gateway 网关领域模型（对应 iot_gateways 表）
// Config 为自由键值配置，采集引擎识别 urlTemplate/httpMethod/headers/
// requestTimeoutSeconds/retryCount 等键；Address 为旧版地址字段，
// urlTemplate 缺失时作为 URL 回退。
type Gateway struct {
	GatewayID       string            `db:"gateway_id"`
	TenantID        string            `db:"tenant_id"`
	Name            string            `db:"name"`
	Title           string            `db:"title"`
	ProtocolType    string            `db:"protocol_type"` // HTTP、MQTT、Modbus 等
	Address         string            `db:"address"`
	Enabled         bool              `db:"is_enabled"`
	Status          GatewayStatus     `db:"status"`
	LastConnectedAt *time.Time        `db:"last_connected_at"`
	Config          map[string]string `db:"config"` // JSONB
}

// ConfigValue 读取网关配置键，缺失或空白返回 ""
func (g *Gateway) ConfigValue(key string) string {
	if g.Config == nil {
		return ""
	}
	return g.Config[key]
}
