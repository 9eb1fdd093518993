package domain

import "time"

// DeviceType 设备类型
type DeviceType string

const (
	DeviceTypeSensor   DeviceType = "Sensor"
	DeviceTypeActuator DeviceType = "Actuator"
	DeviceTypeGateway  DeviceType = "Gateway"
	DeviceTypeOther    DeviceType = "Other"
)

// Device 设备领域模型（对应 iot_devices 表）
// 手动模式下由外部 CRUD 维护；自动发现模式下由采集引擎在网关
// 首次返回数据时创建或复活。
type Device struct {
	DeviceID       string     `db:"device_id"`
	TenantID       string     `db:"tenant_id"`
	GatewayID      string     `db:"gateway_id"`
	Name           string     `db:"name"`
	Title          string     `db:"title"`
	DeviceType     DeviceType `db:"device_type"`
	Enabled        bool       `db:"is_enabled"`
	LastReportedAt *time.Time `db:"last_reported_at"`
}
