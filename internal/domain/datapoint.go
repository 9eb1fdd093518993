package domain

import "time"

// DataPointType 数据点值类型
type DataPointType string

const (
	DataTypeNumeric DataPointType = "Numeric"
	DataTypeBoolean DataPointType = "Boolean"
	DataTypeString  DataPointType = "String"
	DataTypeJSON    DataPointType = "Json"
)

// 告警类型：高阈值 / 低阈值 / 区间阈值
const (
	AlarmHighThreshold  = "HighThreshold"
	AlarmLowThreshold   = "LowThreshold"
	AlarmRangeThreshold = "RangeThreshold"
)

// AlarmConfig 数据点告警阈值配置
type AlarmConfig struct {
	Enabled   bool    `json:"enabled"`
	AlarmType string  `json:"alarmType"` // HighThreshold / LowThreshold / RangeThreshold
	Threshold float64 `json:"threshold"`
	Level     string  `json:"level"` // Info / Warning / Error / Critical
	Message   string  `json:"message,omitempty"`
}

// DataPoint 数据点领域模型（对应 iot_data_points 表）
// 自动发现模式下按响应 JSON 键自动创建，类型由采样值推断。
type DataPoint struct {
	DataPointID      string        `db:"data_point_id"`
	TenantID         string        `db:"tenant_id"`
	DeviceID         string        `db:"device_id"`
	Name             string        `db:"name"`
	Title            string        `db:"title"`
	DataType         DataPointType `db:"data_type"`
	SamplingInterval int           `db:"sampling_interval"` // 秒
	ReadOnly         bool          `db:"is_read_only"`
	Enabled          bool          `db:"is_enabled"`
	LastValue        string        `db:"last_value"`
	LastUpdatedAt    *time.Time    `db:"last_updated_at"`
	AlarmConfig      *AlarmConfig  `db:"alarm_config"` // JSONB
}

// DueAt 按采样间隔判断该数据点在 now 时刻是否需要采集。
// 从未采集过的数据点总是需要采集。
func (dp *DataPoint) DueAt(now time.Time) bool {
	if dp.LastUpdatedAt == nil {
		return true
	}
	return now.Sub(*dp.LastUpdatedAt) >= time.Duration(dp.SamplingInterval)*time.Second
}
