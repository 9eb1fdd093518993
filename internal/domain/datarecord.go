package domain

import "time"

// DataRecord 时序数据记录（对应 iot_data_records 表，只追加不修改）
// 同一租户内 (DeviceID, DataPointID, ReportedAt) 三元组唯一，
// 重复采集到的读数跳过而不是覆盖。
type DataRecord struct {
	RecordID         string        `db:"record_id"`
	TenantID         string        `db:"tenant_id"`
	DeviceID         string        `db:"device_id"`
	DataPointID      string        `db:"data_point_id"`
	Value            string        `db:"value"` // 字符串编码值
	DataType         DataPointType `db:"data_type"`
	SamplingInterval int           `db:"sampling_interval"`
	ReportedAt       time.Time     `db:"reported_at"`
	IsAlarm          bool          `db:"is_alarm"`
	AlarmLevel       string        `db:"alarm_level"`
	Remarks          string        `db:"remarks"`
}

// CollectedValue 采集客户端返回的瞬态值，不落库，
// 立即被消费用于构建 DataRecord。
type CollectedValue struct {
	DataPointID string
	Value       string
	ReportedAt  *time.Time
	IsAlarm     *bool // 数据源自带告警标志时优先于阈值判断
	AlarmLevel  string
	Remarks     string
}
