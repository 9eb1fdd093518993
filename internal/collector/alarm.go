package collector

import (
	"strconv"

	"iot-collector/internal/domain"
)

// evaluateAlarm 告警判定。
// 数据源自带的告警标志原样采信；否则按数据点阈值配置对数值判定，
// 非数值永远不是告警。RangeThreshold 的上界是阈值的两倍，
// 与存量数据保持一致，不要"修正"。
func evaluateAlarm(dp *domain.DataPoint, value string, sourceIsAlarm *bool, sourceLevel string) (bool, string) {
	if sourceIsAlarm != nil {
		return *sourceIsAlarm, sourceLevel
	}

	cfg := dp.AlarmConfig
	if cfg == nil || !cfg.Enabled {
		return false, ""
	}

	numeric, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false, ""
	}

	switch cfg.AlarmType {
	case domain.AlarmHighThreshold:
		return numeric > cfg.Threshold, cfg.Level
	case domain.AlarmLowThreshold:
		return numeric < cfg.Threshold, cfg.Level
	case domain.AlarmRangeThreshold:
		return numeric < cfg.Threshold || numeric > cfg.Threshold*2, cfg.Level
	default:
		return false, ""
	}
}
