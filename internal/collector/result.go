package collector

// CollectionResult 一次采集（tick）的汇总结果
type CollectionResult struct {
	DevicesProcessed    int
	DataPointsProcessed int
	RecordsInserted     int
	RecordsSkipped      int
	Warnings            []string
}

// GatewayResult 单个网关的处理结果
type GatewayResult struct {
	DevicesProcessed    int
	DataPointsProcessed int
	RecordsInserted     int
	RecordsSkipped      int
	Warnings            []string
}

// AutoCollectResult 自动发现模式下单个网关的采集结果。
// Success 表示 HTTP 拉取拿到了数据，与多少记录真正新增无关。
type AutoCollectResult struct {
	Success         bool
	DataPointsFound int
	RecordsInserted int
	RecordsSkipped  int
	Warning         string
}

// deviceResult 手动模式单设备处理结果
type deviceResult struct {
	dataPointsProcessed int
	recordsInserted     int
	recordsSkipped      int
	warning             string
}
