package stream

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"iot-collector/internal/domain"
)

// RecordPublisher 新时序记录的下游广播端口。
// 发布失败由调用方记日志，不影响采集计数。
type RecordPublisher interface {
	PublishRecord(ctx context.Context, record *domain.DataRecord) error
}

// RedisRecordPublisher 把新记录以 XADD 发布到 Redis Streams，
// 供下游转换/告警服务按消费组读取。
type RedisRecordPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisRecordPublisher(client *redis.Client, stream string) *RedisRecordPublisher {
	return &RedisRecordPublisher{client: client, stream: stream}
}

func (p *RedisRecordPublisher) PublishRecord(ctx context.Context, record *domain.DataRecord) error {
	values := map[string]interface{}{
		"record_id":     record.RecordID,
		"tenant_id":     record.TenantID,
		"device_id":     record.DeviceID,
		"data_point_id": record.DataPointID,
		"value":         record.Value,
		"data_type":     string(record.DataType),
		"reported_at":   record.ReportedAt.UTC().Format(time.RFC3339Nano),
		"is_alarm":      strconv.FormatBool(record.IsAlarm),
	}
	if record.AlarmLevel != "" {
		values["alarm_level"] = record.AlarmLevel
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err()
}

// NoopRecordPublisher 未配置输出流时的空实现
type NoopRecordPublisher struct{}

func (NoopRecordPublisher) PublishRecord(context.Context, *domain.DataRecord) error {
	return nil
}

// NewRedisClient 创建Redis客户端
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
