package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CollectionConfig 采集引擎配置
type CollectionConfig struct {
	Enabled                 bool   // 全局开关，关闭时 RunOnce 直接返回零结果
	TimeoutSeconds          int    // 单次采集（tick）整体超时
	MaxDegreeOfParallelism  int    // 网关级并发上限
	CollectIntervalSeconds  int    // 调度器两次采集之间的间隔
	RecordStream            string // 新记录发布的 Redis Stream，空则不发布
}

// HTTPFetchConfig 手动模式 HTTP 拉取策略（全局默认，网关配置可覆盖）
type HTTPFetchConfig struct {
	Enabled               bool
	URLTemplate           string            // 支持 {deviceId} 占位符
	Method                string            // GET/POST/PUT/PATCH/DELETE/PULL，默认 GET
	Query                 map[string]string // 追加到 URL 的查询参数
	Headers               map[string]string
	BodyTemplate          string // GET 时忽略
	RequestTimeoutSeconds int
	RetryCount            int
	RetryDelayMs          int
}

// StatusCheckConfig 网关在线状态检测配置
type StatusCheckConfig struct {
	Enabled            bool
	PingTimeoutSeconds int
	IntervalSeconds    int
}

// Config 服务配置
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Collection  CollectionConfig
	HTTPFetch   HTTPFetchConfig
	StatusCheck StatusCheckConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "iot")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Collection.Enabled = getEnvBool("COLLECT_ENABLED", true)
	cfg.Collection.TimeoutSeconds = getEnvInt("COLLECT_TIMEOUT_SECONDS", 120)
	cfg.Collection.MaxDegreeOfParallelism = getEnvInt("COLLECT_MAX_PARALLELISM", 4)
	cfg.Collection.CollectIntervalSeconds = getEnvInt("COLLECT_INTERVAL_SECONDS", 60)
	cfg.Collection.RecordStream = getEnv("COLLECT_RECORD_STREAM", "iot:records:stream")

	cfg.HTTPFetch.Enabled = getEnvBool("FETCH_ENABLED", false)
	cfg.HTTPFetch.URLTemplate = getEnv("FETCH_URL_TEMPLATE", "")
	cfg.HTTPFetch.Method = getEnv("FETCH_METHOD", "GET")
	cfg.HTTPFetch.BodyTemplate = getEnv("FETCH_BODY_TEMPLATE", "")
	cfg.HTTPFetch.RequestTimeoutSeconds = getEnvInt("FETCH_TIMEOUT_SECONDS", 30)
	cfg.HTTPFetch.RetryCount = getEnvInt("FETCH_RETRY_COUNT", 1)
	cfg.HTTPFetch.RetryDelayMs = getEnvInt("FETCH_RETRY_DELAY_MS", 500)

	var err error
	if cfg.HTTPFetch.Query, err = getEnvJSONMap("FETCH_QUERY"); err != nil {
		return nil, fmt.Errorf("invalid FETCH_QUERY: %w", err)
	}
	if cfg.HTTPFetch.Headers, err = getEnvJSONMap("FETCH_HEADERS"); err != nil {
		return nil, fmt.Errorf("invalid FETCH_HEADERS: %w", err)
	}

	cfg.StatusCheck.Enabled = getEnvBool("STATUS_CHECK_ENABLED", true)
	cfg.StatusCheck.PingTimeoutSeconds = getEnvInt("STATUS_PING_TIMEOUT_SECONDS", 5)
	cfg.StatusCheck.IntervalSeconds = getEnvInt("STATUS_CHECK_INTERVAL_SECONDS", 300)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvJSONMap 解析 JSON 对象格式的环境变量（如 {"X-Token":"abc"}）
func getEnvJSONMap(key string) (map[string]string, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil, err
	}
	return m, nil
}
