package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"iot-collector/internal/collector"
	"iot-collector/internal/config"
	"iot-collector/internal/database"
	"iot-collector/internal/repository"
	"iot-collector/internal/stream"
)

// CollectorService 采集服务：定时执行采集轮次，并周期巡检网关状态
type CollectorService struct {
	config  *config.Config
	logger  *zap.Logger
	db      *sql.DB
	redis   *redis.Client
	runner  *collector.Runner
	checker *collector.StatusChecker
}

// NewCollectorService 创建采集服务
func NewCollectorService(cfg *config.Config, logger *zap.Logger) (*CollectorService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis。未配置输出流或连接失败时降级为不发布
	var (
		redisClient *redis.Client
		publisher   stream.RecordPublisher = stream.NoopRecordPublisher{}
	)
	if cfg.Collection.RecordStream != "" {
		redisClient = stream.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, record publishing disabled", zap.Error(err))
			redisClient.Close()
			redisClient = nil
		} else {
			publisher = stream.NewRedisRecordPublisher(redisClient, cfg.Collection.RecordStream)
		}
	}

	// 创建Repository
	gatewaysRepo := repository.NewPostgresGatewaysRepo(db, logger)
	devicesRepo := repository.NewPostgresDevicesRepo(db, logger)
	dataPointsRepo := repository.NewPostgresDataPointsRepo(db, logger)
	recordsRepo := repository.NewPostgresDataRecordsRepo(db, logger)

	// 组装采集管道
	fetchClient := collector.NewHTTPFetchClient(&cfg.HTTPFetch, logger)
	auto := collector.NewAutoDiscoveryCollector(devicesRepo, dataPointsRepo, recordsRepo, publisher, logger)
	dispatcher := collector.NewDispatcher(gatewaysRepo, devicesRepo, dataPointsRepo, recordsRepo, fetchClient, auto, publisher, logger)
	runner := collector.NewRunner(&cfg.Collection, gatewaysRepo, dispatcher, logger)
	checker := collector.NewStatusChecker(&cfg.StatusCheck, gatewaysRepo, logger)

	return &CollectorService{
		config:  cfg,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		runner:  runner,
		checker: checker,
	}, nil
}

// Start 启动采集循环，阻塞直到 ctx 取消
func (s *CollectorService) Start(ctx context.Context) error {
	s.logger.Info("Starting collector service",
		zap.Bool("collection_enabled", s.config.Collection.Enabled),
		zap.Int("collect_interval_seconds", s.config.Collection.CollectIntervalSeconds),
		zap.Int("max_parallelism", s.config.Collection.MaxDegreeOfParallelism),
	)

	if s.config.StatusCheck.Enabled {
		go s.statusCheckLoop(ctx)
	}

	interval := time.Duration(s.config.Collection.CollectIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	s.collectOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.collectOnce(ctx)
		}
	}
}

func (s *CollectorService) collectOnce(ctx context.Context) {
	start := time.Now()
	result, err := s.runner.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Collection run failed", zap.Error(err))
		}
		return
	}

	s.logger.Info("Collection run completed",
		zap.Int("devices_processed", result.DevicesProcessed),
		zap.Int("data_points_processed", result.DataPointsProcessed),
		zap.Int("records_inserted", result.RecordsInserted),
		zap.Int("records_skipped", result.RecordsSkipped),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	for _, w := range result.Warnings {
		s.logger.Warn("Collection warning", zap.String("detail", w))
	}
}

func (s *CollectorService) statusCheckLoop(ctx context.Context) {
	interval := time.Duration(s.config.StatusCheck.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checker.CheckAndUpdateStatuses(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Gateway status check failed", zap.Error(err))
			}
		}
	}
}

// Stop 停止服务并释放资源
func (s *CollectorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping collector service")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Error closing redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database", zap.Error(err))
		}
	}

	s.logger.Info("Collector service stopped")
	return nil
}
