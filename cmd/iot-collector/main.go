package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"iot-collector/internal/config"
	"iot-collector/internal/logger"
	"iot-collector/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "iot-collector")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting iot-collector service",
		zap.String("db_host", cfg.Database.Host),
		zap.String("record_stream", cfg.Collection.RecordStream),
		zap.Int("collect_interval_seconds", cfg.Collection.CollectIntervalSeconds),
	)

	// 创建服务
	collectorService, err := service.NewCollectorService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create collector service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := collectorService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start collector service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := collectorService.Stop(ctx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
