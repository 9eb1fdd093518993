package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"iot-collector/internal/config"
	"iot-collector/internal/domain"
	"iot-collector/internal/repository"
)

// GatewayProcessor 单网关处理入口
type GatewayProcessor interface {
	ProcessGateway(ctx context.Context, gw *domain.Gateway) (*GatewayResult, error)
}

// Runner 一次采集 tick 的编排：跨租户发现启用网关、按租户分组、
// 并发处理并汇总结果。单个网关失败只降级为警告。
type Runner struct {
	cfg        *config.CollectionConfig
	gateways   repository.GatewaysRepository
	dispatcher GatewayProcessor
	logger     *zap.Logger
}

func NewRunner(cfg *config.CollectionConfig, gateways repository.GatewaysRepository, dispatcher GatewayProcessor, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		gateways:   gateways,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RunOnce 执行一轮采集。只有网关发现本身失败才返回错误。
func (r *Runner) RunOnce(ctx context.Context) (*CollectionResult, error) {
	result := &CollectionResult{}
	if !r.cfg.Enabled {
		return result, nil
	}

	timeout := time.Duration(r.cfg.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	gateways, err := r.gateways.ListEnabledAllTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled gateways: %w", err)
	}
	if len(gateways) == 0 {
		return result, nil
	}

	// 租户为空的网关一律丢弃，避免数据落错租户
	byTenant := make(map[string][]*domain.Gateway)
	dropped := 0
	for _, gw := range gateways {
		if gw.TenantID == "" {
			dropped++
			continue
		}
		byTenant[gw.TenantID] = append(byTenant[gw.TenantID], gw)
	}
	if dropped > 0 {
		r.logger.Info("Dropped gateways without tenant",
			zap.Int("count", dropped),
		)
	}

	parallelism := r.cfg.MaxDegreeOfParallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for tenantID, tenantGateways := range byTenant {
		for _, gw := range tenantGateways {
			wg.Add(1)
			go func(tenantID string, gw *domain.Gateway) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}

				gr, err := r.processGateway(ctx, gw)

				mu.Lock()
				defer mu.Unlock()
				if gr != nil {
					result.DevicesProcessed += gr.DevicesProcessed
					result.DataPointsProcessed += gr.DataPointsProcessed
					result.RecordsInserted += gr.RecordsInserted
					result.RecordsSkipped += gr.RecordsSkipped
					result.Warnings = append(result.Warnings, gr.Warnings...)
				}
				if err != nil {
					// 取消不算故障，静默吞掉
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					result.Warnings = append(result.Warnings, fmt.Sprintf("网关 %s (租户 %s) 采集失败: %v", gw.Name, tenantID, err))
				}
			}(tenantID, gw)
		}
	}

	wg.Wait()
	return result, nil
}

// processGateway 包住单网关处理，panic 转为错误，不拖垮整轮采集
func (r *Runner) processGateway(ctx context.Context, gw *domain.Gateway) (gr *GatewayResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.dispatcher.ProcessGateway(ctx, gw)
}
