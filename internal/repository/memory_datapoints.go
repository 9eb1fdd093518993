package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"iot-collector/internal/domain"
)

// MemoryDataPointsRepo 内存数据点Repository（单元测试和无DB开发模式用）
type MemoryDataPointsRepo struct {
	mu     sync.RWMutex
	points map[string]*domain.DataPoint // tenantID+"/"+dataPointID -> DataPoint
}

func NewMemoryDataPointsRepo() *MemoryDataPointsRepo {
	return &MemoryDataPointsRepo{
		points: map[string]*domain.DataPoint{},
	}
}

// AddDataPoint 预置一个数据点（测试播种用）
func (r *MemoryDataPointsRepo) AddDataPoint(dp *domain.DataPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := clonePoint(dp)
	r.points[dp.TenantID+"/"+dp.DataPointID] = cp
}

// GetDataPoint 按租户+数据点ID读取（测试断言用），不存在返回 nil
func (r *MemoryDataPointsRepo) GetDataPoint(tenantID, dataPointID string) *domain.DataPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dp, ok := r.points[tenantID+"/"+dataPointID]
	if !ok {
		return nil
	}
	return clonePoint(dp)
}

func (r *MemoryDataPointsRepo) ListEnabledDataPoints(_ context.Context, tenantID, deviceID string) ([]*domain.DataPoint, error) {
	return r.list(tenantID, deviceID, true), nil
}

func (r *MemoryDataPointsRepo) ListDataPointsByDevice(_ context.Context, tenantID, deviceID string) ([]*domain.DataPoint, error) {
	return r.list(tenantID, deviceID, false), nil
}

func (r *MemoryDataPointsRepo) list(tenantID, deviceID string, enabledOnly bool) []*domain.DataPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.DataPoint
	for _, dp := range r.points {
		if dp.TenantID != tenantID || dp.DeviceID != deviceID {
			continue
		}
		if enabledOnly && !dp.Enabled {
			continue
		}
		out = append(out, clonePoint(dp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *MemoryDataPointsRepo) CreateDataPoint(_ context.Context, dp *domain.DataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points[dp.TenantID+"/"+dp.DataPointID] = clonePoint(dp)
	return nil
}

func (r *MemoryDataPointsRepo) UpdateDataPointLastValue(_ context.Context, tenantID, dataPointID, value string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dp, ok := r.points[tenantID+"/"+dataPointID]; ok {
		dp.LastValue = value
		t := updatedAt
		dp.LastUpdatedAt = &t
	}
	return nil
}

func (r *MemoryDataPointsRepo) TouchDataPointUpdatedAt(_ context.Context, tenantID, dataPointID string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dp, ok := r.points[tenantID+"/"+dataPointID]; ok {
		t := updatedAt
		dp.LastUpdatedAt = &t
	}
	return nil
}

func clonePoint(dp *domain.DataPoint) *domain.DataPoint {
	cp := *dp
	if dp.AlarmConfig != nil {
		ac := *dp.AlarmConfig
		cp.AlarmConfig = &ac
	}
	if dp.LastUpdatedAt != nil {
		t := *dp.LastUpdatedAt
		cp.LastUpdatedAt = &t
	}
	return &cp
}
