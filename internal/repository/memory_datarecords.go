package repository

import (
	"context"
	"sync"
	"time"

	"iot-collector/internal/domain"
)

// MemoryDataRecordsRepo 内存时序记录Repository（单元测试和无DB开发模式用）
type MemoryDataRecordsRepo struct {
	mu      sync.RWMutex
	records []*domain.DataRecord
}

func NewMemoryDataRecordsRepo() *MemoryDataRecordsRepo {
	return &MemoryDataRecordsRepo{}
}

func (r *MemoryDataRecordsRepo) CountRecords(_ context.Context, tenantID, deviceID, dataPointID string, reportedAt time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.TenantID == tenantID &&
			rec.DeviceID == deviceID &&
			rec.DataPointID == dataPointID &&
			rec.ReportedAt.Equal(reportedAt) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryDataRecordsRepo) CreateRecord(_ context.Context, record *domain.DataRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

// Records 返回当前全部记录的副本（测试断言用）
func (r *MemoryDataRecordsRepo) Records() []*domain.DataRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.DataRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// RecordsForTenant 返回指定租户的记录副本（测试断言用）
func (r *MemoryDataRecordsRepo) RecordsForTenant(tenantID string) []*domain.DataRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.DataRecord
	for _, rec := range r.records {
		if rec.TenantID != tenantID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out
}
