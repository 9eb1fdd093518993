package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"iot-collector/internal/domain"
)

// MemoryDevicesRepo 内存设备Repository（单元测试和无DB开发模式用）
type MemoryDevicesRepo struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device // tenantID+"/"+deviceID -> Device
}

func NewMemoryDevicesRepo() *MemoryDevicesRepo {
	return &MemoryDevicesRepo{
		devices: map[string]*domain.Device{},
	}
}

// AddDevice 预置一个设备（测试播种用）
func (r *MemoryDevicesRepo) AddDevice(d *domain.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.devices[d.TenantID+"/"+d.DeviceID] = &cp
}

// GetDevice 按租户+设备ID读取（测试断言用），不存在返回 nil
func (r *MemoryDevicesRepo) GetDevice(tenantID, deviceID string) *domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[tenantID+"/"+deviceID]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (r *MemoryDevicesRepo) ListEnabledDevices(_ context.Context, tenantID, gatewayID string) ([]*domain.Device, error) {
	return r.list(tenantID, gatewayID, true), nil
}

func (r *MemoryDevicesRepo) ListDevicesByGateway(_ context.Context, tenantID, gatewayID string) ([]*domain.Device, error) {
	return r.list(tenantID, gatewayID, false), nil
}

func (r *MemoryDevicesRepo) list(tenantID, gatewayID string, enabledOnly bool) []*domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Device
	for _, d := range r.devices {
		if d.TenantID != tenantID || d.GatewayID != gatewayID {
			continue
		}
		if enabledOnly && !d.Enabled {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (r *MemoryDevicesRepo) CreateDevice(_ context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *device
	r.devices[device.TenantID+"/"+device.DeviceID] = &cp
	return nil
}

func (r *MemoryDevicesRepo) EnableDevice(_ context.Context, tenantID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[tenantID+"/"+deviceID]; ok {
		d.Enabled = true
	}
	return nil
}

func (r *MemoryDevicesRepo) UpdateDeviceLastReported(_ context.Context, tenantID, deviceID string, reportedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[tenantID+"/"+deviceID]; ok {
		t := reportedAt
		d.LastReportedAt = &t
	}
	return nil
}
