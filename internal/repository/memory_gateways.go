package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"iot-collector/internal/domain"
)

// MemoryGatewaysRepo 内存网关Repository（单元测试和无DB开发模式用）
type MemoryGatewaysRepo struct {
	mu       sync.RWMutex
	gateways map[string]*domain.Gateway // tenantID+"/"+gatewayID -> Gateway
}

func NewMemoryGatewaysRepo() *MemoryGatewaysRepo {
	return &MemoryGatewaysRepo{
		gateways: map[string]*domain.Gateway{},
	}
}

// AddGateway 预置一个网关（测试播种用）
func (r *MemoryGatewaysRepo) AddGateway(g *domain.Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.gateways[g.TenantID+"/"+g.GatewayID] = &cp
}

func (r *MemoryGatewaysRepo) ListEnabledAllTenants(_ context.Context) ([]*domain.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Gateway
	for _, g := range r.gateways {
		if !g.Enabled {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sortGateways(out)
	return out, nil
}

func (r *MemoryGatewaysRepo) ListAllTenants(_ context.Context) ([]*domain.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Gateway
	for _, g := range r.gateways {
		cp := *g
		out = append(out, &cp)
	}
	sortGateways(out)
	return out, nil
}

func (r *MemoryGatewaysRepo) GetGateway(_ context.Context, tenantID, gatewayID string) (*domain.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[tenantID+"/"+gatewayID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *MemoryGatewaysRepo) UpdateGatewayStatus(_ context.Context, tenantID, gatewayID string, status domain.GatewayStatus, connectedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.gateways[tenantID+"/"+gatewayID]
	if !ok {
		return nil
	}
	g.Status = status
	if connectedAt != nil {
		t := *connectedAt
		g.LastConnectedAt = &t
	}
	return nil
}

func sortGateways(gs []*domain.Gateway) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].TenantID != gs[j].TenantID {
			return gs[i].TenantID < gs[j].TenantID
		}
		return gs[i].GatewayID < gs[j].GatewayID
	})
}
