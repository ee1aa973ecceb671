package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lineflow/scheduler/internal/domain"
)

// MemoryGateway is an in-process Gateway backed by maps, used by the
// package tests (gateway, orchestrator, factoryevent). It implements the same interface a production Postgres/Redis-backed Gateway
// does, so the Orchestrator cannot tell them apart.
type MemoryGateway struct {
	mu sync.RWMutex

	salesOrders map[string]domain.SalesOrder
	products    map[string]domain.Product
	pos         map[string]*domain.ProductionOrder
	nextPOID    int
}

// NewMemoryGateway builds an empty in-memory Gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		salesOrders: make(map[string]domain.SalesOrder),
		products:    make(map[string]domain.Product),
		pos:         make(map[string]*domain.ProductionOrder),
	}
}

// SeedSalesOrder installs a sales order directly, for test setup.
func (g *MemoryGateway) SeedSalesOrder(so domain.SalesOrder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.salesOrders[so.ID] = so
}

// SeedProduct installs a product directly, for test setup.
func (g *MemoryGateway) SeedProduct(p domain.Product) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.products[p.ID] = p
}

func (g *MemoryGateway) ListSalesOrders(ctx context.Context, status domain.SalesOrderStatus) ([]domain.SalesOrder, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.SalesOrder, 0, len(g.salesOrders))
	for _, so := range g.salesOrders {
		if so.Status == status {
			out = append(out, so)
		}
	}
	return out, nil
}

func (g *MemoryGateway) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("gateway: unknown product %s", productID)
	}
	return p, nil
}

func (g *MemoryGateway) UpdateSalesOrder(ctx context.Context, id string, update SalesOrderUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	so, ok := g.salesOrders[id]
	if !ok {
		return fmt.Errorf("gateway: unknown sales order %s", id)
	}
	if update.Priority != nil {
		so.Priority = *update.Priority
	}
	if update.Quantity != nil {
		so.Quantity = *update.Quantity
	}
	if update.Notes != nil {
		so.Notes = *update.Notes
	}
	if update.Status != nil {
		so.Status = *update.Status
	}
	g.salesOrders[id] = so
	return nil
}

func (g *MemoryGateway) CreateProductionOrder(ctx context.Context, po NewProductionOrder) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextPOID++
	id := fmt.Sprintf("PO-%04d", g.nextPOID)
	g.pos[id] = &domain.ProductionOrder{
		ID:           id,
		SalesOrderID: po.SalesOrderID,
		ProductID:    po.ProductID,
		Quantity:     po.Quantity,
		PlannedStart: po.StartsAt,
		PlannedEnd:   po.EndsAt,
		Status:       domain.ProductionOrderDraft,
	}
	return id, nil
}

func (g *MemoryGateway) ScheduleProductionOrder(ctx context.Context, poID string) ([]domain.ProductionPhase, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	po, ok := g.pos[poID]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown production order %s", poID)
	}
	product, ok := g.products[po.ProductID]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown product %s for PO %s", po.ProductID, poID)
	}
	phases := make([]domain.ProductionPhase, len(product.BOM))
	for i, bom := range product.BOM {
		phases[i] = domain.ProductionPhase{
			ID:       fmt.Sprintf("%s-phase-%d", poID, i),
			Type:     bom.Type,
			Sequence: i,
			Status:   domain.PhaseNotReady,
		}
	}
	po.Phases = phases
	po.Status = domain.ProductionOrderScheduled
	return append([]domain.ProductionPhase(nil), phases...), nil
}

func (g *MemoryGateway) UpdatePhaseWindow(ctx context.Context, phaseID string, startsAt, endsAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, po := range g.pos {
		for i := range po.Phases {
			if po.Phases[i].ID == phaseID {
				po.Phases[i].PlannedStart = startsAt
				po.Phases[i].PlannedEnd = endsAt
				return nil
			}
		}
	}
	return fmt.Errorf("gateway: unknown phase %s", phaseID)
}

func (g *MemoryGateway) UpdatePOWindow(ctx context.Context, poID string, startsAt, endsAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	po, ok := g.pos[poID]
	if !ok {
		return fmt.Errorf("gateway: unknown production order %s", poID)
	}
	po.PlannedStart = startsAt
	po.PlannedEnd = endsAt
	return nil
}

func (g *MemoryGateway) ConfirmProductionOrder(ctx context.Context, poID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	po, ok := g.pos[poID]
	if !ok {
		return fmt.Errorf("gateway: unknown production order %s", poID)
	}
	po.Status = domain.ProductionOrderReady
	return nil
}

func (g *MemoryGateway) DeleteProductionOrder(ctx context.Context, poID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pos, poID)
	return nil
}

func (g *MemoryGateway) GetProductionOrder(ctx context.Context, poID string) (domain.ProductionOrder, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	po, ok := g.pos[poID]
	if !ok {
		return domain.ProductionOrder{}, fmt.Errorf("gateway: unknown production order %s", poID)
	}
	return *po, nil
}

func (g *MemoryGateway) ListProductionOrders(ctx context.Context, statuses ...domain.ProductionOrderStatus) ([]domain.ProductionOrder, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	want := make(map[domain.ProductionOrderStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	out := make([]domain.ProductionOrder, 0, len(g.pos))
	for _, po := range g.pos {
		if len(want) == 0 || want[po.Status] {
			out = append(out, *po)
		}
	}
	return out, nil
}
