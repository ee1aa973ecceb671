// Package gateway defines the External-System Gateway boundary: the thin
// adapter over the manufacturing REST API the core needs (spec.md §6, §4.7
// of SPEC_FULL.md). The interface is intentionally narrow — only the
// operations the Orchestrator, Phase Planner wiring, and Factory Event
// Intake actually call.
package gateway

import (
	"context"
	"time"

	"github.com/lineflow/scheduler/internal/domain"
)

// SalesOrderUpdate is a partial update: nil fields are left untouched.
type SalesOrderUpdate struct {
	Priority *int
	Quantity *int
	Notes    *string
	Status   *domain.SalesOrderStatus
}

// NewProductionOrder is the payload for create_production_order.
type NewProductionOrder struct {
	SalesOrderID string
	ProductID    string
	Quantity     int
	StartsAt     time.Time
	EndsAt       time.Time
}

// Gateway is the set of operations spec.md §6 requires of the Manufacturing
// API adapter.
type Gateway interface {
	ListSalesOrders(ctx context.Context, status domain.SalesOrderStatus) ([]domain.SalesOrder, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	UpdateSalesOrder(ctx context.Context, id string, update SalesOrderUpdate) error

	CreateProductionOrder(ctx context.Context, po NewProductionOrder) (id string, err error)
	ScheduleProductionOrder(ctx context.Context, poID string) ([]domain.ProductionPhase, error)
	UpdatePhaseWindow(ctx context.Context, phaseID string, startsAt, endsAt time.Time) error
	UpdatePOWindow(ctx context.Context, poID string, startsAt, endsAt time.Time) error
	ConfirmProductionOrder(ctx context.Context, poID string) error
	DeleteProductionOrder(ctx context.Context, poID string) error

	// GetProductionOrder is not part of the minimal list in spec.md §6 but
	// is required by the Factory Event Intake to resolve the currently
	// executing PO (spec.md §4.6); every concrete Gateway must serve it from
	// the same system-of-record the other operations write to.
	GetProductionOrder(ctx context.Context, poID string) (domain.ProductionOrder, error)
	ListProductionOrders(ctx context.Context, statuses ...domain.ProductionOrderStatus) ([]domain.ProductionOrder, error)
}
