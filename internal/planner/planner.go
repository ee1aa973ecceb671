// Package planner implements the Phase Planner: it walks a sorted sequence
// of sales orders through a single cursor on the production line, expanding
// each order's BOM into sequential phase windows. Pure — it never writes
// anywhere and never suspends (spec.md §4.3, §5).
package planner

import (
	"fmt"
	"time"

	"github.com/lineflow/scheduler/internal/clock"
	"github.com/lineflow/scheduler/internal/domain"
)

// ProductLookup resolves a product id to its BOM.
type ProductLookup func(productID string) (domain.Product, bool)

// PhaseIDFunc assigns a stable identifier to the k-th phase of an order; the
// default simply derives one from the sales order id and sequence index, but
// callers that materialise phases through a Gateway can inject one that
// reuses the Gateway-assigned id.
type PhaseIDFunc func(salesOrderID string, sequence int) string

func defaultPhaseID(salesOrderID string, sequence int) string {
	return fmt.Sprintf("%s-phase-%d", salesOrderID, sequence)
}

// POIDFunc assigns a stable identifier to the ProductionOrder for a sales
// order; by default it derives one, but Gateway-backed callers inject the
// id returned by create_production_order.
type POIDFunc func(salesOrderID string) string

func defaultPOID(salesOrderID string) string {
	return salesOrderID + "-po"
}

// Options configures a planning pass.
type Options struct {
	PhaseID PhaseIDFunc
	POID    POIDFunc
}

func (o Options) withDefaults() Options {
	if o.PhaseID == nil {
		o.PhaseID = defaultPhaseID
	}
	if o.POID == nil {
		o.POID = defaultPOID
	}
	return o
}

// ErrUnknownProduct is returned when an order references a product the
// lookup cannot resolve; this surfaces as spec.md §7's PlanningError at the
// Orchestrator boundary.
type ErrUnknownProduct struct {
	SalesOrderID string
	ProductID    string
}

func (e ErrUnknownProduct) Error() string {
	return fmt.Sprintf("planner: sales order %s references unknown product %s", e.SalesOrderID, e.ProductID)
}

// Plan walks sortedOrders through the line starting at cursor, producing one
// ScheduleEntry per order and advancing the cursor to the end of the last
// phase planned. It returns the final cursor position alongside the entries
// so callers can chain further planning passes (e.g. appending a
// newly-restarted order after already-planned ones).
func Plan(c *clock.Clock, sortedOrders []domain.SalesOrder, lookup ProductLookup, cursor time.Time, opts Options) ([]domain.ScheduleEntry, time.Time, error) {
	opts = opts.withDefaults()
	cur := c.CeilToShift(cursor)
	entries := make([]domain.ScheduleEntry, 0, len(sortedOrders))

	for _, order := range sortedOrders {
		product, ok := lookup(order.ProductID)
		if !ok {
			return nil, cursor, ErrUnknownProduct{SalesOrderID: order.ID, ProductID: order.ProductID}
		}

		phases := make([]domain.ProductionPhase, 0, len(product.BOM))
		phaseStart := cur
		for i, bomPhase := range product.BOM {
			minutes := bomPhase.DurationPerUnit * order.Quantity
			phaseEnd := c.AddWorkingMinutes(phaseStart, minutes)
			phases = append(phases, domain.ProductionPhase{
				ID:           opts.PhaseID(order.ID, i),
				Type:         bomPhase.Type,
				Sequence:     i,
				PlannedStart: phaseStart,
				PlannedEnd:   phaseEnd,
				Status:       domain.PhaseNotReady,
			})
			phaseStart = phaseEnd
		}

		start := phases[0].PlannedStart
		end := phases[len(phases)-1].PlannedEnd

		entries = append(entries, domain.ScheduleEntry{
			ProductionOrderID: opts.POID(order.ID),
			SalesOrderID:      order.ID,
			Start:             start,
			End:               end,
			Phases:            phases,
			// SlackMinutes/Late are left zero-valued here; the Conflict
			// Analyzer (internal/conflict) computes them against the
			// deadline in a separate pass per spec.md §4.5.
		})

		cur = end
	}

	return entries, cur, nil
}
