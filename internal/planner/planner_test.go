package planner

import (
	"testing"
	"time"

	"github.com/lineflow/scheduler/internal/clock"
	"github.com/lineflow/scheduler/internal/domain"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

var products = map[string]domain.Product{
	"PCB-IND-100": {ID: "PCB-IND-100", BOM: []domain.BOMPhase{
		{Type: domain.PhaseSMT, DurationPerUnit: 100},
		{Type: domain.PhaseTest, DurationPerUnit: 47},
	}},
	"IOT-200": {ID: "IOT-200", BOM: []domain.BOMPhase{
		{Type: domain.PhaseSMT, DurationPerUnit: 30},
		{Type: domain.PhaseTest, DurationPerUnit: 33},
	}},
}

func lookup(id string) (domain.Product, bool) {
	p, ok := products[id]
	return p, ok
}

func TestPlanMatchesWorkedSanityCheck(t *testing.T) {
	c := clock.New()
	orders := []domain.SalesOrder{
		{ID: "SO-001", ProductID: "PCB-IND-100", Quantity: 2, Deadline: mustUTC("2026-03-02T00:00:00Z")},
	}
	entries, cursor, err := Plan(c, orders, lookup, mustUTC("2026-02-28T08:00:00Z"), Options{})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	want := mustUTC("2026-02-28T12:54:00Z")
	if !entries[0].End.Equal(want) {
		t.Fatalf("SO-001 end = %s, want %s", entries[0].End, want)
	}
	if !cursor.Equal(want) {
		t.Fatalf("cursor after SO-001 = %s, want %s", cursor, want)
	}
}

func TestPlanSequentialAndNonOverlapping(t *testing.T) {
	c := clock.New()
	orders := []domain.SalesOrder{
		{ID: "SO-001", ProductID: "PCB-IND-100", Quantity: 2, Deadline: mustUTC("2026-03-02T00:00:00Z")},
		{ID: "SO-002", ProductID: "IOT-200", Quantity: 10, Deadline: mustUTC("2026-03-03T00:00:00Z")},
		{ID: "SO-003", ProductID: "PCB-IND-100", Quantity: 5, Deadline: mustUTC("2026-03-04T00:00:00Z")},
	}
	entries, _, err := Plan(c, orders, lookup, mustUTC("2026-02-28T08:00:00Z"), Options{})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}

	// Invariant 1: entries[i].End <= entries[i+1].Start.
	for i := 0; i+1 < len(entries); i++ {
		if entries[i].End.After(entries[i+1].Start) {
			t.Fatalf("entry %d overlaps entry %d: %s > %s", i, i+1, entries[i].End, entries[i+1].Start)
		}
	}

	// Invariant 2: phase monotonicity and PO window bounds.
	for _, e := range entries {
		if !e.Phases[0].PlannedStart.Equal(e.Start) {
			t.Errorf("%s: entry.Start != phases[0].Start", e.ProductionOrderID)
		}
		last := e.Phases[len(e.Phases)-1]
		if !last.PlannedEnd.Equal(e.End) {
			t.Errorf("%s: entry.End != last phase end", e.ProductionOrderID)
		}
		for k := 0; k+1 < len(e.Phases); k++ {
			if e.Phases[k].PlannedEnd.After(e.Phases[k+1].PlannedStart) {
				t.Errorf("%s: phase %d overlaps phase %d", e.ProductionOrderID, k, k+1)
			}
		}
	}
}

func TestPlanUnknownProductFails(t *testing.T) {
	c := clock.New()
	orders := []domain.SalesOrder{
		{ID: "SO-404", ProductID: "GHOST", Quantity: 1, Deadline: mustUTC("2026-03-02T00:00:00Z")},
	}
	_, _, err := Plan(c, orders, lookup, mustUTC("2026-02-28T08:00:00Z"), Options{})
	if err == nil {
		t.Fatal("expected ErrUnknownProduct, got nil")
	}
	if _, ok := err.(ErrUnknownProduct); !ok {
		t.Fatalf("expected ErrUnknownProduct, got %T: %v", err, err)
	}
}

func TestPlanIsPure(t *testing.T) {
	c := clock.New()
	orders := []domain.SalesOrder{
		{ID: "SO-001", ProductID: "PCB-IND-100", Quantity: 2, Deadline: mustUTC("2026-03-02T00:00:00Z")},
	}
	snapshot := append([]domain.SalesOrder(nil), orders...)
	_, _, err := Plan(c, orders, lookup, mustUTC("2026-02-28T08:00:00Z"), Options{})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if orders[0] != snapshot[0] {
		t.Fatal("Plan mutated its input orders")
	}
}
