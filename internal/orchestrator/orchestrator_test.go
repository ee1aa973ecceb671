package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/lineflow/scheduler/internal/domain"
	"github.com/lineflow/scheduler/internal/gateway"
	"github.com/lineflow/scheduler/internal/policy"
)

func fixedNow() time.Time {
	return time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC)
}

func seededGateway() *gateway.MemoryGateway {
	gw := gateway.NewMemoryGateway()
	gw.SeedProduct(domain.Product{
		ID:   "WIDGET",
		Name: "Widget",
		BOM: []domain.BOMPhase{
			{Type: domain.PhaseSMT, DurationPerUnit: 2},
			{Type: domain.PhaseTest, DurationPerUnit: 1},
		},
	})
	gw.SeedSalesOrder(domain.SalesOrder{
		ID: "SO-1", ProductID: "WIDGET", Quantity: 10,
		Deadline: fixedNow().Add(72 * time.Hour), Priority: 1,
		Customer: domain.Customer{Name: "Acme"}, Status: domain.SalesOrderAccepted,
	})
	gw.SeedSalesOrder(domain.SalesOrder{
		ID: "SO-2", ProductID: "WIDGET", Quantity: 5,
		Deadline: fixedNow().Add(24 * time.Hour), Priority: 2,
		Customer: domain.Customer{Name: "Acme"}, Status: domain.SalesOrderAccepted,
	})
	return gw
}

func newTestOrchestrator(gw gateway.Gateway) *Orchestrator {
	return New(gw, policy.CustomerRanks{}, WithNowFunc(fixedNow))
}

func TestComputeProposalCoversAllAcceptedOrders(t *testing.T) {
	gw := seededGateway()
	o := newTestOrchestrator(gw)

	schedule, err := o.ComputeProposal(context.Background(), domain.PolicyEDF, false)
	if err != nil {
		t.Fatalf("ComputeProposal: %v", err)
	}
	if len(schedule.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(schedule.Entries))
	}
	// EDF: SO-2 has the earlier deadline and must be scheduled first.
	if schedule.Entries[0].SalesOrderID != "SO-2" {
		t.Fatalf("expected SO-2 first under EDF, got %s", schedule.Entries[0].SalesOrderID)
	}
}

func TestComputeProposalSupersedesOutstandingAndCleansUpPOs(t *testing.T) {
	gw := seededGateway()
	o := newTestOrchestrator(gw)
	ctx := context.Background()

	first, err := o.ComputeProposal(ctx, domain.PolicyEDF, false)
	if err != nil {
		t.Fatalf("first ComputeProposal: %v", err)
	}
	firstPOIDs := map[string]bool{}
	for _, e := range first.Entries {
		firstPOIDs[e.ProductionOrderID] = true
	}

	if _, err := o.ComputeProposal(ctx, domain.PolicyPriority, false); err != nil {
		t.Fatalf("second ComputeProposal: %v", err)
	}

	for id := range firstPOIDs {
		if _, err := gw.GetProductionOrder(ctx, id); err == nil {
			t.Fatalf("expected superseded PO %s to be deleted", id)
		}
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	gw := seededGateway()
	o := newTestOrchestrator(gw)
	ctx := context.Background()

	schedule, err := o.ComputeProposal(ctx, domain.PolicyEDF, false)
	if err != nil {
		t.Fatalf("ComputeProposal: %v", err)
	}

	if err := o.Approve(ctx, schedule.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := o.Approve(ctx, schedule.ID); err != nil {
		t.Fatalf("second Approve should be idempotent, got: %v", err)
	}

	approved, ok := o.ApprovedSchedule()
	if !ok || approved.ID != schedule.ID {
		t.Fatalf("expected schedule %d approved, got %+v (ok=%v)", schedule.ID, approved, ok)
	}

	for _, e := range approved.Entries {
		po, err := gw.GetProductionOrder(ctx, e.ProductionOrderID)
		if err != nil {
			t.Fatalf("GetProductionOrder: %v", err)
		}
		if po.Status != domain.ProductionOrderReady {
			t.Fatalf("expected PO %s ready, got %s", po.ID, po.Status)
		}
	}
}

func TestRejectDeletesCreatedPOsAndIsIdempotent(t *testing.T) {
	gw := seededGateway()
	o := newTestOrchestrator(gw)
	ctx := context.Background()

	schedule, err := o.ComputeProposal(ctx, domain.PolicyEDF, false)
	if err != nil {
		t.Fatalf("ComputeProposal: %v", err)
	}

	if err := o.Reject(ctx, schedule.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := o.Reject(ctx, schedule.ID); err != nil {
		t.Fatalf("second Reject should be idempotent no-op, got: %v", err)
	}

	for _, e := range schedule.Entries {
		if _, err := gw.GetProductionOrder(ctx, e.ProductionOrderID); err == nil {
			t.Fatalf("expected rejected PO %s to be deleted", e.ProductionOrderID)
		}
	}
}

func TestComputeProposalAbortsOnUnknownProductWithNoPOsCreated(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.SeedSalesOrder(domain.SalesOrder{
		ID: "SO-BAD", ProductID: "MISSING", Quantity: 1,
		Deadline: fixedNow().Add(time.Hour), Priority: 1, Status: domain.SalesOrderAccepted,
	})
	o := newTestOrchestrator(gw)
	ctx := context.Background()

	if _, err := o.ComputeProposal(ctx, domain.PolicyEDF, false); err == nil {
		t.Fatal("expected planning error for unknown product")
	}

	pos, err := gw.ListProductionOrders(ctx)
	if err != nil {
		t.Fatalf("ListProductionOrders: %v", err)
	}
	if len(pos) != 0 {
		t.Fatalf("expected no POs created after a failed proposal, got %d", len(pos))
	}
}

type notLeader struct{}

func (notLeader) IsLeader() bool { return false }

func TestComputeProposalRefusesWhenNotLeader(t *testing.T) {
	gw := seededGateway()
	o := New(gw, policy.CustomerRanks{}, WithNowFunc(fixedNow), WithLeaderCheck(notLeader{}))

	if _, err := o.ComputeProposal(context.Background(), domain.PolicyEDF, false); err != ErrNotLeader {
		t.Fatalf("expected ErrNotLeader, got %v", err)
	}
}

func TestRejectUnknownProposalIDIsNoop(t *testing.T) {
	gw := seededGateway()
	o := newTestOrchestrator(gw)

	if err := o.Reject(context.Background(), 999); err != nil {
		t.Fatalf("expected no-op for unknown proposal id, got %v", err)
	}
}

func TestApproveUnknownProposalIDFails(t *testing.T) {
	gw := seededGateway()
	o := newTestOrchestrator(gw)

	if err := o.Approve(context.Background(), 999); err != ErrNoSuchProposal {
		t.Fatalf("expected ErrNoSuchProposal, got %v", err)
	}
}

type recordingStreamer struct {
	broadcasts []domain.Schedule
}

func (r *recordingStreamer) Broadcast(s domain.Schedule) {
	r.broadcasts = append(r.broadcasts, s)
}

func TestApproveBroadcastsApprovedSchedule(t *testing.T) {
	gw := seededGateway()
	streamer := &recordingStreamer{}
	o := New(gw, policy.CustomerRanks{}, WithNowFunc(fixedNow), WithScheduleStream(streamer))
	ctx := context.Background()

	schedule, err := o.ComputeProposal(ctx, domain.PolicyEDF, false)
	if err != nil {
		t.Fatalf("ComputeProposal: %v", err)
	}
	if err := o.Approve(ctx, schedule.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if len(streamer.broadcasts) != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", len(streamer.broadcasts))
	}
	if streamer.broadcasts[0].ID != schedule.ID {
		t.Fatalf("expected broadcast schedule id %d, got %d", schedule.ID, streamer.broadcasts[0].ID)
	}

	if err := o.Approve(ctx, schedule.ID); err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	if len(streamer.broadcasts) != 1 {
		t.Fatalf("expected idempotent re-approve not to re-broadcast, got %d broadcasts", len(streamer.broadcasts))
	}
}
