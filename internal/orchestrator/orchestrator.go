// Package orchestrator owns the schedule lifecycle (spec.md §4.4): the
// single proposed-schedule slot, the current approved-schedule snapshot,
// and the SO↔PO tracking map, all guarded by one mutex. No long-lived I/O
// happens while the mutex is held — the pattern throughout is take mutex →
// read/stage → release → perform Gateway writes → re-take mutex → commit,
// mirroring the aggregate-plus-mutex shape FluxForge's Reconciler uses.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lineflow/scheduler/internal/advisor"
	"github.com/lineflow/scheduler/internal/clock"
	"github.com/lineflow/scheduler/internal/conflict"
	"github.com/lineflow/scheduler/internal/domain"
	lferrors "github.com/lineflow/scheduler/internal/errors"
	"github.com/lineflow/scheduler/internal/gantt"
	"github.com/lineflow/scheduler/internal/gateway"
	"github.com/lineflow/scheduler/internal/notifier"
	"github.com/lineflow/scheduler/internal/observability"
	"github.com/lineflow/scheduler/internal/operatorchannel"
	"github.com/lineflow/scheduler/internal/planner"
	"github.com/lineflow/scheduler/internal/policy"
)

// ErrNoSuchProposal means approve/reject/revise named a proposal id that is
// not the one currently in the slot.
var ErrNoSuchProposal = errors.New("orchestrator: no such proposal")

// ErrNotLeader is returned by every mutating operation when this instance
// has been demoted by the Coordination component; it is shaped as a
// transient GatewayError so callers retry against the new leader.
var ErrNotLeader = &lferrors.GatewayError{Op: "orchestrator", Transient: true, Err: errors.New("this instance is not the Orchestrator leader")}

// Proposal is the working-state wrapper around a Schedule while it is
// status=proposed: it additionally tracks the PO ids this run created, so a
// reject or a failure can clean them up.
type Proposal struct {
	Schedule     domain.Schedule
	CreatedPOIDs []string
}

// LeaderCheck reports whether this instance currently holds the
// Orchestrator leader role; nil means single-instance mode (always leader).
type LeaderCheck interface {
	IsLeader() bool
}

// ScheduleStreamer pushes a newly-approved schedule to any live dashboard
// watchers; nil disables streaming. Broadcast must not block.
type ScheduleStreamer interface {
	Broadcast(domain.Schedule)
}

// Orchestrator is the aggregate described above.
type Orchestrator struct {
	gw       gateway.Gateway
	clk      *clock.Clock
	ranks    policy.CustomerRanks
	advisor  advisor.Advisor // nil disables AI consultation; callers fall back to EDF
	channel  operatorchannel.Channel
	notify   notifier.Notifier
	renderer gantt.Renderer
	leader   LeaderCheck
	stream   ScheduleStreamer
	now      func() time.Time

	mu             sync.Mutex
	proposal       *Proposal
	approved       *domain.Schedule
	soToPO         map[string]string
	lastPolicyUsed domain.Policy

	nextScheduleID int64
}

// Option configures optional Orchestrator collaborators.
type Option func(*Orchestrator)

func WithAdvisor(a advisor.Advisor) Option        { return func(o *Orchestrator) { o.advisor = a } }
func WithChannel(c operatorchannel.Channel) Option { return func(o *Orchestrator) { o.channel = c } }
func WithNotifier(n notifier.Notifier) Option       { return func(o *Orchestrator) { o.notify = n } }
func WithRenderer(r gantt.Renderer) Option          { return func(o *Orchestrator) { o.renderer = r } }
func WithLeaderCheck(l LeaderCheck) Option          { return func(o *Orchestrator) { o.leader = l } }
func WithScheduleStream(s ScheduleStreamer) Option  { return func(o *Orchestrator) { o.stream = s } }
func WithClock(c *clock.Clock) Option               { return func(o *Orchestrator) { o.clk = c } }
func WithNowFunc(f func() time.Time) Option         { return func(o *Orchestrator) { o.now = f } }

// New builds an Orchestrator. gw and ranks are required; every other
// collaborator is optional and defaults to a safe no-op.
func New(gw gateway.Gateway, ranks policy.CustomerRanks, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:             gw,
		clk:            clock.New(),
		ranks:          ranks,
		renderer:       gantt.NewStub(),
		channel:        operatorchannel.NewMemory(),
		notify:         notifier.NewMemory(),
		now:            time.Now,
		soToPO:         make(map[string]string),
		lastPolicyUsed: domain.PolicyEDF,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) isLeader() bool {
	return o.leader == nil || o.leader.IsLeader()
}

func (o *Orchestrator) allocScheduleID() int64 {
	return atomic.AddInt64(&o.nextScheduleID, 1)
}

// ApprovedSchedule returns the currently approved Schedule, or the zero
// value and false if none has ever been approved. Safe to call concurrently.
func (o *Orchestrator) ApprovedSchedule() (domain.Schedule, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.approved == nil {
		return domain.Schedule{}, false
	}
	return *o.approved, true
}

// ProductionOrderFor returns the tracked PO id for a sales order, if any.
func (o *Orchestrator) ProductionOrderFor(salesOrderID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	poID, ok := o.soToPO[salesOrderID]
	return poID, ok
}

// ComputeProposal runs the fetch→sort→plan→write→snapshot pipeline
// (spec.md §4.4). If useAI is true and an Advisor is configured, the
// advisor is consulted first to permute/reprioritise before the Policy
// Sorter runs; any advisor failure falls back to the plain policy (logged,
// metered, and reported through the notifier) rather than aborting the
// proposal.
func (o *Orchestrator) ComputeProposal(ctx context.Context, p domain.Policy, useAI bool) (domain.Schedule, error) {
	if !o.isLeader() {
		return domain.Schedule{}, ErrNotLeader
	}

	start := time.Now()
	defer func() { observability.ProposalComputeDuration.Observe(time.Since(start).Seconds()) }()

	o.supersedeOutstanding(ctx)

	sos, err := o.gw.ListSalesOrders(ctx, domain.SalesOrderAccepted)
	if err != nil {
		return domain.Schedule{}, err
	}

	var override []string
	if useAI && o.advisor != nil {
		override = o.consultAdvisor(ctx, "", sos)
	}

	schedule, createdPOIDs, err := o.runPipeline(ctx, p, sos, override)
	if err != nil {
		o.cleanup(ctx, createdPOIDs)
		observability.ProposalLifecycle.WithLabelValues("failed").Inc()
		return domain.Schedule{}, err
	}

	o.commitProposal(&Proposal{Schedule: schedule, CreatedPOIDs: createdPOIDs})
	o.lastPolicyUsed = p
	observability.ProposalLifecycle.WithLabelValues("computed").Inc()
	o.publishProposal(ctx, schedule)
	return schedule, nil
}

// Revise discards the current proposal, consults the Advisor with operator
// free text, applies any priority updates, and recomputes with the
// AI-hinted ordering (spec.md §4.4).
func (o *Orchestrator) Revise(ctx context.Context, proposalID int64, operatorText string) (domain.Schedule, error) {
	if !o.isLeader() {
		return domain.Schedule{}, ErrNotLeader
	}

	discarded, err := o.takeProposal(proposalID)
	if err != nil {
		return domain.Schedule{}, err
	}
	o.cleanup(ctx, discarded.CreatedPOIDs)
	observability.ProposalLifecycle.WithLabelValues("rejected").Inc()

	sos, err := o.gw.ListSalesOrders(ctx, domain.SalesOrderAccepted)
	if err != nil {
		return domain.Schedule{}, err
	}

	override := o.consultAdvisor(ctx, operatorText, sos)

	schedule, createdPOIDs, err := o.runPipeline(ctx, domain.PolicyEDF, sos, override)
	if err != nil {
		o.cleanup(ctx, createdPOIDs)
		observability.ProposalLifecycle.WithLabelValues("failed").Inc()
		return domain.Schedule{}, err
	}

	o.commitProposal(&Proposal{Schedule: schedule, CreatedPOIDs: createdPOIDs})
	o.lastPolicyUsed = domain.PolicyEDF
	observability.ProposalLifecycle.WithLabelValues("revised").Inc()
	o.publishProposal(ctx, schedule)
	return schedule, nil
}

// Approve transitions every PO in the proposal to ready. Idempotent: a
// second call with the id of the schedule already approved is a no-op.
func (o *Orchestrator) Approve(ctx context.Context, proposalID int64) error {
	if !o.isLeader() {
		return ErrNotLeader
	}

	o.mu.Lock()
	if o.approved != nil && o.approved.ID == proposalID {
		o.mu.Unlock()
		return nil // already approved, idempotent replay
	}
	if o.proposal == nil || o.proposal.Schedule.ID != proposalID {
		o.mu.Unlock()
		return ErrNoSuchProposal
	}
	p := o.proposal
	o.proposal = nil
	o.mu.Unlock()

	for _, e := range p.Schedule.Entries {
		if err := o.gw.ConfirmProductionOrder(ctx, e.ProductionOrderID); err != nil {
			return err
		}
	}

	o.mu.Lock()
	approved := p.Schedule
	approved.Status = domain.ScheduleApproved
	o.approved = &approved
	for _, e := range approved.Entries {
		o.soToPO[e.SalesOrderID] = e.ProductionOrderID
	}
	o.mu.Unlock()

	observability.ProposalLifecycle.WithLabelValues("approved").Inc()
	if o.stream != nil {
		o.stream.Broadcast(approved)
	}
	return nil
}

// Reject deletes every PO the proposal created and clears the slot.
// Idempotent: rejecting an id no longer in the slot is a no-op.
func (o *Orchestrator) Reject(ctx context.Context, proposalID int64) error {
	if !o.isLeader() {
		return ErrNotLeader
	}

	p, err := o.takeProposal(proposalID)
	if err != nil {
		if errors.Is(err, ErrNoSuchProposal) {
			return nil // nothing in the slot: treat as already rejected
		}
		return err
	}
	o.cleanup(ctx, p.CreatedPOIDs)
	observability.ProposalLifecycle.WithLabelValues("rejected").Inc()
	return nil
}

// takeProposal atomically removes and returns the proposal in the slot if
// its id matches, leaving the slot empty either way on a match.
func (o *Orchestrator) takeProposal(proposalID int64) (*Proposal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.proposal == nil || o.proposal.Schedule.ID != proposalID {
		return nil, ErrNoSuchProposal
	}
	p := o.proposal
	o.proposal = nil
	return p, nil
}

// supersedeOutstanding rejects whatever proposal currently occupies the
// slot, if any, before a new one is computed (spec.md §4.4's "at-most-one-
// in-flight").
func (o *Orchestrator) supersedeOutstanding(ctx context.Context) {
	o.mu.Lock()
	outstanding := o.proposal
	o.proposal = nil
	o.mu.Unlock()
	if outstanding != nil {
		o.cleanup(ctx, outstanding.CreatedPOIDs)
		observability.ProposalLifecycle.WithLabelValues("superseded").Inc()
	}
}

func (o *Orchestrator) commitProposal(p *Proposal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.proposal = p
}

// cleanup best-effort deletes every PO a failed or discarded run created.
func (o *Orchestrator) cleanup(ctx context.Context, poIDs []string) {
	for _, id := range poIDs {
		if err := o.gw.DeleteProductionOrder(ctx, id); err != nil {
			log.Printf("orchestrator: cleanup failed to delete %s: %v", id, err)
		}
	}
}

// consultAdvisor asks the Advisor for a hint; on any failure it logs,
// records the fallback metric, and returns nil so the caller proceeds with
// the plain policy ordering.
func (o *Orchestrator) consultAdvisor(ctx context.Context, operatorText string, sos []domain.SalesOrder) []string {
	if o.advisor == nil {
		return nil
	}

	baseline := policy.Sort(sos, domain.PolicyEDF, o.now(), o.productLookup(ctx), o.ranks)
	baselineIDs := make([]string, len(baseline))
	for i, so := range baseline {
		baselineIDs[i] = so.ID
	}

	var approvedSnapshot domain.Schedule
	if s, ok := o.ApprovedSchedule(); ok {
		approvedSnapshot = s
	}

	hint, err := o.advisor.Advise(ctx, advisor.Request{
		OperatorText: operatorText,
		Schedule:     approvedSnapshot,
		Pending:      sos,
		EDFBaseline:  baselineIDs,
	})
	if err != nil {
		log.Printf("orchestrator: advisor fallback to EDF: %v", err)
		observability.AIAdvisorFallbacks.Inc()
		if o.notify != nil {
			_ = o.notify.Send(ctx, "AI advisor unavailable", fmt.Sprintf("falling back to EDF: %v", err))
		}
		return nil
	}

	for soID, newPriority := range hint.PriorityUpdates {
		p := newPriority
		if err := o.gw.UpdateSalesOrder(ctx, soID, gateway.SalesOrderUpdate{Priority: &p}); err != nil {
			log.Printf("orchestrator: advisor priority update for %s failed: %v", soID, err)
			continue
		}
		for i := range sos {
			if sos[i].ID == soID {
				sos[i].Priority = p
			}
		}
	}

	return hint.OrderedSOIDs
}

// productLookup returns a planner.ProductLookup backed by live Gateway
// reads, caching within a single pipeline run.
func (o *Orchestrator) productLookup(ctx context.Context) func(productID string) (domain.Product, bool) {
	cache := make(map[string]domain.Product)
	return func(productID string) (domain.Product, bool) {
		if p, ok := cache[productID]; ok {
			return p, true
		}
		p, err := o.gw.GetProduct(ctx, productID)
		if err != nil {
			return domain.Product{}, false
		}
		cache[productID] = p
		return p, true
	}
}

// runPipeline is the pure-then-I/O core: sort, plan, materialise POs and
// phases through the Gateway, then run the Conflict Analyzer. It returns
// the created PO ids regardless of outcome so the caller can clean up on
// failure.
func (o *Orchestrator) runPipeline(ctx context.Context, p domain.Policy, sos []domain.SalesOrder, override []string) (domain.Schedule, []string, error) {
	lookup := o.productLookup(ctx)

	var ordered []domain.SalesOrder
	if override != nil {
		ordered = reorderByOverride(sos, override, p, o.now(), lookup, o.ranks)
	} else {
		ordered = policy.Sort(sos, p, o.now(), lookup, o.ranks)
	}

	entries, _, err := planner.Plan(o.clk, ordered, lookup, o.now(), planner.Options{})
	if err != nil {
		var unknown planner.ErrUnknownProduct
		if errors.As(err, &unknown) {
			return domain.Schedule{}, nil, &lferrors.PlanningError{SalesOrderID: unknown.SalesOrderID, Reason: unknown.Error()}
		}
		return domain.Schedule{}, nil, err
	}

	orderByID := make(map[string]domain.SalesOrder, len(ordered))
	for _, so := range ordered {
		orderByID[so.ID] = so
	}

	var createdPOIDs []string
	for i := range entries {
		so := orderByID[entries[i].SalesOrderID]

		poID, err := o.gw.CreateProductionOrder(ctx, gateway.NewProductionOrder{
			SalesOrderID: so.ID,
			ProductID:    so.ProductID,
			Quantity:     so.Quantity,
			StartsAt:     entries[i].Start,
			EndsAt:       entries[i].End,
		})
		if err != nil {
			return domain.Schedule{}, createdPOIDs, err
		}
		createdPOIDs = append(createdPOIDs, poID)
		entries[i].ProductionOrderID = poID

		phases, err := o.gw.ScheduleProductionOrder(ctx, poID)
		if err != nil {
			return domain.Schedule{}, createdPOIDs, err
		}
		if len(phases) != len(entries[i].Phases) {
			return domain.Schedule{}, createdPOIDs, &lferrors.PlanningError{
				SalesOrderID: so.ID,
				Reason:       fmt.Sprintf("gateway materialised %d phases, planner expected %d", len(phases), len(entries[i].Phases)),
			}
		}
		for k := range phases {
			if err := o.gw.UpdatePhaseWindow(ctx, phases[k].ID, entries[i].Phases[k].PlannedStart, entries[i].Phases[k].PlannedEnd); err != nil {
				return domain.Schedule{}, createdPOIDs, err
			}
			entries[i].Phases[k].ID = phases[k].ID
			entries[i].Phases[k].Status = phases[k].Status
		}
	}

	deadlines := make(map[string]time.Time, len(ordered))
	for _, so := range ordered {
		deadlines[so.ID] = so.Deadline
	}
	analyzed, report := conflict.Analyze(o.clk, entries, deadlines)

	observability.ConflictCount.Set(float64(len(report.LateIDs)))
	observability.WorstSlackMinutes.Set(float64(report.WorstSlack))

	schedule := domain.Schedule{
		ID:          o.allocScheduleID(),
		GeneratedAt: o.now(),
		PolicyUsed:  p,
		Entries:     analyzed,
		ConflictIDs: report.ConflictIDs(),
		Status:      domain.ScheduleProposed,
	}
	return schedule, createdPOIDs, nil
}

// reorderByOverride places every sales order named in override first, in
// that order, then appends any remaining accepted orders (sorted by p) the
// override did not mention — a defensive guarantee that a proposal always
// covers every accepted sales order even if a hint is incomplete.
func reorderByOverride(sos []domain.SalesOrder, override []string, p domain.Policy, now time.Time, lookup policy.ProductLookup, ranks policy.CustomerRanks) []domain.SalesOrder {
	byID := make(map[string]domain.SalesOrder, len(sos))
	for _, so := range sos {
		byID[so.ID] = so
	}

	ordered := make([]domain.SalesOrder, 0, len(sos))
	seen := make(map[string]bool, len(override))
	for _, id := range override {
		so, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		ordered = append(ordered, so)
		seen[id] = true
	}

	var leftover []domain.SalesOrder
	for _, so := range sos {
		if !seen[so.ID] {
			leftover = append(leftover, so)
		}
	}
	if len(leftover) > 0 {
		ordered = append(ordered, policy.Sort(leftover, p, now, lookup, ranks)...)
	}
	return ordered
}

// publishProposal renders and pushes the proposal to the operator channel.
// Failures are logged, not fatal — the proposal already exists in the slot.
func (o *Orchestrator) publishProposal(ctx context.Context, schedule domain.Schedule) {
	img, err := o.renderer.Render(schedule)
	if err != nil {
		log.Printf("orchestrator: gantt render failed: %v", err)
	}
	summary := fmt.Sprintf("Proposal #%d (%s policy): %d orders, %d late", schedule.ID, schedule.PolicyUsed, len(schedule.Entries), len(schedule.ConflictIDs))
	if err := o.channel.SendSchedule(ctx, operatorchannel.ScheduleMessage{Summary: summary, ImagePNG: img, ProposalID: schedule.ID}); err != nil {
		log.Printf("orchestrator: failed to push proposal to operator channel: %v", err)
	}
}
