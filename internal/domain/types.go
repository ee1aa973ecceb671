// Package domain holds the closed set of structs and enums the scheduling
// engine operates on. Nothing here talks to a network or a clock; it is the
// vocabulary every other package shares.
package domain

import (
	"fmt"
	"time"
)

// SalesOrderStatus is the lifecycle state of a customer commitment.
type SalesOrderStatus string

const (
	SalesOrderAccepted   SalesOrderStatus = "accepted"
	SalesOrderInProgress SalesOrderStatus = "in_progress"
	SalesOrderCompleted  SalesOrderStatus = "completed"
	SalesOrderCancelled  SalesOrderStatus = "cancelled"
)

func (s SalesOrderStatus) Valid() bool {
	switch s {
	case SalesOrderAccepted, SalesOrderInProgress, SalesOrderCompleted, SalesOrderCancelled:
		return true
	}
	return false
}

// ProductionOrderStatus is the lifecycle state of a materialised PO.
type ProductionOrderStatus string

const (
	ProductionOrderDraft      ProductionOrderStatus = "draft"
	ProductionOrderScheduled  ProductionOrderStatus = "scheduled"
	ProductionOrderReady      ProductionOrderStatus = "ready"
	ProductionOrderInProgress ProductionOrderStatus = "in_progress"
	ProductionOrderCompleted  ProductionOrderStatus = "completed"
	ProductionOrderCancelled  ProductionOrderStatus = "cancelled"
)

func (s ProductionOrderStatus) Valid() bool {
	switch s {
	case ProductionOrderDraft, ProductionOrderScheduled, ProductionOrderReady,
		ProductionOrderInProgress, ProductionOrderCompleted, ProductionOrderCancelled:
		return true
	}
	return false
}

// PhaseStatus is the lifecycle state of one ProductionPhase.
type PhaseStatus string

const (
	PhaseNotReady PhaseStatus = "not_ready"
	PhaseReady    PhaseStatus = "ready"
	PhaseStarted  PhaseStatus = "started"
	PhaseComplete PhaseStatus = "completed"
)

// PhaseType is the closed set of manufacturing phase tags.
type PhaseType string

const (
	PhaseSMT     PhaseType = "SMT"
	PhaseReflow  PhaseType = "Reflow"
	PhaseTHT     PhaseType = "THT"
	PhaseAOI     PhaseType = "AOI"
	PhaseTest    PhaseType = "Test"
	PhaseCoating PhaseType = "Coating"
	PhasePack    PhaseType = "Pack"
)

func (p PhaseType) Valid() bool {
	switch p {
	case PhaseSMT, PhaseReflow, PhaseTHT, PhaseAOI, PhaseTest, PhaseCoating, PhasePack:
		return true
	}
	return false
}

// Policy is the closed set of ordering policies the Sorter understands.
type Policy string

const (
	PolicyEDF      Policy = "EDF"
	PolicyPriority Policy = "PRIORITY"
	PolicySJF      Policy = "SJF"
	PolicyLJF      Policy = "LJF"
	PolicySlack    Policy = "SLACK"
	PolicyCustomer Policy = "CUSTOMER"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicyEDF, PolicyPriority, PolicySJF, PolicyLJF, PolicySlack, PolicyCustomer:
		return true
	}
	return false
}

// ScheduleStatus is the lifecycle state of a Schedule snapshot.
type ScheduleStatus string

const (
	ScheduleProposed   ScheduleStatus = "proposed"
	ScheduleApproved   ScheduleStatus = "approved"
	ScheduleRejected   ScheduleStatus = "rejected"
	ScheduleSuperseded ScheduleStatus = "superseded"
)

// Customer identifies who placed a SalesOrder and at what standing.
type Customer struct {
	Name string
	Rank int // lower is better; looked up by the CUSTOMER policy
}

// SalesOrder is a customer commitment: product, quantity, deadline, priority.
type SalesOrder struct {
	ID        string
	ProductID string
	Quantity  int
	Deadline  time.Time // UTC
	Priority  int       // 1 = highest
	Customer  Customer
	Notes     string
	Status    SalesOrderStatus
}

// BOMPhase is one entry of a Product's bill of phases.
type BOMPhase struct {
	Type            PhaseType
	DurationPerUnit int // positive minutes
}

// Product is read-only reference data: identifier, name, ordered BOM.
type Product struct {
	ID   string
	Name string
	BOM  []BOMPhase // 2..7 phases
}

// ProductionMinutes returns quantity × sum(duration_per_unit over BOM phases).
func (p Product) ProductionMinutes(quantity int) int {
	total := 0
	for _, phase := range p.BOM {
		total += phase.DurationPerUnit * quantity
	}
	return total
}

// ProductionPhase is one phase of a materialised ProductionOrder.
type ProductionPhase struct {
	ID            string
	Type          PhaseType
	Sequence      int
	PlannedStart  time.Time
	PlannedEnd    time.Time
	Status        PhaseStatus
}

// ProductionOrder is the materialised execution of one SalesOrder.
type ProductionOrder struct {
	ID           string
	SalesOrderID string
	ProductID    string
	Quantity     int
	PlannedStart time.Time
	PlannedEnd   time.Time
	Status       ProductionOrderStatus
	Phases       []ProductionPhase
}

// ScheduleEntry is one PO's planned window plus its computed slack/lateness,
// as produced by one Phase Planner + Conflict Analyzer pass.
type ScheduleEntry struct {
	ProductionOrderID string
	SalesOrderID       string
	Start              time.Time
	End                time.Time
	Phases             []ProductionPhase
	SlackMinutes       int // negative = late
	Late               bool
}

// Schedule is an immutable snapshot produced by one pipeline run.
type Schedule struct {
	ID          int64
	GeneratedAt time.Time
	PolicyUsed  Policy
	Entries     []ScheduleEntry
	ConflictIDs []string // SalesOrder ids flagged late
	Status      ScheduleStatus
}

// Validate checks the closed invariants spec.md §3 places on a SalesOrder.
func (s SalesOrder) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sales order: empty id")
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("sales order %s: quantity must be positive, got %d", s.ID, s.Quantity)
	}
	if s.Priority < 1 {
		return fmt.Errorf("sales order %s: priority must be >= 1, got %d", s.ID, s.Priority)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("sales order %s: invalid status %q", s.ID, s.Status)
	}
	return nil
}

// Validate checks the closed invariants spec.md §3 places on a Product's BOM.
func (p Product) Validate() error {
	if len(p.BOM) < 2 || len(p.BOM) > 7 {
		return fmt.Errorf("product %s: BOM must have 2..7 phases, got %d", p.ID, len(p.BOM))
	}
	for i, phase := range p.BOM {
		if !phase.Type.Valid() {
			return fmt.Errorf("product %s: phase %d has invalid type %q", p.ID, i, phase.Type)
		}
		if phase.DurationPerUnit <= 0 {
			return fmt.Errorf("product %s: phase %d duration must be positive, got %d", p.ID, i, phase.DurationPerUnit)
		}
	}
	return nil
}
