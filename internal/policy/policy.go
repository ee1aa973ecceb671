// Package policy implements the Policy Sorter: a pure, total function
// mapping (orders, policy, now) to an ordered sequence. It never mutates its
// input and never suspends — see spec.md §4.1 and §5.
package policy

import (
	"sort"
	"time"

	"github.com/lineflow/scheduler/internal/domain"
)

// ProductLookup resolves a product id to its BOM, used to compute
// production_minutes for SJF/LJF/SLACK.
type ProductLookup func(productID string) (domain.Product, bool)

// CustomerRanks maps a customer name to its rank; unknown customers rank 99,
// per spec.md §4.1.
type CustomerRanks map[string]int

func (r CustomerRanks) RankOf(customer string) int {
	if rank, ok := r[customer]; ok {
		return rank
	}
	return 99
}

type sortKey struct {
	order              domain.SalesOrder
	productionMinutes  int
	customerRank       int
}

func buildKeys(orders []domain.SalesOrder, lookup ProductLookup, ranks CustomerRanks) []sortKey {
	keys := make([]sortKey, len(orders))
	for i, o := range orders {
		minutes := 0
		if product, ok := lookup(o.ProductID); ok {
			minutes = product.ProductionMinutes(o.Quantity)
		}
		keys[i] = sortKey{
			order:             o,
			productionMinutes: minutes,
			customerRank:      ranks.RankOf(o.Customer.Name),
		}
	}
	return keys
}

// Sort returns a new ordered sequence of orders per the named policy. It is
// a stable sort: orders with equal keys keep their relative input order,
// then fall through declared tie-breakers.
//
// Sort never mutates orders; it operates on a private copy of the key slice
// and returns freshly-ordered domain.SalesOrder values.
func Sort(orders []domain.SalesOrder, p domain.Policy, now time.Time, lookup ProductLookup, ranks CustomerRanks) []domain.SalesOrder {
	keys := buildKeys(orders, lookup, ranks)

	var less func(a, b sortKey) bool
	switch p {
	case domain.PolicyPriority:
		less = func(a, b sortKey) bool {
			if a.order.Priority != b.order.Priority {
				return a.order.Priority < b.order.Priority
			}
			if !a.order.Deadline.Equal(b.order.Deadline) {
				return a.order.Deadline.Before(b.order.Deadline)
			}
			return a.order.ID < b.order.ID
		}
	case domain.PolicySJF:
		less = func(a, b sortKey) bool {
			if a.productionMinutes != b.productionMinutes {
				return a.productionMinutes < b.productionMinutes
			}
			if !a.order.Deadline.Equal(b.order.Deadline) {
				return a.order.Deadline.Before(b.order.Deadline)
			}
			return a.order.ID < b.order.ID
		}
	case domain.PolicyLJF:
		less = func(a, b sortKey) bool {
			if a.productionMinutes != b.productionMinutes {
				return a.productionMinutes > b.productionMinutes // desc
			}
			if !a.order.Deadline.Equal(b.order.Deadline) {
				return a.order.Deadline.Before(b.order.Deadline)
			}
			return a.order.ID < b.order.ID
		}
	case domain.PolicySlack:
		less = func(a, b sortKey) bool {
			slackA := slackOf(a, now)
			slackB := slackOf(b, now)
			if slackA != slackB {
				return slackA < slackB
			}
			if !a.order.Deadline.Equal(b.order.Deadline) {
				return a.order.Deadline.Before(b.order.Deadline)
			}
			return a.order.ID < b.order.ID
		}
	case domain.PolicyCustomer:
		less = func(a, b sortKey) bool {
			if a.customerRank != b.customerRank {
				return a.customerRank < b.customerRank
			}
			if !a.order.Deadline.Equal(b.order.Deadline) {
				return a.order.Deadline.Before(b.order.Deadline)
			}
			return a.order.Priority < b.order.Priority
		}
	default: // domain.PolicyEDF and zero-value fallback: EDF is the default.
		less = func(a, b sortKey) bool {
			if !a.order.Deadline.Equal(b.order.Deadline) {
				return a.order.Deadline.Before(b.order.Deadline)
			}
			if a.order.Priority != b.order.Priority {
				return a.order.Priority < b.order.Priority
			}
			return a.order.ID < b.order.ID
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return less(keys[i], keys[j])
	})

	out := make([]domain.SalesOrder, len(keys))
	for i, k := range keys {
		out[i] = k.order
	}
	return out
}

// slackOf computes deadline - now - production_minutes, in minutes, as the
// SLACK policy's primary key (spec.md §4.1). This is wall-clock minutes, not
// working minutes: the policy's job is only to rank orders before the Phase
// Planner ever runs, so it does not need shift-aware arithmetic.
func slackOf(k sortKey, now time.Time) int {
	deadlineMinutes := int(k.order.Deadline.Sub(now) / time.Minute)
	return deadlineMinutes - k.productionMinutes
}
