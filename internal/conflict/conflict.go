// Package conflict implements the Conflict Analyzer: a synchronous,
// non-suspending pass over a planned schedule that computes per-order slack
// and lateness and aggregates the result (spec.md §4.5).
package conflict

import (
	"time"

	"github.com/lineflow/scheduler/internal/clock"
	"github.com/lineflow/scheduler/internal/domain"
)

// Report is the aggregated output of one Conflict Analyzer pass.
type Report struct {
	LateIDs      []string // sales order ids flagged late, in entry order
	WorstSlack   int      // minimum (most negative) slack across all entries
	AverageSlack float64
	OnTimeCount  int
	Clean        bool // true iff no entry is late
}

// Analyze computes slack_minutes and late_bool for every entry and returns a
// new slice (the input is never mutated) alongside the aggregate Report.
// deadlines maps SalesOrderID -> deadline; entries whose order is missing
// from deadlines keep the slack/late values they came in with and are not
// counted either way.
func Analyze(c *clock.Clock, entries []domain.ScheduleEntry, deadlines map[string]time.Time) ([]domain.ScheduleEntry, Report) {
	out := make([]domain.ScheduleEntry, len(entries))
	copy(out, entries)

	report := Report{Clean: true}
	totalSlack := 0
	haveWorst := false

	for i := range out {
		deadline, ok := deadlines[out[i].SalesOrderID]
		if !ok {
			continue
		}
		// slack = working_minutes_between(e_last, deadline), signed:
		// negative when the deadline falls before completion (late).
		slack := c.SignedWorkingMinutesBetween(out[i].End, deadline)
		late := slack < 0

		out[i].SlackMinutes = slack
		out[i].Late = late

		totalSlack += slack
		if late {
			report.LateIDs = append(report.LateIDs, out[i].SalesOrderID)
			report.Clean = false
		} else {
			report.OnTimeCount++
		}
		if !haveWorst || slack < report.WorstSlack {
			report.WorstSlack = slack
			haveWorst = true
		}
	}

	counted := report.OnTimeCount + len(report.LateIDs)
	if counted > 0 {
		report.AverageSlack = float64(totalSlack) / float64(counted)
	}

	return out, report
}

// ConflictIDs is a convenience accessor mirroring the Schedule.ConflictIDs
// field the Orchestrator snapshots (spec.md §3).
func (r Report) ConflictIDs() []string {
	return r.LateIDs
}
