package conflict

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

func TestAnalyzeFlagsLateOrder(t *testing.T) {
	c := clock.New()
	entries := []domain.ScheduleEntry{
		{SalesOrderID: "SO-ON-TIME", End: mustUTC("2026-03-01T10:00:00Z")},
		{SalesOrderID: "SO-LATE", End: mustUTC("2026-03-05T10:00:00Z")},
	}
	deadlines := map[string]time.Time{
		"SO-ON-TIME": mustUTC("2026-03-02T00:00:00Z"),
		"SO-LATE":    mustUTC("2026-03-02T00:00:00Z"),
	}

	out, report := Analyze(c, entries, deadlines)

	if out[0].Late {
		t.Errorf("SO-ON-TIME incorrectly flagged late")
	}
	if !out[1].Late {
		t.Errorf("SO-LATE not flagged late")
	}
	if report.Clean {
		t.Errorf("report.Clean should be false when an order is late")
	}
	if len(report.LateIDs) != 1 || report.LateIDs[0] != "SO-LATE" {
		t.Errorf("LateIDs = %v, want [SO-LATE]", report.LateIDs)
	}
	if report.OnTimeCount != 1 {
		t.Errorf("OnTimeCount = %d, want 1", report.OnTimeCount)
	}
}

func TestAnalyzeCleanSchedule(t *testing.T) {
	c := clock.New()
	entries := []domain.ScheduleEntry{
		{SalesOrderID: "SO-A", End: mustUTC("2026-03-01T10:00:00Z")},
		{SalesOrderID: "SO-B", End: mustUTC("2026-03-01T12:00:00Z")},
	}
	deadlines := map[string]time.Time{
		"SO-A": mustUTC("2026-03-05T00:00:00Z"),
		"SO-B": mustUTC("2026-03-05T00:00:00Z"),
	}
	_, report := Analyze(c, entries, deadlines)
	if !report.Clean {
		t.Fatal("expected clean schedule")
	}
	if len(report.LateIDs) != 0 {
		t.Fatalf("expected no late ids, got %v", report.LateIDs)
	}
}

func TestAnalyzeDoesNotMutateInput(t *testing.T) {
	c := clock.New()
	entries := []domain.ScheduleEntry{
		{SalesOrderID: "SO-A", End: mustUTC("2026-03-01T10:00:00Z")},
	}
	deadlines := map[string]time.Time{"SO-A": mustUTC("2026-03-05T00:00:00Z")}
	_, _ = Analyze(c, entries, deadlines)
	if entries[0].Late || entries[0].SlackMinutes != 0 {
		t.Fatal("Analyze mutated its input entries")
	}
}

func TestAnalyzeWorstSlackIsMinimum(t *testing.T) {
	c := clock.New()
	entries := []domain.ScheduleEntry{
		{SalesOrderID: "SO-A", End: mustUTC("2026-03-01T08:00:00Z")},
		{SalesOrderID: "SO-B", End: mustUTC("2026-03-01T08:00:00Z")},
	}
	deadlines := map[string]time.Time{
		"SO-A": mustUTC("2026-03-01T10:00:00Z"), // +120 min slack
		"SO-B": mustUTC("2026-03-05T00:00:00Z"), // much larger slack
	}
	_, report := Analyze(c, entries, deadlines)
	if report.WorstSlack != 120 {
		t.Fatalf("WorstSlack = %d, want 120", report.WorstSlack)
	}
}
