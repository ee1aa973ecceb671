package clock

import (
	"testing"
	"time"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestCeilToShift(t *testing.T) {
	c := New()
	cases := []struct {
		in, want string
	}{
		{"2026-02-28T08:00:00Z", "2026-02-28T08:00:00Z"}, // already in-shift
		{"2026-02-28T07:59:00Z", "2026-02-28T08:00:00Z"}, // before open
		{"2026-02-28T16:00:00Z", "2026-03-01T08:00:00Z"}, // at close, rolls
		{"2026-02-28T23:00:00Z", "2026-03-01T08:00:00Z"}, // late night
	}
	for _, tc := range cases {
		got := c.CeilToShift(mustUTC(tc.in))
		want := mustUTC(tc.want)
		if !got.Equal(want) {
			t.Errorf("CeilToShift(%s) = %s, want %s", tc.in, got, want)
		}
	}
}

func TestAddWorkingMinutesSanityCheck(t *testing.T) {
	// Worked sanity check from spec §8: SO-001 = 294 working minutes from
	// 2026-02-28 08:00 UTC lands at 2026-02-28 12:54 UTC.
	c := New()
	start := mustUTC("2026-02-28T08:00:00Z")
	got := c.AddWorkingMinutes(start, 294)
	want := mustUTC("2026-02-28T12:54:00Z")
	if !got.Equal(want) {
		t.Fatalf("AddWorkingMinutes(294) = %s, want %s", got, want)
	}
}

func TestAddWorkingMinutesRollsAtShiftClose(t *testing.T) {
	c := New()
	start := mustUTC("2026-02-28T08:00:00Z")
	// Exactly 480 minutes = one full shift day; the last consumed minute ends
	// at that day's shift close, so the result is the close itself.
	got := c.AddWorkingMinutes(start, 480)
	want := mustUTC("2026-02-28T16:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("AddWorkingMinutes(480) = %s, want %s", got, want)
	}

	// 481 minutes rolls one minute into day two.
	got = c.AddWorkingMinutes(start, 481)
	want = mustUTC("2026-03-01T08:01:00Z")
	if !got.Equal(want) {
		t.Fatalf("AddWorkingMinutes(481) = %s, want %s", got, want)
	}
}

func TestClockClosureZero(t *testing.T) {
	// Invariant 5: add_working_minutes(t, 0) = ceil_to_shift(t).
	c := New()
	inputs := []string{"2026-02-28T08:00:00Z", "2026-02-28T03:00:00Z", "2026-02-28T20:00:00Z"}
	for _, s := range inputs {
		t0 := mustUTC(s)
		if got, want := c.AddWorkingMinutes(t0, 0), c.CeilToShift(t0); !got.Equal(want) {
			t.Errorf("AddWorkingMinutes(%s, 0) = %s, want %s", s, got, want)
		}
	}
}

func TestClockClosureAdditive(t *testing.T) {
	// Invariant 5: add_working_minutes(t, a+b) = add_working_minutes(add_working_minutes(t, a), b).
	c := New()
	start := mustUTC("2026-02-28T09:17:00Z")
	for _, pair := range [][2]int{{100, 200}, {480, 50}, {0, 930}, {930, 0}} {
		a, b := pair[0], pair[1]
		direct := c.AddWorkingMinutes(start, a+b)
		staged := c.AddWorkingMinutes(c.AddWorkingMinutes(start, a), b)
		if !direct.Equal(staged) {
			t.Errorf("a=%d b=%d: direct=%s staged=%s", a, b, direct, staged)
		}
	}
}

func TestWorkingMinutesRoundTrip(t *testing.T) {
	// Invariant 6: working_minutes_between(t, add_working_minutes(t, m)) = m
	// for in-shift t.
	c := New()
	start := mustUTC("2026-02-28T08:00:00Z")
	for _, m := range []int{0, 1, 294, 480, 481, 1000, 2000} {
		end := c.AddWorkingMinutes(start, m)
		got := c.WorkingMinutesBetween(start, end)
		if got != m {
			t.Errorf("m=%d: WorkingMinutesBetween round-trip = %d", m, got)
		}
	}
}

func TestWorkingMinutesBetweenSkipsNonOperatingDays(t *testing.T) {
	// Sunday (2026-03-01) closed.
	closed := map[time.Weekday]bool{time.Sunday: true}
	c := New(WithOperatingDay(func(t time.Time) bool {
		return !closed[t.Weekday()]
	}))
	// Saturday 2026-02-28 08:00 to Monday 2026-03-02 08:00: only Saturday
	// (480 min) counts toward the gap since Sunday is closed and Monday
	// hasn't opened until exactly the end boundary.
	start := mustUTC("2026-02-28T08:00:00Z")
	end := mustUTC("2026-03-02T08:00:00Z")
	got := c.WorkingMinutesBetween(start, end)
	if got != 480 {
		t.Fatalf("WorkingMinutesBetween across closed Sunday = %d, want 480", got)
	}
}

func TestSignedWorkingMinutesBetween(t *testing.T) {
	c := New()
	a := mustUTC("2026-02-28T08:00:00Z")
	b := mustUTC("2026-02-28T12:00:00Z")
	if got := c.SignedWorkingMinutesBetween(a, b); got != 240 {
		t.Errorf("forward signed minutes = %d, want 240", got)
	}
	if got := c.SignedWorkingMinutesBetween(b, a); got != -240 {
		t.Errorf("backward signed minutes = %d, want -240", got)
	}
}
