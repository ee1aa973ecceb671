// Package clock implements the working-hours calendar arithmetic the
// scheduling kernel runs on: an 8h/day shift window repeated over an
// operating-day predicate. All times in and out are UTC.
package clock

import "time"

// OperatingDay reports whether a calendar day (any instant on it) is a
// production day. The default predicate (every day) matches spec.md §4.2's
// non-goal of weekend shutdowns.
type OperatingDay func(t time.Time) bool

// EveryDay is the default operating-day predicate.
func EveryDay(time.Time) bool { return true }

// Clock is a deterministic working-hours calendar.
type Clock struct {
	shiftStart   time.Duration // offset from midnight UTC, e.g. 8h
	shiftEnd     time.Duration // e.g. 16h
	operatingDay OperatingDay
}

// Option configures a Clock.
type Option func(*Clock)

// WithShift sets the daily shift window as offsets from midnight UTC.
func WithShift(start, end time.Duration) Option {
	return func(c *Clock) {
		c.shiftStart = start
		c.shiftEnd = end
	}
}

// WithOperatingDay overrides the default every-day predicate.
func WithOperatingDay(pred OperatingDay) Option {
	return func(c *Clock) { c.operatingDay = pred }
}

// New builds a Clock with the default 08:00-16:00 / every-day shift unless
// overridden by opts.
func New(opts ...Option) *Clock {
	c := &Clock{
		shiftStart:   8 * time.Hour,
		shiftEnd:     16 * time.Hour,
		operatingDay: EveryDay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MinutesPerDay returns the configured shift length in minutes.
func (c *Clock) MinutesPerDay() int {
	return int((c.shiftEnd - c.shiftStart) / time.Minute)
}

func (c *Clock) dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c *Clock) shiftOpen(t time.Time) time.Time {
	return c.dayStart(t).Add(c.shiftStart)
}

func (c *Clock) shiftClose(t time.Time) time.Time {
	return c.dayStart(t).Add(c.shiftEnd)
}

func (c *Clock) inShift(t time.Time) bool {
	open, close := c.shiftOpen(t), c.shiftClose(t)
	return c.operatingDay(t) && !t.Before(open) && t.Before(close)
}

// CeilToShift snaps t forward to the nearest in-shift instant. Identity if t
// is already in-shift on an operating day.
func (c *Clock) CeilToShift(t time.Time) time.Time {
	t = t.UTC()
	for {
		if !c.operatingDay(t) {
			t = c.shiftOpen(t.AddDate(0, 0, 1))
			continue
		}
		open, close := c.shiftOpen(t), c.shiftClose(t)
		if t.Before(open) {
			return open
		}
		if !t.Before(close) {
			t = c.shiftOpen(t.AddDate(0, 0, 1))
			continue
		}
		return t
	}
}

// AddWorkingMinutes consumes m minutes of working time starting at t,
// rolling over day boundaries at the shift close, and returns the first
// instant after the last consumed minute. m must be >= 0.
func (c *Clock) AddWorkingMinutes(t time.Time, m int) time.Time {
	if m < 0 {
		panic("clock: AddWorkingMinutes called with negative minutes")
	}
	cur := c.CeilToShift(t)
	remaining := m
	for remaining > 0 {
		close := c.shiftClose(cur)
		available := int(close.Sub(cur) / time.Minute)
		if remaining <= available {
			return cur.Add(time.Duration(remaining) * time.Minute)
		}
		remaining -= available
		cur = c.CeilToShift(close)
	}
	return cur
}

// WorkingMinutesBetween returns the non-negative count of shift-time between
// two instants a and b, regardless of which comes first (it is always
// non-negative — direction is the caller's business; callers needing a
// signed lateness/slack value use SignedWorkingMinutesBetween, as
// conflict.Analyze does).
func (c *Clock) WorkingMinutesBetween(a, b time.Time) int {
	if b.Before(a) {
		a, b = b, a
	}
	a = a.UTC()
	b = b.UTC()
	total := 0
	cur := a
	for cur.Before(b) {
		if !c.operatingDay(cur) {
			cur = c.shiftOpen(cur.AddDate(0, 0, 1))
			continue
		}
		open, close := c.shiftOpen(cur), c.shiftClose(cur)
		segStart := cur
		if segStart.Before(open) {
			segStart = open
		}
		segEnd := close
		if segEnd.After(b) {
			segEnd = b
		}
		if segStart.Before(segEnd) {
			total += int(segEnd.Sub(segStart) / time.Minute)
		}
		cur = c.shiftOpen(cur.AddDate(0, 0, 1))
	}
	return total
}

// SignedWorkingMinutesBetween returns working_minutes_between(a, b) with a
// sign: positive when b is after a, negative when b is before a. Used by the
// Conflict Analyzer to compute slack (deadline - completion) where a late
// completion must yield a negative number.
func (c *Clock) SignedWorkingMinutesBetween(a, b time.Time) int {
	m := c.WorkingMinutesBetween(a, b)
	if b.Before(a) {
		return -m
	}
	return m
}
