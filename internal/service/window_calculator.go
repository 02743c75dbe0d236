package service

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/noah-isme/assessment-window-api/pkg/config"
)

// Window is a resolved assessment window in UTC.
type Window struct {
	Start    time.Time
	End      time.Time
	GraceEnd time.Time
}

type clock struct {
	hour, minute int
}

func (c clock) minutes() int { return c.hour*60 + c.minute }

func parseClock(raw string) (clock, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return clock{hour: t.Hour(), minute: t.Minute()}, nil
		}
	}
	return clock{}, fmt.Errorf("invalid clock time %q", raw)
}

// WindowCalculator turns calendar slots into assessment windows in the school's time zone.
type WindowCalculator struct {
	loc             *time.Location
	pre             time.Duration
	post            time.Duration
	grace           time.Duration
	weekdayStart    clock
	weekdayEnd      clock
	saturdayStart   clock
	saturdayEnd     clock
	saturdayEnabled bool
}

// NewWindowCalculator validates the schedule configuration.
func NewWindowCalculator(cfg config.ScheduleConfig) (*WindowCalculator, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone: %w", err)
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Minute
	}
	calc := &WindowCalculator{
		loc:             loc,
		pre:             cfg.PreWindow,
		post:            cfg.PostWindow,
		grace:           cfg.GracePeriod,
		saturdayEnabled: cfg.SaturdayEnabled,
	}
	for _, bound := range []struct {
		raw      string
		fallback string
		dst      *clock
	}{
		{cfg.WeekdayStart, "07:00", &calc.weekdayStart},
		{cfg.WeekdayEnd, "18:00", &calc.weekdayEnd},
		{cfg.SaturdayStart, "07:00", &calc.saturdayStart},
		{cfg.SaturdayEnd, "15:00", &calc.saturdayEnd},
	} {
		raw := bound.raw
		if raw == "" {
			raw = bound.fallback
		}
		parsed, err := parseClock(raw)
		if err != nil {
			return nil, err
		}
		*bound.dst = parsed
	}
	return calc, nil
}

// Location returns the school time zone.
func (c *WindowCalculator) Location() *time.Location { return c.loc }

// GracePeriod returns the configured grace duration.
func (c *WindowCalculator) GracePeriod() time.Duration { return c.grace }

// DateOf returns the school-local calendar date of t as a UTC midnight value.
func (c *WindowCalculator) DateOf(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// At combines a calendar date with a wall clock time in the school zone and returns UTC.
func (c *WindowCalculator) At(date time.Time, hhmm string) (time.Time, error) {
	ck, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, ck.hour, ck.minute, 0, 0, c.loc).UTC(), nil
}

// WindowStart is the period start minus the pre-window.
func (c *WindowCalculator) WindowStart(date time.Time, periodStart string) (time.Time, error) {
	at, err := c.At(date, periodStart)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(-c.pre), nil
}

// WindowEnd is the period end plus the post-window.
func (c *WindowCalculator) WindowEnd(date time.Time, periodEnd string) (time.Time, error) {
	at, err := c.At(date, periodEnd)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(c.post), nil
}

// GraceEnd extends a window end by the grace period.
func (c *WindowCalculator) GraceEnd(windowEnd time.Time) time.Time {
	return windowEnd.Add(c.grace)
}

// Window computes the full window for a period.
func (c *WindowCalculator) Window(date time.Time, periodStart, periodEnd string) (Window, error) {
	start, err := c.WindowStart(date, periodStart)
	if err != nil {
		return Window{}, err
	}
	end, err := c.WindowEnd(date, periodEnd)
	if err != nil {
		return Window{}, err
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("period ends before it starts: %s-%s", periodStart, periodEnd)
	}
	return Window{Start: start, End: end, GraceEnd: c.GraceEnd(end)}, nil
}

// FullDay spans the whole school-local day, used when no period is known.
func (c *WindowCalculator) FullDay(date time.Time) Window {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.loc).UTC()
	end := time.Date(y, m, d, 23, 59, 59, 0, c.loc).UTC()
	return Window{Start: start, End: end, GraceEnd: c.GraceEnd(end)}
}

// IsAllowedSlot reports whether the period falls inside the day's permitted hours.
// Sundays are always closed.
func (c *WindowCalculator) IsAllowedSlot(date time.Time, periodStart, periodEnd string) bool {
	start, err := parseClock(periodStart)
	if err != nil {
		return false
	}
	end, err := parseClock(periodEnd)
	if err != nil {
		return false
	}
	var opens, closes clock
	switch date.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		if !c.saturdayEnabled {
			return false
		}
		opens, closes = c.saturdayStart, c.saturdayEnd
	default:
		opens, closes = c.weekdayStart, c.weekdayEnd
	}
	return start.minutes() >= opens.minutes() && end.minutes() <= closes.minutes() && start.minutes() < end.minutes()
}
