package modeclock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/court-scheduler/internal/internaltypes"
)

// Regime is the operating mode for a time of day.
type Regime int

const (
	Dormant Regime = iota
	Eager
	Normal
)

func (r Regime) String() string {
	switch r {
	case Dormant:
		return "dormant"
	case Eager:
		return "eager"
	case Normal:
		return "normal"
	default:
		return "unknown"
	}
}

const day = 24 * time.Hour

// Clock partitions a day into three windows around the schedule refresh instant:
//
//	Dormant [00:00, refresh-lead)
//	Eager   [refresh-lead, refresh+hold)
//	Normal  [refresh+hold, 24:00)
//
// It holds no state; every call is a pure function of the time passed in.
type Clock struct {
	Refresh time.Duration // offset from midnight
	Lead    time.Duration
	Hold    time.Duration
}

// Default is refresh 07:00, eager from 06:55 until 07:29:59, normal until midnight.
func Default() Clock {
	return Clock{Refresh: 7 * time.Hour, Lead: 5 * time.Minute, Hold: 30 * time.Minute}
}

// New builds a Clock and checks that the three windows fit in one day.
func New(refresh string, lead, hold time.Duration) (Clock, error) {
	r, err := ParseTimeOfDay(refresh)
	if err != nil {
		return Clock{}, internaltypes.NewConfigError("refresh-time", "%v", err)
	}
	c := Clock{Refresh: r, Lead: lead, Hold: hold}
	if lead < 0 || hold <= 0 {
		return Clock{}, internaltypes.NewConfigError("eager-window", "lead must be >= 0 and hold > 0 (lead=%s hold=%s)", lead, hold)
	}
	if c.eagerStart() < 0 || c.normalStart() > day {
		return Clock{}, internaltypes.NewConfigError("eager-window", "window %s..%s does not fit in one day",
			FormatTimeOfDay(c.eagerStart()), FormatTimeOfDay(c.normalStart()))
	}
	return c, nil
}

// ParseTimeOfDay parses HH:MM (24h) into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func FormatTimeOfDay(d time.Duration) string {
	d = d.Truncate(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func (c Clock) eagerStart() time.Duration  { return c.Refresh - c.Lead }
func (c Clock) normalStart() time.Duration { return c.Refresh + c.Hold }

// At maps a wall-clock instant to its regime. The time of day is read off the clock face,
// so a DST change shifts no window.
func (c Clock) At(t time.Time) Regime {
	tod := timeOfDay(t)
	switch {
	case tod < c.eagerStart():
		return Dormant
	case tod < c.normalStart():
		return Eager
	default:
		return Normal
	}
}

// NextWake returns the start of the next eager window strictly after t.
func (c Clock) NextWake(t time.Time) time.Time {
	w := wallTime(t, 0, c.eagerStart())
	if !w.After(t) {
		w = wallTime(t, 1, c.eagerStart())
	}
	return w
}

// NextBoundary returns the first instant after t at which the regime changes or the
// refresh instant is crossed. Sleeps are capped by it so no window starts late.
func (c Clock) NextBoundary(t time.Time) time.Time {
	marks := []time.Time{
		wallTime(t, 0, c.eagerStart()),
		wallTime(t, 0, c.Refresh),
		wallTime(t, 0, c.normalStart()),
		wallTime(t, 1, 0),
	}
	for _, b := range marks {
		if b.After(t) {
			return b
		}
	}
	return wallTime(t, 1, c.eagerStart())
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// wallTime is the instant the clock face in t's location shows tod, days after t's date.
func wallTime(t time.Time, days int, tod time.Duration) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d+days,
		int(tod/time.Hour), int(tod%time.Hour/time.Minute), int(tod%time.Minute/time.Second),
		int(tod%time.Second), t.Location())
}
