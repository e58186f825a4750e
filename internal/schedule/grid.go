package schedule

import (
	"errors"
	"fmt"
	"time"
)

const (
	TimeFormat = "15:04"
	DateFormat = "2006-01-02"

	// SlotMinutes is the width of one grid slot.
	SlotMinutes = 30
	// DefaultDurationMinutes is used whenever a duration is missing or not positive.
	DefaultDurationMinutes = 30

	openingMinute    = 9 * 60
	lastStartCeiling = 18 * 60
)

var (
	ErrInvalidClock = errors.New("time must be HH:MM")
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	minutes int
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock{minutes: t.Hour()*60 + t.Minute()}, nil
}

// ClockAt builds a Clock from minutes since midnight.
func ClockAt(minutes int) Clock {
	return Clock{minutes: minutes}
}

func (c Clock) Minutes() int { return c.minutes }

func (c Clock) Add(minutes int) Clock { return Clock{minutes: c.minutes + minutes} }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.minutes/60, c.minutes%60)
}

// Date is a calendar day without a time zone.
type Date struct {
	year  int
	month time.Month
	day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

func (d Date) IsZero() bool { return d.year == 0 && d.month == 0 && d.day == 0 }

// At returns the instant clock c on day d begins in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.year, d.month, d.day, 0, c.minutes, 0, 0, loc)
}

func (d Date) Before(o Date) bool {
	if d.year != o.year {
		return d.year < o.year
	}
	if d.month != o.month {
		return d.month < o.month
	}
	return d.day < o.day
}

func (d Date) Year() int { return d.year }

func (d Date) Month() time.Month { return d.month }

func (d Date) Day() int { return d.day }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

var workingDay = buildGrid()

func buildGrid() []Clock {
	slots := make([]Clock, 0, (lastStartCeiling-openingMinute)/SlotMinutes)
	for m := openingMinute; m < lastStartCeiling; m += SlotMinutes {
		slots = append(slots, Clock{minutes: m})
	}
	return slots
}

// AllSlots returns every valid appointment start of the working day, in order.
func AllSlots() []Clock {
	out := make([]Clock, len(workingDay))
	copy(out, workingDay)
	return out
}

// IsValidStart reports whether c is a start time on the working-day grid.
func IsValidStart(c Clock) bool {
	if c.minutes < openingMinute || c.minutes >= lastStartCeiling {
		return false
	}
	return (c.minutes-openingMinute)%SlotMinutes == 0
}
