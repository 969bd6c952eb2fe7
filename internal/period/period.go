// Package period computes budget periods ("custom months") that begin on a
// configurable day of the month instead of always on the 1st.
//
// A period with start day S runs from day S of one month up to the day before
// day S of the next month. Months too short to contain S are clamped: the period
// ending in such a month ends on its last day, and the period that would start
// on the missing day starts on the 1st of the following month instead.
//
// Everything in this package is pure and safe for concurrent use.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StartDay is the day of the month on which every period begins.
type StartDay int

const (
	MinStartDay     StartDay = 1
	MaxStartDay     StartDay = 31
	DefaultStartDay StartDay = 1
)

var ErrInvalidStartDay = errors.New("month start day must be a number between 1 and 31")

// Validate reports whether s lies in [1, 31].
func (s StartDay) Validate() error {
	if s < MinStartDay || s > MaxStartDay {
		return fmt.Errorf("%w: got %d", ErrInvalidStartDay, int(s))
	}
	return nil
}

// ParseStartDay parses and validates a start day read from configuration.
func ParseStartDay(v string) (StartDay, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidStartDay, v)
	}
	s := StartDay(n)
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return s, nil
}

// Range is an inclusive period boundary.
type Range struct {
	Start Date `json:"startDate"`
	End   Date `json:"endDate"`
}

// Contains reports whether d falls within r, bounds included.
func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of days in r.
func (r Range) Days() int {
	start := r.Start.Time(time.UTC)
	end := r.End.Time(time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// Next returns the period immediately following r.
func (r Range) Next(s StartDay) Range {
	return Compute(r.End.AddDays(1), s)
}

// Previous returns the period immediately preceding r.
func (r Range) Previous(s StartDay) Range {
	return Compute(r.Start.AddDays(-1), s)
}

// String renders r as "startDate..endDate".
func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// Label formats r for display, e.g. "Jan 15, 2024 - Feb 14, 2024".
func (r Range) Label() string {
	const layout = "Jan 2, 2006"
	return r.Start.Time(time.UTC).Format(layout) + " - " + r.End.Time(time.UTC).Format(layout)
}

// LastDayOfMonth returns the number of days in month of year.
func LastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Compute returns the period containing ref for start day s.
// s must already be valid.
func Compute(ref Date, s StartDay) Range {
	day := int(s)

	startYear, startMonth := ref.Year, ref.Month
	if ref.Day < day {
		startYear, startMonth = previousMonth(startYear, startMonth)
	}

	start := Date{Year: startYear, Month: startMonth, Day: day}
	if day > LastDayOfMonth(startYear, startMonth) {
		// The start day does not exist in this month; the period opens on the
		// first day of the next one, where the previous period's clamp ended.
		y, m := nextMonth(startYear, startMonth)
		start = Date{Year: y, Month: m, Day: 1}
	}

	endYear, endMonth := nextMonth(startYear, startMonth)
	var end Date
	if last := LastDayOfMonth(endYear, endMonth); day > last {
		end = Date{Year: endYear, Month: endMonth, Day: last}
	} else if endDay := day - 1; endDay == 0 {
		y, m := previousMonth(endYear, endMonth)
		end = Date{Year: y, Month: m, Day: LastDayOfMonth(y, m)}
	} else {
		end = Date{Year: endYear, Month: endMonth, Day: endDay}
	}

	return Range{Start: start, End: end}
}

// Current returns the period containing today's local date.
func Current(s StartDay) Range {
	return Compute(Today(), s)
}

// CurrentAt returns the period containing the wall-clock date of now.
func CurrentAt(now time.Time, s StartDay) Range {
	return Compute(DateOf(now), s)
}

func previousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
