// Package core provides the ledger domain model: templates, instances,
// payment events, sinking funds and the calendar/money primitives they
// are built on.
package core

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time component. The zero value is
// "no date". It serializes as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string, rejecting impossible calendar
// dates (e.g. 2024-02-30).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Year returns the calendar year.
func (d Date) Year() int { return d.Time.Year() }

// Month returns the calendar month, 1-12.
func (d Date) Month() int { return int(d.Time.Month()) }

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD", null or "" (both meaning no date).
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the number of days in (year, month).
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay clamps a nominal due day (1-31) to the actual length of
// (year, month), so a day-31 bill lands on Feb 28 in February.
func ClampDay(day, year, month int) int {
	if day < 1 {
		return 1
	}
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	return day
}

// ValidMonth reports whether month is in 1-12.
func ValidMonth(month int) bool { return month >= 1 && month <= 12 }

// AddMonths advances (year, month) by n months, normalizing overflow.
func AddMonths(year, month, n int) (int, int) {
	t := time.Date(year, time.Month(month+n), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), int(t.Month())
}

// MonthOnOrAfter reports whether (y, m) is the same month as or a later
// month than (refYear, refMonth).
func MonthOnOrAfter(y, m, refYear, refMonth int) bool {
	return y > refYear || (y == refYear && m >= refMonth)
}

// MonthsRemaining counts the calendar-month boundaries from ref to due.
// It returns 0 when due is on or before ref. The naive (year, month)
// difference is incremented by one when due's day-of-month is at least
// ref's, so a deadline later in the month still counts as that month's.
func MonthsRemaining(ref, due Date) int {
	if due.IsZero() || !due.After(ref.Time) {
		return 0
	}
	months := (due.Year()-ref.Year())*12 + due.Month() - ref.Month()
	if due.Day() >= ref.Day() {
		months++
	}
	if months < 0 {
		return 0
	}
	return months
}

// InMonth reports whether the date falls inside (year, month).
func (d Date) InMonth(year, month int) bool {
	return !d.IsZero() && d.Year() == year && d.Month() == month
}
