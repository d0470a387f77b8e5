package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const periodLayout = "2006-01"

var ErrInvalidPeriod = errors.New("invalid period")

// Period is a calendar month, written as YYYY-MM.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing d.
func PeriodOf(d Date) Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label is the human form used in history, e.g. "January 2026".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Contains reports whether d falls within the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

// Before reports whether p is an earlier month than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Period) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, string(data))
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DaysInMonth returns the number of days in the given month, leap years included.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RemainingDaysInclusive counts the days left in today's month, today included.
// It is 1 on the last day of the month.
func RemainingDaysInclusive(today Date) int {
	return DaysInMonth(today.Year(), today.Month()) - today.Day() + 1
}

// RemainingWeeksInclusive counts the Monday-started weeks that still have at
// least one day left in today's month. The week containing today always counts,
// then every Monday from tomorrow to the end of the month adds one.
func RemainingWeeksInclusive(today Date) int {
	weeks := 1
	last := NewDate(today.Year(), today.Month(), DaysInMonth(today.Year(), today.Month()))
	for d := today.AddDays(1); !d.After(last.Time); d = d.AddDays(1) {
		if d.Weekday() == time.Monday {
			weeks++
		}
	}
	return weeks
}
