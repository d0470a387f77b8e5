package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type (
	// Date is a calendar date. The time part is always midnight UTC so two
	// dates compare equal whenever their year, month and day match.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID                string
		Name              string
		MonthlyAllocation Money
		// ShowWeeklyBalance is a display preference only.
		ShowWeeklyBalance bool
	}

	Expense struct {
		ID         string
		CategoryID string
		Amount     Money
		Date       Date
	}

	// BudgetMetrics is derived from the current state and never persisted.
	// Values are in currency units, not cents.
	BudgetMetrics struct {
		DailyBudget    decimal.Decimal `json:"dailyBudget"`
		WeeklyBalance  decimal.Decimal `json:"weeklyBalance"`
		MonthlyBalance decimal.Decimal `json:"monthlyBalance"`
		SpentToday     decimal.Decimal `json:"spentToday"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
)

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type categoryJSON struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	MonthlyAllocation *Money `json:"monthlyAllocation,omitempty"`
	LegacyBudget      *Money `json:"budgetId,omitempty"`
	ShowWeeklyBalance bool   `json:"showWeeklyBalance"`
}

func (c Category) MarshalJSON() ([]byte, error) {
	alloc := c.MonthlyAllocation
	return json.Marshal(categoryJSON{
		ID:                c.ID,
		Name:              c.Name,
		MonthlyAllocation: &alloc,
		ShowWeeklyBalance: c.ShowWeeklyBalance,
	})
}

// UnmarshalJSON also accepts the older "budgetId" key for the allocation.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw categoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" {
		return errors.New("category without id")
	}
	*c = Category{
		ID:                raw.ID,
		Name:              raw.Name,
		ShowWeeklyBalance: raw.ShowWeeklyBalance,
	}
	switch {
	case raw.MonthlyAllocation != nil:
		c.MonthlyAllocation = *raw.MonthlyAllocation
	case raw.LegacyBudget != nil:
		c.MonthlyAllocation = *raw.LegacyBudget
	}
	return nil
}

type expenseJSON struct {
	ID         string `json:"id"`
	CategoryID string `json:"categoryId"`
	Amount     Money  `json:"amount"`
	Date       Date   `json:"date"`
}

func (e Expense) MarshalJSON() ([]byte, error) {
	return json.Marshal(expenseJSON(e))
}

func (e *Expense) UnmarshalJSON(data []byte) error {
	var raw expenseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" || raw.CategoryID == "" {
		return errors.New("expense without id or category")
	}
	if raw.Date.IsZero() {
		return fmt.Errorf("%w: expense %s has no date", ErrInvalidDate, raw.ID)
	}
	*e = Expense(raw)
	return nil
}
