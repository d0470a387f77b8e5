// Package rollover detects the start of a new budgeting period and archives
// the finished one into a history record.
package rollover

import "dailybudget/internal/core"

// State is the persisted budgeting state the archiver works on.
// A nil Salary means no salary has been entered; a nil LastActive means the
// application has never run.
type State struct {
	Salary     *core.Money
	Categories []core.Category
	Expenses   []core.Expense
	LastActive *core.Period
}

// Outcome tells which of the three start-up situations was handled.
type Outcome int

const (
	FirstRun Outcome = iota
	SamePeriod
	Archived
)

func (o Outcome) String() string {
	switch o {
	case FirstRun:
		return "first_run"
	case SamePeriod:
		return "steady"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// Result is the state to persist plus the history record to append, if any.
type Result struct {
	State   State
	History *core.MonthHistory
	Outcome Outcome
}

// Run compares the stored period marker with current.
//
// On first run the marker is set and nothing else changes. Within the same
// period the state is returned untouched. Any other marker, earlier or
// later, archives the stored data: the salary is cleared, expenses are
// emptied, categories are kept and the marker moves to current.
//
// Run is pure. Persisting the returned state together with the history
// record is the caller's job and must happen atomically.
func Run(prev State, current core.Period) Result {
	if prev.LastActive == nil {
		next := prev
		next.LastActive = &current
		return Result{State: next, Outcome: FirstRun}
	}
	if *prev.LastActive == current {
		return Result{State: prev, Outcome: SamePeriod}
	}

	record := Summarize(*prev.LastActive, prev.Salary, prev.Categories, prev.Expenses)
	marker := current
	return Result{
		State: State{
			Categories: prev.Categories,
			Expenses:   []core.Expense{},
			LastActive: &marker,
		},
		History: &record,
		Outcome: Archived,
	}
}

// Summarize builds the history record of period p.
//
// Every stored expense counts toward its category without looking at its
// date. Expenses of categories that no longer exist are left out of both the
// category rows and the total.
func Summarize(p core.Period, salary *core.Money, categories []core.Category, expenses []core.Expense) core.MonthHistory {
	spent := make(map[string]core.Money, len(categories))
	for _, e := range expenses {
		spent[e.CategoryID] = spent[e.CategoryID].Add(e.Amount)
	}

	var income core.Money
	if salary != nil {
		income = *salary
	}

	record := core.MonthHistory{
		ID:         p,
		MonthLabel: p.Label(),
		Salary:     income,
		Categories: make([]core.CategorySummary, 0, len(categories)),
	}
	for _, c := range categories {
		s := spent[c.ID]
		record.TotalSpent = record.TotalSpent.Add(s)
		record.Categories = append(record.Categories, core.CategorySummary{
			CategoryID:      c.ID,
			CategoryName:    c.Name,
			AllocatedBudget: c.MonthlyAllocation,
			TotalSpent:      s,
			Saved:           c.MonthlyAllocation.Sub(s),
		})
	}
	record.TotalSaved = income.Sub(record.TotalSpent)
	return record
}
