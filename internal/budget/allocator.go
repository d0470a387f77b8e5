// Package budget turns a salary, categories and an expense log into
// per-category spending allowances for a given day.
package budget

import (
	"github.com/shopspring/decimal"

	"dailybudget/internal/core"
)

// ComputeBudgetMetrics returns the metrics of every category for today.
//
// Nothing can be budgeted without an income or without categories, so a nil
// or zero salary and an empty category list both yield an empty map.
// Expenses referring to unknown categories are ignored.
func ComputeBudgetMetrics(salary *core.Money, categories []core.Category, expenses []core.Expense, today core.Date) map[string]core.BudgetMetrics {
	metrics := make(map[string]core.BudgetMetrics, len(categories))
	if salary == nil || salary.Cents == 0 || len(categories) == 0 {
		return metrics
	}

	period := core.PeriodOf(today)
	remainingDays := core.RemainingDaysInclusive(today)
	remainingWeeks := core.RemainingWeeksInclusive(today)

	spentInPeriod := make(map[string]core.Money)
	spentToday := make(map[string]core.Money)
	for _, e := range expenses {
		if !period.Contains(e.Date) {
			continue
		}
		spentInPeriod[e.CategoryID] = spentInPeriod[e.CategoryID].Add(e.Amount)
		if e.Date.Equal(today.Time) {
			spentToday[e.CategoryID] = spentToday[e.CategoryID].Add(e.Amount)
		}
	}

	for _, c := range categories {
		balance := c.MonthlyAllocation.Sub(spentInPeriod[c.ID]).Decimal()
		metrics[c.ID] = core.BudgetMetrics{
			DailyBudget:    share(balance, remainingDays),
			WeeklyBalance:  share(balance, remainingWeeks),
			MonthlyBalance: balance,
			SpentToday:     spentToday[c.ID].Decimal(),
		}
	}
	return metrics
}

// share spreads balance evenly over n slots, floored at zero for display.
func share(balance decimal.Decimal, n int) decimal.Decimal {
	v := balance
	if n > 0 {
		v = balance.Div(decimal.NewFromInt(int64(n)))
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
