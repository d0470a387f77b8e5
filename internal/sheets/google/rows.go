package google

import (
	"fmt"
	"strings"

	"dailybudget/internal/core"
)

// Header is the first row of the history sheet.
var Header = []interface{}{
	"Period", "Month", "Salary", "Total spent", "Total saved",
	"Category", "Allocated", "Spent", "Saved",
}

// historyRows flattens h into one row per category, repeating the month
// totals on each. A month without categories still gets a single row.
func historyRows(h core.MonthHistory) [][]interface{} {
	head := []interface{}{
		periodCell(h.ID),
		h.MonthLabel,
		h.Salary.String(),
		h.TotalSpent.String(),
		h.TotalSaved.String(),
	}
	if len(h.Categories) == 0 {
		return [][]interface{}{append(head, "", "", "", "")}
	}

	rows := make([][]interface{}, 0, len(h.Categories))
	for _, c := range h.Categories {
		row := make([]interface{}, 0, len(Header))
		row = append(row, head...)
		row = append(row,
			c.CategoryName,
			c.AllocatedBudget.String(),
			c.TotalSpent.String(),
			c.Saved.String(),
		)
		rows = append(rows, row)
	}
	return rows
}

// periodCell forces the period into a text cell. With USER_ENTERED input a
// bare "2024-01" would be parsed as a date and read back formatted.
func periodCell(p core.Period) string {
	return "'" + p.String()
}

// containsPeriod scans the first column of values for p. Cells are compared
// after dropping a leading text marker, so rows written before the marker
// was used and rows read back unformatted both match.
func containsPeriod(values [][]interface{}, p core.Period) bool {
	want := p.String()
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimPrefix(strings.TrimSpace(fmt.Sprint(row[0])), "'")
		if cell == want {
			return true
		}
	}
	return false
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
