package sheets

import (
	"context"

	"dailybudget/internal/core"
)

// HistoryWriter exports archived months to an external sheet.
type HistoryWriter interface {
	// AppendMonth writes h. It does not check for duplicates.
	AppendMonth(ctx context.Context, h core.MonthHistory) error
	// HasMonth reports whether period p was already exported.
	HasMonth(ctx context.Context, p core.Period) (bool, error)
}
