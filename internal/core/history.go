package core

// CategorySummary is one category's result for a finished period.
type CategorySummary struct {
	CategoryID      string `json:"categoryId"`
	CategoryName    string `json:"categoryName"`
	AllocatedBudget Money  `json:"allocatedBudget"`
	TotalSpent      Money  `json:"totalSpent"`
	// Saved is AllocatedBudget minus TotalSpent; negative means overspent.
	Saved Money `json:"saved"`
}

// MonthHistory is the archived summary of a finished period.
// It is written once at rollover and never modified.
type MonthHistory struct {
	ID         Period            `json:"id"`
	MonthLabel string            `json:"monthLabel"`
	Salary     Money             `json:"salary"`
	TotalSpent Money             `json:"totalSpent"`
	TotalSaved Money             `json:"totalSaved"`
	Categories []CategorySummary `json:"categories"`
}
