// Package memory is an in-process sheets.HistoryWriter.
package memory

import (
	"context"
	"slices"
	"sync"

	"dailybudget/internal/core"
)

type Writer struct {
	mu     sync.Mutex
	months []core.MonthHistory
}

func New() *Writer {
	return &Writer{}
}

func (w *Writer) AppendMonth(_ context.Context, h core.MonthHistory) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.months = append(w.months, h)
	return nil
}

func (w *Writer) HasMonth(_ context.Context, p core.Period) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.ContainsFunc(w.months, func(h core.MonthHistory) bool { return h.ID == p }), nil
}

// Months returns the exported records in write order.
func (w *Writer) Months() []core.MonthHistory {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.months)
}
