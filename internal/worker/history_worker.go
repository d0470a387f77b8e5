// Package worker exports archived months received from the broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"dailybudget/internal/amqp"
	"dailybudget/internal/log"
	"dailybudget/internal/metrics"
	"dailybudget/internal/sheets"
)

// HistoryWorker writes each archived month to the history sheet once.
type HistoryWorker struct {
	writer  sheets.HistoryWriter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHistoryWorker builds a worker. m may be nil.
func NewHistoryWorker(writer sheets.HistoryWriter, m *metrics.Metrics, logger *slog.Logger) *HistoryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryWorker{
		writer:  writer,
		metrics: m,
		logger:  logger.With(log.FieldComponent, log.ComponentWorker),
	}
}

// HandleMonthArchived exports msg unless its period is already in the sheet.
// Redelivered messages are therefore harmless. An error makes the consumer
// requeue the message.
func (w *HistoryWorker) HandleMonthArchived(ctx context.Context, msg *amqp.MonthArchivedMessage) error {
	period := msg.History.ID

	exists, err := w.writer.HasMonth(ctx, period)
	if err != nil {
		w.metrics.IncrHistoryExport(metrics.ExportFailed)
		return fmt.Errorf("check exported months: %w", err)
	}
	if exists {
		w.metrics.IncrHistoryExport(metrics.ExportDuplicate)
		w.logger.InfoContext(ctx, "Archived month already exported", log.FieldPeriod, period.String())
		return nil
	}

	if err := w.writer.AppendMonth(ctx, msg.History); err != nil {
		w.metrics.IncrHistoryExport(metrics.ExportFailed)
		return fmt.Errorf("export %s: %w", period, err)
	}

	w.metrics.IncrHistoryExport(metrics.ExportWritten)
	w.logger.InfoContext(ctx, "Archived month exported", log.NewFields().
		WithOperation(log.OpExport).
		WithPeriod(period.String()).
		ToSlice()...)
	return nil
}
