package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dailybudget/internal/amqp"
	"dailybudget/internal/core"
	"dailybudget/internal/metrics"
	"dailybudget/internal/sheets/memory"
)

type brokenWriter struct {
	hasErr, appendErr error
}

func (b brokenWriter) AppendMonth(context.Context, core.MonthHistory) error { return b.appendErr }

func (b brokenWriter) HasMonth(context.Context, core.Period) (bool, error) { return false, b.hasErr }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(y int, m time.Month) *amqp.MonthArchivedMessage {
	p := core.Period{Year: y, Month: m}
	return amqp.NewMonthArchivedMessage(core.MonthHistory{ID: p, MonthLabel: p.Label()})
}

func TestHandleMonthArchived_WritesOnce(t *testing.T) {
	ctx := context.Background()
	writer := memory.New()
	m := metrics.New()
	w := NewHistoryWorker(writer, m, quiet())

	for i := 0; i < 3; i++ {
		if err := w.HandleMonthArchived(ctx, message(2024, time.January)); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if err := w.HandleMonthArchived(ctx, message(2024, time.February)); err != nil {
		t.Fatal(err)
	}

	if got := len(writer.Months()); got != 2 {
		t.Errorf("exported %d months, want 2", got)
	}
	if got := testutil.ToFloat64(m.HistoryExports(metrics.ExportWritten)); got != 2 {
		t.Errorf("written = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HistoryExports(metrics.ExportDuplicate)); got != 2 {
		t.Errorf("duplicate = %v, want 2", got)
	}
}

func TestHandleMonthArchived_Errors(t *testing.T) {
	tests := []struct {
		name   string
		writer brokenWriter
	}{
		{"lookup fails", brokenWriter{hasErr: errors.New("quota")}},
		{"append fails", brokenWriter{appendErr: errors.New("quota")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			w := NewHistoryWorker(tt.writer, m, quiet())
			if err := w.HandleMonthArchived(context.Background(), message(2024, time.March)); err == nil {
				t.Fatal("expected error so the message is requeued")
			}
			if got := testutil.ToFloat64(m.HistoryExports(metrics.ExportFailed)); got != 1 {
				t.Errorf("failed = %v, want 1", got)
			}
		})
	}
}
